package surface

import (
	"context"
	"time"
)

// Prober wraps surface calls for heuristic code. Each probe returns its value
// and a found flag instead of an error: transient failures (timeouts, missing
// or hidden elements, detached frames) read as "absent". The first fatal
// error, or the context ending, is kept and reported by Err; once set, every
// later probe returns absent without touching the page.
//
// A Prober is used by one audit stage at a time and is not safe for
// concurrent use.
type Prober struct {
	err error
}

// NewProber returns a Prober with no recorded failure.
func NewProber() *Prober { return &Prober{} }

// Err returns the first fatal error seen, or nil.
func (p *Prober) Err() error { return p.err }

// Failed reports whether a fatal error has been recorded.
func (p *Prober) Failed() bool { return p.err != nil }

// Reset clears the recorded error.
func (p *Prober) Reset() { p.err = nil }

func (p *Prober) live(ctx context.Context) bool {
	if p.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		p.err = err
		return false
	}
	return true
}

// check records err when it is fatal and reports whether the call succeeded.
func (p *Prober) check(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	if p.err == nil {
		if IsFatal(err) {
			p.err = err
		} else if cerr := ctx.Err(); cerr != nil {
			p.err = cerr
		}
	}
	return false
}

// Visible reports whether the first match is currently visible.
func (p *Prober) Visible(ctx context.Context, l Locator) bool {
	if l == nil || !p.live(ctx) {
		return false
	}
	v, err := l.Visible(ctx)
	return p.check(ctx, err) && v
}

// WaitVisible waits up to timeout for the first match to become visible.
func (p *Prober) WaitVisible(ctx context.Context, l Locator, timeout time.Duration) bool {
	if l == nil || !p.live(ctx) {
		return false
	}
	return p.check(ctx, l.WaitVisible(ctx, timeout))
}

// Count returns the number of matches, 0 when the query fails.
func (p *Prober) Count(ctx context.Context, l Locator) int {
	if l == nil || !p.live(ctx) {
		return 0
	}
	n, err := l.Count(ctx)
	if !p.check(ctx, err) {
		return 0
	}
	return n
}

// Text returns the rendered text of the first match.
func (p *Prober) Text(ctx context.Context, l Locator, timeout time.Duration) (string, bool) {
	if l == nil || !p.live(ctx) {
		return "", false
	}
	s, err := l.Text(ctx, timeout)
	return s, p.check(ctx, err)
}

// HTML returns the inner HTML of the first match.
func (p *Prober) HTML(ctx context.Context, l Locator, timeout time.Duration) (string, bool) {
	if l == nil || !p.live(ctx) {
		return "", false
	}
	s, err := l.HTML(ctx, timeout)
	return s, p.check(ctx, err)
}

// Attr returns an attribute of the first match; found is false when the
// element or the attribute is missing.
func (p *Prober) Attr(ctx context.Context, l Locator, name string, timeout time.Duration) (string, bool) {
	if l == nil || !p.live(ctx) {
		return "", false
	}
	v, ok, err := l.Attribute(ctx, name, timeout)
	return v, p.check(ctx, err) && ok
}

// Box returns the layout box of the first match.
func (p *Prober) Box(ctx context.Context, l Locator) (Box, bool) {
	if l == nil || !p.live(ctx) {
		return Box{}, false
	}
	b, ok, err := l.BoundingBox(ctx)
	return b, p.check(ctx, err) && ok
}

// Describe snapshots the first match.
func (p *Prober) Describe(ctx context.Context, l Locator) (ElementInfo, bool) {
	if l == nil || !p.live(ctx) {
		return ElementInfo{}, false
	}
	info, err := l.Describe(ctx)
	return info, p.check(ctx, err)
}

// Checked returns the toggle state of the first match.
func (p *Prober) Checked(ctx context.Context, l Locator) (checked, found bool) {
	if l == nil || !p.live(ctx) {
		return false, false
	}
	c, err := l.Checked(ctx)
	return c, p.check(ctx, err)
}

// Click clicks the first match. Unlike the other probes it returns the
// error so callers can tell a timeout (worth retrying) from anything else.
// Fatal errors are also recorded.
func (p *Prober) Click(ctx context.Context, l Locator, opts ClickOptions) error {
	if l == nil {
		return ErrNotFound
	}
	if !p.live(ctx) {
		return p.err
	}
	err := l.Click(ctx, opts)
	p.check(ctx, err)
	return err
}

// Scroll scrolls the first match into view.
func (p *Prober) Scroll(ctx context.Context, l Locator) bool {
	if l == nil || !p.live(ctx) {
		return false
	}
	return p.check(ctx, l.ScrollIntoView(ctx))
}

// ScrollToBottom scrolls the content of the first match to its end.
func (p *Prober) ScrollToBottom(ctx context.Context, l Locator) bool {
	if l == nil || !p.live(ctx) {
		return false
	}
	return p.check(ctx, l.ScrollToBottom(ctx))
}

// Frames lists the frames of s, nil on failure.
func (p *Prober) Frames(ctx context.Context, s Scope) []Frame {
	if s == nil || !p.live(ctx) {
		return nil
	}
	fs, err := s.Frames(ctx)
	if !p.check(ctx, err) {
		return nil
	}
	return fs
}

// EnterIframe resolves an iframe document inside s.
func (p *Prober) EnterIframe(ctx context.Context, s Scope, selector string, timeout time.Duration) (Frame, bool) {
	if s == nil || !p.live(ctx) {
		return nil, false
	}
	f, err := s.EnterIframe(ctx, selector, timeout)
	if !p.check(ctx, err) || f == nil {
		return nil, false
	}
	return f, true
}

// ShadowRoots lists the open shadow roots of page.
func (p *Prober) ShadowRoots(ctx context.Context, page Page) []ShadowRoot {
	if page == nil || !p.live(ctx) {
		return nil
	}
	roots, err := page.ShadowRoots(ctx)
	if !p.check(ctx, err) {
		return nil
	}
	return roots
}

// Wait pauses on page for d; false when the context ended.
func (p *Prober) Wait(ctx context.Context, page Page, d time.Duration) bool {
	if page == nil || !p.live(ctx) {
		return false
	}
	return p.check(ctx, page.Wait(ctx, d))
}
