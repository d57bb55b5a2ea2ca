package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

const (
	pollInterval = 100 * time.Millisecond
	clickDefault = 5 * time.Second
)

type jsGroup struct {
	CSS     string   `json:"css"`
	HasText []string `json:"hasText,omitempty"`
	Text    []string `json:"text,omitempty"`
}

type jsStep struct {
	K      string    `json:"k"`
	Groups []jsGroup `json:"groups,omitempty"`
	N      int       `json:"n"`
}

// locator is a lazily evaluated selector chain. Text pseudo-classes are
// compiled to filters run in-page by resolveJS.
type locator struct {
	f     *frame
	steps []jsStep
	desc  []string
	err   error
}

func newLocator(f *frame, sel string) *locator {
	return (&locator{f: f}).add(sel)
}

func (l *locator) with(s jsStep, desc string) *locator {
	c := &locator{f: l.f, err: l.err}
	c.steps = append(append(c.steps, l.steps...), s)
	c.desc = append(append(c.desc, l.desc...), desc)
	return c
}

func (l *locator) add(sel string) *locator {
	s := jsStep{K: "sel"}
	parsed, err := selector.Parse(sel)
	var groups []selector.Group
	if err == nil {
		groups, err = parsed.Groups()
	}
	c := l.with(s, sel)
	if err != nil {
		if c.err == nil {
			c.err = fmt.Errorf("%w: %v", surface.ErrBadSelector, err)
		}
		return c
	}
	for _, g := range groups {
		c.steps[len(c.steps)-1].Groups = append(c.steps[len(c.steps)-1].Groups,
			jsGroup{CSS: g.CSS, HasText: g.HasText, Text: g.Text})
	}
	return c
}

func (l *locator) Locate(sel string) surface.Locator { return l.add(sel) }

func (l *locator) Nth(i int) surface.Locator {
	return l.with(jsStep{K: "nth", N: i}, "nth="+strconv.Itoa(i))
}

func (l *locator) First() surface.Locator { return l.Nth(0) }

func (l *locator) Parent() surface.Locator { return l.with(jsStep{K: "parent"}, "..") }

func (l *locator) Next() surface.Locator { return l.with(jsStep{K: "next"}, "+") }

func (l *locator) String() string { return strings.Join(l.desc, " >> ") }

func (l *locator) resolve(ctx context.Context) (rod.Elements, error) {
	if l.err != nil {
		return nil, l.err
	}
	els, err := l.f.page.Context(ctx).ElementsByJS(rod.Eval(resolveJS, l.steps))
	if err != nil {
		return nil, classify(l.String(), err)
	}
	return els, nil
}

// await polls until the chain has a first match (visible, when asked) or
// timeout passes. A zero timeout tries once.
func (l *locator) await(ctx context.Context, timeout time.Duration, visible bool) (*rod.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		els, err := l.resolve(ctx)
		if err != nil && !errors.Is(err, surface.ErrDetached) {
			return nil, err
		}
		if len(els) > 0 {
			el := els[0].Context(ctx)
			if !visible {
				return el, nil
			}
			if v, err := el.Visible(); err == nil && v {
				return el, nil
			}
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil, fmt.Errorf("%s: %w", l, surface.ErrTimeout)
		}
		if err := sleep(ctx, min(left, pollInterval)); err != nil {
			return nil, err
		}
	}
}

func (l *locator) Count(ctx context.Context) (int, error) {
	els, err := l.resolve(ctx)
	return len(els), err
}

func (l *locator) Visible(ctx context.Context) (bool, error) {
	els, err := l.resolve(ctx)
	if err != nil || len(els) == 0 {
		return false, err
	}
	v, err := els[0].Context(ctx).Visible()
	return v, classify(l.String(), err)
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	_, err := l.await(ctx, timeout, true)
	return err
}

func (l *locator) Text(ctx context.Context, timeout time.Duration) (string, error) {
	el, err := l.await(ctx, timeout, false)
	if err != nil {
		return "", err
	}
	s, err := el.Text()
	return s, classify(l.String(), err)
}

func (l *locator) HTML(ctx context.Context, timeout time.Duration) (string, error) {
	el, err := l.await(ctx, timeout, false)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(innerHTMLJS)
	if err != nil {
		return "", classify(l.String(), err)
	}
	return res.Value.Str(), nil
}

func (l *locator) Attribute(ctx context.Context, name string, timeout time.Duration) (string, bool, error) {
	el, err := l.await(ctx, timeout, false)
	if err != nil {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", false, classify(l.String(), err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (l *locator) Click(ctx context.Context, opts surface.ClickOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = clickDefault
	}
	el, err := l.await(ctx, timeout, !opts.Force)
	if err != nil {
		return err
	}
	if opts.Force {
		_, err := el.Eval(forceClickJS)
		return classify(l.String(), err)
	}
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return classify(l.String(), el.Context(clickCtx).Click(proto.InputMouseButtonLeft, 1))
}

func (l *locator) BoundingBox(ctx context.Context) (surface.Box, bool, error) {
	els, err := l.resolve(ctx)
	if err != nil || len(els) == 0 {
		return surface.Box{}, false, err
	}
	res, err := els[0].Context(ctx).Eval(boxJS)
	if err != nil {
		return surface.Box{}, false, classify(l.String(), err)
	}
	var b struct {
		X, Y, Width, Height float64
		OK                  bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &b); err != nil {
		return surface.Box{}, false, fmt.Errorf("browser: box: %w", err)
	}
	return surface.Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}, b.OK, nil
}

func (l *locator) Describe(ctx context.Context) (surface.ElementInfo, error) {
	el, err := l.await(ctx, 0, false)
	if err != nil {
		return surface.ElementInfo{}, err
	}
	res, err := el.Eval(describeJS, surface.InteractiveSelector)
	if err != nil {
		return surface.ElementInfo{}, classify(l.String(), err)
	}
	var info surface.ElementInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &info); err != nil {
		return surface.ElementInfo{}, fmt.Errorf("browser: describe: %w", err)
	}
	return info, nil
}

func (l *locator) Checked(ctx context.Context) (bool, error) {
	el, err := l.await(ctx, 0, false)
	if err != nil {
		return false, err
	}
	res, err := el.Eval(checkedJS)
	if err != nil {
		return false, classify(l.String(), err)
	}
	return res.Value.Bool(), nil
}

func (l *locator) ScrollIntoView(ctx context.Context) error {
	el, err := l.await(ctx, 0, false)
	if err != nil {
		return err
	}
	return classify(l.String(), el.ScrollIntoView())
}

func (l *locator) ScrollToBottom(ctx context.Context) error {
	el, err := l.await(ctx, 0, false)
	if err != nil {
		return err
	}
	_, err = el.Eval(scrollBottomJS)
	return classify(l.String(), err)
}
