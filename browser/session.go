package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/consentcrawl/surface"
)

// Session is one audit's browsing context: an incognito context holding a
// single page with stealth, user agent, viewport, webdriver masking and
// request interception applied. It implements surface.Page.
type Session struct {
	*frame

	mgr       *Manager
	incognito *rod.Browser
	router    *rod.HijackRouter
	requests  *requestLog
	closeOnce sync.Once
}

var _ surface.Page = (*Session)(nil)

// Open is NewSession as a surface.Page, for audit.Opener.
func (m *Manager) Open(ctx context.Context) (surface.Page, error) {
	s, err := m.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSession opens an isolated context and page on the shared browser.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.acquire()
	if err != nil {
		return nil, err
	}

	incog, err := b.Incognito()
	if err != nil {
		m.release()
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}

	var page *rod.Page
	if m.cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(incog)
	} else {
		page, err = incog.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		incog.Close()
		m.release()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	s := &Session{mgr: m, incognito: incog, requests: &requestLog{}}
	s.frame = &frame{sess: s, page: page, main: true}

	log := m.cfg.Logger
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}); err != nil {
		log.Warn("browser: user agent override failed", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("browser: viewport failed", "error", err)
	}
	if _, err := page.EvalOnNewDocument(hideWebdriverJS); err != nil {
		log.Warn("browser: webdriver mask failed", "error", err)
	}
	s.router = interceptRequests(page, m.cfg.ResourceBlocking, s.requests)

	return s, nil
}

// Navigate loads url and waits for wait, at most timeout. A timeout is
// reported as surface.ErrTimeout; the page stays usable.
func (s *Session) Navigate(ctx context.Context, url string, wait surface.WaitCondition, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(navCtx)
	var waitDOM func()
	if wait == surface.WaitDOMContentLoaded {
		waitDOM = p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	}
	if err := p.Navigate(url); err != nil {
		return classify("navigate", err)
	}
	if waitDOM != nil {
		waitDOM()
	} else if err := p.WaitLoad(); err != nil {
		return classify("navigate", err)
	}
	if err := navCtx.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigate %s: %w", url, surface.ErrTimeout)
	}
	return nil
}

// Evaluate runs script on the main frame and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, out any, script string, args ...any) error {
	res, err := s.page.Context(ctx).Eval(script, args...)
	if err != nil {
		return classify("evaluate", err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.JSON("", "")), out)
}

// ShadowRoots implements surface.Page.
func (s *Session) ShadowRoots(ctx context.Context) ([]surface.ShadowRoot, error) {
	res, err := s.page.Context(ctx).Eval(shadowRootsJS)
	if err != nil {
		return nil, classify("shadow roots", err)
	}
	var roots []surface.ShadowRoot
	if err := json.Unmarshal([]byte(res.Value.Str()), &roots); err != nil {
		return nil, fmt.Errorf("browser: shadow roots: %w", err)
	}
	return roots, nil
}

// Wait implements surface.Page.
func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// MouseMove implements surface.Page.
func (s *Session) MouseMove(ctx context.Context, x, y float64) error {
	return classify("mouse", s.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y}))
}

// Requests implements surface.Page.
func (s *Session) Requests() []string { return s.requests.snapshot() }

// Cookies returns the cookies of the session's browsing context.
func (s *Session) Cookies(ctx context.Context) ([]surface.Cookie, error) {
	raw, err := s.incognito.Context(ctx).GetCookies()
	if err != nil {
		return nil, classify("cookies", err)
	}
	out := make([]surface.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, surface.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// Screenshot implements surface.Page.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, classify("screenshot", err)
	}
	return data, nil
}

// Close releases the page and its incognito context.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.router != nil {
			s.router.Stop()
		}
		s.page.Close()
		err = s.incognito.Close()
		s.mgr.release()
	})
	return err
}

// frame is a document inside a session: the main page or an iframe, both
// addressed as rod pages.
type frame struct {
	sess *Session
	page *rod.Page
	name string
	url  string
	main bool
}

// Locate implements surface.Scope.
func (f *frame) Locate(sel string) surface.Locator {
	return newLocator(f, sel)
}

// Frames implements surface.Scope.
func (f *frame) Frames(ctx context.Context) ([]surface.Frame, error) {
	els, err := f.page.Context(ctx).Elements("iframe")
	if err != nil {
		return nil, classify("frames", err)
	}
	out := []surface.Frame{f}
	for _, el := range els {
		child, err := f.child(ctx, el)
		if err != nil {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

// EnterIframe implements surface.Scope.
func (f *frame) EnterIframe(ctx context.Context, sel string, timeout time.Duration) (surface.Frame, error) {
	el, err := newLocator(f, sel).await(ctx, timeout, false)
	if err != nil {
		return nil, err
	}
	return f.child(ctx, el)
}

func (f *frame) child(ctx context.Context, el *rod.Element) (*frame, error) {
	fp, err := el.Context(ctx).Frame()
	if err != nil {
		return nil, fmt.Errorf("frame: %w: %v", surface.ErrDetached, err)
	}
	c := &frame{sess: f.sess, page: fp}
	if v, _ := el.Attribute("name"); v != nil && *v != "" {
		c.name = *v
	} else if v, _ := el.Attribute("id"); v != nil {
		c.name = *v
	}
	if res, err := fp.Context(ctx).Eval(locationJS); err == nil {
		c.url = res.Value.Str()
	} else if v, _ := el.Attribute("src"); v != nil {
		c.url = *v
	}
	return c, nil
}

// URL implements surface.Scope.
func (f *frame) URL() string {
	if f.main {
		if info, err := f.page.Info(); err == nil {
			return info.URL
		}
	}
	return f.url
}

// Name implements surface.Frame.
func (f *frame) Name() string { return f.name }

// IsMain implements surface.Frame.
func (f *frame) IsMain() bool { return f.main }

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
