// Package surfacetest provides an in-memory surface.Page over parsed HTML
// for tests. Selectors are evaluated with package selector, clicks run
// registered handlers that mutate the document, and waits advance a virtual
// clock instead of sleeping.
//
// Rendering is approximated: an element is visible unless it or an ancestor
// has the hidden attribute, display:none or visibility:hidden in its inline
// style, or is a non-rendered tag. Layout boxes come from a
// data-box="x,y,w,h" attribute, defaulting to 800x100 at the origin for
// visible elements.
//
// A Page is not safe for concurrent use.
package surfacetest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// Frame is one document: the page itself or an iframe.
type Frame struct {
	page   *Page
	root   *html.Node
	url    string
	name   string
	main   bool
	frames []*Frame
}

type handler struct {
	sel *selector.Selector
	fn  func(*Page)
}

type clickFailure struct {
	sel   *selector.Selector
	err   error
	times int // remaining failures, <0 for always
}

// Page is a fake browser tab.
type Page struct {
	*Frame

	t        testing.TB
	clicks   []handler
	scrolls  []handler
	failures []clickFailure
	elapsed  time.Duration
	closed   bool

	// NavigateErr is returned by Navigate when set.
	NavigateErr error
	// Eval, when set, serves Evaluate.
	Eval func(script string, args []any) (any, error)

	RequestLog []string
	CookieJar  []surface.Cookie
	Shadow     []surface.ShadowRoot
	ClickLog   []string
	Navigated  []string
}

// NewPage parses src as the main document of a page at url.
func NewPage(t testing.TB, url, src string) *Page {
	t.Helper()
	p := &Page{t: t}
	p.Frame = &Frame{page: p, root: mustParse(t, src), url: url, name: "", main: true}
	return p
}

func mustParse(t testing.TB, src string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("surfacetest: parse: %v", err)
	}
	return root
}

// AddFrame attaches a child document. EnterIframe finds it through the
// iframe element whose name or id equals name.
func (f *Frame) AddFrame(name, url, src string) *Frame {
	child := &Frame{page: f.page, root: mustParse(f.page.t, src), url: url, name: name}
	f.frames = append(f.frames, child)
	return child
}

// DetachFrames removes every child frame.
func (f *Frame) DetachFrames() { f.frames = nil }

// OnClick registers fn to run after a click on an element matching sel or
// inside one.
func (p *Page) OnClick(sel string, fn func(*Page)) {
	p.clicks = append(p.clicks, handler{sel: p.mustSelector(sel), fn: fn})
}

// OnScroll registers fn to run when ScrollToBottom targets an element
// matching sel.
func (p *Page) OnScroll(sel string, fn func(*Page)) {
	p.scrolls = append(p.scrolls, handler{sel: p.mustSelector(sel), fn: fn})
}

// FailClick makes clicks on elements matching sel return err, times times
// (negative for always), before any handler runs.
func (p *Page) FailClick(sel string, err error, times int) {
	p.failures = append(p.failures, clickFailure{sel: p.mustSelector(sel), err: err, times: times})
}

func (p *Page) mustSelector(sel string) *selector.Selector {
	p.t.Helper()
	s, err := selector.Parse(sel)
	if err != nil {
		p.t.Fatalf("surfacetest: %v", err)
	}
	return s
}

// Elapsed is the virtual time spent waiting.
func (p *Page) Elapsed() time.Duration { return p.elapsed }

// Closed reports whether Close was called.
func (p *Page) Closed() bool { return p.closed }

// Locate implements surface.Scope.
func (f *Frame) Locate(sel string) surface.Locator {
	return &Locator{frame: f, steps: []step{{kind: stepSelect, raw: sel}}}
}

// Frames implements surface.Scope.
func (f *Frame) Frames(ctx context.Context) ([]surface.Frame, error) {
	if err := f.page.usable(ctx); err != nil {
		return nil, err
	}
	out := []surface.Frame{f}
	for _, c := range f.frames {
		out = append(out, c)
	}
	return out, nil
}

// EnterIframe implements surface.Scope.
func (f *Frame) EnterIframe(ctx context.Context, sel string, timeout time.Duration) (surface.Frame, error) {
	if err := f.page.usable(ctx); err != nil {
		return nil, err
	}
	s, err := selector.Parse(sel)
	if err != nil {
		return nil, surface.ErrBadSelector
	}
	for _, n := range s.QueryAll(f.root) {
		if n.Data != "iframe" {
			continue
		}
		for _, c := range f.frames {
			if c.name != "" && (c.name == selector.Attr(n, "name") || c.name == selector.Attr(n, "id")) {
				return c, nil
			}
		}
		return nil, surface.ErrDetached
	}
	f.page.elapsed += timeout
	return nil, surface.ErrTimeout
}

// URL implements surface.Scope.
func (f *Frame) URL() string { return f.url }

// Name implements surface.Frame.
func (f *Frame) Name() string { return f.name }

// IsMain implements surface.Frame.
func (f *Frame) IsMain() bool { return f.main }

// Show makes every element matching sel visible.
func (f *Frame) Show(sel string) {
	for _, n := range f.query(sel) {
		removeAttr(n, "hidden")
		style := selector.Attr(n, "style")
		style = strings.NewReplacer("display:none", "", "display: none", "",
			"visibility:hidden", "", "visibility: hidden", "").Replace(style)
		setAttr(n, "style", style)
	}
}

// Hide hides every element matching sel.
func (f *Frame) Hide(sel string) {
	for _, n := range f.query(sel) {
		setAttr(n, "style", "display:none;"+selector.Attr(n, "style"))
	}
}

// Remove detaches every element matching sel.
func (f *Frame) Remove(sel string) {
	for _, n := range f.query(sel) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// SetAttr sets an attribute on every element matching sel.
func (f *Frame) SetAttr(sel, key, val string) {
	for _, n := range f.query(sel) {
		setAttr(n, key, val)
	}
}

// Append parses fragment and appends it to every element matching sel.
func (f *Frame) Append(sel, fragment string) {
	for _, n := range f.query(sel) {
		nodes, err := html.ParseFragment(strings.NewReader(fragment), n)
		if err != nil {
			f.page.t.Fatalf("surfacetest: fragment: %v", err)
		}
		for _, c := range nodes {
			n.AppendChild(c)
		}
	}
}

func (f *Frame) query(sel string) []*html.Node {
	return f.page.mustSelector(sel).QueryAll(f.root)
}

// Navigate implements surface.Page.
func (p *Page) Navigate(ctx context.Context, url string, _ surface.WaitCondition, _ time.Duration) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	p.Navigated = append(p.Navigated, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.url = url
	return nil
}

// Evaluate implements surface.Page through the Eval hook.
func (p *Page) Evaluate(ctx context.Context, out any, script string, args ...any) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	if p.Eval == nil {
		return surface.ErrUnsupported
	}
	v, err := p.Eval(script, args)
	if err != nil || out == nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ShadowRoots implements surface.Page.
func (p *Page) ShadowRoots(ctx context.Context) ([]surface.ShadowRoot, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}
	return p.Shadow, nil
}

// Wait implements surface.Page by advancing the virtual clock.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.elapsed += d
	return nil
}

// MouseMove implements surface.Page.
func (p *Page) MouseMove(ctx context.Context, _, _ float64) error {
	return p.usable(ctx)
}

// Requests implements surface.Page.
func (p *Page) Requests() []string { return append([]string(nil), p.RequestLog...) }

// Cookies implements surface.Page.
func (p *Page) Cookies(ctx context.Context) ([]surface.Cookie, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}
	return p.CookieJar, nil
}

// Screenshot implements surface.Page with a fixed PNG signature.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

// Close implements surface.Page.
func (p *Page) Close() error {
	p.closed = true
	return nil
}

func (p *Page) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed {
		return surface.Fatal("page", errClosed)
	}
	return nil
}

var errClosed = errors.New("page closed")

// HTML renders the main document, for debugging failed tests.
func (p *Page) HTML() string {
	var buf bytes.Buffer
	html.Render(&buf, p.root)
	return buf.String()
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
