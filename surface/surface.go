// Package surface defines the browsing capability the audit engine drives:
// pages, frames and lazily resolved element locators. The engine never talks
// to a browser driver directly; package browser implements these interfaces
// with go-rod and package surfacetest implements them over parsed HTML.
//
// Selectors are CSS with two text pseudo-classes, see package selector:
// :has-text('x') keeps elements whose text contains x, :text('x') keeps the
// innermost such elements.
package surface

import (
	"context"
	"time"
)

// WaitCondition selects the navigation milestone Navigate waits for.
type WaitCondition string

const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
)

// Scope is a document: the main page or one frame.
type Scope interface {
	// Locate returns a lazy locator; nothing is queried until it is used.
	Locate(selector string) Locator

	// Frames lists the frames of this document, starting with the document
	// itself, followed by its child frames in DOM order (not recursive).
	Frames(ctx context.Context) ([]Frame, error)

	// EnterIframe resolves the iframe element matching selector and returns
	// its document once the element is attached, waiting at most timeout.
	EnterIframe(ctx context.Context, selector string, timeout time.Duration) (Frame, error)

	// URL is the document location.
	URL() string
}

// Frame is a Scope with a frame name. The main frame has IsMain true.
type Frame interface {
	Scope
	Name() string
	IsMain() bool
}

// Page is one browser tab inside an isolated browsing context.
type Page interface {
	Frame

	Navigate(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) error

	// Evaluate runs a JavaScript function expression against the page and
	// decodes its JSON-serializable result into out (which may be nil).
	Evaluate(ctx context.Context, out any, script string, args ...any) error

	// ShadowRoots lists open shadow roots in the main document.
	ShadowRoots(ctx context.Context) ([]ShadowRoot, error)

	// Wait pauses for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error

	MouseMove(ctx context.Context, x, y float64) error

	// Requests returns the URLs of every request observed since the page
	// was created, in order.
	Requests() []string

	Cookies(ctx context.Context) ([]Cookie, error)

	// Screenshot returns a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page and its browsing context. Safe to call twice.
	Close() error
}

// Locator resolves to zero or more elements each time it is used.
// Single-element operations act on the first match.
type Locator interface {
	// Locate narrows to descendants of the matched elements.
	Locate(selector string) Locator
	// Nth picks the i-th match (0-based).
	Nth(i int) Locator
	First() Locator
	// Parent moves to the parent element of the first match.
	Parent() Locator
	// Next moves to the next sibling element of the first match.
	Next() Locator

	Count(ctx context.Context) (int, error)

	// Visible reports the current visibility of the first match.
	Visible(ctx context.Context) (bool, error)
	// WaitVisible waits until the first match is visible, failing with
	// ErrTimeout after timeout.
	WaitVisible(ctx context.Context, timeout time.Duration) error

	Text(ctx context.Context, timeout time.Duration) (string, error)
	HTML(ctx context.Context, timeout time.Duration) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string, timeout time.Duration) (string, bool, error)

	Click(ctx context.Context, opts ClickOptions) error

	// BoundingBox returns the layout box; ok is false for elements that
	// are not rendered.
	BoundingBox(ctx context.Context) (box Box, ok bool, err error)

	// Describe snapshots the structural facts used by container heuristics.
	Describe(ctx context.Context) (ElementInfo, error)

	// Checked reports the toggle state from the checked property or, for
	// switch-like elements, aria-checked.
	Checked(ctx context.Context) (bool, error)

	ScrollIntoView(ctx context.Context) error
	// ScrollToBottom scrolls the element's own content to its end.
	ScrollToBottom(ctx context.Context) error

	// String is the selector chain, for logs.
	String() string
}

// ClickOptions tunes Click. Force skips the visibility and actionability
// checks and dispatches the click directly on the element.
type ClickOptions struct {
	Timeout time.Duration
	Force   bool
}

// Box is a layout rectangle in CSS pixels.
type Box struct {
	X, Y, Width, Height float64
}

// ElementInfo is a structural snapshot of one element.
type ElementInfo struct {
	Tag      string   `json:"tag"`
	ID       string   `json:"id"`
	Classes  []string `json:"classes"`
	Text     string   `json:"text"`
	Position string   `json:"position"`
	ZIndex   int      `json:"zIndex"` // 0 when auto
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`

	// Interactive counts descendants matching InteractiveSelector.
	Interactive int  `json:"interactive"`
	Visible     bool `json:"visible"`
}

// ShadowRoot describes one open shadow root.
type ShadowRoot struct {
	HostTag string `json:"host"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Cookie is a browser cookie as stored in the browsing context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// InteractiveSelector matches the elements counted as buttons of a banner.
const InteractiveSelector = "button, a[role=button], a[href]"
