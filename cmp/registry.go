package cmp

import (
	"context"
	"strings"
	"time"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

// probeTimeout is the visibility wait per candidate selector. Detectors
// run before anything else on every audit, so each probe stays short.
const probeTimeout = 100 * time.Millisecond

// Hit is a banner or modal found by a detector.
type Hit struct {
	Container surface.Locator
	Scope     surface.Scope
	InIframe  bool
	IframeSrc string
}

// Detector recognises one CMP by its DOM.
type Detector interface {
	// ID is the normalized CMP id.
	ID() string
	// Banner finds the first-layer notice.
	Banner(ctx context.Context, p *surface.Prober, page surface.Page) (Hit, bool)
	// Modal finds the CMP dialog. With preferences set, only the
	// preferences layer qualifies, not the notice.
	Modal(ctx context.Context, p *surface.Prober, page surface.Page, preferences bool) (Hit, bool)
}

// ButtonExtractor is implemented by detectors that know their buttons.
type ButtonExtractor interface {
	Buttons(ctx context.Context, p *surface.Prober, hit Hit) []consent.ButtonInfo
}

// Registry is an ordered list of detectors. The zero value is empty.
type Registry struct {
	detectors []Detector
}

// NewRegistry returns a registry trying ds in order.
func NewRegistry(ds ...Detector) *Registry {
	return &Registry{detectors: ds}
}

// DefaultRegistry returns the built-in detectors in priority order.
func DefaultRegistry() *Registry {
	ds := make([]Detector, 0, len(builtin))
	for _, s := range builtin {
		ds = append(ds, s)
	}
	return NewRegistry(ds...)
}

// Detectors returns the detectors in priority order.
func (r *Registry) Detectors() []Detector {
	if r == nil {
		return nil
	}
	return r.detectors
}

// Lookup returns the detector for a CMP id, normalized first.
func (r *Registry) Lookup(id string) (Detector, bool) {
	id = Normalize(id)
	if id == "" {
		return nil, false
	}
	for _, d := range r.Detectors() {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// FrameMatch selects frames by name or URL fragments, case-insensitive.
type FrameMatch struct {
	Names []string
	URLs  []string
}

func (m FrameMatch) empty() bool { return len(m.Names) == 0 && len(m.URLs) == 0 }

func (m FrameMatch) match(f surface.Frame) bool {
	name := strings.ToLower(f.Name())
	u := strings.ToLower(f.URL())
	for _, n := range m.Names {
		if strings.Contains(name, n) {
			return true
		}
	}
	for _, s := range m.URLs {
		if strings.Contains(u, s) {
			return true
		}
	}
	return false
}

// RoleButtons is one row of a button table: the first visible match among
// Selectors becomes a button with the given role and display text.
type RoleButtons struct {
	Role consent.ButtonRole
	// Text is reported when the matched element has no text or aria-label.
	Text      string
	Selectors []string
	// AnyState accepts a present but hidden match.
	AnyState bool
}

// Spec is a table-driven Detector. Main selectors are probed in the page,
// then Frame selectors inside every frame accepted by Frames or entered
// through Iframe. Preferences and FramePreferences replace them when only
// the preferences layer qualifies.
type Spec struct {
	Name  string
	Main  []string
	Frame []string

	Preferences      []string
	FramePreferences []string

	Frames FrameMatch
	// Iframe is the selector of a host iframe element entered directly.
	Iframe string

	ButtonTable []RoleButtons
}

var (
	_ Detector        = Spec{}
	_ ButtonExtractor = Spec{}
)

// ID implements Detector.
func (s Spec) ID() string { return s.Name }

// Banner implements Detector.
func (s Spec) Banner(ctx context.Context, p *surface.Prober, page surface.Page) (Hit, bool) {
	return s.find(ctx, p, page, s.Main, s.Frame)
}

// Modal implements Detector.
func (s Spec) Modal(ctx context.Context, p *surface.Prober, page surface.Page, preferences bool) (Hit, bool) {
	if preferences {
		return s.find(ctx, p, page, s.Preferences, s.FramePreferences)
	}
	return s.find(ctx, p, page, s.Main, s.Frame)
}

func (s Spec) find(ctx context.Context, p *surface.Prober, page surface.Page, main, inFrame []string) (Hit, bool) {
	if l, ok := firstVisible(ctx, p, page, main); ok {
		return Hit{Container: l, Scope: page}, true
	}
	if len(inFrame) == 0 {
		return Hit{}, false
	}
	if s.Iframe != "" {
		if f, ok := p.EnterIframe(ctx, page, s.Iframe, probeTimeout); ok {
			if l, ok := firstVisible(ctx, p, f, inFrame); ok {
				return Hit{Container: l, Scope: f, InIframe: true, IframeSrc: f.URL()}, true
			}
		}
	}
	if s.Frames.empty() {
		return Hit{}, false
	}
	for _, f := range p.Frames(ctx, page) {
		if f.IsMain() || !s.Frames.match(f) {
			continue
		}
		if l, ok := firstVisible(ctx, p, f, inFrame); ok {
			return Hit{Container: l, Scope: f, InIframe: true, IframeSrc: f.URL()}, true
		}
	}
	return Hit{}, false
}

func buttonText(ctx context.Context, p *surface.Prober, l surface.Locator, fallback string) string {
	text, _ := p.Text(ctx, l, 0)
	if text = consent.NormalizeSpace(text); text != "" {
		return text
	}
	if aria, _ := p.Attr(ctx, l, "aria-label", 0); strings.TrimSpace(aria) != "" {
		return consent.NormalizeSpace(aria)
	}
	return fallback
}

func firstVisible(ctx context.Context, p *surface.Prober, scope surface.Scope, sels []string) (surface.Locator, bool) {
	for _, sel := range sels {
		l := scope.Locate(sel).First()
		if p.WaitVisible(ctx, l, probeTimeout) {
			return l, true
		}
		if p.Failed() {
			break
		}
	}
	return nil, false
}

// Buttons implements ButtonExtractor. Selectors are resolved inside the hit
// container; the recorded selector is the matching table entry and the
// recorded text is the element's own.
func (s Spec) Buttons(ctx context.Context, p *surface.Prober, hit Hit) []consent.ButtonInfo {
	var out []consent.ButtonInfo
	if hit.Container == nil {
		return out
	}
	for _, row := range s.ButtonTable {
		for _, sel := range row.Selectors {
			l := hit.Container.Locate(sel)
			if p.Count(ctx, l) == 0 {
				continue
			}
			if !row.AnyState && !p.Visible(ctx, l.First()) {
				continue
			}
			out = append(out, consent.ButtonInfo{
				Text:      buttonText(ctx, p, l.First(), row.Text),
				Selector:  sel,
				Role:      row.Role,
				IsVisible: true,
			})
			break
		}
	}
	return out
}
