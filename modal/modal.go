// Package modal locates an open consent dialog, typically the preferences
// modal that appears after clicking a banner's settings button.
package modal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

// MaxFrames bounds the frames searched by the last stage.
const MaxFrames = 10

const (
	iframeTimeout = 500 * time.Millisecond
	textTimeout   = time.Second
)

// keywords validate candidates of the general selectors.
var keywords = []string{"cookie", "consent", "preference", "vendor", "purpose", "category"}

// Options tune one detection.
type Options struct {
	// Preferences accepts only the preferences layer of CMPs that
	// distinguish it from their notice.
	Preferences bool
	// Exclude is skipped when a candidate resolves to the same element,
	// usually the banner container.
	Exclude surface.Locator
	// Scope is searched before the page, typically the frame holding the
	// banner.
	Scope surface.Scope
}

// Detector finds modals.
type Detector struct {
	cat    *catalog.Catalog
	reg    *cmp.Registry
	logger *slog.Logger
}

// New returns a Detector. cat and reg may be nil.
func New(cat *catalog.Catalog, reg *cmp.Registry, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cat: cat, reg: reg, logger: logger}
}

// Detect returns the visible modal of page, or nil. cmpType may be empty.
// Stages, first hit wins: the hardcoded detector of the CMP, the catalog
// selectors of the CMP (inside its iframe host first), the general
// selectors validated by keywords, then both again in every child frame.
func (d *Detector) Detect(ctx context.Context, p *surface.Prober, page surface.Page, cmpType string, opts Options) surface.Locator {
	id := cmp.Normalize(cmpType)
	ex := newExclusion(ctx, p, opts.Exclude)

	if det, ok := d.reg.Lookup(id); ok {
		if hit, ok := det.Modal(ctx, p, page, opts.Preferences); ok && !ex.same(ctx, p, hit.Container) {
			d.logger.Debug("modal: found", "stage", "hardcoded", "cmp", id, "locator", hit.Container.String())
			return hit.Container
		}
	}

	var scopes []surface.Scope
	if opts.Scope != nil && opts.Scope != surface.Scope(page) {
		scopes = append(scopes, opts.Scope)
	}
	if host := cmp.IframeHost(id); host != "" && p.Count(ctx, page.Locate(host)) > 0 {
		if f, ok := p.EnterIframe(ctx, page, host, iframeTimeout); ok {
			scopes = append(scopes, f)
		}
	}
	scopes = append(scopes, page)
	for _, s := range scopes {
		if l := d.search(ctx, p, s, id, ex); l != nil {
			return l
		}
	}

	frames := p.Frames(ctx, page)
	if len(frames) > MaxFrames {
		frames = frames[:MaxFrames]
	}
	for _, f := range frames {
		if f.IsMain() {
			continue
		}
		if l := d.search(ctx, p, f, id, ex); l != nil {
			d.logger.Debug("modal: found in frame", "url", f.URL())
			return l
		}
		if p.Failed() {
			break
		}
	}
	return nil
}

func (d *Detector) search(ctx context.Context, p *surface.Prober, scope surface.Scope, id string, ex exclusion) surface.Locator {
	if d.cat == nil {
		return nil
	}
	for _, sel := range d.cat.ModalSelectors(id) {
		l := scope.Locate(sel).First()
		if p.Visible(ctx, l) && !ex.same(ctx, p, l) {
			d.logger.Debug("modal: found", "stage", "catalog", "cmp", id, "selector", sel)
			return l
		}
	}
	for _, sel := range d.cat.GeneralModalSelectors() {
		l := scope.Locate(sel).First()
		if !p.Visible(ctx, l) || ex.same(ctx, p, l) {
			continue
		}
		text, _ := p.Text(ctx, l, textTimeout)
		if consent.ContainsAny(text, keywords) {
			d.logger.Debug("modal: found", "stage", "general", "selector", sel)
			return l
		}
	}
	return nil
}

// exclusion identifies an element by its structural snapshot, since
// locators from different queries cannot be compared directly.
type exclusion struct {
	set  bool
	info surface.ElementInfo
}

func newExclusion(ctx context.Context, p *surface.Prober, l surface.Locator) exclusion {
	if l == nil {
		return exclusion{}
	}
	info, ok := p.Describe(ctx, l)
	return exclusion{set: ok, info: info}
}

func (e exclusion) same(ctx context.Context, p *surface.Prober, l surface.Locator) bool {
	if !e.set {
		return false
	}
	info, ok := p.Describe(ctx, l)
	return ok && info.Tag == e.info.Tag && info.ID == e.info.ID &&
		strings.Join(info.Classes, " ") == strings.Join(e.info.Classes, " ") &&
		info.Text == e.info.Text
}
