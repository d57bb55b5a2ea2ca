// Package banner finds the cookie consent banner of a loaded page.
//
// Detection is a cascade, first hit wins: hardcoded CMP detectors, catalog
// CMP descriptors, generic dialog selectors, keyword text search, child
// frames and finally open shadow roots. A miss at every stage is not an
// error; Detect only fails when the page itself became unusable.
package banner

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/consentcrawl/buttons"
	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// Probe timeouts of the catalog descriptor actions.
const (
	iframeTimeout   = 2 * time.Second
	selectorTimeout = time.Second
	listTimeout     = 500 * time.Millisecond
	readTimeout     = 2 * time.Second
)

// ShadowCMPType is the CMP id reported for banners found in a shadow root.
const ShadowCMPType = "shadow_dom_custom"

const (
	maxShadowText = 5000
	minShadowText = 20
	// candidates bounds the matches inspected per generic or text selector.
	candidates = 5
)

// genericSelectors match dialog-like elements regardless of the CMP.
var genericSelectors = []string{
	"[role='dialog']",
	"[aria-modal='true']",
	".modal.show",
	".modal[style*='display: block']",
	".popup[style*='display: block']",
	"[class*='cookie'][class*='banner']",
	"[class*='consent'][class*='banner']",
	"[id*='cookie'][id*='banner']",
	"[id*='consent'][id*='banner']",
}

// Detector runs the banner detection cascade. It is safe for concurrent
// use; every Detect call gets its own prober.
type Detector struct {
	cat     *catalog.Catalog
	reg     *cmp.Registry
	cfg     consent.AuditConfig
	generic []string
	logger  *slog.Logger
}

// New returns a Detector. A nil registry disables the hardcoded stage; a nil
// logger logs to slog.Default().
func New(cat *catalog.Catalog, reg *cmp.Registry, cfg consent.AuditConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	generic := append([]string(nil), genericSelectors...)
	if cat != nil {
		generic = append(generic, cat.GenericBannerSelectors...)
	}
	return &Detector{cat: cat, reg: reg, cfg: cfg.Normalize(), generic: generic, logger: logger}
}

// Detect looks for a consent banner on page. The returned error is non-nil
// only when the page failed fatally or ctx ended.
func (d *Detector) Detect(ctx context.Context, page surface.Page) (consent.BannerInfo, error) {
	p := surface.NewProber()
	info, ok := d.detect(ctx, p, page)
	if err := p.Err(); err != nil {
		return consent.NotDetected(), err
	}
	if !ok {
		d.logger.Debug("banner: none", "url", page.URL())
		return consent.NotDetected(), nil
	}
	d.logger.Debug("banner: detected", "url", page.URL(),
		"method", info.DetectionMethod, "cmp", info.CMPType, "buttons", len(info.Buttons))
	return info, nil
}

func (d *Detector) detect(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
	stages := []func(context.Context, *surface.Prober, surface.Page) (consent.BannerInfo, bool){
		d.byRegistry,
		d.byCatalog,
		func(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
			return d.byGeneric(ctx, p, page)
		},
		d.byText,
	}
	if d.cfg.NestedIframes() {
		stages = append(stages, func(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
			return d.inFrames(ctx, p, page, 1)
		})
	}
	if d.cfg.ShadowDOM() {
		stages = append(stages, d.inShadowRoots)
	}
	for _, stage := range stages {
		if info, ok := stage(ctx, p, page); ok {
			return info, true
		}
		if p.Failed() {
			break
		}
	}
	return consent.BannerInfo{}, false
}

func (d *Detector) byRegistry(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
	for _, det := range d.reg.Detectors() {
		hit, ok := det.Banner(ctx, p, page)
		if !ok {
			if p.Failed() {
				break
			}
			continue
		}
		var btns []consent.ButtonInfo
		if be, ok := det.(cmp.ButtonExtractor); ok {
			btns = be.Buttons(ctx, p, hit)
		}
		if len(btns) == 0 {
			btns = buttons.Extract(ctx, p, hit.Container)
		}
		info := d.describe(ctx, p, hit.Container, hit.Scope, btns)
		info.CMPType = det.ID()
		info.CMPBrand = d.brand(det.ID())
		info.InIframe = hit.InIframe
		info.IframeSrc = hit.IframeSrc
		info.DetectionMethod = consent.MethodHardcodedDetector
		return info, true
	}
	return consent.BannerInfo{}, false
}

func (d *Detector) byCatalog(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
	if d.cat == nil {
		return consent.BannerInfo{}, false
	}
	for _, m := range d.cat.CMPs {
		match, scope, ok := runActions(ctx, p, page, m.Actions, d.cfg.BannerTimeout())
		if !ok {
			if p.Failed() {
				break
			}
			continue
		}
		container := FindContainer(ctx, p, match, MaxContainerLevels)
		info := d.describe(ctx, p, container, scope, nil)
		info.CMPType = cmp.Normalize(m.ID)
		info.CMPBrand = m.Brand
		info.DetectionMethod = consent.MethodCMPSpecific
		setFrame(&info, scope)
		return info, true
	}
	return consent.BannerInfo{}, false
}

// runActions executes the actions of one descriptor. It returns the last
// matched element and the scope it lives in. Elements are counted before
// any visibility wait so absent CMPs cost one query each.
func runActions(ctx context.Context, p *surface.Prober, page surface.Page, actions []catalog.Action, limit time.Duration) (surface.Locator, surface.Scope, bool) {
	var scope surface.Scope = page
	var match surface.Locator
	for _, a := range actions {
		switch a.Type {
		case catalog.ActionIframe:
			if p.Count(ctx, scope.Locate(a.Value)) == 0 {
				return nil, nil, false
			}
			f, ok := p.EnterIframe(ctx, scope, a.Value, min(iframeTimeout, limit))
			if !ok {
				return nil, nil, false
			}
			scope, match = f, nil
		case catalog.ActionCSSSelector:
			l := scope.Locate(a.Value).First()
			if p.Count(ctx, l) == 0 || !p.WaitVisible(ctx, l, selectorTimeout) {
				return nil, nil, false
			}
			match = l
		case catalog.ActionCSSSelectorList:
			match = nil
			for _, v := range a.Values {
				l := scope.Locate(v).First()
				if p.Count(ctx, l) > 0 && p.WaitVisible(ctx, l, listTimeout) {
					match = l
					break
				}
			}
			if match == nil {
				return nil, nil, false
			}
		}
	}
	if match == nil {
		if scope == surface.Scope(page) {
			return nil, nil, false
		}
		match = scope.Locate("body").First()
	}
	return match, scope, true
}

// byGeneric searches scope with the generic dialog selectors. A match must
// be visible and mention cookies, consent or privacy.
func (d *Detector) byGeneric(ctx context.Context, p *surface.Prober, scope surface.Scope) (consent.BannerInfo, bool) {
	for _, sel := range d.generic {
		all := scope.Locate(sel)
		n := min(p.Count(ctx, all), candidates)
		for i := 0; i < n; i++ {
			el := all.Nth(i)
			if !p.Visible(ctx, el) {
				continue
			}
			text, _ := p.Text(ctx, el, 0)
			if !consent.ContainsAny(text, consent.ConsentKeywords) {
				continue
			}
			info := d.describe(ctx, p, el, scope, nil)
			info.DetectionMethod = consent.MethodGeneric
			setFrame(&info, scope)
			return info, true
		}
		if p.Failed() {
			break
		}
	}
	return consent.BannerInfo{}, false
}

// byText looks for the innermost visible element holding a detection
// keyword of a configured language and climbs to its container.
func (d *Detector) byText(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
	if d.cat == nil {
		return consent.BannerInfo{}, false
	}
	for _, kw := range d.cat.Keywords(d.cfg.Languages) {
		all := page.Locate(":text(" + selector.Quote(kw) + ")")
		n := min(p.Count(ctx, all), candidates)
		for i := 0; i < n; i++ {
			el := all.Nth(i)
			if !p.Visible(ctx, el) {
				continue
			}
			container := FindContainer(ctx, p, el, MaxContainerLevels)
			info := d.describe(ctx, p, container, page, nil)
			info.DetectionMethod = consent.MethodTextBased
			return info, true
		}
		if p.Failed() {
			break
		}
	}
	return consent.BannerInfo{}, false
}

// inFrames runs generic detection in the child frames of scope, depth
// first, down to MaxIframeDepth.
func (d *Detector) inFrames(ctx context.Context, p *surface.Prober, scope surface.Scope, depth int) (consent.BannerInfo, bool) {
	if depth > d.cfg.MaxIframeDepth {
		return consent.BannerInfo{}, false
	}
	frames := p.Frames(ctx, scope)
	if len(frames) < 2 {
		return consent.BannerInfo{}, false
	}
	for _, f := range frames[1:] {
		if f.IsMain() {
			continue
		}
		if info, ok := d.byGeneric(ctx, p, f); ok {
			return info, true
		}
		if info, ok := d.inFrames(ctx, p, f, depth+1); ok {
			return info, true
		}
		if p.Failed() {
			break
		}
	}
	return consent.BannerInfo{}, false
}

func (d *Detector) inShadowRoots(ctx context.Context, p *surface.Prober, page surface.Page) (consent.BannerInfo, bool) {
	for _, root := range p.ShadowRoots(ctx, page) {
		text := consent.NormalizeSpace(root.Text)
		if len([]rune(text)) <= minShadowText || !consent.ContainsAny(text, consent.ConsentKeywords) {
			continue
		}
		return consent.BannerInfo{
			Detected:        true,
			CMPType:         ShadowCMPType,
			BannerHTML:      consent.SanitizeHTML(root.HTML),
			BannerText:      consent.Truncate(text, maxShadowText),
			Buttons:         []consent.ButtonInfo{},
			InShadowDOM:     true,
			DetectionMethod: consent.MethodShadowDOM,
		}, true
	}
	return consent.BannerInfo{}, false
}

// describe reads the content of a banner container. btns, when nil, are
// extracted from the container.
func (d *Detector) describe(ctx context.Context, p *surface.Prober, container surface.Locator, scope surface.Scope, btns []consent.ButtonInfo) consent.BannerInfo {
	raw, _ := p.HTML(ctx, container, readTimeout)
	text := consent.CleanText(raw)
	if text == "" {
		t, _ := p.Text(ctx, container, readTimeout)
		text = consent.NormalizeSpace(t)
	}
	if btns == nil {
		btns = buttons.Extract(ctx, p, container)
	}
	info := consent.BannerInfo{
		Detected:   true,
		BannerHTML: consent.SanitizeHTML(raw),
		BannerText: consent.Truncate(text, consent.MaxTextLen),
		Buttons:    btns,
	}
	return info.WithHandles(container, scope)
}

func (d *Detector) brand(id string) string {
	if d.cat == nil {
		return ""
	}
	return d.cat.Brand(id)
}

func setFrame(info *consent.BannerInfo, scope surface.Scope) {
	if f, ok := scope.(surface.Frame); ok && !f.IsMain() {
		info.InIframe = true
		info.IframeSrc = f.URL()
	}
}
