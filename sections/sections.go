// Package sections finds the regions of a preferences modal that hold
// categories, vendors and cookies.
//
// Three tiers run on every modal: ARIA semantics, visual patterns and the
// catalog's static patterns. Their candidates are merged, then every
// survivor is activated when it sits behind a tab or accordion and
// validated by counting the items it shows. Only validated sections are
// eligible as the best section of their content type; the others stay in
// the result for diagnostics.
package sections

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

// Confidence of each discovery rule.
const (
	ConfTabPanel    = 1.0
	ConfTab         = 0.85
	ConfAccordionID = 0.9
	ConfAccordion   = 0.75
	ConfKeyword     = 0.8
	ConfTabRow      = 0.7
	ConfToggleGroup = 0.7
	ConfList        = 0.65
	ConfChevron     = 0.6
	ConfStaticKnown = 0.6
	ConfStatic      = 0.4
)

const (
	textTimeout  = time.Second
	clickTimeout = 3 * time.Second

	fastSettle      = time.Second
	slowSettle      = 1500 * time.Millisecond
	animationBuffer = 500 * time.Millisecond
	lazyPause       = time.Second

	maxContainers = 10
	maxCandidates = 20
	maxHeaderText = 200
	minListItems  = 5
	alignSlack    = 10.0
)

const toggleSelector = "input[type='checkbox'], [role='switch']"

// Discoverer runs section discovery. It is safe for concurrent use.
type Discoverer struct {
	cat    *catalog.Catalog
	logger *slog.Logger
}

// New returns a Discoverer. cat may be nil, which disables the static tier.
func New(cat *catalog.Catalog, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{cat: cat, logger: logger}
}

type run struct {
	d     *Discoverer
	p     *surface.Prober
	page  surface.Page
	modal surface.Locator
	cmp   string
}

// Discover maps the sections of modal. Sections are activated in place,
// so the modal's visible content may change. The error is non-nil only
// when the page failed fatally; the partial result is still returned.
func (d *Discoverer) Discover(ctx context.Context, page surface.Page, modal surface.Locator, cmpType string) (consent.SectionDiscoveryResult, error) {
	start := time.Now()
	res := consent.SectionDiscoveryResult{Sections: []*consent.DiscoveredSection{}}
	if modal == nil {
		res.Errors = append(res.Errors, "no modal to explore")
		return res, nil
	}
	r := &run{d: d, p: surface.NewProber(), page: page, modal: modal, cmp: cmp.Normalize(cmpType)}

	var found []*consent.DiscoveredSection
	found = append(found, r.aria(ctx)...)
	found = append(found, r.visual(ctx)...)
	found = append(found, r.static(ctx)...)
	merged := Merge(found)

	for _, s := range merged {
		if r.p.Failed() {
			break
		}
		r.activate(ctx, s)
		if s.ContainsItems && (s.ContentType == consent.ContentVendors || s.ContentType == consent.ContentCookies) {
			r.lazyLoad(ctx, s)
		}
	}

	res.Sections = merged
	for _, s := range merged {
		if !s.ContainsItems {
			continue
		}
		var slot **consent.DiscoveredSection
		switch s.ContentType {
		case consent.ContentCategories:
			slot = &res.Categories
		case consent.ContentVendors:
			slot = &res.Vendors
		case consent.ContentCookies:
			slot = &res.Cookies
		case consent.ContentPurposes:
			slot = &res.Purposes
		default:
			continue
		}
		if *slot == nil || s.Confidence > (*slot).Confidence {
			*slot = s
		}
	}
	res.DiscoveryDurationMS = time.Since(start).Milliseconds()

	if err := r.p.Err(); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, err
	}
	d.logger.Debug("sections: discovered", "cmp", r.cmp, "candidates", len(found), "sections", len(merged),
		"categories", res.Categories != nil, "vendors", res.Vendors != nil, "cookies", res.Cookies != nil,
		"duration_ms", res.DiscoveryDurationMS)
	return res, nil
}

// count returns the number of matches of l, at most max.
func (r *run) count(ctx context.Context, l surface.Locator, max int) int {
	n := r.p.Count(ctx, l)
	if n > max {
		return max
	}
	return n
}

func (r *run) text(ctx context.Context, l surface.Locator) string {
	t, _ := r.p.Text(ctx, l, textTimeout)
	return consent.NormalizeSpace(t)
}

// scope is the element a section's content lives in.
func (r *run) scope(s *consent.DiscoveredSection) surface.Locator {
	if s.Locator == "" {
		return r.modal
	}
	return r.modal.Locate(s.Locator).First()
}

func runeLen(s string) int { return len([]rune(s)) }
