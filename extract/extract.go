// Package extract reads consent categories, vendors and cookies out of an
// opened preferences modal.
//
// Each kind is read first from the section discovery found for it, and
// from the catalog's static patterns when that yields nothing: the CMP's
// own pattern, then the shared ones.
package extract

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

// Record caps per modal.
const (
	MaxCategories = 100
	MaxVendors    = 500
	MaxCookies    = 1000
)

const (
	textTimeout    = time.Second
	shortTimeout   = 500 * time.Millisecond
	containerWait  = 2 * time.Second
	tabSettle      = time.Second
	expandSettle   = 500 * time.Millisecond
	scrollSettle   = 500 * time.Millisecond
	lazyIterations = 10

	minName = 2
	maxLine = 100
)

const toggleSelector = "input[type='checkbox'], [role='switch']"

// Result holds everything read from one modal. Lists are never nil.
type Result struct {
	Categories []consent.CategoryInfo `json:"categories"`
	Vendors    []consent.VendorInfo   `json:"vendors"`
	Cookies    []consent.CookieDetail `json:"cookies"`
}

// Extractor reads modals. It is safe for concurrent use.
type Extractor struct {
	cat          *catalog.Catalog
	clickTimeout time.Duration
	logger       *slog.Logger
}

// New returns an Extractor. cat may be nil, which disables the static
// patterns.
func New(cat *catalog.Catalog, cfg consent.AuditConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cat: cat, clickTimeout: cfg.Normalize().ClickTimeout(), logger: logger}
}

type run struct {
	e     *Extractor
	p     *surface.Prober
	page  surface.Page
	modal surface.Locator
	cmp   string
}

func (e *Extractor) newRun(page surface.Page, modal surface.Locator, cmpType string) *run {
	return &run{e: e, p: surface.NewProber(), page: page, modal: modal, cmp: cmp.Normalize(cmpType)}
}

// Extract reads all three kinds, in order categories, vendors, cookies.
// discovery may be nil. The error is non-nil only when the page failed
// fatally, with what was read so far.
func (e *Extractor) Extract(ctx context.Context, page surface.Page, modal surface.Locator, cmpType string, discovery *consent.SectionDiscoveryResult) (Result, error) {
	res := Result{
		Categories: []consent.CategoryInfo{},
		Vendors:    []consent.VendorInfo{},
		Cookies:    []consent.CookieDetail{},
	}
	if modal == nil {
		return res, nil
	}
	r := e.newRun(page, modal, cmpType)
	res.Categories = r.categories(ctx, discovery.Best(consent.ContentCategories))
	if r.p.Failed() {
		return res, r.p.Err()
	}
	res.Vendors = r.vendors(ctx, discovery.Best(consent.ContentVendors))
	if r.p.Failed() {
		return res, r.p.Err()
	}
	res.Cookies = r.cookies(ctx, discovery.Best(consent.ContentCookies))
	if r.p.Failed() {
		return res, r.p.Err()
	}
	e.logger.Debug("extract: done", "cmp", r.cmp, "categories", len(res.Categories),
		"vendors", len(res.Vendors), "cookies", len(res.Cookies))
	return res, nil
}

// Categories reads the categories of modal from section, else from the
// static patterns.
func (e *Extractor) Categories(ctx context.Context, page surface.Page, modal surface.Locator, cmpType string, section *consent.DiscoveredSection) ([]consent.CategoryInfo, error) {
	r := e.newRun(page, modal, cmpType)
	out := r.categories(ctx, section)
	return out, r.p.Err()
}

// Vendors reads the vendors of modal from section, else from the static
// patterns.
func (e *Extractor) Vendors(ctx context.Context, page surface.Page, modal surface.Locator, cmpType string, section *consent.DiscoveredSection) ([]consent.VendorInfo, error) {
	r := e.newRun(page, modal, cmpType)
	out := r.vendors(ctx, section)
	return out, r.p.Err()
}

// Cookies reads the cookies of modal from section, else from the static
// patterns.
func (e *Extractor) Cookies(ctx context.Context, page surface.Page, modal surface.Locator, cmpType string, section *consent.DiscoveredSection) ([]consent.CookieDetail, error) {
	r := e.newRun(page, modal, cmpType)
	out := r.cookies(ctx, section)
	return out, r.p.Err()
}

// usable reports whether discovery found items for this kind.
func usable(s *consent.DiscoveredSection) bool {
	return s != nil && s.ContainsItems
}

// scope is the element holding the content of s.
func (r *run) scope(s *consent.DiscoveredSection) surface.Locator {
	if s.Locator == "" {
		return r.modal
	}
	return r.modal.Locate(s.Locator).First()
}

// raw returns the rendered text of l, line breaks kept.
func (r *run) raw(ctx context.Context, l surface.Locator, timeout time.Duration) string {
	t, _ := r.p.Text(ctx, l, timeout)
	return t
}

// text returns the trimmed text of the first match of sel under l, or ""
// when sel is empty or matches nothing.
func (r *run) text(ctx context.Context, l surface.Locator, sel string) string {
	if sel == "" {
		return ""
	}
	el := l.Locate(sel)
	if r.p.Count(ctx, el) == 0 {
		return ""
	}
	return strings.TrimSpace(r.raw(ctx, el.First(), shortTimeout))
}

// texts returns the non-empty texts of every match of sel under l.
func (r *run) texts(ctx context.Context, l surface.Locator, sel string) []string {
	if sel == "" {
		return nil
	}
	all := l.Locate(sel)
	n := r.p.Count(ctx, all)
	var out []string
	for i := 0; i < n && i < maxLine; i++ {
		if t := consent.NormalizeSpace(r.raw(ctx, all.Nth(i), shortTimeout)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// nameOf returns a usable name: s trimmed, or the first plausible line of
// fallback.
func nameOf(s, fallback string) string {
	if s = strings.TrimSpace(s); len([]rune(s)) >= minName {
		return s
	}
	return consent.FirstLine(fallback, minName+1, maxLine-1)
}

// openTab clicks a tab or link control when it is visible and waits for its
// content.
func (r *run) openTab(ctx context.Context, sel string) bool {
	if sel == "" {
		return false
	}
	btn := r.modal.Locate(sel).First()
	if !r.p.Visible(ctx, btn) {
		return false
	}
	if err := r.p.Click(ctx, btn, surface.ClickOptions{Timeout: r.e.clickTimeout}); err != nil {
		r.e.logger.Debug("extract: tab click failed", "selector", sel, "error", err)
		return false
	}
	return r.p.Wait(ctx, r.page, tabSettle)
}

// lazyItems scrolls container until the number of items under it stops
// growing, at most lazyIterations times, and returns the items.
func (r *run) lazyItems(ctx context.Context, container surface.Locator, itemSel string) (surface.Locator, int) {
	items := container.Locate(itemSel)
	last := -1
	for i := 0; i < lazyIterations; i++ {
		n := r.p.Count(ctx, items)
		if n == last || r.p.Failed() {
			break
		}
		last = n
		if !r.p.ScrollToBottom(ctx, container) || !r.p.Wait(ctx, r.page, scrollSettle) {
			break
		}
	}
	if last < 0 {
		last = r.p.Count(ctx, items)
	}
	return items, last
}
