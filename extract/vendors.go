package extract

import (
	"context"
	"strings"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

const (
	vendorItems     = "[class*='vendor'], [class*='partner']"
	vendorRows      = "li, div[role='listitem'], tr"
	vendorLazyItems = "[class*='vendor'], [class*='partner'], li"
	vendorName      = "h1, h2, h3, h4, h5, h6, strong, [class*='name'], [class*='title']"
	vendorPurposes  = "[class*='purpose'] li"
	vendorPrivacy   = "a[href*='privacy'], a[href*='politique']"
)

func (r *run) vendors(ctx context.Context, s *consent.DiscoveredSection) []consent.VendorInfo {
	if r.modal == nil {
		return []consent.VendorInfo{}
	}
	if usable(s) {
		if out := r.vendorsFrom(ctx, s); len(out) > 0 {
			return out
		}
	}
	if r.p.Failed() {
		return []consent.VendorInfo{}
	}
	return r.staticVendors(ctx)
}

// vendorsFrom reads the items of a discovered vendors section. Lists that
// render on scroll are scrolled to their end first.
func (r *run) vendorsFrom(ctx context.Context, s *consent.DiscoveredSection) []consent.VendorInfo {
	scope := r.scope(s)
	var (
		items surface.Locator
		n     int
	)
	if lazy, _ := s.Metadata["has_lazy_loading"].(bool); lazy {
		items, n = r.lazyItems(ctx, scope, vendorLazyItems)
	} else {
		items = scope.Locate(vendorItems)
		if n = r.p.Count(ctx, items); n == 0 {
			items = scope.Locate(vendorRows)
			n = r.p.Count(ctx, items)
		}
	}
	return r.readVendors(ctx, items, n, catalog.VendorPattern{
		Name:        vendorName,
		Purposes:    vendorPurposes,
		PrivacyLink: vendorPrivacy,
	})
}

// staticVendors applies the catalog patterns: the CMP's own, the IAB TCF
// layout, then the generic one. A pattern may first open a vendors tab or
// follow a vendors link.
func (r *run) staticVendors(ctx context.Context) []consent.VendorInfo {
	if r.e.cat == nil {
		return []consent.VendorInfo{}
	}
	for _, pat := range r.e.cat.VendorPatterns(r.cmp) {
		if r.p.Failed() {
			break
		}
		if pat.Container == "" || pat.Item == "" {
			continue
		}
		r.openTab(ctx, pat.TabButton)
		r.openTab(ctx, pat.VendorLink)
		container := r.modal.Locate(pat.Container).First()
		if !r.p.WaitVisible(ctx, container, containerWait) {
			continue
		}
		items, n := r.lazyItems(ctx, container, pat.Item)
		if out := r.readVendors(ctx, items, n, pat); len(out) > 0 {
			r.e.logger.Debug("extract: vendors from pattern", "cmp", r.cmp, "container", pat.Container, "count", len(out))
			return out
		}
	}
	return []consent.VendorInfo{}
}

// readVendors reads up to MaxVendors of the n items, dropping unnamed and
// repeated vendors.
func (r *run) readVendors(ctx context.Context, items surface.Locator, n int, pat catalog.VendorPattern) []consent.VendorInfo {
	out := []consent.VendorInfo{}
	seen := make(map[string]bool)
	for i := 0; i < n && len(out) < MaxVendors && !r.p.Failed(); i++ {
		item := items.Nth(i)
		name := nameOf(consent.FirstLine(r.text(ctx, item, pat.Name), 1, maxLine-1), r.raw(ctx, item, shortTimeout))
		key := strings.ToLower(name)
		if len([]rune(name)) < minName || seen[key] {
			continue
		}
		seen[key] = true

		v := consent.VendorInfo{
			Name:                       name,
			Purposes:                   r.texts(ctx, item, pat.Purposes),
			LegitimateInterestPurposes: r.texts(ctx, item, pat.LegitimateInterest),
		}
		if pat.PrivacyLink != "" {
			link := item.Locate(pat.PrivacyLink).First()
			if r.p.Count(ctx, link) > 0 {
				v.PrivacyPolicyURL, _ = r.p.Attr(ctx, link, "href", 0)
			}
		}
		out = append(out, v)
	}
	return out
}
