package sections

import (
	"context"
	"strings"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

// indicators count the items a section shows, per content type.
var indicators = map[consent.ContentType]string{
	consent.ContentCategories: "input[type='checkbox'], [role='switch'], [class*='category'], [class*='purpose']",
	consent.ContentVendors:    "[class*='vendor'], [class*='partner'], a[href*='privacy'], [data-vendor-id]",
	consent.ContentCookies:    "[class*='cookie'], td, tr, [data-cookie-name]",
}

const defaultIndicators = "li, tr, [role='listitem'], input[type='checkbox']"

// activate clicks the control of s unless it is already active, then
// validates s. A failed click is recorded and validation still runs.
func (r *run) activate(ctx context.Context, s *consent.DiscoveredSection) {
	if !s.ActivationRequired || s.ActivationLocator == "" {
		r.validate(ctx, s)
		return
	}
	ctl := r.modal.Locate(s.ActivationLocator).First()
	if r.active(ctx, ctl) {
		s.SetMeta("already_active", true)
		r.validate(ctx, s)
		return
	}

	err := r.p.Click(ctx, ctl, surface.ClickOptions{Timeout: clickTimeout})
	if r.p.Failed() {
		return
	}
	if err != nil {
		s.SetMeta("activation_error", err.Error())
		r.d.logger.Debug("sections: activation failed", "content", s.ContentType, "locator", s.ActivationLocator, "error", err)
		if r.validate(ctx, s) {
			s.ActivationRequired = false
		}
		return
	}
	s.WasActivated = true
	settle := slowSettle
	if r.cmp == "onetrust" || r.cmp == "cookiebot" {
		settle = fastSettle
	}
	if !r.p.Wait(ctx, r.page, settle+animationBuffer) {
		return
	}
	r.validate(ctx, s)
}

// active reports whether a tab or header is already selected or expanded.
func (r *run) active(ctx context.Context, ctl surface.Locator) bool {
	if v, _ := r.p.Attr(ctx, ctl, "aria-selected", 0); v == "true" {
		return true
	}
	if v, _ := r.p.Attr(ctx, ctl, "aria-expanded", 0); v == "true" {
		return true
	}
	class, _ := r.p.Attr(ctx, ctl, "class", 0)
	class = strings.ToLower(class)
	return strings.Contains(class, "active") || strings.Contains(class, "selected") || strings.Contains(class, "current")
}

// validate counts the items inside the scope of s and records the result.
func (r *run) validate(ctx context.Context, s *consent.DiscoveredSection) bool {
	n := r.items(ctx, s)
	s.ItemCountAfterActivation = n
	s.ContainsItems = n > 0
	return s.ContainsItems
}

func (r *run) items(ctx context.Context, s *consent.DiscoveredSection) int {
	sel, ok := indicators[s.ContentType]
	if !ok {
		sel = defaultIndicators
	}
	return r.p.Count(ctx, r.scope(s).Locate(sel))
}

// lazyLoad scrolls the section to its end once and re-counts, flagging
// lists that render more items on scroll.
func (r *run) lazyLoad(ctx context.Context, s *consent.DiscoveredSection) {
	if s.Locator == "" {
		return
	}
	before := s.ItemCountAfterActivation
	if !r.p.ScrollToBottom(ctx, r.scope(s)) {
		return
	}
	if !r.p.Wait(ctx, r.page, lazyPause) {
		return
	}
	after := r.items(ctx, s)
	s.SetMeta("has_lazy_loading", after > before)
	if after > before {
		s.ItemCountAfterActivation = after
		r.d.logger.Debug("sections: lazy list", "content", s.ContentType, "before", before, "after", after)
	}
}
