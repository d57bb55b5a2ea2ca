package extract

import (
	"context"
	"strings"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

const categoryDescription = "p, span[class*='desc'], [class*='detail'], small"

// labelDepth bounds the ancestors and siblings searched for a toggle label.
const labelDepth = 3

func (r *run) categories(ctx context.Context, s *consent.DiscoveredSection) []consent.CategoryInfo {
	if r.modal == nil {
		return []consent.CategoryInfo{}
	}
	if usable(s) {
		if out := r.categoriesFrom(ctx, s); len(out) > 0 {
			return out
		}
	}
	if r.p.Failed() {
		return []consent.CategoryInfo{}
	}
	return r.staticCategories(ctx)
}

// categoriesFrom reads one category per toggle inside the section.
func (r *run) categoriesFrom(ctx context.Context, s *consent.DiscoveredSection) []consent.CategoryInfo {
	toggles := r.scope(s).Locate(toggleSelector)
	n := min(r.p.Count(ctx, toggles), MaxCategories)
	out := []consent.CategoryInfo{}
	seen := make(map[string]bool)
	for i := 0; i < n && !r.p.Failed(); i++ {
		t := toggles.Nth(i)
		parent := t.Parent()
		name := r.toggleName(ctx, t, parent)
		if len([]rune(name)) < minName || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		c := consent.CategoryInfo{Name: name, HasToggle: true, IsRequired: r.disabled(ctx, t)}
		if on, ok := r.p.Checked(ctx, t); ok {
			c.DefaultEnabled = &on
		}
		c.Description = r.description(ctx, parent, categoryDescription, name)
		out = append(out, c)
	}
	return out
}

// toggleName finds the label of a toggle, in order: a label bound to its
// id, its aria-label, a wrapping label, the label or span following it,
// then its parent's text, then its grandparent's when the parent holds
// nothing readable.
func (r *run) toggleName(ctx context.Context, t, parent surface.Locator) string {
	if id, ok := r.p.Attr(ctx, t, "id", 0); ok && id != "" {
		if name := r.text(ctx, r.modal, selector.AttrEquals("label", "for", id)); len([]rune(name)) >= minName {
			return consent.NormalizeSpace(name)
		}
	}
	if aria, ok := r.p.Attr(ctx, t, "aria-label", 0); ok && len([]rune(strings.TrimSpace(aria))) >= minName {
		return strings.TrimSpace(aria)
	}
	anc := parent
	for i := 0; i < labelDepth; i++ {
		info, ok := r.p.Describe(ctx, anc)
		if !ok {
			break
		}
		if info.Tag == "label" {
			if name := consent.FirstLine(info.Text, minName, maxLine-1); name != "" {
				return name
			}
			break
		}
		anc = anc.Parent()
	}
	if name := r.siblingLabel(ctx, t); name != "" {
		return name
	}
	text := r.raw(ctx, parent, textTimeout)
	if len([]rune(strings.TrimSpace(text))) < minName {
		text = r.raw(ctx, parent.Parent(), textTimeout)
	}
	return consent.FirstLine(text, minName+1, maxLine-1)
}

// siblingLabel reads the first label or span with text among the siblings
// after t, stopping at the next toggle so its label is not borrowed.
func (r *run) siblingLabel(ctx context.Context, t surface.Locator) string {
	sib := t.Next()
	for i := 0; i < labelDepth; i++ {
		info, ok := r.p.Describe(ctx, sib)
		if !ok {
			return ""
		}
		switch info.Tag {
		case "input", "select", "fieldset":
			return ""
		case "label", "span":
			if role, _ := r.p.Attr(ctx, sib, "role", 0); role == "switch" {
				return ""
			}
			if name := consent.FirstLine(info.Text, minName, maxLine-1); name != "" {
				return name
			}
		}
		sib = sib.Next()
	}
	return ""
}

func (r *run) disabled(ctx context.Context, t surface.Locator) bool {
	if _, ok := r.p.Attr(ctx, t, "disabled", 0); ok {
		return true
	}
	v, _ := r.p.Attr(ctx, t, "aria-disabled", 0)
	return v == "true"
}

// description returns the first text under l matching sel that says more
// than name.
func (r *run) description(ctx context.Context, l surface.Locator, sel, name string) string {
	for _, d := range r.texts(ctx, l, sel) {
		if d != name && len(d) > len(name) {
			return consent.Truncate(d, consent.MaxTextLen)
		}
	}
	return ""
}

// staticCategories applies the catalog patterns, the CMP's own first. The
// first pattern that yields categories wins.
func (r *run) staticCategories(ctx context.Context) []consent.CategoryInfo {
	if r.e.cat == nil {
		return []consent.CategoryInfo{}
	}
	for _, pat := range r.e.cat.CategoryPatterns(r.cmp) {
		if out := r.categoriesByPattern(ctx, pat); len(out) > 0 {
			r.e.logger.Debug("extract: categories from pattern", "cmp", r.cmp, "container", pat.Container, "count", len(out))
			return out
		}
		if r.p.Failed() {
			break
		}
	}
	return []consent.CategoryInfo{}
}

func (r *run) categoriesByPattern(ctx context.Context, pat catalog.CategoryPattern) []consent.CategoryInfo {
	if pat.Item == "" {
		return nil
	}
	container := r.modal
	if pat.Container != "" {
		container = r.modal.Locate(pat.Container).First()
		if r.p.Count(ctx, container) == 0 {
			return nil
		}
	}
	items := container.Locate(pat.Item)
	n := min(r.p.Count(ctx, items), MaxCategories)

	var out []consent.CategoryInfo
	seen := make(map[string]bool)
	for i := 0; i < n && !r.p.Failed(); i++ {
		item := items.Nth(i)
		name := r.text(ctx, item, pat.Name)
		if name == "" && pat.NameInButton {
			name = r.text(ctx, item, "button")
		}
		name = nameOf(consent.FirstLine(name, 1, maxLine-1), r.raw(ctx, item, textTimeout))
		if len([]rune(name)) < minName || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		if pat.ExpandButton != "" {
			r.expand(ctx, item.Locate(pat.ExpandButton).First())
		}
		c := consent.CategoryInfo{Name: name}
		if pat.Description != "" {
			c.Description = r.description(ctx, item, pat.Description, name)
		}
		if pat.RequiredMarker != "" {
			c.IsRequired = r.p.Count(ctx, item.Locate(pat.RequiredMarker)) > 0
		}
		if pat.Toggle != "" {
			toggle := item.Locate(pat.Toggle).First()
			if r.p.Count(ctx, toggle) > 0 {
				c.HasToggle = true
				if on, ok := r.p.Checked(ctx, toggle); ok {
					c.DefaultEnabled = &on
				}
				if r.disabled(ctx, toggle) {
					c.IsRequired = true
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// expand opens a collapsed category so its description renders.
func (r *run) expand(ctx context.Context, btn surface.Locator) {
	if !r.p.Visible(ctx, btn) {
		return
	}
	if v, _ := r.p.Attr(ctx, btn, "aria-expanded", 0); v == "true" {
		return
	}
	if err := r.p.Click(ctx, btn, surface.ClickOptions{Timeout: textTimeout}); err != nil {
		return
	}
	r.p.Wait(ctx, r.page, expandSettle)
}
