package sections

import (
	"context"
	"strings"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// buttonLabels are searched verbatim among the modal's buttons.
var buttonLabels = []struct {
	ct     consent.ContentType
	labels []string
}{
	{consent.ContentCategories, []string{"Categories", "Catégories", "Finalités", "Purposes", "Categorias", "Kategorien", "Objectifs"}},
	{consent.ContentVendors, []string{"Vendors", "Partenaires", "Partners", "Fournisseurs", "IAB", "Providers", "Anbieter"}},
	{consent.ContentCookies, []string{"Cookies", "Cookie List", "Liste des cookies", "Cookie-Liste"}},
	{consent.ContentPurposes, []string{"Purposes", "Finalités", "Objectives", "Objectifs"}},
}

// aria reads tablists, aria-expanded headers and labelled buttons.
func (r *run) aria(ctx context.Context) []*consent.DiscoveredSection {
	var out []*consent.DiscoveredSection

	lists := r.modal.Locate("[role='tablist']")
	for i, n := 0, r.count(ctx, lists, maxContainers); i < n; i++ {
		tabs := lists.Nth(i).Locate("[role='tab']")
		for j, m := 0, r.count(ctx, tabs, maxCandidates); j < m; j++ {
			tab := tabs.Nth(j)
			text := r.text(ctx, tab)
			if runeLen(text) < 2 {
				continue
			}
			ct := Classify(text)
			if ct == consent.ContentUnknown {
				continue
			}
			s := &consent.DiscoveredSection{
				SectionType:        consent.SectionTab,
				ContentType:        ct,
				ActivationRequired: true,
				ActivationLocator:  r.locatorFor(ctx, tab),
				DiscoveryMethod:    consent.DiscoveryARIA,
				Confidence:         ConfTab,
			}
			s.SetMeta("tab_text", text)
			if controls, _ := r.p.Attr(ctx, tab, "aria-controls", 0); controls != "" {
				s.Locator = selector.AttrEquals("[role='tabpanel']", "id", controls)
				s.SetMeta("aria_controls", controls)
				if r.p.Count(ctx, r.modal.Locate(s.Locator)) > 0 {
					s.Confidence = ConfTabPanel
				}
			}
			out = append(out, s)
		}
	}

	heads := r.modal.Locate("[aria-expanded]")
	for i, n := 0, r.count(ctx, heads, maxCandidates); i < n; i++ {
		head := heads.Nth(i)
		text := r.text(ctx, head)
		if runeLen(text) < 3 || runeLen(text) > maxHeaderText {
			continue
		}
		ct := Classify(text)
		if ct == consent.ContentUnknown {
			continue
		}
		expanded, _ := r.p.Attr(ctx, head, "aria-expanded", 0)
		s := &consent.DiscoveredSection{
			SectionType:        consent.SectionAccordion,
			ContentType:        ct,
			ActivationRequired: expanded == "false",
			ActivationLocator:  r.locatorFor(ctx, head),
			DiscoveryMethod:    consent.DiscoveryARIA,
			Confidence:         ConfAccordion,
		}
		s.SetMeta("button_text", text)
		s.SetMeta("currently_expanded", expanded == "true")
		if controls, _ := r.p.Attr(ctx, head, "aria-controls", 0); controls != "" {
			s.Locator = idSelector(controls)
			if r.p.Count(ctx, r.modal.Locate(s.Locator)) > 0 {
				s.Confidence = ConfAccordionID
			}
		}
		out = append(out, s)
	}

	for _, group := range buttonLabels {
		for _, label := range group.labels {
			btns := r.modal.Locate(selector.HasText("button", label) + ", " + selector.HasText("[role='button']", label))
			for i, n := 0, r.count(ctx, btns, maxContainers); i < n; i++ {
				btn := btns.Nth(i)
				text := r.text(ctx, btn)
				if text == "" || runeLen(text) > maxHeaderText || isConsentAction(text) || labelled(out, text) {
					continue
				}
				s := &consent.DiscoveredSection{
					SectionType:        consent.SectionTab,
					ContentType:        group.ct,
					ActivationRequired: true,
					ActivationLocator:  r.locatorFor(ctx, btn),
					DiscoveryMethod:    consent.DiscoveryARIA,
					Confidence:         ConfKeyword,
				}
				s.SetMeta("button_text", text)
				s.SetMeta("keyword", label)
				out = append(out, s)
			}
		}
	}
	return out
}

func labelled(found []*consent.DiscoveredSection, text string) bool {
	for _, s := range found {
		if strings.EqualFold(s.MetaString("button_text"), text) {
			return true
		}
	}
	return false
}

func idSelector(id string) string {
	if plainIdent.MatchString(id) {
		return "#" + id
	}
	return selector.AttrEquals("", "id", id)
}

// visual reads tab rows, chevron headers, repeated lists and toggle groups.
func (r *run) visual(ctx context.Context) []*consent.DiscoveredSection {
	var out []*consent.DiscoveredSection

	navs := r.modal.Locate("nav, [class*='tab'], [class*='navigation'], [role='navigation']")
	for i, n := 0, r.count(ctx, navs, maxContainers); i < n; i++ {
		btns := navs.Nth(i).Locate("button, a, [role='button']")
		m := r.count(ctx, btns, maxCandidates)
		if m < 2 || !r.aligned(ctx, btns, m) {
			continue
		}
		for j := 0; j < m; j++ {
			btn := btns.Nth(j)
			text := r.text(ctx, btn)
			if runeLen(text) < 2 || runeLen(text) > maxHeaderText || isConsentAction(text) {
				continue
			}
			ct := Classify(text)
			if ct == consent.ContentUnknown {
				continue
			}
			s := &consent.DiscoveredSection{
				SectionType:        consent.SectionTab,
				ContentType:        ct,
				ActivationRequired: true,
				ActivationLocator:  r.locatorFor(ctx, btn),
				DiscoveryMethod:    consent.DiscoveryVisual,
				Confidence:         ConfTabRow,
			}
			s.SetMeta("button_text", text)
			s.SetMeta("nav_container", true)
			out = append(out, s)
		}
	}

	icons := r.modal.Locate("[class*='chevron'], [class*='arrow'], [class*='expand'], [class*='accordion'], svg[class*='icon']")
	for i, n := 0, r.count(ctx, icons, maxCandidates); i < n; i++ {
		head := icons.Nth(i).Parent()
		text := r.text(ctx, head)
		if runeLen(text) <= 5 || runeLen(text) > maxHeaderText {
			continue
		}
		ct := Classify(text)
		if ct == consent.ContentUnknown {
			continue
		}
		s := &consent.DiscoveredSection{
			SectionType:        consent.SectionAccordion,
			ContentType:        ct,
			ActivationRequired: true,
			ActivationLocator:  r.locatorFor(ctx, head),
			DiscoveryMethod:    consent.DiscoveryVisual,
			Confidence:         ConfChevron,
		}
		s.SetMeta("button_text", text)
		s.SetMeta("has_chevron", true)
		out = append(out, s)
	}

	lists := r.modal.Locate("ul, ol, div[class*='list'], [role='list']")
	for i, n := 0, r.count(ctx, lists, maxContainers); i < n; i++ {
		list := lists.Nth(i)
		items := list.Locate(":scope > *")
		m := r.p.Count(ctx, items)
		if m < minListItems || !r.similar(ctx, items, min(m, 5)) {
			continue
		}
		sample := r.text(ctx, items.First())
		ct := Classify(sample)
		toggles := r.p.Count(ctx, list.Locate(toggleSelector)) > 0
		if ct == consent.ContentUnknown {
			privacy := r.p.Count(ctx, list.Locate("a[href*='privacy']")) > 0
			switch {
			case toggles && privacy:
				ct = consent.ContentVendors
			case toggles:
				ct = consent.ContentCategories
			case looksLikeCookie(sample):
				ct = consent.ContentCookies
			default:
				continue
			}
		}
		loc := r.locatorFor(ctx, list)
		if loc == "" {
			continue
		}
		s := &consent.DiscoveredSection{
			SectionType:     consent.SectionList,
			ContentType:     ct,
			Locator:         loc,
			DiscoveryMethod: consent.DiscoveryVisual,
			Confidence:      ConfList,
		}
		s.SetMeta("item_count", m)
		s.SetMeta("has_toggles", toggles)
		out = append(out, s)
	}

	groups := r.modal.Locate("fieldset, [role='group']")
	for i, n := 0, r.count(ctx, groups, maxContainers); i < n; i++ {
		group := groups.Nth(i)
		toggles := r.p.Count(ctx, group.Locate(toggleSelector))
		if toggles < 2 {
			continue
		}
		loc := r.locatorFor(ctx, group)
		if loc == "" {
			continue
		}
		s := &consent.DiscoveredSection{
			SectionType:     consent.SectionList,
			ContentType:     consent.ContentCategories,
			Locator:         loc,
			DiscoveryMethod: consent.DiscoveryVisual,
			Confidence:      ConfToggleGroup,
		}
		s.SetMeta("toggle_count", toggles)
		out = append(out, s)
	}
	return out
}

// aligned reports whether the first three of n elements share a row.
func (r *run) aligned(ctx context.Context, l surface.Locator, n int) bool {
	var ys []float64
	for i := 0; i < n && i < 3; i++ {
		if box, ok := r.p.Box(ctx, l.Nth(i)); ok {
			ys = append(ys, box.Y)
		}
	}
	if len(ys) < 2 {
		return false
	}
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		lo, hi = min(lo, y), max(hi, y)
	}
	return hi-lo < alignSlack
}

// similar reports whether the first n elements share a tag and at least
// two classes.
func (r *run) similar(ctx context.Context, l surface.Locator, n int) bool {
	if n < 2 {
		return false
	}
	var tag string
	var common map[string]bool
	for i := 0; i < n; i++ {
		info, ok := r.p.Describe(ctx, l.Nth(i))
		if !ok {
			return false
		}
		if i == 0 {
			tag = info.Tag
			common = make(map[string]bool, len(info.Classes))
			for _, c := range info.Classes {
				common[c] = true
			}
			continue
		}
		if info.Tag != tag {
			return false
		}
		has := make(map[string]bool, len(info.Classes))
		for _, c := range info.Classes {
			has[c] = true
		}
		for c := range common {
			if !has[c] {
				delete(common, c)
			}
		}
	}
	return len(common) >= 2
}

// static reads the catalog patterns and section tables of the CMP.
func (r *run) static(ctx context.Context) []*consent.DiscoveredSection {
	if r.d.cat == nil {
		return nil
	}
	conf := ConfStatic
	if r.cmp != "" {
		conf = ConfStaticKnown
	}
	var out []*consent.DiscoveredSection
	add := func(ct consent.ContentType, pattern, tab, container string) {
		s := &consent.DiscoveredSection{
			SectionType:     consent.SectionList,
			ContentType:     ct,
			Locator:         container,
			DiscoveryMethod: consent.DiscoveryYAML,
			Confidence:      conf,
		}
		switch {
		case tab != "":
			s.SectionType = consent.SectionTab
			s.ActivationRequired = true
			s.ActivationLocator = tab
		case container == "" || !r.p.Visible(ctx, r.modal.Locate(container).First()):
			return
		}
		s.SetMeta("yaml_pattern", pattern)
		s.SetMeta("cmp_type", r.cmp)
		out = append(out, s)
	}

	if pat, ok := pick(r.d.cat.Categories, r.cmp); ok {
		add(consent.ContentCategories, "categories", "", pat.Container)
	}
	if pat, ok := pick(r.d.cat.Vendors, r.cmp); ok {
		add(consent.ContentVendors, "vendors", pat.TabButton, pat.Container)
	}
	if pat, ok := pick(r.d.cat.Cookies, r.cmp); ok {
		add(consent.ContentCookies, "cookies", pat.TabButton, pat.Container)
	}

	for _, h := range r.d.cat.SectionHints(r.cmp) {
		s := &consent.DiscoveredSection{
			SectionType:        h.Type,
			ContentType:        h.Content,
			Locator:            h.Locator,
			ActivationRequired: h.Activation != "",
			ActivationLocator:  h.Activation,
			DiscoveryMethod:    consent.DiscoveryYAML,
			Confidence:         conf,
		}
		if h.Confidence > 0 {
			s.Confidence = h.Confidence
		}
		if s.SectionType == "" {
			s.SectionType = consent.SectionList
		}
		if !s.ActivationRequired && (s.Locator == "" || r.p.Count(ctx, r.modal.Locate(s.Locator)) == 0) {
			continue
		}
		s.SetMeta("yaml_pattern", "sections")
		s.SetMeta("cmp_type", r.cmp)
		out = append(out, s)
	}
	return out
}

// pick returns the pattern of id, else the generic one.
func pick[V any](m map[string]V, id string) (V, bool) {
	if v, ok := m[id]; ok && id != "" {
		return v, true
	}
	v, ok := m["generic"]
	return v, ok
}
