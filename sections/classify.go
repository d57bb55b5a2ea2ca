package sections

import (
	"context"
	"regexp"
	"strings"

	"github.com/hazyhaar/consentcrawl/buttons"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// contentKeywords map label text to a content type. Order matters: a
// "Purposes" tab is a categories tab.
var contentKeywords = []struct {
	ct    consent.ContentType
	words []string
}{
	{consent.ContentCategories, []string{"categor", "purpose", "finalit", "zweck", "objective", "objectif"}},
	{consent.ContentVendors, []string{"vendor", "partner", "partenaire", "fournisseur", "iab", "anbieter", "socio", "fornitori", "providers"}},
	{consent.ContentCookies, []string{"cookie", "témoin", "keks"}},
	{consent.ContentPurposes, []string{"finalidad"}},
}

// Classify returns the content type named by a tab, button or header
// label. Matching ignores case and accents.
func Classify(text string) consent.ContentType {
	if strings.TrimSpace(text) == "" {
		return consent.ContentUnknown
	}
	for _, k := range contentKeywords {
		if consent.ContainsAny(text, k.words) {
			return k.ct
		}
	}
	return consent.ContentUnknown
}

var (
	domainPattern   = regexp.MustCompile(`\.(com|fr|eu|org|net|io|co\.uk)\b`)
	durationPattern = regexp.MustCompile(`(?i)(^|[^\pL])(days?|months?|years?|session|jours?|mois|ans|années?|tage?|monate?|jahre?)([^\pL]|$)`)
)

// looksLikeCookie reports whether item text carries a cookie domain or a
// retention period.
func looksLikeCookie(text string) bool {
	return domainPattern.MatchString(text) || durationPattern.MatchString(text)
}

// isConsentAction reports whether a label would accept or reject consent
// rather than open a section. Clicking one would close the modal.
func isConsentAction(text string) bool {
	switch buttons.Classify(text, "") {
	case consent.RoleAcceptAll, consent.RoleRejectAll:
		return true
	}
	return false
}

var (
	plainIdent = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)
	dataAttrs  = []string{"data-tab", "data-action", "data-id", "data-type"}
)

const (
	maxSelectorText = 30
	maxAriaLabel    = 50
)

// locatorFor derives a selector for l relative to the modal: its id, up to
// three classes, a data attribute, its aria-label, its text, then its tag.
// It returns "" when l cannot be described.
func (r *run) locatorFor(ctx context.Context, l surface.Locator) string {
	info, ok := r.p.Describe(ctx, l)
	if !ok {
		return ""
	}
	if info.ID != "" {
		if plainIdent.MatchString(info.ID) {
			return "#" + info.ID
		}
		return selector.AttrEquals("", "id", info.ID)
	}

	var classes []string
	for _, c := range info.Classes {
		if plainIdent.MatchString(c) {
			classes = append(classes, c)
		}
		if len(classes) == 3 {
			break
		}
	}
	if len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}

	for _, name := range dataAttrs {
		if v, ok := r.p.Attr(ctx, l, name, 0); ok && v != "" {
			return selector.AttrEquals("", name, v)
		}
	}
	if aria, ok := r.p.Attr(ctx, l, "aria-label", 0); ok && aria != "" && len([]rune(aria)) < maxAriaLabel {
		return selector.AttrEquals(info.Tag, "aria-label", aria)
	}

	text := []rune(consent.NormalizeSpace(info.Text))
	if len(text) > maxSelectorText {
		text = text[:maxSelectorText]
	}
	if len(text) > 0 {
		if info.Tag == "button" || info.Tag == "a" {
			return selector.HasText(info.Tag, string(text))
		}
		return info.Tag + ":text(" + selector.Quote(string(text)) + ")"
	}
	return info.Tag
}
