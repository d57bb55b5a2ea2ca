// Package buttons extracts the clickable elements of a consent banner and
// classifies each one as accept, reject, settings, info or unknown from its
// text and aria-label, in English, French, German and Spanish.
package buttons

import (
	"context"
	"regexp"
	"strings"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// MaxButtons bounds the number of elements inspected per banner.
const MaxButtons = 60

const maxField = 200

// Extract lists the buttons of container in document order. Elements with
// neither text nor aria-label are skipped.
func Extract(ctx context.Context, p *surface.Prober, container surface.Locator) []consent.ButtonInfo {
	out := []consent.ButtonInfo{}
	if container == nil {
		return out
	}
	all := container.Locate(surface.InteractiveSelector)
	n := p.Count(ctx, all)
	if n > MaxButtons {
		n = MaxButtons
	}
	for i := 0; i < n; i++ {
		el := all.Nth(i)
		info, ok := p.Describe(ctx, el)
		if !ok {
			continue
		}
		aria, _ := p.Attr(ctx, el, "aria-label", 0)
		text := consent.NormalizeSpace(info.Text)
		aria = strings.TrimSpace(aria)
		if text == "" && aria == "" {
			continue
		}
		out = append(out, consent.ButtonInfo{
			Text:      consent.Truncate(text, maxField),
			Selector:  consent.Truncate(DeriveSelector(info, aria, text), maxField),
			Role:      Classify(text, aria),
			AriaLabel: consent.Truncate(aria, maxField),
			IsVisible: info.Visible,
		})
	}
	return out
}

// semanticClass lists the class fragments that usually name a button's
// purpose. The longest matching class wins.
var semanticClass = []string{
	"button", "btn", "manage", "settings", "configure", "option", "choice",
	"action", "accept", "reject", "consent", "cookie", "preference", "type_",
}

var plainIdent = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// DeriveSelector builds the most specific stable selector for a button:
// its id, a semantic class, its aria-label, its text, its first class, its
// tag.
func DeriveSelector(info surface.ElementInfo, ariaLabel, text string) string {
	if text == "" {
		text = info.Text
	}
	text = consent.NormalizeSpace(text)
	tag := info.Tag
	if tag == "" {
		tag = "*"
	}
	if info.ID != "" {
		if plainIdent.MatchString(info.ID) {
			return "#" + info.ID
		}
		return selector.AttrEquals(tag, "id", info.ID)
	}

	var classes []string
	for _, c := range info.Classes {
		if plainIdent.MatchString(c) {
			classes = append(classes, c)
		}
	}
	best := ""
	for _, c := range classes {
		lc := strings.ToLower(c)
		for _, k := range semanticClass {
			if strings.Contains(lc, k) && len(c) > len(best) {
				best = c
			}
		}
	}
	if best != "" {
		return "." + best
	}

	if ariaLabel != "" && len([]rune(ariaLabel)) < 100 {
		return selector.AttrEquals(tag, "aria-label", ariaLabel)
	}

	base := tag
	if len(classes) > 0 {
		base = "." + classes[0]
	}
	if text != "" && len([]rune(text)) < 50 {
		return selector.HasText(base, consent.Truncate(text, 20))
	}
	return base
}
