package banner

import (
	"context"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

// MaxContainerLevels is the default climb of FindContainer.
const MaxContainerLevels = 6

// fallbackLevels is the climb used when no ancestor qualifies.
const fallbackLevels = 3

var containerWords = []string{"cookie", "consent", "privacy", "confidentialité", "données", "paramètre"}

// FindContainer climbs from start, usually a banner button, to the element
// that holds the whole banner: the first ancestor within maxLevels that has
// at least two interactive descendants, a banner-sized box, consent wording
// and an overlay position (fixed, sticky, absolute or z-index above 50).
// The climb stops at body.
//
// When no ancestor qualifies, start itself is returned if it qualifies
// except for its position, else its ancestor three levels up, else start.
func FindContainer(ctx context.Context, p *surface.Prober, start surface.Locator, maxLevels int) surface.Locator {
	if start == nil {
		return nil
	}
	first, ok := p.Describe(ctx, start)
	if !ok {
		return start
	}
	cur, info := start, first
	for level := 0; level < maxLevels; level++ {
		if info.Tag == "body" || info.Tag == "html" {
			break
		}
		if bannerShaped(info) && overlay(info) {
			return cur
		}
		cur = cur.Parent()
		if info, ok = p.Describe(ctx, cur); !ok {
			break
		}
	}
	if bannerShaped(first) {
		return start
	}
	up := start
	for i := 0; i < fallbackLevels; i++ {
		up = up.Parent()
	}
	if info, ok := p.Describe(ctx, up); ok && info.Tag != "html" {
		return up
	}
	return start
}

func bannerShaped(info surface.ElementInfo) bool {
	return info.Interactive >= 2 &&
		info.Height > 50 && info.Width > 200 &&
		consent.ContainsAny(info.Text, containerWords)
}

func overlay(info surface.ElementInfo) bool {
	switch info.Position {
	case "fixed", "sticky", "absolute":
		return true
	}
	return info.ZIndex > 50
}
