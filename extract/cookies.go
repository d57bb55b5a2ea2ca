package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
)

const (
	cookieRows        = "tr, [role='row']"
	cookieItems       = "li, div[class*='cookie'], [class*='cookie-item']"
	cookieName        = "strong, [class*='name'], [class*='title']"
	cookieCells       = "td, th, [role='cell'], [role='gridcell']"
	cookieDescription = "[class*='desc'], [class*='purpose']"
)

var domainRe = regexp.MustCompile(`(?i)(?:^|[^\pL\pN_-])(\.?(?:[a-z0-9-]+\.)+(?:co\.uk|[a-z]{2,24}))(?:[^\pL\pN_-]|$)`)

// durations are tried in order; the first match wins.
var durations = []struct {
	re   *regexp.Regexp
	unit string
}{
	{unitRe(`days?|jours?|tage?|d[ií]as?`), "days"},
	{unitRe(`months?|mois|monate?|monat|mes(?:es)?`), "months"},
	{unitRe(`years?|ans?|ann[ée]es?|jahre?|años?`), "years"},
}

var sessionRe = regexp.MustCompile(`(?i)(?:^|[^\pL])(?:session|sessione|sitzung|sesi[óo]n)(?:[^\pL]|$)`)

func unitRe(words string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(\d+)\s*(?:` + words + `)(?:[^\pL]|$)`)
}

// ParseDuration reduces a retention text to "N days", "N months", "N years"
// or "session". It returns "" when text names no period.
func ParseDuration(text string) string {
	for _, d := range durations {
		if m := d.re.FindStringSubmatch(text); m != nil {
			return m[1] + " " + d.unit
		}
	}
	if sessionRe.MatchString(text) {
		return "session"
	}
	return ""
}

// ParseDomain returns the first host name in text, or "".
func ParseDomain(text string) string {
	m := domainRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func (r *run) cookies(ctx context.Context, s *consent.DiscoveredSection) []consent.CookieDetail {
	if r.modal == nil {
		return []consent.CookieDetail{}
	}
	if usable(s) {
		if out := r.cookiesFrom(ctx, s); len(out) > 0 {
			return out
		}
	}
	if r.p.Failed() {
		return []consent.CookieDetail{}
	}
	return r.staticCookies(ctx)
}

// cookiesFrom reads the table rows of a discovered cookies section, or its
// list items when it has no table.
func (r *run) cookiesFrom(ctx context.Context, s *consent.DiscoveredSection) []consent.CookieDetail {
	scope := r.scope(s)
	rows := scope.Locate(cookieRows)
	if n := r.p.Count(ctx, rows); n > 0 {
		return r.readCookieRows(ctx, rows, n)
	}
	items := scope.Locate(cookieItems)
	return r.readCookies(ctx, items, r.p.Count(ctx, items), catalog.CookiePattern{
		Name:        cookieName,
		Description: cookieDescription,
	})
}

// readCookieRows reads one cookie per table row: the first cell names it,
// the other cells give domain, duration and purpose. Header rows are
// skipped.
func (r *run) readCookieRows(ctx context.Context, rows surface.Locator, n int) []consent.CookieDetail {
	out := []consent.CookieDetail{}
	seen := make(map[string]bool)
	for i := 0; i < n && len(out) < MaxCookies && !r.p.Failed(); i++ {
		row := rows.Nth(i)
		if r.p.Count(ctx, row.Locate("th")) > 0 && r.p.Count(ctx, row.Locate("td")) == 0 {
			continue
		}
		cells := r.texts(ctx, row, cookieCells)
		if len(cells) == 0 {
			continue
		}
		c := consent.CookieDetail{Name: consent.FirstLine(cells[0], 1, maxLine-1)}
		for _, cell := range cells[1:] {
			switch {
			case c.Domain == "" && ParseDomain(cell) != "" && len(cell) <= maxLine:
				c.Domain = ParseDomain(cell)
			case c.Duration == "" && ParseDuration(cell) != "":
				c.Duration = ParseDuration(cell)
			case c.Purpose == "" && len([]rune(cell)) > len([]rune(c.Name)):
				c.Purpose = consent.Truncate(cell, consent.MaxTextLen)
			}
		}
		if keep(seen, c) {
			out = append(out, c)
		}
	}
	return out
}

// staticCookies applies the catalog patterns, the CMP's own first.
func (r *run) staticCookies(ctx context.Context) []consent.CookieDetail {
	if r.e.cat == nil {
		return []consent.CookieDetail{}
	}
	for _, pat := range r.e.cat.CookiePatterns(r.cmp) {
		if r.p.Failed() {
			break
		}
		if pat.Container == "" || pat.Item == "" {
			continue
		}
		r.openTab(ctx, pat.TabButton)
		container := r.modal.Locate(pat.Container).First()
		if !r.p.WaitVisible(ctx, container, containerWait) {
			continue
		}
		items := container.Locate(pat.Item)
		if out := r.readCookies(ctx, items, r.p.Count(ctx, items), pat); len(out) > 0 {
			r.e.logger.Debug("extract: cookies from pattern", "cmp", r.cmp, "container", pat.Container, "count", len(out))
			return out
		}
	}
	return []consent.CookieDetail{}
}

// readCookies reads up to MaxCookies of the n items with the selectors of
// pat, falling back to the item text for the name, domain and duration.
func (r *run) readCookies(ctx context.Context, items surface.Locator, n int, pat catalog.CookiePattern) []consent.CookieDetail {
	out := []consent.CookieDetail{}
	seen := make(map[string]bool)
	for i := 0; i < n && len(out) < MaxCookies && !r.p.Failed(); i++ {
		item := items.Nth(i)
		raw := r.raw(ctx, item, shortTimeout)
		c := consent.CookieDetail{
			Name: nameOf(consent.FirstLine(r.text(ctx, item, pat.Name), 1, maxLine-1), raw),
		}

		if d := r.text(ctx, item, pat.Domain); d != "" {
			if c.Domain = ParseDomain(d); c.Domain == "" {
				c.Domain = consent.Truncate(d, maxLine)
			}
		} else {
			c.Domain = ParseDomain(strings.Replace(raw, c.Name, "", 1))
		}
		if d := r.text(ctx, item, pat.Duration); d != "" {
			if c.Duration = ParseDuration(d); c.Duration == "" {
				c.Duration = consent.Truncate(consent.NormalizeSpace(d), maxLine)
			}
		} else {
			c.Duration = ParseDuration(raw)
		}
		if pat.Description != "" {
			c.Purpose = r.description(ctx, item, pat.Description, c.Name)
		}
		if keep(seen, c) {
			out = append(out, c)
		}
	}
	return out
}

// keep reports whether c is named and not yet recorded for its domain.
func keep(seen map[string]bool, c consent.CookieDetail) bool {
	if strings.TrimSpace(c.Name) == "" {
		return false
	}
	key := c.Name + "\x00" + c.Domain
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}
