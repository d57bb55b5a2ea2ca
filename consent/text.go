package consent

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxHTMLLen and MaxTextLen bound the banner HTML and text kept in a result.
const (
	MaxHTMLLen = 10000
	MaxTextLen = 10000
)

// blockTags become line breaks when HTML is flattened to text.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"ul": true, "ol": true, "table": true, "button": true,
}

// CleanText flattens an HTML fragment to text. Block elements start a new
// line, script and style bodies are dropped, runs of blanks collapse to one
// space and empty lines are removed.
func CleanText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// NormalizeSpace collapses every run of whitespace to a single space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = NormalizeSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Fold lower-cases s and strips diacritics so that "Préférences" and
// "preferences" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// ContainsAny reports whether the folded text contains any folded keyword.
func ContainsAny(text string, keywords []string) bool {
	_, ok := FirstMatch(text, keywords)
	return ok
}

// FirstMatch returns the first keyword, in list order, contained in text.
// Matching is case and accent insensitive.
func FirstMatch(text string, keywords []string) (string, bool) {
	f := Fold(text)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(f, Fold(k)) {
			return k, true
		}
	}
	return "", false
}

// ConsentKeywords mark text as consent related in generic detection.
var ConsentKeywords = []string{"cookie", "consent", "privacy", "données", "confidentialité"}

var sanitizer = bluemonday.UGCPolicy()

// SanitizeHTML removes scripts, event handlers and unsafe URLs from a banner
// fragment and bounds its length.
func SanitizeHTML(fragment string) string {
	return Truncate(sanitizer.Sanitize(fragment), MaxHTMLLen)
}

// FirstLine returns the first non-empty line of s whose length, in runes,
// lies within [min, max]. It returns "" when none qualifies.
func FirstLine(s string, min, max int) string {
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		n := len([]rune(l))
		if n >= min && n <= max {
			return l
		}
	}
	return ""
}
