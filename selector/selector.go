// Package selector parses and evaluates the selector dialect used to locate
// consent UI elements: a CSS subset plus two text pseudo-classes.
//
// Supported:
//   - type, universal, #id, .class
//   - [attr], [attr=v], [attr*=v], [attr^=v], [attr$=v], [attr~=v], [attr|=v],
//     with an optional trailing i flag for case-insensitive values
//   - descendant, child (>), adjacent (+) and sibling (~) combinators
//   - selector lists separated by commas
//   - :not(list), :first-child, :last-child, :checked, :disabled
//   - :scope, the element a query runs under
//   - :has-text('x'): text content contains x, case-insensitive,
//     whitespace-normalized
//   - :text('x'): like :has-text but keeps only the innermost element, one
//     whose element children do not themselves contain x
//
// Browsers evaluate everything except the text pseudo-classes natively;
// Groups splits a selector into native CSS plus text filters for them.
package selector

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax reports a malformed selector.
var ErrSyntax = errors.New("selector: syntax error")

// Selector is a parsed selector list.
type Selector struct {
	raw    string
	groups []complexSel
}

type complexSel struct {
	raw       string
	compounds []compound
	combs     []byte // combs[i] joins compounds[i] and compounds[i+1]
	lastStart int    // byte offset of the last compound in raw
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSel
	pseudos []pseudo
}

type attrSel struct {
	key, op, val string
	fold         bool
}

type pseudo struct {
	name  string
	arg   string
	not   *Selector
	start int // byte span of the pseudo-class in the group source
	end   int
}

// Group is one alternative of a selector list, split for native evaluation.
type Group struct {
	// CSS is the group with its text pseudo-classes removed; "*" when
	// nothing else remains of the last compound.
	CSS     string   `json:"css"`
	HasText []string `json:"hasText,omitempty"`
	Text    []string `json:"text,omitempty"`
}

// Parse parses a selector list.
func Parse(s string) (*Selector, error) {
	sel := &Selector{raw: s}
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty group in %q", ErrSyntax, s)
		}
		c, err := parseComplex(part)
		if err != nil {
			return nil, err
		}
		sel.groups = append(sel.groups, c)
	}
	if len(sel.groups) == 0 {
		return nil, fmt.Errorf("%w: empty selector", ErrSyntax)
	}
	return sel, nil
}

// MustParse is Parse for selectors known at compile time.
func MustParse(s string) *Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// String returns the source text.
func (s *Selector) String() string { return s.raw }

// Groups splits the selector for engines that only evaluate native CSS.
// Text pseudo-classes are only accepted on the last compound of a group.
func (s *Selector) Groups() ([]Group, error) {
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		var grp Group
		css := g.raw
		last := len(g.compounds) - 1
		// Cut spans from the end so earlier offsets stay valid.
		for i := len(g.compounds) - 1; i >= 0; i-- {
			ps := g.compounds[i].pseudos
			for j := len(ps) - 1; j >= 0; j-- {
				p := ps[j]
				if p.name != "has-text" && p.name != "text" {
					continue
				}
				if i != last {
					return nil, fmt.Errorf("%w: :%s must end the selector in %q", ErrSyntax, p.name, g.raw)
				}
				if p.name == "has-text" {
					grp.HasText = append([]string{p.arg}, grp.HasText...)
				} else {
					grp.Text = append([]string{p.arg}, grp.Text...)
				}
				css = css[:p.start] + css[p.end:]
			}
		}
		if strings.TrimSpace(css[g.lastStart:]) == "" {
			css = css[:g.lastStart] + "*"
		}
		grp.CSS = strings.TrimSpace(css)
		out = append(out, grp)
	}
	return out, nil
}

func parseComplex(s string) (complexSel, error) {
	c := complexSel{raw: s}
	pos := 0
	for {
		comp, next, err := parseCompound(s, pos)
		if err != nil {
			return c, err
		}
		c.lastStart = pos
		c.compounds = append(c.compounds, comp)
		pos = next
		ws := false
		for pos < len(s) && isSpace(s[pos]) {
			pos++
			ws = true
		}
		if pos >= len(s) {
			return c, nil
		}
		switch s[pos] {
		case '>', '+', '~':
			c.combs = append(c.combs, s[pos])
			pos++
			for pos < len(s) && isSpace(s[pos]) {
				pos++
			}
		default:
			if !ws {
				return c, fmt.Errorf("%w: unexpected %q in %q", ErrSyntax, s[pos], s)
			}
			c.combs = append(c.combs, ' ')
		}
	}
}

func parseCompound(s string, pos int) (compound, int, error) {
	var c compound
	start := pos
	if pos < len(s) && s[pos] == '*' {
		pos++
	} else if pos < len(s) && isIdentChar(s[pos]) {
		name, next := readIdent(s, pos)
		c.tag = strings.ToLower(name)
		pos = next
	}
	for pos < len(s) {
		switch s[pos] {
		case '#':
			name, next := readIdent(s, pos+1)
			if name == "" {
				return c, pos, fmt.Errorf("%w: empty id in %q", ErrSyntax, s)
			}
			c.id = name
			pos = next
		case '.':
			name, next := readIdent(s, pos+1)
			if name == "" {
				return c, pos, fmt.Errorf("%w: empty class in %q", ErrSyntax, s)
			}
			c.classes = append(c.classes, name)
			pos = next
		case '[':
			end := matchClose(s, pos, '[', ']')
			if end < 0 {
				return c, pos, fmt.Errorf("%w: unclosed [ in %q", ErrSyntax, s)
			}
			a, err := parseAttr(s[pos+1 : end])
			if err != nil {
				return c, pos, err
			}
			c.attrs = append(c.attrs, a)
			pos = end + 1
		case ':':
			p, next, err := parsePseudo(s, pos)
			if err != nil {
				return c, pos, err
			}
			c.pseudos = append(c.pseudos, p)
			pos = next
		default:
			if pos == start {
				return c, pos, fmt.Errorf("%w: expected selector at %d in %q", ErrSyntax, pos, s)
			}
			return c, pos, nil
		}
	}
	if pos == start {
		return c, pos, fmt.Errorf("%w: empty compound in %q", ErrSyntax, s)
	}
	return c, pos, nil
}

func parsePseudo(s string, pos int) (pseudo, int, error) {
	p := pseudo{start: pos}
	name, next := readIdent(s, pos+1)
	if name == "" {
		return p, pos, fmt.Errorf("%w: empty pseudo-class in %q", ErrSyntax, s)
	}
	p.name = strings.ToLower(name)
	pos = next
	if pos < len(s) && s[pos] == '(' {
		end := matchClose(s, pos, '(', ')')
		if end < 0 {
			return p, pos, fmt.Errorf("%w: unclosed ( in %q", ErrSyntax, s)
		}
		p.arg = strings.TrimSpace(s[pos+1 : end])
		pos = end + 1
	}
	p.end = pos
	switch p.name {
	case "has-text", "text":
		p.arg = unquote(p.arg)
		if p.arg == "" {
			return p, pos, fmt.Errorf("%w: :%s needs text in %q", ErrSyntax, p.name, s)
		}
	case "not":
		inner, err := Parse(p.arg)
		if err != nil {
			return p, pos, err
		}
		p.not = inner
	case "first-child", "last-child", "checked", "disabled", "scope":
	default:
		return p, pos, fmt.Errorf("%w: unsupported pseudo-class :%s", ErrSyntax, p.name)
	}
	return p, pos, nil
}

func parseAttr(body string) (attrSel, error) {
	body = strings.TrimSpace(body)
	i := 0
	for i < len(body) && (isIdentChar(body[i]) || body[i] == ':') {
		i++
	}
	a := attrSel{key: strings.ToLower(body[:i])}
	if a.key == "" {
		return a, fmt.Errorf("%w: empty attribute name in [%s]", ErrSyntax, body)
	}
	rest := strings.TrimSpace(body[i:])
	if rest == "" {
		return a, nil
	}
	switch {
	case rest[0] == '=':
		a.op, rest = "=", rest[1:]
	case len(rest) > 1 && rest[1] == '=' && strings.IndexByte("*^$~|", rest[0]) >= 0:
		a.op, rest = rest[:2], rest[2:]
	default:
		return a, fmt.Errorf("%w: bad attribute operator in [%s]", ErrSyntax, body)
	}
	val, flag := splitFlag(strings.TrimSpace(rest))
	a.val = val
	a.fold = flag == "i"
	return a, nil
}

// splitFlag separates a quoted or bare value from a trailing i/s flag.
func splitFlag(v string) (string, string) {
	if v == "" {
		return v, ""
	}
	if q := v[0]; q == '\'' || q == '"' {
		end := strings.IndexByte(v[1:], q)
		if end < 0 {
			return v[1:], ""
		}
		return v[1 : end+1], strings.ToLower(strings.TrimSpace(v[end+2:]))
	}
	if i := strings.LastIndexByte(v, ' '); i > 0 {
		flag := strings.ToLower(strings.TrimSpace(v[i+1:]))
		if flag == "i" || flag == "s" {
			return strings.TrimSpace(v[:i]), flag
		}
	}
	return v, ""
}

func unquote(s string) string {
	if len(s) >= 2 {
		if q := s[0]; (q == '\'' || q == '"') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func readIdent(s string, pos int) (string, int) {
	start := pos
	for pos < len(s) {
		if s[pos] == '\\' && pos+1 < len(s) {
			pos += 2
			continue
		}
		if !isIdentChar(s[pos]) {
			break
		}
		pos++
	}
	return strings.ReplaceAll(s[start:pos], `\`, ""), pos
}

func isIdentChar(b byte) bool {
	return b == '-' || b == '_' || b >= 0x80 ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

// matchClose returns the index of the bracket closing the one at open,
// skipping quoted strings, or -1.
func matchClose(s string, open int, o, c byte) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == o:
			depth++
		case ch == c:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep outside quotes, brackets and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

// Quote formats text as a quoted selector argument. Text holding both quote
// characters is cut before the first single quote, which keeps it usable for
// substring matching.
func Quote(text string) string {
	switch {
	case !strings.Contains(text, "'"):
		return "'" + text + "'"
	case !strings.Contains(text, `"`):
		return `"` + text + `"`
	default:
		return "'" + text[:strings.IndexByte(text, '\'')] + "'"
	}
}

// HasText returns base:has-text('text').
func HasText(base, text string) string {
	return base + ":has-text(" + Quote(text) + ")"
}

// AttrEquals returns base[name='value'], or a contains match when the
// value cannot be quoted whole.
func AttrEquals(base, name, value string) string {
	if strings.Contains(value, "'") && strings.Contains(value, `"`) {
		return base + "[" + name + "*=" + Quote(value) + "]"
	}
	return base + "[" + name + "=" + Quote(value) + "]"
}
