package selector

import (
	"strings"

	"golang.org/x/net/html"
)

// QueryAll returns the element descendants of root (root excluded) matching
// s, in document order. :scope refers to root.
func (s *Selector) QueryAll(root *html.Node) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if s.matchIn(c, root) {
				results = append(results, c)
			}
			walk(c)
		}
	}
	walk(root)
	return results
}

// Match reports whether element n matches any group of s. :scope refers to
// the document element.
func (s *Selector) Match(n *html.Node) bool { return s.matchIn(n, nil) }

func (s *Selector) matchIn(n, root *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, g := range s.groups {
		if matchComplex(g, n, root, len(g.compounds)-1) {
			return true
		}
	}
	return false
}

func matchComplex(g complexSel, n, root *html.Node, i int) bool {
	if !matchCompound(g.compounds[i], n, root) {
		return false
	}
	if i == 0 {
		return true
	}
	switch g.combs[i-1] {
	case '>':
		p := parentElement(n)
		return p != nil && matchComplex(g, p, root, i-1)
	case '+':
		p := prevElement(n)
		return p != nil && matchComplex(g, p, root, i-1)
	case '~':
		for p := prevElement(n); p != nil; p = prevElement(p) {
			if matchComplex(g, p, root, i-1) {
				return true
			}
		}
		return false
	default:
		for p := parentElement(n); p != nil; p = parentElement(p) {
			if matchComplex(g, p, root, i-1) {
				return true
			}
		}
		return false
	}
}

func matchCompound(c compound, n, root *html.Node) bool {
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && Attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		classes := strings.Fields(Attr(n, "class"))
		for _, want := range c.classes {
			if !contains(classes, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !matchAttr(a, n) {
			return false
		}
	}
	for _, p := range c.pseudos {
		if !matchPseudo(p, n, root) {
			return false
		}
	}
	return true
}

func matchAttr(a attrSel, n *html.Node) bool {
	got, ok := lookupAttr(n, a.key)
	if !ok {
		return false
	}
	if a.op == "" {
		return true
	}
	want := a.val
	if a.fold {
		got, want = strings.ToLower(got), strings.ToLower(want)
	}
	switch a.op {
	case "=":
		return got == want
	case "*=":
		return want != "" && strings.Contains(got, want)
	case "^=":
		return want != "" && strings.HasPrefix(got, want)
	case "$=":
		return want != "" && strings.HasSuffix(got, want)
	case "~=":
		return contains(strings.Fields(got), want)
	case "|=":
		return got == want || strings.HasPrefix(got, want+"-")
	}
	return false
}

func matchPseudo(p pseudo, n, root *html.Node) bool {
	switch p.name {
	case "scope":
		if root == nil || root.Type == html.DocumentNode {
			return parentElement(n) == nil
		}
		return n == root
	case "has-text":
		return textContains(n, p.arg)
	case "text":
		if !textContains(n, p.arg) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && textContains(c, p.arg) {
				return false
			}
		}
		return true
	case "not":
		return !p.not.matchIn(n, root)
	case "first-child":
		return prevElement(n) == nil
	case "last-child":
		return nextElement(n) == nil
	case "checked":
		_, ok := lookupAttr(n, "checked")
		return ok
	case "disabled":
		_, ok := lookupAttr(n, "disabled")
		return ok
	}
	return false
}

func textContains(n *html.Node, want string) bool {
	return strings.Contains(
		strings.ToLower(normalize(TextContent(n))),
		strings.ToLower(normalize(want)),
	)
}

// TextContent concatenates the text nodes under n, skipping script, style
// and template bodies.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Attr returns the value of attribute key on n, or "".
func Attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return p
}

func prevElement(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
