package surfacetest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

type stepKind int

const (
	stepSelect stepKind = iota
	stepNth
	stepParent
	stepNext
)

type step struct {
	kind stepKind
	raw  string
	n    int
}

// Locator is the fake surface.Locator.
type Locator struct {
	frame *Frame
	steps []step
}

var interactive = selector.MustParse(surface.InteractiveSelector)

func (l *Locator) with(s step) *Locator {
	steps := make([]step, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return &Locator{frame: l.frame, steps: append(steps, s)}
}

// Locate implements surface.Locator.
func (l *Locator) Locate(sel string) surface.Locator {
	return l.with(step{kind: stepSelect, raw: sel})
}

// Nth implements surface.Locator.
func (l *Locator) Nth(i int) surface.Locator { return l.with(step{kind: stepNth, n: i}) }

// First implements surface.Locator.
func (l *Locator) First() surface.Locator { return l.Nth(0) }

// Parent implements surface.Locator.
func (l *Locator) Parent() surface.Locator { return l.with(step{kind: stepParent}) }

// Next implements surface.Locator.
func (l *Locator) Next() surface.Locator { return l.with(step{kind: stepNext}) }

// String implements surface.Locator.
func (l *Locator) String() string {
	parts := make([]string, 0, len(l.steps))
	for _, s := range l.steps {
		switch s.kind {
		case stepSelect:
			parts = append(parts, s.raw)
		case stepNth:
			parts = append(parts, "nth="+strconv.Itoa(s.n))
		case stepParent:
			parts = append(parts, "..")
		case stepNext:
			parts = append(parts, "+")
		}
	}
	return strings.Join(parts, " >> ")
}

func (l *Locator) resolve(ctx context.Context) ([]*html.Node, error) {
	if err := l.frame.page.usable(ctx); err != nil {
		return nil, err
	}
	nodes := []*html.Node{l.frame.root}
	for _, s := range l.steps {
		switch s.kind {
		case stepSelect:
			sel, err := selector.Parse(s.raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", surface.ErrBadSelector, err)
			}
			seen := make(map[*html.Node]bool)
			var next []*html.Node
			for _, n := range nodes {
				for _, m := range sel.QueryAll(n) {
					if !seen[m] {
						seen[m] = true
						next = append(next, m)
					}
				}
			}
			nodes = inDocumentOrder(l.frame.root, seen, next)
		case stepNth:
			if s.n < 0 || s.n >= len(nodes) {
				nodes = nil
			} else {
				nodes = nodes[s.n : s.n+1]
			}
		case stepParent:
			if len(nodes) == 0 {
				break
			}
			p := nodes[0].Parent
			if p == nil || p.Type != html.ElementNode {
				nodes = nil
			} else {
				nodes = []*html.Node{p}
			}
		case stepNext:
			if len(nodes) == 0 {
				break
			}
			n := nodes[0].NextSibling
			for n != nil && n.Type != html.ElementNode {
				n = n.NextSibling
			}
			if n == nil {
				nodes = nil
			} else {
				nodes = []*html.Node{n}
			}
		}
	}
	if len(nodes) == 1 && nodes[0] == l.frame.root {
		return nil, nil
	}
	return nodes, nil
}

func inDocumentOrder(root *html.Node, set map[*html.Node]bool, nodes []*html.Node) []*html.Node {
	if len(nodes) < 2 {
		return nodes
	}
	out := make([]*html.Node, 0, len(nodes))
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if set[n] {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// first resolves the first match, charging timeout to the clock when there
// is none.
func (l *Locator) first(ctx context.Context, timeout time.Duration) (*html.Node, error) {
	nodes, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		l.frame.page.elapsed += timeout
		return nil, fmt.Errorf("%s: %w", l, surface.ErrTimeout)
	}
	return nodes[0], nil
}

// Count implements surface.Locator.
func (l *Locator) Count(ctx context.Context) (int, error) {
	nodes, err := l.resolve(ctx)
	return len(nodes), err
}

// Visible implements surface.Locator.
func (l *Locator) Visible(ctx context.Context) (bool, error) {
	nodes, err := l.resolve(ctx)
	if err != nil || len(nodes) == 0 {
		return false, err
	}
	return visible(nodes[0]), nil
}

// WaitVisible implements surface.Locator.
func (l *Locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	n, err := l.first(ctx, timeout)
	if err != nil {
		return err
	}
	if !visible(n) {
		l.frame.page.elapsed += timeout
		return fmt.Errorf("%s: %w", l, surface.ErrTimeout)
	}
	return nil
}

// Text implements surface.Locator with an innerText approximation.
func (l *Locator) Text(ctx context.Context, timeout time.Duration) (string, error) {
	n, err := l.first(ctx, timeout)
	if err != nil {
		return "", err
	}
	return innerText(n), nil
}

// HTML implements surface.Locator.
func (l *Locator) HTML(ctx context.Context, timeout time.Duration) (string, error) {
	n, err := l.first(ctx, timeout)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Attribute implements surface.Locator.
func (l *Locator) Attribute(ctx context.Context, name string, timeout time.Duration) (string, bool, error) {
	n, err := l.first(ctx, timeout)
	if err != nil {
		return "", false, err
	}
	return selector.Attr(n, name), selector.HasAttr(n, name), nil
}

// Checked implements surface.Locator.
func (l *Locator) Checked(ctx context.Context) (bool, error) {
	n, err := l.first(ctx, 0)
	if err != nil {
		return false, err
	}
	if selector.HasAttr(n, "checked") {
		return true, nil
	}
	return selector.Attr(n, "aria-checked") == "true", nil
}

// Click implements surface.Locator.
func (l *Locator) Click(ctx context.Context, opts surface.ClickOptions) error {
	p := l.frame.page
	n, err := l.first(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	if !opts.Force && !visible(n) {
		p.elapsed += opts.Timeout
		return fmt.Errorf("%s: %w", l, surface.ErrTimeout)
	}
	for i := range p.failures {
		f := &p.failures[i]
		if f.times == 0 || !matchesSelfOrAncestor(f.sel, n) {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		if surface.IsTimeout(f.err) {
			p.elapsed += opts.Timeout
		}
		return f.err
	}
	p.ClickLog = append(p.ClickLog, l.String())
	if n.Data == "input" && (selector.Attr(n, "type") == "checkbox" || selector.Attr(n, "type") == "radio") {
		if selector.HasAttr(n, "checked") {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	}
	for _, h := range p.clicks {
		if matchesSelfOrAncestor(h.sel, n) {
			h.fn(p)
		}
	}
	return nil
}

// BoundingBox implements surface.Locator.
func (l *Locator) BoundingBox(ctx context.Context) (surface.Box, bool, error) {
	nodes, err := l.resolve(ctx)
	if err != nil || len(nodes) == 0 {
		return surface.Box{}, false, err
	}
	b, ok := box(nodes[0])
	return b, ok, nil
}

// Describe implements surface.Locator.
func (l *Locator) Describe(ctx context.Context) (surface.ElementInfo, error) {
	n, err := l.first(ctx, 0)
	if err != nil {
		return surface.ElementInfo{}, err
	}
	info := surface.ElementInfo{
		Tag:      n.Data,
		ID:       selector.Attr(n, "id"),
		Classes:  strings.Fields(selector.Attr(n, "class")),
		Text:     innerText(n),
		Position: styleProp(n, "position"),
		Visible:  visible(n),
	}
	if info.Position == "" {
		info.Position = "static"
	}
	if z, err := strconv.Atoi(styleProp(n, "z-index")); err == nil {
		info.ZIndex = z
	}
	if b, ok := box(n); ok {
		info.Width, info.Height = b.Width, b.Height
	}
	info.Interactive = len(interactive.QueryAll(n))
	return info, nil
}

// ScrollIntoView implements surface.Locator.
func (l *Locator) ScrollIntoView(ctx context.Context) error {
	_, err := l.first(ctx, 0)
	return err
}

// ScrollToBottom implements surface.Locator and runs OnScroll handlers.
func (l *Locator) ScrollToBottom(ctx context.Context) error {
	n, err := l.first(ctx, 0)
	if err != nil {
		return err
	}
	p := l.frame.page
	for _, h := range p.scrolls {
		if matchesSelfOrAncestor(h.sel, n) {
			h.fn(p)
		}
	}
	return nil
}

func matchesSelfOrAncestor(sel *selector.Selector, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if sel.Match(n) {
			return true
		}
	}
	return false
}

var hiddenTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

func visible(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hiddenTags[n.Data] || selector.HasAttr(n, "hidden") {
			return false
		}
		if n.Data == "input" && selector.Attr(n, "type") == "hidden" {
			return false
		}
		if styleProp(n, "display") == "none" || styleProp(n, "visibility") == "hidden" {
			return false
		}
	}
	return true
}

func box(n *html.Node) (surface.Box, bool) {
	if !visible(n) {
		return surface.Box{}, false
	}
	if raw := selector.Attr(n, "data-box"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) == 4 {
			var v [4]float64
			for i, p := range parts {
				f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return surface.Box{}, false
				}
				v[i] = f
			}
			return surface.Box{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
		}
	}
	return surface.Box{Width: 800, Height: 100}, true
}

// styleProp reads one property from the inline style attribute.
func styleProp(n *html.Node, prop string) string {
	for _, decl := range strings.Split(selector.Attr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(strings.ToLower(k)) == prop {
			return strings.TrimSpace(strings.ToLower(v))
		}
	}
	return ""
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "section": true, "table": true, "tr": true, "ul": true, "label": true,
}

// innerText approximates HTMLElement.innerText: hidden subtrees are
// skipped, block elements break lines, blanks collapse.
func innerText(n *html.Node) string {
	if !visible(n) {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if hiddenTags[n.Data] || selector.HasAttr(n, "hidden") ||
				styleProp(n, "display") == "none" || styleProp(n, "visibility") == "hidden" {
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
