package sections

import (
	"sort"
	"strings"

	"github.com/hazyhaar/consentcrawl/consent"
)

// Merge collapses candidates that point at the same element. Within each
// content type, two sections overlap when they share an activation
// locator, a locator or a button label. Each cluster keeps its most
// confident member, ties going to the stronger discovery method; a
// survivor of a cluster of several becomes hybrid and lists the methods
// merged into it under "merged_from". Output follows the order in which
// content types and survivors first appeared.
func Merge(found []*consent.DiscoveredSection) []*consent.DiscoveredSection {
	var order []consent.ContentType
	groups := make(map[consent.ContentType][]*consent.DiscoveredSection)
	for _, s := range found {
		if s == nil {
			continue
		}
		if _, ok := groups[s.ContentType]; !ok {
			order = append(order, s.ContentType)
		}
		groups[s.ContentType] = append(groups[s.ContentType], s)
	}

	out := make([]*consent.DiscoveredSection, 0, len(found))
	for _, ct := range order {
		for _, cluster := range clusters(groups[ct]) {
			out = append(out, collapse(cluster))
		}
	}
	return out
}

// clusters groups overlapping sections transitively, keeping first-seen
// order.
func clusters(group []*consent.DiscoveredSection) [][]*consent.DiscoveredSection {
	parent := make([]int, len(group))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			if overlap(group[i], group[j]) {
				a, b := find(i), find(j)
				if a < b {
					parent[b] = a
				} else if b < a {
					parent[a] = b
				}
			}
		}
	}

	var roots []int
	byRoot := make(map[int][]*consent.DiscoveredSection)
	for i, s := range group {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], s)
	}
	sort.Ints(roots)
	out := make([][]*consent.DiscoveredSection, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}

func overlap(a, b *consent.DiscoveredSection) bool {
	if a.ActivationLocator != "" && a.ActivationLocator == b.ActivationLocator {
		return true
	}
	if a.Locator != "" && a.Locator == b.Locator {
		return true
	}
	at, bt := a.MetaString("button_text"), b.MetaString("button_text")
	return at != "" && strings.EqualFold(at, bt)
}

func collapse(cluster []*consent.DiscoveredSection) *consent.DiscoveredSection {
	best := cluster[0]
	for _, s := range cluster[1:] {
		if s.Confidence > best.Confidence ||
			(s.Confidence == best.Confidence && s.DiscoveryMethod.Priority() > best.DiscoveryMethod.Priority()) {
			best = s
		}
	}
	if len(cluster) == 1 {
		return best
	}
	from := make([]string, 0, len(cluster))
	for _, s := range cluster {
		from = append(from, string(s.DiscoveryMethod))
	}
	best.SetMeta("merged_from", from)
	best.DiscoveryMethod = consent.DiscoveryHybrid
	return best
}
