package audit

import (
	"net"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/consentcrawl/catalog"
)

// RequestHosts returns the distinct lower-cased hosts of the http(s)
// request URLs, in first-seen order.
func RequestHosts(requests []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range requests {
		u, err := url.Parse(r)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		h := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Registrable returns the registrable domain (eTLD+1) of host, or host
// itself for IP addresses and names the public suffix list cannot split.
func Registrable(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// ThirdPartyDomains returns the hosts whose registrable domain differs from
// the audited site's, sorted and without duplicates.
func ThirdPartyDomains(site string, hosts []string) []string {
	own := Registrable(site)
	out := []string{}
	for _, h := range hosts {
		if h == "" || Registrable(h) == own {
			continue
		}
		out = append(out, strings.ToLower(h))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TrackingDomains returns the hosts that are, or are subdomains of, a
// blocklisted tracking domain, sorted and without duplicates.
func TrackingDomains(cat *catalog.Catalog, hosts []string) []string {
	out := []string{}
	if cat == nil {
		return out
	}
	for _, h := range hosts {
		if cat.IsTracking(h) {
			out = append(out, strings.ToLower(h))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
