// Package horosafe guards what crosses the service boundary: audit targets
// must be public http(s) URLs, and files written for a domain must stay
// inside their output directory.
package horosafe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a derived path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

// ErrNoHost is returned when a URL has no host name.
var ErrNoHost = errors.New("horosafe: URL has no host")

// NormalizeURL trims raw and adds an https scheme to a bare host such as
// "example.com/path". It checks the scheme and host but does not resolve
// anything.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoHost
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return "", ErrNoHost
	}
	return u.String(), nil
}

// ValidateURL normalizes rawURL and rejects targets that are, or resolve
// to, private or loopback addresses. A host that does not resolve is let
// through; the browser reports the failure when it navigates.
func ValidateURL(ctx context.Context, rawURL string) (string, error) {
	norm, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(norm)
	host := u.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return "", ErrSSRF
		}
		return norm, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return "", ErrSSRF
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return norm, nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return "", ErrSSRF
		}
	}
	return norm, nil
}

// SafeName turns a domain into a file name stem: every byte outside
// [A-Za-z0-9_-] becomes '_'.
func SafeName(domain string) string {
	if domain == "" {
		return "unknown"
	}
	b := []byte(domain)
	for i, c := range b {
		if !isNameByte(c) {
			b[i] = '_'
		}
	}
	return string(b)
}

// OutputPath returns base/SafeName(domain)+ext, checked to stay under base.
func OutputPath(base, domain, ext string) (string, error) {
	return SafePath(base, SafeName(domain)+ext)
}

// SafePath joins base and name and verifies the result stays under base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	root := filepath.Clean(base)
	p := filepath.Join(root, filepath.Clean("/"+name))
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return p, nil
}

func isNameByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '_' || c == '-'
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
