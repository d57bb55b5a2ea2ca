package horosafe

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"https://example.com/", "https://example.com/", false},
		{"  example.com/news ", "https://example.com/news", false},
		{"http://shop.example:8080/a?b=c", "http://shop.example:8080/a?b=c", false},
		{"ftp://evil.com/data", "", true},
		{"javascript:alert(1)", "", true},
		{"", "", true},
		{"https:///path", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/out", "abc/def", false},
		{"/data/out", "../etc/passwd", true},
		{"/data/out", "abc/../def", true},
		{"/data/out", "abc/../../outside", true},
		{"/data/out", "example_com.json", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateURL(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://93.184.216.34/", nil},
		{"ftp://evil.com/data", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://10.0.0.1/internal", ErrSSRF},
		{"http://192.168.1.1/api", ErrSSRF},
		{"http://[::1]/api", ErrSSRF},
		{"http://172.16.0.1/secret", ErrSSRF},
		{"http://localhost:3000/", ErrSSRF},
	}
	for _, tt := range tests {
		_, err := ValidateURL(ctx, tt.url)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) error=%v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestSafeName(t *testing.T) {
	for in, want := range map[string]string{
		"example.com":         "example_com",
		"shop.example.co.uk":  "shop_example_co_uk",
		"news-site_1.fr:8080": "news-site_1_fr_8080",
		"../../etc":           "______etc",
		"":                    "unknown",
	} {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	got, err := OutputPath("/data/out", "example.com", ".json")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/data/out", "example_com.json") {
		t.Errorf("OutputPath = %q", got)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
		{"fd00::1", true},
	}
	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
