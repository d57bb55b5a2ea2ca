package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/consentcrawl/consent"
)

func detailed() consent.AuditResult {
	off := false
	return consent.AuditResult{
		URL:                "https://news.example/",
		DomainName:         "news.example",
		ExtractionDatetime: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		BannerInfo: consent.BannerInfo{
			Detected: true, CMPType: "didomi", CMPBrand: "Didomi", DetectionMethod: consent.MethodCMPSpecific,
			BannerHTML: `<div><p>We use <strong>cookies</strong>.</p><a href="https://news.example/privacy">Privacy</a></div>`,
			BannerText: "We use cookies. Privacy",
			Buttons: []consent.ButtonInfo{
				{Text: "Accept all", Role: consent.RoleAcceptAll, Selector: "#didomi-notice-agree-button", IsVisible: true},
				{Text: "Settings | more", Role: consent.RoleSettings, Selector: "#didomi-notice-learn-more-button", IsVisible: true},
			},
		},
		Categories: []consent.CategoryInfo{
			{Name: "Necessary", IsRequired: true},
			{Name: "Advertising", DefaultEnabled: &off, HasToggle: true, Description: "Personalised ads"},
		},
		Vendors:           []consent.VendorInfo{{Name: "Criteo", Purposes: []string{"Ads", "Measure"}}},
		Cookies:           []consent.CookieDetail{{Name: "_ga", Domain: ".google-analytics.com", Duration: "2 years"}},
		ThirdPartyDomains: []string{"sdk.privacy-center.org", "www.google-analytics.com"},
		TrackingDomains:   []string{"www.google-analytics.com"},
		UIContext: consent.ConsentUIContext{
			Navigation: &consent.NavigationReport{
				FinalState: consent.StateExtractionComplete, TotalDurationMS: 1200,
				Attempts: []consent.NavigationAttempt{{Strategy: "standard", Success: true}},
			},
		},
		Status:     consent.StatusSuccessDetailed,
		StatusMsg:  "detailed extraction: 2 categories, 1 vendors, 1 cookies",
		DurationMS: 9400,
	}
}

func TestMarkdown_Detailed(t *testing.T) {
	md := New().Markdown(detailed())
	for _, want := range []string{
		"# Consent audit: news.example",
		"- Status: **success_detailed** (detailed extraction",
		"- Duration: 9.4s",
		"- CMP: Didomi",
		"> We use **cookies**.",
		"[Privacy](https://news.example/privacy)",
		"| Settings \\| more | settings | yes |",
		"## Categories (2)",
		"| Necessary | yes | - | - |",
		"| Advertising | no | off | Personalised ads |",
		"| Criteo | Ads, Measure | - | - |",
		"| `_ga` | .google-analytics.com | 2 years | - |",
		"### Tracking domains (1)",
		"- Navigation: EXTRACTION_COMPLETE in 1200ms",
		"  - standard: ok",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report lacks %q\n%s", want, md)
		}
	}
}

func TestMarkdown_NoBanner(t *testing.T) {
	r := consent.AuditResult{
		URL: "https://quiet.example/", DomainName: "quiet.example",
		BannerInfo: consent.NotDetected(), Status: consent.StatusFailed, StatusMsg: "no consent banner detected",
	}
	md := New().Markdown(r)
	if !strings.Contains(md, "No consent banner detected.") {
		t.Fatalf("report:\n%s", md)
	}
	if strings.Contains(md, "## Categories") || strings.Contains(md, "## Diagnostics") {
		t.Fatalf("empty sections rendered:\n%s", md)
	}
	if !strings.Contains(md, "### Third-party domains (0)\n\nNone.") {
		t.Fatalf("network section:\n%s", md)
	}
}

func TestMarkdown_FallsBackToText(t *testing.T) {
	r := detailed()
	r.BannerInfo.BannerHTML = ""
	md := New().Markdown(r)
	if !strings.Contains(md, "> We use cookies. Privacy") {
		t.Fatalf("report:\n%s", md)
	}
}

func TestRenderBatch(t *testing.T) {
	failed := consent.AuditResult{DomainName: "quiet.example", BannerInfo: consent.NotDetected(), Status: consent.StatusFailed}
	var buf bytes.Buffer
	if err := New().RenderBatch(&buf, []consent.AuditResult{detailed(), failed}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"| news.example | success_detailed | didomi | 2 | 1 | 1 | 1 |",
		"| quiet.example | failed | - | 0 | 0 | 0 | 0 |",
		"# Consent audit: quiet.example",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("batch report lacks %q", want)
		}
	}
}
