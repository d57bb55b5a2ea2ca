package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/consentcrawl/selector"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.CMPs) < 30 {
		t.Errorf("cmps = %d, want at least 30", len(c.CMPs))
	}
	if c.CMPs[0].ID != "onetrust" {
		t.Errorf("first cmp = %q", c.CMPs[0].ID)
	}
	if got := c.Brand("didomi"); got != "Didomi" {
		t.Errorf("brand = %q", got)
	}
	if len(c.GeneralModalSelectors()) == 0 {
		t.Error("no general modal selectors")
	}
	if len(c.ModalSelectors("")) != 0 {
		t.Error("empty cmp should have no modal selectors")
	}
}

func TestDefault_SelectorsParse(t *testing.T) {
	c := MustDefault()
	check := func(where, sel string) {
		t.Helper()
		if sel == "" {
			return
		}
		if _, err := selector.Parse(sel); err != nil {
			t.Errorf("%s: %v", where, err)
		}
	}
	for _, m := range c.CMPs {
		for _, a := range m.Actions {
			check(m.ID, a.Value)
			for _, v := range a.Values {
				check(m.ID, v)
			}
		}
	}
	for k, list := range c.Modals {
		for _, s := range list {
			check("modals."+k, s)
		}
	}
	for k, p := range c.Categories {
		for _, s := range []string{p.Container, p.Item, p.Name, p.Description, p.ExpandButton, p.RequiredMarker, p.Toggle} {
			check("categories."+k, s)
		}
	}
	for k, p := range c.Vendors {
		for _, s := range []string{p.TabButton, p.VendorLink, p.Container, p.Item, p.Name, p.Purposes, p.LegitimateInterest, p.PrivacyLink} {
			check("vendors."+k, s)
		}
	}
	for k, p := range c.Cookies {
		for _, s := range []string{p.TabButton, p.Container, p.Item, p.Name, p.Domain, p.Duration, p.Description} {
			check("cookies."+k, s)
		}
	}
	for k, hints := range c.Sections {
		for _, h := range hints {
			check("sections."+k, h.Locator)
			check("sections."+k, h.Activation)
		}
	}
	for _, s := range c.GenericBannerSelectors {
		check("generic_banner_selectors", s)
	}
}

func TestActionValueForms(t *testing.T) {
	c := MustDefault()
	var sp *CMP
	for i := range c.CMPs {
		if c.CMPs[i].ID == "sourcepoint-cmp" {
			sp = &c.CMPs[i]
		}
	}
	if sp == nil {
		t.Fatal("sourcepoint descriptor missing")
	}
	if sp.Actions[0].Type != ActionIframe || sp.Actions[0].Value == "" {
		t.Errorf("iframe action = %+v", sp.Actions[0])
	}
	if sp.Actions[1].Type != ActionCSSSelectorList || len(sp.Actions[1].Values) < 2 {
		t.Errorf("list action = %+v", sp.Actions[1])
	}
}

func TestPatternOrder(t *testing.T) {
	c := MustDefault()
	if got := c.VendorPatterns("onetrust"); len(got) != 3 || got[0].TabButton == "" {
		t.Errorf("onetrust vendor patterns = %d", len(got))
	}
	if got := c.VendorPatterns("unknown-cmp"); len(got) != 2 {
		t.Errorf("unknown vendor patterns = %d, want iab_tcf + generic", len(got))
	}
	if got := c.CategoryPatterns(""); len(got) != 1 {
		t.Errorf("generic category patterns = %d", len(got))
	}
	if got := c.SectionHints("orejime"); len(got) != 1 || got[0].Confidence != 0.95 {
		t.Errorf("orejime hints = %+v", got)
	}
	if got := c.SectionHints("didomi"); got[0].Confidence != 0.9 || got[0].Type != "list" {
		t.Errorf("didomi defaults = %+v", got[0])
	}
}

func TestKeywords(t *testing.T) {
	c := MustDefault()
	got := c.Keywords([]string{"en", "xx", "fr"})
	if len(got) == 0 || got[0] != "cookies" {
		t.Fatalf("keywords = %v", got)
	}
	seen := map[string]int{}
	for _, k := range got {
		seen[k]++
	}
	if seen["cookies"] != 1 {
		t.Errorf("duplicate keyword: %v", got)
	}
	if seen["consentement"] != 1 {
		t.Errorf("french keywords missing: %v", got)
	}
}

func TestIsTracking(t *testing.T) {
	c := MustDefault()
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"stats.g.doubleclick.net", true},
		{"WWW.GOOGLE-ANALYTICS.COM", true},
		{"notdoubleclick.net", false},
		{"example.com", false},
	}
	for _, tt := range tests {
		if got := c.IsTracking(tt.host); got != tt.want {
			t.Errorf("IsTracking(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestLoad_FileOverridesAndFills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	data := `cmps:
  - id: acme
    brand: Acme Consent
    actions:
      - type: css-selector
        value: "#acme-accept"
tracking_domains:
  - ".Tracker.example"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.CMPs) != 1 || c.Brand("acme") != "Acme Consent" {
		t.Errorf("cmps = %+v", c.CMPs)
	}
	if !c.IsTracking("px.tracker.example") || c.IsTracking("doubleclick.net") {
		t.Error("tracking list not replaced")
	}
	if len(c.GeneralModalSelectors()) == 0 {
		t.Error("modal table not filled from defaults")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_RejectsUnknownAction(t *testing.T) {
	dir := t.TempDir()
	data := "cmps:\n  - id: bad\n    actions:\n      - type: click\n        value: x\n"
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error")
	}
}
