package cmp

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
	"github.com/hazyhaar/consentcrawl/surface/surfacetest"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"sourcepoint-cmp": "sourcepoint",
		"Sourcepoint_CMP": "sourcepoint",
		"trust_commander": "trust-commander",
		" OneTrust ":      "onetrust",
		"":                "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTimingFor(t *testing.T) {
	if got := TimingFor("sourcepoint-cmp"); got.ModalOpen != 1500*time.Millisecond || got.Animation != 1200*time.Millisecond {
		t.Errorf("sourcepoint timing = %+v", got)
	}
	if got := TimingFor("sfbx"); got.LazyLoad != 2000*time.Millisecond {
		t.Errorf("sfbx timing = %+v", got)
	}
	if got := TimingFor("unknown"); got != DefaultTiming {
		t.Errorf("default timing = %+v", got)
	}
	if IframeHost("SFBX") != "#appconsent > iframe" || IframeHost("didomi") != "" {
		t.Error("iframe host table")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	var ids []string
	for _, d := range r.Detectors() {
		ids = append(ids, d.ID())
	}
	want := []string{"sourcepoint", "onetrust", "didomi", "orejime", "trust-commander", "sfbx", "lemonde"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("detector %d = %s, want %s", i, ids[i], want[i])
		}
	}
	if d, ok := r.Lookup("trust_commander"); !ok || d.ID() != "trust-commander" {
		t.Error("lookup trust_commander")
	}
	if _, ok := r.Lookup(""); ok {
		t.Error("empty id found")
	}
	var nilReg *Registry
	if len(nilReg.Detectors()) != 0 {
		t.Error("nil registry not empty")
	}
}

const onetrustPage = `<body>
<div id="onetrust-consent-sdk">
  <div id="onetrust-banner-sdk">
    <p>We use cookies</p>
    <button id="onetrust-pc-btn-handler">Cookie settings</button>
    <button id="onetrust-reject-all-handler">Reject All</button>
    <button id="onetrust-accept-btn-handler">Accept All Cookies</button>
  </div>
  <div id="onetrust-pc-sdk" style="display:none"><p>Privacy preference center</p></div>
</div></body>`

func TestSpec_OneTrust(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://shop.example/", onetrustPage)
	p := surface.NewProber()
	d, _ := DefaultRegistry().Lookup("onetrust")

	hit, ok := d.Banner(ctx, p, page)
	if !ok {
		t.Fatal("banner not found")
	}
	if hit.InIframe || hit.Scope != surface.Scope(page) {
		t.Errorf("hit = %+v", hit)
	}
	btns := d.(ButtonExtractor).Buttons(ctx, p, hit)
	roles := map[consent.ButtonRole]string{}
	texts := map[consent.ButtonRole]string{}
	for _, b := range btns {
		roles[b.Role] = b.Selector
		texts[b.Role] = b.Text
	}
	if roles[consent.RoleAcceptAll] != "#onetrust-accept-btn-handler" ||
		roles[consent.RoleRejectAll] != "#onetrust-reject-all-handler" ||
		roles[consent.RoleSettings] != "#onetrust-pc-btn-handler" {
		t.Errorf("buttons = %+v", btns)
	}
	if texts[consent.RoleAcceptAll] != "Accept All Cookies" || texts[consent.RoleRejectAll] != "Reject All" ||
		texts[consent.RoleSettings] != "Cookie settings" {
		t.Errorf("texts = %v", texts)
	}

	if _, ok := d.Modal(ctx, p, page, true); ok {
		t.Error("hidden preference center reported as modal")
	}
	page.Show("#onetrust-pc-sdk")
	if hit, ok := d.Modal(ctx, p, page, true); !ok || hit.Container.String() != "#onetrust-pc-sdk >> nth=0" {
		t.Errorf("preference center not found: %+v", hit)
	}
	if p.Failed() {
		t.Fatal(p.Err())
	}
}

func TestSpec_ButtonTextFromPage(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://boutique.example/", `<body>
<div id="onetrust-consent-sdk">
  <div id="onetrust-banner-sdk">
    <p>Nous utilisons des cookies</p>
    <button id="onetrust-accept-btn-handler">  Tout
      accepter </button>
    <button id="onetrust-reject-all-handler" aria-label="Continuer sans accepter"></button>
    <button id="onetrust-pc-btn-handler"><svg></svg></button>
  </div>
</div></body>`)
	p := surface.NewProber()
	d, _ := DefaultRegistry().Lookup("onetrust")
	hit, ok := d.Banner(ctx, p, page)
	if !ok {
		t.Fatal("banner not found")
	}

	texts := map[consent.ButtonRole]string{}
	for _, b := range d.(ButtonExtractor).Buttons(ctx, p, hit) {
		texts[b.Role] = b.Text
	}
	want := map[consent.ButtonRole]string{
		consent.RoleAcceptAll: "Tout accepter",
		consent.RoleRejectAll: "Continuer sans accepter",
		consent.RoleSettings:  "Manage",
	}
	for role, w := range want {
		if texts[role] != w {
			t.Errorf("%s text = %q, want %q", role, texts[role], w)
		}
	}
}

func TestSpec_SourcepointFrame(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://news.example/", `<body><iframe id="sp_message_iframe_9"></iframe></body>`)
	page.AddFrame("sp_message_iframe_9", "https://cdn.privacy-mgmt.com/index.html",
		`<body><div class="message-stack"><p>We care about your privacy</p><button title="Accept">Accept</button></div></body>`)
	p := surface.NewProber()
	d, _ := DefaultRegistry().Lookup("sourcepoint-cmp")

	hit, ok := d.Banner(ctx, p, page)
	if !ok {
		t.Fatal("sourcepoint banner not found")
	}
	if !hit.InIframe || hit.IframeSrc != "https://cdn.privacy-mgmt.com/index.html" {
		t.Errorf("hit = %+v", hit)
	}
	if n, _ := hit.Container.Locate("button").Count(ctx); n != 1 {
		t.Errorf("buttons in frame container = %d", n)
	}
}

func TestSpec_NoMatch(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://plain.example/", `<body><p>Hello</p></body>`)
	p := surface.NewProber()
	for _, d := range DefaultRegistry().Detectors() {
		if _, ok := d.Banner(ctx, p, page); ok {
			t.Errorf("%s matched a page without a banner", d.ID())
		}
	}
	if p.Failed() {
		t.Errorf("prober failed: %v", p.Err())
	}
}
