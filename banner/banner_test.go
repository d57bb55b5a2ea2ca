package banner

import (
	"context"
	"testing"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/surface"
	"github.com/hazyhaar/consentcrawl/surface/surfacetest"
)

func newDetector(t *testing.T) *Detector {
	t.Helper()
	return New(catalog.MustDefault(), cmp.DefaultRegistry(), consent.Defaults(), nil)
}

func TestDetect_NoBanner(t *testing.T) {
	page := surfacetest.NewPage(t, "https://plain.example/", `<body><h1>Welcome</h1><p>Hello world</p></body>`)
	info, err := newDetector(t).Detect(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	if info.Detected || info.DetectionMethod != consent.MethodNone {
		t.Errorf("info = %+v", info)
	}
	if info.Buttons == nil {
		t.Error("buttons should be an empty list")
	}
}

const dialogPage = `<body>
<main><p>Article</p></main>
<div role="dialog"><p>We use cookies to improve your experience.</p>
  <button>Accept all</button><button>Reject all</button></div>
</body>`

func TestDetect_GenericDialog(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://shop.example/", dialogPage)
	info, err := newDetector(t).Detect(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Detected || info.DetectionMethod != consent.MethodGeneric {
		t.Fatalf("info = %+v", info)
	}
	if n := len(info.ButtonsWithRole(consent.RoleAcceptAll)); n != 1 {
		t.Errorf("accept_all buttons = %d", n)
	}
	if n := len(info.ButtonsWithRole(consent.RoleRejectAll)); n != 1 {
		t.Errorf("reject_all buttons = %d", n)
	}
	if info.Container() == nil || info.Scope() == nil {
		t.Error("missing live handles")
	}
	if info.InIframe || info.InShadowDOM {
		t.Errorf("flags = %+v", info)
	}
}

func TestDetect_GenericNeedsConsentText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		detected bool
	}{
		{"newsletter dialog", `<body><main><p>Article</p></main>
<div role="dialog"><h2>Stay in the loop</h2><p>Subscribe to our newsletter for weekly deals.</p>
  <button>Subscribe</button><button>No thanks</button></div></body>`, false},
		{"login modal", `<body><div aria-modal="true"><p>Sign in to continue reading.</p>
  <button>Sign in</button></div></body>`, false},
		{"cookie dialog", dialogPage, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := surfacetest.NewPage(t, "https://shop.example/", tt.html)
			info, err := newDetector(t).Detect(context.Background(), page)
			if err != nil {
				t.Fatal(err)
			}
			if info.Detected != tt.detected {
				t.Fatalf("detected = %v, info = %+v", info.Detected, info)
			}
			if !tt.detected && info.DetectionMethod != consent.MethodNone {
				t.Errorf("method = %s", info.DetectionMethod)
			}
		})
	}
}

func TestDetect_Idempotent(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://shop.example/", dialogPage)
	d := newDetector(t)
	a, err := d.Detect(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Detect(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if a.Detected != b.Detected || a.DetectionMethod != b.DetectionMethod ||
		a.CMPType != b.CMPType || a.BannerText != b.BannerText || len(a.Buttons) != len(b.Buttons) {
		t.Errorf("first = %+v\nsecond = %+v", a, b)
	}
	for i := range a.Buttons {
		if a.Buttons[i] != b.Buttons[i] {
			t.Errorf("button %d: %+v != %+v", i, a.Buttons[i], b.Buttons[i])
		}
	}
	if len(page.ClickLog) != 0 {
		t.Errorf("detection clicked: %v", page.ClickLog)
	}
}

func TestDetect_OneTrust(t *testing.T) {
	page := surfacetest.NewPage(t, "https://news.example/", `<body>
<div id="onetrust-consent-sdk">
  <div id="onetrust-banner-sdk" style="position:fixed">
    <p>We and our partners use cookies.</p>
    <button id="onetrust-pc-btn-handler">Cookie Settings</button>
    <button id="onetrust-reject-all-handler">Reject All</button>
    <button id="onetrust-accept-btn-handler">Accept All Cookies</button>
  </div>
</div></body>`)
	info, err := newDetector(t).Detect(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	if info.CMPType != "onetrust" || info.CMPBrand != "OneTrust" || info.DetectionMethod != consent.MethodHardcodedDetector {
		t.Fatalf("info = %+v", info)
	}
	want := map[consent.ButtonRole]string{
		consent.RoleAcceptAll: "#onetrust-accept-btn-handler",
		consent.RoleRejectAll: "#onetrust-reject-all-handler",
		consent.RoleSettings:  "#onetrust-pc-btn-handler",
	}
	for role, sel := range want {
		got := info.ButtonsWithRole(role)
		if len(got) != 1 || got[0].Selector != sel {
			t.Errorf("%s buttons = %+v", role, got)
		}
	}
	if info.BannerText == "" || info.BannerHTML == "" {
		t.Error("banner content not captured")
	}
}

func TestDetect_CatalogDescriptor(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://blog.example/", `<body>
<div id="CybotCookiebotDialog" style="position:fixed;z-index:1000">
  <div class="body"><p>This website uses cookies.</p>
    <button id="CybotCookiebotDialogBodyButtonDecline">Deny</button>
    <button id="CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll">Allow all</button>
  </div>
</div></body>`)
	info, err := newDetector(t).Detect(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if info.CMPType != "cookiebot" || info.CMPBrand != "Cookiebot" || info.DetectionMethod != consent.MethodCMPSpecific {
		t.Fatalf("info = %+v", info)
	}
	if len(info.Buttons) != 2 || !info.HasRole(consent.RoleAcceptAll) || !info.HasRole(consent.RoleRejectAll) {
		t.Errorf("buttons = %+v", info.Buttons)
	}
	p := surface.NewProber()
	if el, ok := p.Describe(ctx, info.Container()); !ok || el.ID != "CybotCookiebotDialog" {
		t.Errorf("container = %+v", el)
	}
}

func TestDetect_TextBased(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://mairie.example/", `<body>
<header><a href="/">Accueil</a></header>
<div class="notice" style="position:fixed">
  <p>Nous utilisons des cookies pour mesurer l'audience.</p>
  <button>Accepter</button><button>Refuser</button>
</div></body>`)
	info, err := newDetector(t).Detect(ctx, page)
	if err != nil {
		t.Fatal(err)
	}
	if info.DetectionMethod != consent.MethodTextBased {
		t.Fatalf("method = %s", info.DetectionMethod)
	}
	if !info.HasRole(consent.RoleAcceptAll) || !info.HasRole(consent.RoleRejectAll) {
		t.Errorf("buttons = %+v", info.Buttons)
	}
	p := surface.NewProber()
	if el, ok := p.Describe(ctx, info.Container()); !ok || len(el.Classes) != 1 || el.Classes[0] != "notice" {
		t.Errorf("container = %+v", el)
	}
}

func TestDetect_ChildFrame(t *testing.T) {
	page := surfacetest.NewPage(t, "https://maps.example/", `<body><iframe name="cmpframe"></iframe></body>`)
	page.AddFrame("cmpframe", "https://consent.vendor.example/notice",
		`<body><div role="dialog"><p>Your privacy matters</p><button>Agree</button></div></body>`)
	info, err := newDetector(t).Detect(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Detected || !info.InIframe || info.IframeSrc != "https://consent.vendor.example/notice" {
		t.Fatalf("info = %+v", info)
	}
	if info.DetectionMethod != consent.MethodGeneric {
		t.Errorf("method = %s", info.DetectionMethod)
	}
}

func TestDetect_ShadowRoot(t *testing.T) {
	page := surfacetest.NewPage(t, "https://app.example/", `<body><consent-banner></consent-banner></body>`)
	page.Shadow = []surface.ShadowRoot{
		{HostTag: "x-nav", Text: "Menu"},
		{HostTag: "consent-banner", HTML: "<p>We use cookies</p><script>x()</script>", Text: "We use cookies to personalise content."},
	}
	info, err := newDetector(t).Detect(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	if !info.InShadowDOM || info.CMPType != ShadowCMPType || info.DetectionMethod != consent.MethodShadowDOM {
		t.Fatalf("info = %+v", info)
	}
	if len(info.Buttons) != 0 || info.Container() != nil {
		t.Errorf("shadow banner should have no buttons or handle: %+v", info)
	}
}

func TestDetect_ShadowDisabled(t *testing.T) {
	page := surfacetest.NewPage(t, "https://app.example/", `<body></body>`)
	page.Shadow = []surface.ShadowRoot{{HostTag: "consent-banner", Text: "We use cookies to personalise content."}}
	cfg := consent.Defaults()
	off := false
	cfg.SupportShadowDOM = &off
	info, err := New(catalog.MustDefault(), cmp.DefaultRegistry(), cfg, nil).Detect(context.Background(), page)
	if err != nil {
		t.Fatal(err)
	}
	if info.Detected {
		t.Errorf("info = %+v", info)
	}
}

func TestDetect_ClosedPage(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", dialogPage)
	page.Close()
	info, err := newDetector(t).Detect(context.Background(), page)
	if err == nil {
		t.Fatal("expected an error for a closed page")
	}
	if info.Detected {
		t.Errorf("info = %+v", info)
	}
}

func TestFindContainer(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://x.example/", `<body>
<div id="outer">
  <div id="wrap" style="z-index:100">
    <div id="inner"><span>Cookie consent</span>
      <button id="ok">OK</button><button id="no">No</button></div>
  </div>
</div>
<div id="flat"><div><div><p><a href="#" id="deep">Privacy</a></p></div></div></div>
</body>`)
	p := surface.NewProber()

	got := FindContainer(ctx, p, page.Locate("#ok").First(), MaxContainerLevels)
	if el, _ := p.Describe(ctx, got); el.ID != "wrap" {
		t.Errorf("overlay ancestor = %q, want wrap", el.ID)
	}

	got = FindContainer(ctx, p, page.Locate("#inner").First(), 0)
	if el, _ := p.Describe(ctx, got); el.ID != "inner" {
		t.Errorf("unpositioned start = %q, want inner", el.ID)
	}

	got = FindContainer(ctx, p, page.Locate("#deep").First(), MaxContainerLevels)
	if el, _ := p.Describe(ctx, got); el.Tag != "div" || el.ID != "" {
		t.Errorf("fallback = %+v, want the div three levels up", el)
	}
	if p.Failed() {
		t.Fatal(p.Err())
	}
}
