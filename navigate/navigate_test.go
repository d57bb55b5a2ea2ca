package navigate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/modal"
	"github.com/hazyhaar/consentcrawl/surface"
	"github.com/hazyhaar/consentcrawl/surface/surfacetest"
)

const bannerPage = `<body>
<div role="dialog" id="banner"><p>We use cookies to improve your visit.</p>
  <button id="manage">Manage preferences</button>
  <button id="accept">Accept</button>
</div>
<div class="cookie-modal" id="prefs" style="display:none">
  <h2>Cookie preferences</h2><p>Choose which purposes you allow.</p>
</div>
</body>`

func newMachine() *Machine {
	return New(modal.New(catalog.MustDefault(), cmp.DefaultRegistry(), nil), nil)
}

func bannerOn(page *surfacetest.Page, scope surface.Scope) consent.BannerInfo {
	info := consent.BannerInfo{
		Detected: true,
		Buttons: []consent.ButtonInfo{
			{Text: "Manage preferences", Selector: "#manage", Role: consent.RoleSettings, IsVisible: true},
			{Text: "Accept", Selector: "#accept", Role: consent.RoleAcceptAll, IsVisible: true},
		},
		DetectionMethod: consent.MethodGeneric,
	}
	return info.WithHandles(scope.Locate("[role='dialog']").First(), scope)
}

func TestExecute_OpensModal(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
	page.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })

	found, report, err := newMachine().Execute(ctx, page, bannerOn(page, page))
	if err != nil {
		t.Fatal(err)
	}
	if found == nil {
		t.Fatalf("no modal: %+v", report)
	}
	if report.FinalState != consent.StateModalReady {
		t.Errorf("final state = %s", report.FinalState)
	}
	if len(report.Attempts) != 1 || report.Attempts[0].Strategy != StrategyDirect || !report.Attempts[0].Success {
		t.Errorf("attempts = %+v", report.Attempts)
	}
	want := []string{"BANNER_DETECTED -> MODAL_OPENING", "MODAL_OPENING -> MODAL_READY"}
	if strings.Join(report.Transitions, "|") != strings.Join(want, "|") {
		t.Errorf("transitions = %v", report.Transitions)
	}

	Complete(&report)
	if report.FinalState != consent.StateExtractionComplete || len(report.Transitions) != 3 {
		t.Errorf("after Complete: %+v", report)
	}
}

func TestExecute_NoModalAfterClick(t *testing.T) {
	ctx := context.Background()
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)

	found, report, err := newMachine().Execute(ctx, page, bannerOn(page, page))
	if err != nil {
		t.Fatal(err)
	}
	if found != nil {
		t.Fatalf("found %s", found)
	}
	if report.FinalState != consent.StateFailed {
		t.Errorf("final state = %s", report.FinalState)
	}
	if len(report.Attempts) == 0 {
		t.Fatal("no attempts recorded")
	}
	tried := map[string]bool{}
	for _, a := range report.Attempts {
		if a.Success {
			t.Errorf("attempt %s succeeded", a.Strategy)
		}
		tried[a.Strategy] = true
	}
	for _, s := range []string{StrategyDirect, StrategyButtonText, StrategyRoleText, StrategyGenericTxt} {
		if !tried[s] {
			t.Errorf("strategy %s not recorded: %+v", s, report.Attempts)
		}
	}
	if report.Attempts[0].ErrorMsg != errNoModal.Error() {
		t.Errorf("direct attempt error = %q", report.Attempts[0].ErrorMsg)
	}
	if len(page.ClickLog) == 0 {
		t.Error("settings button never clicked")
	}
}

func TestExecute_NoSettingsButton(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
	banner := bannerOn(page, page)
	banner.Buttons = banner.Buttons[1:]

	found, report, err := newMachine().Execute(context.Background(), page, banner)
	if err != nil || found != nil {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if report.FinalState != consent.StateFailed || len(report.Attempts) != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(page.ClickLog) != 0 {
		t.Errorf("clicked %v", page.ClickLog)
	}
}

func TestExecute_InfoButtonFallback(t *testing.T) {
	banner := consent.BannerInfo{Buttons: []consent.ButtonInfo{
		{Text: "Accept", Role: consent.RoleAcceptAll},
		{Text: "Learn more", Role: consent.RoleInfo, Selector: "#more"},
	}}
	btn, ok := SettingsButton(banner)
	if !ok || btn.Selector != "#more" {
		t.Errorf("got %+v, %v", btn, ok)
	}
}

func TestExecute_RetriesClickTimeout(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
	page.FailClick("#manage", surface.ErrTimeout, 2)
	page.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })

	found, report, err := newMachine().Execute(context.Background(), page, bannerOn(page, page))
	if err != nil || found == nil {
		t.Fatalf("found=%v err=%v report=%+v", found, err, report)
	}
	if len(report.Attempts) != 1 || !report.Attempts[0].Success {
		t.Errorf("attempts = %+v", report.Attempts)
	}
}

func TestExecute_ClickErrorAbortsStrategy(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
	page.FailClick("#manage", errors.New("element is covered"), 1)
	page.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })

	found, report, err := newMachine().Execute(context.Background(), page, bannerOn(page, page))
	if err != nil || found == nil {
		t.Fatalf("found=%v err=%v report=%+v", found, err, report)
	}
	if len(report.Attempts) != 2 {
		t.Fatalf("attempts = %+v", report.Attempts)
	}
	if a := report.Attempts[0]; a.Strategy != StrategyDirect || a.Success || !strings.Contains(a.ErrorMsg, "covered") {
		t.Errorf("first attempt = %+v", a)
	}
	if a := report.Attempts[1]; a.Strategy != StrategyButtonText || !a.Success {
		t.Errorf("second attempt = %+v", a)
	}
}

func TestExecute_ClickRetryByError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{"detached", surface.ErrDetached, 1},
		{"not found", surface.ErrNotFound, 2},
		{"bad selector", surface.ErrBadSelector, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
			page.FailClick("#manage", tt.err, 1)
			page.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })

			found, report, err := newMachine().Execute(context.Background(), page, bannerOn(page, page))
			if err != nil || found == nil {
				t.Fatalf("found=%v err=%v report=%+v", found, err, report)
			}
			if len(report.Attempts) != tt.attempts {
				t.Fatalf("attempts = %+v", report.Attempts)
			}
			first := report.Attempts[0]
			if first.Strategy != StrategyDirect {
				t.Errorf("first attempt = %+v", first)
			}
			if tt.attempts == 1 {
				if !first.Success {
					t.Errorf("detached click should be retried: %+v", first)
				}
				return
			}
			if first.Success || !strings.Contains(first.ErrorMsg, tt.err.Error()) {
				t.Errorf("first attempt = %+v", first)
			}
			if !report.Attempts[1].Success {
				t.Errorf("second attempt = %+v", report.Attempts[1])
			}
		})
	}
}

func TestExecute_BannerInFrame(t *testing.T) {
	page := surfacetest.NewPage(t, "https://news.example/", `<body><iframe name="cmp"></iframe></body>`)
	frame := page.AddFrame("cmp", "https://cmp.example/notice", bannerPage)
	page.OnClick("#manage", func(*surfacetest.Page) { frame.Show("#prefs") })

	found, report, err := newMachine().Execute(context.Background(), page, bannerOn(page, frame))
	if err != nil || found == nil {
		t.Fatalf("found=%v err=%v report=%+v", found, err, report)
	}
	p := surface.NewProber()
	if info, _ := p.Describe(context.Background(), found); info.ID != "prefs" {
		t.Errorf("modal = %+v", info)
	}
}

func TestExecute_ModalNotReady(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", `<body>
<div role="dialog"><p>We use cookies</p><button id="manage">Settings</button></div>
<div class="cookie-modal" id="prefs" style="display:none">Cookies</div></body>`)
	page.OnClick("#manage", func(p *surfacetest.Page) { p.Show("#prefs") })

	found, report, err := newMachine().Execute(context.Background(), page, bannerOn(page, page))
	if err != nil {
		t.Fatal(err)
	}
	if found != nil || report.FinalState != consent.StateFailed {
		t.Errorf("found=%v report=%+v", found, report)
	}
	if len(report.Errors) == 0 || report.Errors[len(report.Errors)-1] != "modal not ready after opening" {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestExecute_ClosedPage(t *testing.T) {
	page := surfacetest.NewPage(t, "https://shop.example/", bannerPage)
	banner := bannerOn(page, page)
	page.Close()
	found, report, err := newMachine().Execute(context.Background(), page, banner)
	if err == nil || found != nil {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if report.FinalState != consent.StateFailed {
		t.Errorf("final state = %s", report.FinalState)
	}
}
