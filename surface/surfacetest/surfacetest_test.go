package surfacetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/consentcrawl/surface"
)

const banner = `<html><body>
<div id="cb" role="dialog" style="position: fixed; z-index: 999" data-box="0,600,1366,160">
  <p>We use cookies.</p>
  <button id="ok">Accept all</button>
  <button id="no" hidden>Reject all</button>
  <button id="more">Settings</button>
</div>
<div id="prefs" style="display:none"><p>Preferences</p><input type="checkbox" id="ads"></div>
</body></html>`

func TestLocator_Basics(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", banner)

	if n, _ := p.Locate("#cb button").Count(ctx); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	if v, _ := p.Locate("#no").Visible(ctx); v {
		t.Error("#no should be hidden")
	}
	text, err := p.Locate("#cb").Text(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if text != "We use cookies.\nAccept all\nSettings" {
		t.Errorf("text = %q", text)
	}
	info, err := p.Locate("#ok").Parent().Describe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "cb" || info.Position != "fixed" || info.ZIndex != 999 || info.Interactive != 3 || info.Width != 1366 {
		t.Errorf("describe = %+v", info)
	}
	if got := p.Locate("#cb").Locate("button").Nth(2).String(); got != "#cb >> button >> nth=2" {
		t.Errorf("String = %q", got)
	}

	next, err := p.Locate("#ok").Next().Describe(ctx)
	if err != nil || next.ID != "no" {
		t.Errorf("next of #ok = %+v, %v", next, err)
	}
	if n, _ := p.Locate("#more").Next().Count(ctx); n != 0 {
		t.Errorf("next of last child: %d matches", n)
	}
	if got := p.Locate("#ok").Next().String(); got != "#ok >> +" {
		t.Errorf("String = %q", got)
	}
}

func TestLocator_ClickRunsHandlers(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", banner)
	p.OnClick("#more", func(p *Page) { p.Show("#prefs") })

	if p.Locate("#prefs").WaitVisible(ctx, time.Second) == nil {
		t.Fatal("prefs visible before click")
	}
	if err := p.Locate("#more").Click(ctx, surface.ClickOptions{Timeout: time.Second}); err != nil {
		t.Fatal(err)
	}
	if err := p.Locate("#prefs").WaitVisible(ctx, time.Second); err != nil {
		t.Errorf("prefs not shown: %v", err)
	}
	if p.Elapsed() != time.Second {
		t.Errorf("elapsed = %v, want 1s from the failed wait", p.Elapsed())
	}
	if len(p.ClickLog) != 1 {
		t.Errorf("click log = %v", p.ClickLog)
	}

	box := p.Locate("#ads")
	if err := box.Click(ctx, surface.ClickOptions{}); err != nil {
		t.Fatal(err)
	}
	if c, _ := box.Checked(ctx); !c {
		t.Error("checkbox not toggled")
	}
}

func TestLocator_ClickErrors(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", banner)

	err := p.Locate("#missing").Click(ctx, surface.ClickOptions{Timeout: time.Second})
	if !errors.Is(err, surface.ErrTimeout) {
		t.Errorf("missing: err = %v", err)
	}
	if err := p.Locate("#no").Click(ctx, surface.ClickOptions{}); !surface.IsTimeout(err) {
		t.Errorf("hidden: err = %v", err)
	}
	if err := p.Locate("#no").Click(ctx, surface.ClickOptions{Force: true}); err != nil {
		t.Errorf("forced: err = %v", err)
	}

	p.FailClick("#ok", surface.ErrTimeout, 1)
	if err := p.Locate("#ok").Click(ctx, surface.ClickOptions{}); !surface.IsTimeout(err) {
		t.Errorf("first click: err = %v", err)
	}
	if err := p.Locate("#ok").Click(ctx, surface.ClickOptions{}); err != nil {
		t.Errorf("second click: err = %v", err)
	}

	if _, err := p.Locate("div[").Count(ctx); !errors.Is(err, surface.ErrBadSelector) {
		t.Errorf("bad selector: err = %v", err)
	}
}

func TestFrames(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", `<body><iframe id="sp_message_iframe_1"></iframe></body>`)
	p.AddFrame("sp_message_iframe_1", "https://cmp.example.net/", `<body><button>OK</button></body>`)

	frames, err := p.Frames(ctx)
	if err != nil || len(frames) != 2 || !frames[0].IsMain() {
		t.Fatalf("frames = %v, %v", frames, err)
	}
	f, err := p.EnterIframe(ctx, "iframe[id*='sp_message_iframe']", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := f.Locate("button").Count(ctx); n != 1 {
		t.Errorf("iframe buttons = %d", n)
	}

	p.DetachFrames()
	if _, err := p.EnterIframe(ctx, "iframe", time.Second); !errors.Is(err, surface.ErrDetached) {
		t.Errorf("detached: err = %v", err)
	}
}

func TestPage_ClosedIsFatal(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", banner)
	p.Close()

	_, err := p.Locate("#cb").Count(ctx)
	if !surface.IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}

	pr := surface.NewProber()
	if pr.Visible(ctx, p.Locate("#cb")) {
		t.Error("visible on closed page")
	}
	if !pr.Failed() {
		t.Error("prober did not record the fatal error")
	}
}

func TestProber_TransientIsAbsent(t *testing.T) {
	ctx := context.Background()
	p := NewPage(t, "https://example.com/", banner)
	pr := surface.NewProber()

	if _, ok := pr.Text(ctx, p.Locate("#missing"), time.Second); ok {
		t.Error("text found for missing element")
	}
	if pr.Failed() {
		t.Errorf("transient miss recorded: %v", pr.Err())
	}
	if v, ok := pr.Attr(ctx, p.Locate("#cb"), "role", 0); !ok || v != "dialog" {
		t.Errorf("attr = %q, %v", v, ok)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if pr.Visible(cctx, p.Locate("#cb")) || !errors.Is(pr.Err(), context.Canceled) {
		t.Errorf("cancelled context: err = %v", pr.Err())
	}
}
