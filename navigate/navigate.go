// Package navigate opens the preferences modal of a detected banner.
//
// A Machine walks BANNER_DETECTED -> MODAL_OPENING -> MODAL_READY, or ends
// in FAILED. It clicks the banner's settings button with a series of
// strategies, from the selector captured at detection time down to generic
// cross-CMP patterns, and after each click waits for a modal with the CMP's
// own timing. Every attempt and transition is recorded in the returned
// report, including on failure.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/modal"
	"github.com/hazyhaar/consentcrawl/selector"
	"github.com/hazyhaar/consentcrawl/surface"
)

// Strategy names, in the order they are tried.
const (
	StrategyDirect     = "direct_selector"
	StrategyAria       = "aria_label"
	StrategyButtonText = "button_text"
	StrategyRoleText   = "role_button_text"
	StrategyGenericTxt = "generic_text"
	StrategyFallback   = "fallback_pattern"
)

const (
	visibleTimeout = 2 * time.Second
	clickTimeout   = 3 * time.Second
	retryPause     = time.Second
	scrollPause    = 500 * time.Millisecond

	clickRetries  = 3
	detectRetries = 2
	minModalText  = 20
)

// errNoModal is recorded when a click worked but nothing opened.
var errNoModal = errors.New("no modal after click")

// fallbackPatterns are common settings buttons, tried when the banner's own
// button cannot be clicked or opens nothing.
var fallbackPatterns = []string{
	"button:has-text('manage options')",
	"button:has-text('settings')",
	"button:has-text('customize')",
	"[role='button']:has-text('manage')",
	"[aria-label*='manage' i]",
	"[aria-label*='settings' i]",
	"[aria-label*='option' i]",
	".sp_choice_type_12",
}

// Machine runs navigations. It holds no per-page state and is safe for
// concurrent use.
type Machine struct {
	modals *modal.Detector
	logger *slog.Logger
}

// New returns a Machine detecting modals with d.
func New(d *modal.Detector, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{modals: d, logger: logger}
}

// Execute opens the preferences modal of banner. It returns the modal and
// the report, or nil and a report ending in FAILED. The error is non-nil
// only when the page failed fatally.
func (m *Machine) Execute(ctx context.Context, page surface.Page, banner consent.BannerInfo) (surface.Locator, consent.NavigationReport, error) {
	r := &run{
		m:      m,
		p:      surface.NewProber(),
		page:   page,
		banner: banner,
		cmp:    cmp.Normalize(banner.CMPType),
		timing: cmp.TimingFor(banner.CMPType),
		state:  consent.StateBannerDetected,
		start:  time.Now(),
		report: consent.NavigationReport{
			InitialState: consent.StateBannerDetected,
			Attempts:     []consent.NavigationAttempt{},
			Transitions:  []string{},
		},
	}
	found := r.open(ctx)
	switch {
	case found == nil:
		r.fail("modal opening failed after all strategies")
	case !r.ready(ctx, found):
		r.fail("modal not ready after opening")
		found = nil
	default:
		r.transition(consent.StateModalReady)
	}
	if err := r.p.Err(); err != nil {
		r.report.Errors = append(r.report.Errors, err.Error())
		r.finish()
		return nil, r.report, err
	}
	r.finish()
	m.logger.Debug("navigate: done", "url", page.URL(), "state", r.report.FinalState,
		"attempts", len(r.report.Attempts), "duration_ms", r.report.TotalDurationMS)
	return found, r.report, nil
}

// Complete records the hand-off to extraction on a report that ended in
// MODAL_READY.
func Complete(report *consent.NavigationReport) {
	if report.FinalState != consent.StateModalReady {
		return
	}
	report.Transitions = append(report.Transitions,
		transitionLabel(consent.StateModalReady, consent.StateExtractionComplete))
	report.FinalState = consent.StateExtractionComplete
}

// SettingsButton returns the button to open preferences with: the first
// settings button, else the first info button.
func SettingsButton(banner consent.BannerInfo) (consent.ButtonInfo, bool) {
	for _, role := range []consent.ButtonRole{consent.RoleSettings, consent.RoleInfo} {
		if btns := banner.ButtonsWithRole(role); len(btns) > 0 {
			return btns[0], true
		}
	}
	return consent.ButtonInfo{}, false
}

type run struct {
	m      *Machine
	p      *surface.Prober
	page   surface.Page
	banner consent.BannerInfo
	cmp    string
	timing cmp.Timing
	state  consent.NavigationState
	start  time.Time
	report consent.NavigationReport
}

func transitionLabel(from, to consent.NavigationState) string {
	return string(from) + " -> " + string(to)
}

func (r *run) transition(to consent.NavigationState) {
	r.report.Transitions = append(r.report.Transitions, transitionLabel(r.state, to))
	r.state = to
}

func (r *run) fail(msg string) {
	r.transition(consent.StateFailed)
	r.report.Errors = append(r.report.Errors, msg)
}

func (r *run) finish() {
	r.report.FinalState = r.state
	r.report.TotalDurationMS = time.Since(r.start).Milliseconds()
}

func (r *run) attempt(strategy string, start time.Time, err error) {
	a := consent.NavigationAttempt{
		Strategy:   strategy,
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		a.ErrorMsg = err.Error()
	}
	r.report.Attempts = append(r.report.Attempts, a)
}

func (r *run) open(ctx context.Context) surface.Locator {
	r.transition(consent.StateModalOpening)
	btn, ok := SettingsButton(r.banner)
	if !ok {
		r.report.Errors = append(r.report.Errors, "no settings button found in banner")
		return nil
	}

	type strategy struct{ name, sel string }
	var plan []strategy
	if btn.Selector != "" {
		plan = append(plan, strategy{StrategyDirect, btn.Selector})
	}
	if btn.AriaLabel != "" {
		plan = append(plan, strategy{StrategyAria, selector.AttrEquals("", "aria-label", btn.AriaLabel)})
	}
	if btn.Text != "" {
		plan = append(plan,
			strategy{StrategyButtonText, selector.HasText("button", btn.Text)},
			strategy{StrategyRoleText, selector.HasText("[role='button']", btn.Text)},
			strategy{StrategyGenericTxt, ":text(" + selector.Quote(btn.Text) + ")"},
		)
	}
	for _, s := range plan {
		if found := r.try(ctx, s.name, s.sel, clickRetries); found != nil {
			return found
		}
		if r.p.Failed() {
			return nil
		}
	}

	scope := r.buttonScope(ctx)
	for _, pat := range fallbackPatterns {
		if r.p.Count(ctx, scope.Locate(pat)) == 0 {
			continue
		}
		if found := r.try(ctx, StrategyFallback, pat, 1); found != nil {
			return found
		}
		if r.p.Failed() {
			return nil
		}
	}
	return nil
}

// buttonScope is the frame holding the banner while it is still attached,
// else the page.
func (r *run) buttonScope(ctx context.Context) surface.Scope {
	s := r.banner.Scope()
	if s == nil || s == surface.Scope(r.page) {
		return r.page
	}
	if r.p.Count(ctx, s.Locate("body")) == 0 {
		r.m.logger.Debug("navigate: banner frame gone, using page", "url", s.URL())
		return r.page
	}
	return s
}

// retryable reports whether a failed click may succeed on a later attempt.
func retryable(err error) bool {
	return surface.IsTimeout(err) || errors.Is(err, surface.ErrDetached)
}

// try clicks sel and waits for a modal. Timeouts, detached targets and
// clicks that open nothing are retried up to retries times; other click
// errors, a missing element or a bad selector included, end the strategy
// at once. One attempt is recorded per call.
func (r *run) try(ctx context.Context, name, sel string, retries int) surface.Locator {
	start := time.Now()
	var last error
	for i := 0; i < retries; i++ {
		if i > 0 && !r.p.Wait(ctx, r.page, retryPause) {
			break
		}
		btn := r.buttonScope(ctx).Locate(sel).First()
		if !r.p.WaitVisible(ctx, btn, visibleTimeout) {
			last = fmt.Errorf("timeout: %s not visible", sel)
			continue
		}
		if r.cmp == "axeptio" {
			r.p.Scroll(ctx, btn)
			r.p.Wait(ctx, r.page, scrollPause)
		}
		if err := r.p.Click(ctx, btn, surface.ClickOptions{Timeout: clickTimeout, Force: true}); err != nil {
			if r.p.Failed() {
				return nil
			}
			if retryable(err) {
				last = fmt.Errorf("timeout: %w", err)
				continue
			}
			r.attempt(name, start, err)
			r.m.logger.Debug("navigate: click failed", "strategy", name, "selector", sel, "error", err)
			return nil
		}
		r.p.Wait(ctx, r.page, r.timing.ModalOpen)
		if found := r.detect(ctx); found != nil {
			r.attempt(name, start, nil)
			r.m.logger.Debug("navigate: modal opened", "strategy", name, "selector", sel)
			return found
		}
		last = errNoModal
		if r.p.Failed() {
			return nil
		}
	}
	if last == nil {
		last = errors.New("strategy interrupted")
	}
	r.attempt(name, start, last)
	return nil
}

func (r *run) detect(ctx context.Context) surface.Locator {
	opts := modal.Options{
		Preferences: true,
		Exclude:     r.banner.Container(),
		Scope:       r.banner.Scope(),
	}
	for i := 0; i < detectRetries; i++ {
		if i > 0 && !r.p.Wait(ctx, r.page, r.timing.Animation) {
			return nil
		}
		if found := r.m.modals.Detect(ctx, r.p, r.page, r.banner.CMPType, opts); found != nil {
			return found
		}
	}
	return nil
}

// ready checks that the modal is visible with real content and still
// visible once animations had time to finish.
func (r *run) ready(ctx context.Context, l surface.Locator) bool {
	if !r.p.Visible(ctx, l) {
		return false
	}
	text, _ := r.p.Text(ctx, l, visibleTimeout)
	if len([]rune(strings.TrimSpace(text))) < minModalText {
		return false
	}
	if !r.p.Wait(ctx, r.page, r.timing.Animation) {
		return false
	}
	return r.p.Visible(ctx, l)
}
