// Package audit runs the full consent audit of a URL: page load, banner
// detection, the optional trip into the preferences modal, and the network
// and cookie picture of the visit.
package audit

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hazyhaar/consentcrawl/banner"
	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/cmp"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/extract"
	"github.com/hazyhaar/consentcrawl/horosafe"
	"github.com/hazyhaar/consentcrawl/modal"
	"github.com/hazyhaar/consentcrawl/navigate"
	"github.com/hazyhaar/consentcrawl/observability"
	"github.com/hazyhaar/consentcrawl/sections"
	"github.com/hazyhaar/consentcrawl/surface"
)

const settle = time.Second

// mouse path played before detection; some banners only render after user
// activity.
var mousePath = [][2]float64{{120, 140}, {380, 260}, {640, 420}}

// Opener opens an isolated page for one audit. Closing the page releases
// everything the audit used.
type Opener func(ctx context.Context) (surface.Page, error)

// Recorder receives one datapoint per audit.
type Recorder interface {
	Record(m *observability.Metric)
}

// Options configures an Auditor.
type Options struct {
	Catalog  *catalog.Catalog
	Registry *cmp.Registry

	// Config starts from consent.Defaults(); a zero MaxUIDepth disables
	// the preferences modal.
	Config consent.AuditConfig

	// OutputDir receives screenshots when Config.Screenshot is set.
	OutputDir string

	// Metrics, when set, records audit duration and status.
	Metrics Recorder

	Logger *slog.Logger
}

// Auditor audits URLs. It is safe for concurrent use; each audit owns its
// page.
type Auditor struct {
	open Opener
	opts Options

	banners  *banner.Detector
	nav      *navigate.Machine
	sections *sections.Discoverer
	extract  *extract.Extractor
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an Auditor opening pages with open.
func New(open Opener, opts Options) *Auditor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = cmp.DefaultRegistry()
	}
	opts.Config = opts.Config.Normalize()
	log := opts.Logger
	return &Auditor{
		open:     open,
		opts:     opts,
		banners:  banner.New(opts.Catalog, opts.Registry, opts.Config, log),
		nav:      navigate.New(modal.New(opts.Catalog, opts.Registry, log), log),
		sections: sections.New(opts.Catalog, log),
		extract:  extract.New(opts.Catalog, opts.Config, log),
		logger:   log,
		now:      time.Now,
	}
}

// WithConfig returns an Auditor sharing a's page opener, catalog and sinks
// but using cfg.
func (a *Auditor) WithConfig(cfg consent.AuditConfig) *Auditor {
	opts := a.opts
	opts.Config = cfg
	b := New(a.open, opts)
	b.now = a.now
	return b
}

// Config returns the normalized audit configuration.
func (a *Auditor) Config() consent.AuditConfig { return a.opts.Config }

// DomainName returns the host of rawURL without a leading "www.".
func DomainName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		if u, err = url.Parse("https://" + strings.TrimSpace(rawURL)); err != nil {
			return ""
		}
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// ResultID is the stable id of a domain's audit: its standard base64 form,
// so a re-audit replaces the previous record.
func ResultID(domain string) string {
	return base64.StdEncoding.EncodeToString([]byte(domain))
}

// Audit audits rawURL. It never fails: problems are reported through the
// result's status, status message and UI context errors. A panic inside the
// audit is recovered into status "error".
func (a *Auditor) Audit(ctx context.Context, rawURL string) (res consent.AuditResult) {
	start := a.now()
	res = newResult(rawURL, start)
	domain := res.DomainName
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("audit: panic", "url", rawURL, "panic", r, "stack", string(debug.Stack()))
			res.Status = consent.StatusError
			res.StatusMsg = fmt.Sprintf("internal error: %v", r)
		}
		res.DurationMS = a.now().Sub(start).Milliseconds()
		a.record(res)
		a.logger.Info("audit: done", "url", rawURL, "status", res.Status,
			"cmp", res.BannerInfo.CMPType, "categories", len(res.Categories),
			"vendors", len(res.Vendors), "cookies", len(res.Cookies), "duration_ms", res.DurationMS)
	}()

	if domain == "" {
		res.Advance(consent.StatusError, "invalid URL")
		return res
	}

	page, err := a.open(ctx)
	if err != nil {
		res.Advance(consent.StatusError, "browser: "+err.Error())
		return res
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Warn("audit: close page", "url", rawURL, "error", err)
		}
	}()

	a.run(ctx, page, rawURL, &res)
	return res
}

// run drives one audit on an open page.
func (a *Auditor) run(ctx context.Context, page surface.Page, rawURL string, res *consent.AuditResult) {
	cfg := a.opts.Config
	if err := page.Navigate(ctx, rawURL, surface.WaitDOMContentLoaded, cfg.LoadTimeout()); err != nil {
		if !surface.IsTimeout(err) || ctx.Err() != nil {
			res.Advance(consent.StatusError, "navigation: "+err.Error())
			return
		}
		a.logger.Warn("audit: page load timed out, continuing", "url", rawURL, "timeout", cfg.LoadTimeout())
	}
	for _, pt := range mousePath {
		if err := page.MouseMove(ctx, pt[0], pt[1]); err != nil {
			break
		}
	}
	if err := page.Wait(ctx, settle); err != nil {
		res.Advance(consent.StatusError, "interrupted: "+err.Error())
		return
	}

	info, err := a.banners.Detect(ctx, page)
	if err != nil {
		res.Advance(consent.StatusError, "banner detection: "+err.Error())
		return
	}
	res.BannerInfo = info

	if !info.Detected {
		res.Advance(consent.StatusFailed, "no consent banner detected")
	} else {
		if cfg.Screenshot {
			a.screenshot(ctx, page, res)
		}
		msg := "banner detected"
		if info.CMPType != "" {
			msg += " (" + info.CMPType + ")"
		}
		res.Advance(consent.StatusSuccessBasic, msg)
		if info.HasRole(consent.RoleSettings) && cfg.MaxUIDepth > 0 {
			a.explore(ctx, page, res)
		}
	}

	a.network(ctx, page, res)
}

// explore opens the preferences modal and extracts its content. Failures
// are recorded and never lower the status.
func (a *Auditor) explore(ctx context.Context, page surface.Page, res *consent.AuditResult) {
	ui := &res.UIContext
	if btn, ok := navigate.SettingsButton(res.BannerInfo); ok && btn.Selector != "" {
		ui.VisitedSelectors = append(ui.VisitedSelectors, btn.Selector)
	}

	found, report, err := a.nav.Execute(ctx, page, res.BannerInfo)
	ui.Navigation = &report
	if err != nil {
		ui.AddError("navigation: " + err.Error())
		return
	}
	if found == nil {
		ui.AddError("detailed extraction skipped: modal navigation failed")
		return
	}
	ui.CurrentDepth = 1
	ui.ModalStack = append(ui.ModalStack, found.String())

	disc, err := a.sections.Discover(ctx, page, found, res.BannerInfo.CMPType)
	ui.Discovery = &disc
	if err != nil {
		ui.AddError("section discovery: " + err.Error())
		return
	}

	out, err := a.extract.Extract(ctx, page, found, res.BannerInfo.CMPType, &disc)
	res.Categories, res.Vendors, res.Cookies = out.Categories, out.Vendors, out.Cookies
	if err != nil {
		ui.AddError("extraction: " + err.Error())
	}
	navigate.Complete(ui.Navigation)

	if len(res.Categories) > 0 || len(res.Vendors) > 0 {
		res.Advance(consent.StatusSuccessDetailed, fmt.Sprintf("detailed extraction: %d categories, %d vendors, %d cookies",
			len(res.Categories), len(res.Vendors), len(res.Cookies)))
	}
}

// network fills the third-party, tracking and cookie fields from what the
// page recorded.
func (a *Auditor) network(ctx context.Context, page surface.Page, res *consent.AuditResult) {
	hosts := RequestHosts(page.Requests())
	res.ThirdPartyDomains = ThirdPartyDomains(res.DomainName, hosts)
	res.TrackingDomains = TrackingDomains(a.opts.Catalog, res.ThirdPartyDomains)

	cookies, err := page.Cookies(ctx)
	if err != nil {
		a.logger.Warn("audit: read cookies", "url", res.URL, "error", err)
		return
	}
	if cookies != nil {
		res.ActualCookies = cookies
	}
}

func (a *Auditor) screenshot(ctx context.Context, page surface.Page, res *consent.AuditResult) {
	if a.opts.OutputDir == "" {
		return
	}
	path, err := horosafe.OutputPath(a.opts.OutputDir, res.DomainName, ".png")
	if err != nil {
		res.UIContext.AddError("screenshot: " + err.Error())
		return
	}
	png, err := page.Screenshot(ctx)
	if err == nil {
		err = os.WriteFile(path, png, 0o644)
	}
	if err != nil {
		a.logger.Warn("audit: screenshot", "url", res.URL, "error", err)
		res.UIContext.AddError("screenshot: " + err.Error())
		return
	}
	res.ScreenshotFiles = append(res.ScreenshotFiles, path)
}

func (a *Auditor) record(res consent.AuditResult) {
	if a.opts.Metrics == nil {
		return
	}
	labels := map[string]string{"status": string(res.Status), "domain": res.DomainName}
	if res.BannerInfo.CMPType != "" {
		labels["cmp"] = res.BannerInfo.CMPType
	}
	now := a.now()
	a.opts.Metrics.Record(&observability.Metric{
		Name: observability.MetricAuditDurationMS, Timestamp: now, Value: float64(res.DurationMS), Labels: labels, Unit: "milliseconds",
	})
	a.opts.Metrics.Record(&observability.Metric{
		Name: observability.MetricAuditStatusRank, Timestamp: now, Value: float64(res.Status.Rank()), Labels: labels, Unit: "count",
	})
}

// newResult returns a pending result for rawURL with every list empty.
func newResult(rawURL string, at time.Time) consent.AuditResult {
	domain := DomainName(rawURL)
	return consent.AuditResult{
		ID:                 ResultID(domain),
		URL:                rawURL,
		DomainName:         domain,
		ExtractionDatetime: at.UTC(),
		BannerInfo:         consent.NotDetected(),
		Categories:         []consent.CategoryInfo{},
		Vendors:            []consent.VendorInfo{},
		Cookies:            []consent.CookieDetail{},
		UIContext:          newUIContext(),
		ScreenshotFiles:    []string{},
		ActualCookies:      []surface.Cookie{},
		ThirdPartyDomains:  []string{},
		TrackingDomains:    []string{},
		Status:             consent.StatusPending,
	}
}

func newUIContext() consent.ConsentUIContext {
	return consent.ConsentUIContext{
		VisitedSelectors: []string{},
		ModalStack:       []string{},
		Errors:           []string{},
	}
}
