// Command consentcrawl audits the cookie consent banners of one URL or of a
// list of URLs.
//
// Usage:
//
//	consentcrawl https://example.com            # audit one site
//	consentcrawl -batch-size 10 sites.txt       # audit a list, one URL per line
//	consentcrawl -report audit.md -show-output sites.txt
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/consentcrawl/audit"
	"github.com/hazyhaar/consentcrawl/browser"
	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/idgen"
	"github.com/hazyhaar/consentcrawl/observability"
	"github.com/hazyhaar/consentcrawl/report"
	"github.com/hazyhaar/consentcrawl/store"
)

type options struct {
	headless    bool
	screenshot  bool
	batchSize   int
	showOutput  bool
	dbPath      string
	catalogPath string
	outputDir   string
	configPath  string
	reportPath  string
	remoteURL   string
	chromeBin   string
	maxUIDepth  int
	timeoutBan  int
	timeoutMod  int
	timeoutLoad int
}

func main() {
	var o options
	flag.BoolVar(&o.headless, "headless", true, "run Chrome headless (false starts Xvfb)")
	flag.BoolVar(&o.screenshot, "screenshot", false, "save a PNG of each detected banner in -output-dir")
	flag.IntVar(&o.batchSize, "batch-size", 15, "concurrent audits per batch")
	flag.BoolVar(&o.showOutput, "show-output", false, "print each result as JSON on stdout")
	flag.StringVar(&o.dbPath, "db", "consentcrawl.db", "SQLite result database (empty disables)")
	flag.StringVar(&o.catalogPath, "catalog", "", "YAML catalog file or directory (default: embedded)")
	flag.StringVar(&o.outputDir, "output-dir", "results", "directory for JSON results and screenshots")
	flag.StringVar(&o.configPath, "config", "", "YAML audit config file")
	flag.StringVar(&o.reportPath, "report", "", "write a Markdown report to this file (- for stdout)")
	flag.StringVar(&o.remoteURL, "remote", "", "DevTools WebSocket URL of a running Chrome")
	flag.StringVar(&o.chromeBin, "chrome", "", "Chrome binary for the launcher")
	flag.IntVar(&o.maxUIDepth, "max-ui-depth", 3, "preferences exploration depth (0 disables)")
	flag.IntVar(&o.timeoutBan, "timeout-banner", 5000, "banner detection timeout (ms)")
	flag.IntVar(&o.timeoutMod, "timeout-modal", 8000, "preferences modal timeout (ms)")
	flag.IntVar(&o.timeoutLoad, "timeout", 15000, "page load timeout (ms)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: consentcrawl [flags] <url | urls.txt>")
		flag.PrintDefaults()
	}
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o, flag.Arg(0)); err != nil {
		logger.Error("consentcrawl: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options, target string) error {
	urls, err := targets(target)
	if err != nil {
		return err
	}
	cfg, err := auditConfig(o)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(o.catalogPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	var (
		st      *store.Store
		runs    *observability.RunLog
		metrics *observability.MetricsManager
	)
	if o.dbPath != "" {
		st, err = store.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := observability.Init(st.DB); err != nil {
			return err
		}
		runs = observability.NewRunLog(st.DB, logger)
		metrics = observability.NewMetricsManager(st.DB, 100, 5*time.Second)
		defer metrics.Close()
	}

	stealth := browser.LevelHeadless
	if !o.headless {
		stealth = browser.LevelHeadful
	}
	mgr := browser.NewManager(browser.Config{RemoteURL: o.remoteURL, Bin: o.chromeBin, Stealth: stealth, Logger: logger})
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer mgr.Close()

	auditOpts := audit.Options{Catalog: cat, Config: cfg, OutputDir: o.outputDir, Logger: logger}
	if metrics != nil {
		auditOpts.Metrics = metrics
	}
	auditor := audit.New(mgr.Open, auditOpts)

	runID := idgen.Prefixed("run_", idgen.Default)()
	logger.Info("consentcrawl: run started", "run_id", runID, "urls", len(urls), "batch_size", cfg.BatchSize)
	if runs != nil {
		runs.Log(ctx, observability.RunEvent{RunID: runID, Kind: observability.KindBatch, Action: observability.ActionStarted, URLs: len(urls)})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	results := auditor.Batch(ctx, urls, func(r consent.AuditResult) {
		keep(ctx, logger, st, runID, o.outputDir, r)
		if o.showOutput {
			if err := enc.Encode(r); err != nil {
				logger.Warn("consentcrawl: print result", "url", r.URL, "error", err)
			}
		}
	})

	tally := audit.Count(results)
	if runs != nil {
		runs.Log(context.WithoutCancel(ctx), observability.RunEvent{
			RunID: runID, Kind: observability.KindBatch, Action: observability.ActionFinished,
			URLs: len(results), Failed: tally.Failed(), Details: tally.String(),
		})
	}
	logger.Info("consentcrawl: run finished", "run_id", runID, "urls", len(results), "statuses", tally.String())

	if o.reportPath != "" {
		if err := writeReport(o.reportPath, results); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}

// targets reads the positional argument: a URL, or a .txt file listing URLs.
func targets(arg string) ([]string, error) {
	if strings.HasSuffix(strings.ToLower(arg), ".txt") {
		urls, err := audit.LoadURLs(arg)
		if err != nil {
			return nil, err
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("%s: no URL", arg)
		}
		return urls, nil
	}
	return []string{arg}, nil
}

// auditConfig layers the config file, then the flags set on the command
// line, over the defaults.
func auditConfig(o options) (consent.AuditConfig, error) {
	cfg := consent.Defaults()
	if o.configPath != "" {
		var err error
		if cfg, err = consent.LoadAuditConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-ui-depth":
			cfg.MaxUIDepth = o.maxUIDepth
		case "timeout-banner":
			cfg.TimeoutBanner = o.timeoutBan
		case "timeout-modal":
			cfg.TimeoutModal = o.timeoutMod
		case "timeout":
			cfg.PageLoadTimeout = o.timeoutLoad
		case "batch-size":
			cfg.BatchSize = o.batchSize
		case "screenshot":
			cfg.Screenshot = o.screenshot
		}
	})
	return cfg.Normalize(), nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func keep(ctx context.Context, logger *slog.Logger, st *store.Store, runID, dir string, r consent.AuditResult) {
	if st != nil {
		if err := st.SaveRun(context.WithoutCancel(ctx), runID, r); err != nil {
			logger.Error("consentcrawl: save result", "url", r.URL, "error", err)
		}
	}
	if _, err := store.WriteJSON(dir, r); err != nil {
		logger.Error("consentcrawl: write result", "url", r.URL, "error", err)
	}
}

func writeReport(path string, results []consent.AuditResult) error {
	rd := report.New()
	if path == "-" {
		return rd.RenderBatch(os.Stdout, results)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := rd.RenderBatch(f, results); err != nil {
		f.Close()
		return fmt.Errorf("report: %w", err)
	}
	return f.Close()
}
