// Command consentd serves consent audits over HTTP and MCP and re-audits a
// watch list on a schedule.
//
// Configuration comes from the environment, optionally loaded from a .env
// file (ENV_FILE, default ".env"):
//
//	PORT             listen port (8080)
//	DB_PATH          SQLite database (data/consentcrawl.db)
//	OUTPUT_DIR       JSON results and screenshots (data/results)
//	CATALOG          YAML catalog file or directory (embedded)
//	AUDIT_CONFIG     YAML audit config file
//	AUDIT_TIMEOUT    budget of one API audit (120s)
//	CHROME_REMOTE    DevTools WebSocket URL of a running Chrome
//	CHROME_BIN       Chrome binary for the launcher
//	HEADLESS         false runs Chrome under Xvfb (true)
//	API_KEYS         id:bcrypt-hash,... (empty leaves the API open)
//	WATCH_FILE       URL list re-audited on WATCH_SCHEDULE
//	WATCH_SCHEDULE   cron expression (0 3 * * *)
//	RETENTION_DAYS   metrics, heartbeats and run events kept (30)
//	SQL_TRACE        off, log (every statement logged) or store (also kept in TRACE_DB)
//	TRACE_DB         SQL trace database (data/traces.db)
//	LOG_LEVEL        debug, info, warn, error (info)
//
// Flags:
//
//	consentd -gen-key ops                 # print a new API key and its API_KEYS entry
//	consentd -maintenance "upgrading"     # pause audits with a message
//	consentd -maintenance off             # resume audits
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/consentcrawl/api"
	"github.com/hazyhaar/consentcrawl/audit"
	"github.com/hazyhaar/consentcrawl/browser"
	"github.com/hazyhaar/consentcrawl/catalog"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/dbopen"
	"github.com/hazyhaar/consentcrawl/observability"
	"github.com/hazyhaar/consentcrawl/shield"
	"github.com/hazyhaar/consentcrawl/store"
	"github.com/hazyhaar/consentcrawl/trace"
	"github.com/hazyhaar/consentcrawl/watch"
)

var version = "dev"

func main() {
	genKey := flag.String("gen-key", "", "print a new API key with this id and exit")
	maintenance := flag.String("maintenance", "", `set maintenance mode with this message ("off" clears it) and exit`)
	flag.Parse()

	envFile := env("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "consentd: %s: %v\n", envFile, err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if *genKey != "" {
		secret, key, err := api.NewKey(*genKey)
		if err != nil {
			logger.Error("consentd: fatal", "error", err)
			os.Exit(1)
		}
		fmt.Printf("key:      %s\nAPI_KEYS: %s\n", secret, key)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *maintenance != "" {
		err = setMaintenance(logger, *maintenance)
	} else {
		err = run(ctx, logger)
	}
	if err != nil {
		logger.Error("consentd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	var dbOpts []dbopen.Option
	switch mode := env("SQL_TRACE", "off"); mode {
	case "off":
	case "log", "store":
		dbOpts = append(dbOpts, dbopen.WithTrace())
		if mode == "store" {
			traceDB, err := dbopen.Open(env("TRACE_DB", "data/traces.db"), dbopen.WithMkdirAll(), dbopen.WithSchema(trace.Schema))
			if err != nil {
				return fmt.Errorf("trace db: %w", err)
			}
			defer traceDB.Close()
			traces := trace.NewStore(traceDB, logger)
			trace.SetRecorder(traces)
			defer traces.Close()
			defer trace.SetRecorder(nil)
		}
	default:
		return fmt.Errorf("SQL_TRACE: unknown mode %q", mode)
	}

	st, err := openDB(dbOpts...)
	if err != nil {
		return err
	}
	defer st.Close()
	db := st.DB

	metrics := observability.NewMetricsManager(db, 100, 5*time.Second)
	defer metrics.Close()
	go observability.NewHeartbeatWriter(db, "consentd", 30*time.Second, logger).Run(ctx)
	go cleanupLoop(ctx, logger, st, envInt("RETENTION_DAYS", 30))

	cfg := consent.Defaults()
	if p := env("AUDIT_CONFIG", ""); p != "" {
		if cfg, err = consent.LoadAuditConfig(p); err != nil {
			return err
		}
	}
	cat, err := catalog.Default()
	if p := env("CATALOG", ""); p != "" {
		cat, err = catalog.Load(p)
	}
	if err != nil {
		return err
	}
	outputDir := env("OUTPUT_DIR", "data/results")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	keys, err := api.ParseKeys(env("API_KEYS", ""))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		logger.Warn("consentd: API_KEYS empty, the API is open")
	}
	timeout, err := time.ParseDuration(env("AUDIT_TIMEOUT", "120s"))
	if err != nil {
		return fmt.Errorf("AUDIT_TIMEOUT: %w", err)
	}

	stealth := browser.LevelHeadless
	if env("HEADLESS", "true") == "false" {
		stealth = browser.LevelHeadful
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL: env("CHROME_REMOTE", ""),
		Bin:       env("CHROME_BIN", ""),
		Stealth:   stealth,
		Logger:    logger,
	})
	defer mgr.Close()
	// Start in the background: /health reports degraded until Chrome is up.
	go func() {
		if err := mgr.Start(ctx); err != nil {
			logger.Error("consentd: browser start failed", "error", err)
		}
	}()

	auditor := audit.New(mgr.Open, audit.Options{
		Catalog: cat, Config: cfg, OutputDir: outputDir, Metrics: metrics, Logger: logger,
	})

	if path := env("WATCH_FILE", ""); path != "" {
		w, err := watch.New(auditor, watch.NewList(path), watch.Options{
			Schedule: env("WATCH_SCHEDULE", watch.DefaultSchedule),
			Store:    st,
			JSONDir:  outputDir,
			RunLog:   observability.NewRunLog(db, logger),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	stack, mm, rl := shield.APIStack(db, logger, "/health")
	mm.StartReloader(ctx.Done())
	rl.StartReloader(ctx.Done())

	srv := api.New(api.Options{
		Auditor:    auditor,
		Ready:      mgr.Ready,
		Store:      st,
		JSONDir:    outputDir,
		Keys:       keys,
		Middleware: stack,
		Timeout:    timeout,
		Version:    version,
		Logger:     logger,
	})

	addr := ":" + env("PORT", "8080")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("consentd: listening", "addr", addr, "version", version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	logger.Info("consentd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openDB(opts ...dbopen.Option) (*store.Store, error) {
	st, err := store.Open(env("DB_PATH", "data/consentcrawl.db"), opts...)
	if err != nil {
		return nil, err
	}
	if err := observability.Init(st.DB); err != nil {
		st.Close()
		return nil, err
	}
	if err := shield.Init(st.DB); err != nil {
		st.Close()
		return nil, fmt.Errorf("shield init: %w", err)
	}
	return st, nil
}

// setMaintenance switches the maintenance row read by running services.
func setMaintenance(logger *slog.Logger, msg string) error {
	st, err := openDB()
	if err != nil {
		return err
	}
	defer st.Close()
	mm := shield.NewMaintenanceMode(st.DB, logger)
	if msg == "off" {
		return mm.Set(false, "")
	}
	return mm.Set(true, msg)
}

// cleanupLoop applies the retention once a day.
func cleanupLoop(ctx context.Context, logger *slog.Logger, st *store.Store, days int) {
	if days <= 0 {
		return
	}
	r := observability.Retention{MetricsDays: days, HeartbeatsDays: days, RunEventsDays: days}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := observability.Cleanup(ctx, st.DB, r); err != nil && ctx.Err() == nil {
			logger.Warn("consentd: retention cleanup", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}
