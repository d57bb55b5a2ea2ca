// Package watch re-audits a list of URLs on a cron schedule. The list is a
// text file, reloaded when its modification time changes, so sites can be
// added to a running service without a restart.
//
// Typical usage:
//
//	list := watch.NewList("watch.txt")
//	w, err := watch.New(auditor, list, watch.Options{Schedule: "0 3 * * *", Store: st, RunLog: runs})
//	go w.Run(ctx)
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/consentcrawl/audit"
	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/idgen"
	"github.com/hazyhaar/consentcrawl/observability"
	"github.com/hazyhaar/consentcrawl/store"
)

// DefaultSchedule re-audits every night at 03:00.
const DefaultSchedule = "0 3 * * *"

// ErrEmptyList is returned by RunOnce when the list holds no URL.
var ErrEmptyList = errors.New("watch: url list is empty")

// Batcher audits URLs in batches; *audit.Auditor implements it.
type Batcher interface {
	Batch(ctx context.Context, urls []string, sink audit.Sink) []consent.AuditResult
}

// Saver keeps the results of a run.
type Saver interface {
	SaveRun(ctx context.Context, runID string, r consent.AuditResult) error
}

var _ Saver = (*store.Store)(nil)

// Options tunes the watcher.
type Options struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@daily" or "@every 6h". Default: DefaultSchedule.
	Schedule string
	// Store receives every result tagged with its run id. Optional.
	Store Saver
	// JSONDir, when set, receives one JSON file per audited domain.
	JSONDir string
	// RunLog records the start and end of each run. Optional.
	RunLog *observability.RunLog
	// NewRunID names runs. Default: idgen.Default (UUIDv7).
	NewRunID idgen.Generator
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Schedule == "" {
		o.Schedule = DefaultSchedule
	}
	if o.NewRunID == nil {
		o.NewRunID = idgen.Default
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Runs        int64         `json:"runs"`
	Audits      int64         `json:"audits"`
	Failed      int64         `json:"failed"`
	Errors      int64         `json:"errors"`
	LastRunID   string        `json:"last_run_id,omitempty"`
	LastRunAt   time.Time     `json:"last_run_at,omitzero"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Watcher runs scheduled re-audits. A run that is still going when the
// next one is due makes the next one skip.
type Watcher struct {
	batch Batcher
	list  *List
	opts  Options
	sched cron.Schedule

	runs    atomic.Int64
	audits  atomic.Int64
	failed  atomic.Int64
	errors  atomic.Int64
	totalNs atomic.Int64

	mu      sync.Mutex
	lastID  string
	lastRun time.Time
}

// New returns a Watcher auditing the URLs of list with b.
func New(b Batcher, list *List, opts Options) (*Watcher, error) {
	opts.defaults()
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("watch: schedule %q: %w", opts.Schedule, err)
	}
	return &Watcher{batch: b, list: list, opts: opts, sched: sched}, nil
}

// Next returns the first run time after t.
func (w *Watcher) Next(t time.Time) time.Time { return w.sched.Next(t) }

// Run blocks until ctx is cancelled, running the list on schedule. It
// waits for a run in progress before returning.
func (w *Watcher) Run(ctx context.Context) {
	log := w.opts.Logger
	clog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(w.sched, cron.FuncJob(func() {
		if _, _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("watch: run failed", "error", err)
		}
	}))
	c.Start()
	log.Info("watch: started", "schedule", w.opts.Schedule, "list", w.list.Path(), "next", w.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("watch: stopped")
}

// RunOnce audits the current list now and returns the run id and results.
func (w *Watcher) RunOnce(ctx context.Context) (string, []consent.AuditResult, error) {
	log := w.opts.Logger
	urls, err := w.list.URLs()
	if err != nil {
		w.errors.Add(1)
		return "", nil, err
	}
	if len(urls) == 0 {
		return "", nil, ErrEmptyList
	}

	runID := w.opts.NewRunID()
	start := time.Now()
	log.Info("watch: run started", "run_id", runID, "urls", len(urls))
	w.event(ctx, observability.RunEvent{RunID: runID, Kind: observability.KindWatch, Action: observability.ActionStarted, URLs: len(urls)})

	results := w.batch.Batch(ctx, urls, func(r consent.AuditResult) { w.keep(ctx, runID, r) })

	tally := audit.Count(results)
	failed := tally.Failed()
	elapsed := time.Since(start)
	w.runs.Add(1)
	w.audits.Add(int64(len(results)))
	w.failed.Add(int64(failed))
	w.totalNs.Add(int64(elapsed))
	w.mu.Lock()
	w.lastID, w.lastRun = runID, start
	w.mu.Unlock()

	w.event(ctx, observability.RunEvent{
		RunID: runID, Kind: observability.KindWatch, Action: observability.ActionFinished,
		URLs: len(results), Failed: failed, Details: tally.String(),
	})
	log.Info("watch: run finished", "run_id", runID, "urls", len(results), "failed", failed, "duration", elapsed)
	return runID, results, nil
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Runs:   w.runs.Load(),
		Audits: w.audits.Load(),
		Failed: w.failed.Load(),
		Errors: w.errors.Load(),
	}
	if s.Runs > 0 {
		s.AvgDuration = time.Duration(w.totalNs.Load() / s.Runs)
	}
	w.mu.Lock()
	s.LastRunID, s.LastRunAt = w.lastID, w.lastRun
	w.mu.Unlock()
	return s
}

func (w *Watcher) keep(ctx context.Context, runID string, r consent.AuditResult) {
	ctx = context.WithoutCancel(ctx)
	if w.opts.Store != nil {
		if err := w.opts.Store.SaveRun(ctx, runID, r); err != nil {
			w.errors.Add(1)
			w.opts.Logger.Error("watch: save result", "run_id", runID, "url", r.URL, "error", err)
		}
	}
	if w.opts.JSONDir != "" {
		if _, err := store.WriteJSON(w.opts.JSONDir, r); err != nil {
			w.errors.Add(1)
			w.opts.Logger.Error("watch: write result", "run_id", runID, "url", r.URL, "error", err)
		}
	}
}

func (w *Watcher) event(ctx context.Context, e observability.RunEvent) {
	if w.opts.RunLog != nil {
		w.opts.RunLog.Log(context.WithoutCancel(ctx), e)
	}
}

// List is a URL list file. URLs reloads it when the file's modification
// time changes and keeps the last good list when a reload fails.
type List struct {
	path string

	mu      sync.Mutex
	urls    []string
	version int64
}

// NewList returns the list stored at path. Nothing is read until URLs.
func NewList(path string) *List { return &List{path: path} }

// Path returns the file path.
func (l *List) Path() string { return l.path }

// URLs returns the current list.
func (l *List) URLs() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fi, err := os.Stat(l.path)
	if err != nil {
		if l.urls != nil {
			slog.Warn("watch: url list unavailable, keeping last", "path", l.path, "error", err)
			return l.urls, nil
		}
		return nil, fmt.Errorf("watch: url list: %w", err)
	}
	if v := fi.ModTime().UnixNano(); v != l.version || l.urls == nil {
		urls, err := audit.LoadURLs(l.path)
		if err != nil {
			if l.urls != nil {
				slog.Warn("watch: url list reload failed, keeping last", "path", l.path, "error", err)
				return l.urls, nil
			}
			return nil, err
		}
		if l.urls != nil {
			slog.Info("watch: url list reloaded", "path", l.path, "urls", len(urls))
		}
		if urls == nil {
			urls = []string{}
		}
		l.urls, l.version = urls, v
	}
	return l.urls, nil
}
