package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/consentcrawl/idgen"
)

// Run kinds and actions.
const (
	KindBatch = "batch"
	KindWatch = "watch"

	ActionStarted  = "started"
	ActionFinished = "finished"
)

// RunEvent is one step of a batch or scheduled run.
type RunEvent struct {
	RunID   string    `json:"run_id"`
	Kind    string    `json:"kind"`
	Action  string    `json:"action"`
	URLs    int       `json:"urls"`
	Failed  int       `json:"failed"`
	Details string    `json:"details,omitempty"`
	At      time.Time `json:"at"`
}

// RunLog records run events.
type RunLog struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// NewRunLog returns a RunLog writing to db.
func NewRunLog(db *sql.DB, logger *slog.Logger) *RunLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{db: db, newID: idgen.Prefixed("evt_", idgen.Default), logger: logger}
}

// Log records e. Failures are logged, never returned: a broken run log must
// not stop the audits it describes.
func (l *RunLog) Log(ctx context.Context, e RunEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO run_events (event_id, run_id, kind, action, urls, failed, details, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), e.RunID, e.Kind, e.Action, e.URLs, e.Failed, e.Details, e.At.Unix())
	if err != nil {
		l.logger.Error("observability: run event", "error", err, "run_id", e.RunID, "action", e.Action)
	}
}

// Events returns the events of runID in the order they happened.
func (l *RunLog) Events(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, kind, action, urls, failed, COALESCE(details, ''), created_at
		FROM run_events WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("observability: run events: %w", err)
	}
	defer rows.Close()

	var out []RunEvent
	for rows.Next() {
		var (
			e  RunEvent
			ts int64
		)
		if err := rows.Scan(&e.RunID, &e.Kind, &e.Action, &e.URLs, &e.Failed, &e.Details, &ts); err != nil {
			return nil, fmt.Errorf("observability: scan run event: %w", err)
		}
		e.At = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Retention is the per-table retention in days. Zero keeps everything.
type Retention struct {
	MetricsDays    int
	HeartbeatsDays int
	RunEventsDays  int
}

// Cleanup deletes rows older than the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, r Retention) error {
	now := time.Now()
	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM metrics_timeseries WHERE timestamp < ?", r.MetricsDays},
		{"DELETE FROM worker_heartbeats WHERE timestamp < ?", r.HeartbeatsDays},
		{"DELETE FROM run_events WHERE created_at < ?", r.RunEventsDays},
	}
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, t.query, now.AddDate(0, 0, -t.days).Unix()); err != nil {
			return fmt.Errorf("observability: cleanup: %w", err)
		}
	}
	return nil
}
