package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// RuntimeMetrics is the Go process health at one point in time.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics reads the runtime statistics.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / 1024 / 1024,
		MemorySysMB:     float64(mem.Sys) / 1024 / 1024,
		GCCount:         mem.NumGC,
	}
}

// HeartbeatWriter writes a liveness row for a long-running service at a
// fixed interval. Chrome leaks show up as memory growth between beats.
type HeartbeatWriter struct {
	db       *sql.DB
	name     string
	hostname string
	pid      int
	interval time.Duration
	logger   *slog.Logger
}

// NewHeartbeatWriter returns a writer for the service name.
func NewHeartbeatWriter(db *sql.DB, name string, interval time.Duration, logger *slog.Logger) *HeartbeatWriter {
	if logger == nil {
		logger = slog.Default()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{db: db, name: name, hostname: hostname, pid: os.Getpid(), interval: interval, logger: logger}
}

// Run writes one heartbeat immediately and then one per interval until ctx
// ends.
func (hw *HeartbeatWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()
	for {
		if err := hw.Write(ctx); err != nil && ctx.Err() == nil {
			hw.logger.Error("observability: heartbeat", "error", err, "worker", hw.name)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Write records one heartbeat.
func (hw *HeartbeatWriter) Write(ctx context.Context) error {
	m := CollectRuntimeMetrics()
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.name, hw.hostname, hw.pid, time.Now().Unix(),
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("observability: insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the latest heartbeat of a service.
type HeartbeatStatus struct {
	WorkerName      string    `json:"worker_name"`
	Hostname        string    `json:"hostname"`
	PID             int       `json:"pid"`
	Timestamp       time.Time `json:"timestamp"`
	GoroutinesCount int       `json:"goroutines_count"`
	MemoryAllocMB   float64   `json:"memory_alloc_mb"`
	Alive           bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat of name; Alive reports whether
// it is younger than staleAfter. It returns nil, nil before the first beat.
func LatestHeartbeat(ctx context.Context, db *sql.DB, name string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	var (
		hs HeartbeatStatus
		ts int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp, goroutines_count, memory_alloc_mb
		FROM worker_heartbeats WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, name).
		Scan(&hs.WorkerName, &hs.Hostname, &hs.PID, &ts, &hs.GoroutinesCount, &hs.MemoryAllocMB)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("observability: latest heartbeat: %w", err)
	}
	hs.Timestamp = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.Timestamp) <= staleAfter
	return &hs, nil
}
