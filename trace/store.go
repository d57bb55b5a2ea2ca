package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Schema holds the sql_traces table written by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS sql_traces (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL DEFAULT '',
	op          TEXT NOT NULL,
	query       TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sql_traces_at ON sql_traces(at);
CREATE INDEX IF NOT EXISTS idx_sql_traces_trace ON sql_traces(trace_id) WHERE trace_id != '';
`

const (
	storeBuffer = 1024
	storeBatch  = 64
)

// Store writes entries to sql_traces in batches, off the caller's path. Its
// database must be opened with the plain "sqlite" driver: traced writes of
// the traces would feed themselves.
type Store struct {
	db     *sql.DB
	ch     chan Entry
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu      sync.Mutex
	dropped int64
}

// NewStore starts a Store on db. The schema must already exist.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, ch: make(chan Entry, storeBuffer), done: make(chan struct{}), logger: logger}
	go s.loop()
	return s
}

// Record implements Recorder. Entries are dropped when the buffer is full.
func (s *Store) Record(e Entry) {
	select {
	case s.ch <- e:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many entries were lost to a full buffer.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close writes what is buffered and stops the Store. Record must not be
// called after Close.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

// Entries returns the entries recorded for traceID, oldest first.
func (s *Store) Entries(ctx context.Context, traceID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, op, query, duration_us, error, at
		FROM sql_traces WHERE trace_id = ? ORDER BY at, id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace: entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			us, at int64
		)
		if err := rows.Scan(&e.TraceID, &e.Op, &e.Query, &us, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("trace: scan entry: %w", err)
		}
		e.Duration = time.Duration(us) * time.Microsecond
		e.At = time.UnixMicro(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loop() {
	defer close(s.done)
	batch := make([]Entry, 0, storeBatch)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.write(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= storeBatch {
				s.write(batch)
				batch = batch[:0]
			}
		case <-tick.C:
			s.write(batch)
			batch = batch[:0]
		}
	}
}

func (s *Store) write(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("trace: begin", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO sql_traces (trace_id, op, query, duration_us, error, at) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("trace: prepare", "error", err)
		return
	}
	defer stmt.Close()
	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Op, e.Query, e.Duration.Microseconds(), e.Error, e.At.UnixMicro()); err != nil {
			s.logger.Error("trace: insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("trace: commit", "error", err)
	}
}
