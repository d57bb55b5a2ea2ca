package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/consentcrawl/kit"
)

// Driver wraps a database/sql driver and traces the statements of its
// connections.
type Driver struct {
	driver.Driver
}

// Open implements driver.Driver.
func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c}, nil
}

type conn struct {
	driver.Conn
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	s, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &stmt{Stmt: s, query: query}, nil
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.Conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	s, err := pc.PrepareContext(ctx, query)
	if err != nil {
		observe(ctx, "Prepare", query, 0, err)
		return nil, err
	}
	return &stmt{Stmt: s, query: query}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bc, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bc.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type stmt struct {
	driver.Stmt
	query string
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args))
	}
	observe(ctx, "Exec", s.query, time.Since(start), err)
	return res, err
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args))
	}
	observe(ctx, "Query", s.query, time.Since(start), err)
	return rows, err
}

// observe logs one statement and hands it to the recorder. Fast successful
// PRAGMAs are skipped: dbopen issues several per connection.
func observe(ctx context.Context, op, query string, d time.Duration, err error) {
	if err == nil && d < 10*time.Millisecond && strings.HasPrefix(strings.TrimSpace(query), "PRAGMA") {
		return
	}
	e := Entry{TraceID: kit.GetTraceID(ctx), Op: op, Query: compact(query), Duration: d, At: time.Now()}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
		e.Error = err.Error()
	case d > SlowQuery:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", e.Query),
		slog.Duration("duration", d),
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	slog.LogAttrs(ctx, level, "trace: sql", attrs...)

	if r := currentRecorder(); r != nil {
		r.Record(e)
	}
}

// compact folds the whitespace of multi-line statements.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func values(named []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(named))
	for i, nv := range named {
		out[i] = nv.Value
	}
	return out
}
