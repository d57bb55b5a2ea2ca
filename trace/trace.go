// Package trace follows the SQL that consentcrawl runs against SQLite.
//
// Importing it registers the "sqlite-trace" driver, a wrapper around
// modernc.org/sqlite. A database opened with that driver (dbopen.WithTrace)
// logs every statement with the request trace id found in the context:
// Debug normally, Warn above SlowQuery, Error on failure. When a Recorder is
// set, entries are also handed to it, usually a Store writing to a separate
// trace database:
//
//	traceDB, _ := dbopen.Open("data/traces.db", dbopen.WithSchema(trace.Schema))
//	traces := trace.NewStore(traceDB, logger)
//	trace.SetRecorder(traces)
//	defer traces.Close()
//
//	st, _ := store.Open("data/consentcrawl.db", dbopen.WithTrace())
package trace

import (
	"database/sql"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// SlowQuery is the duration above which a statement is logged at Warn.
const SlowQuery = 100 * time.Millisecond

// Entry is one traced statement.
type Entry struct {
	TraceID  string        `json:"trace_id,omitempty"`
	Op       string        `json:"op"` // Exec or Query
	Query    string        `json:"query"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// Recorder keeps entries. Record must not block.
type Recorder interface {
	Record(e Entry)
}

var (
	recMu    sync.RWMutex
	recorder Recorder
)

// SetRecorder sets the process-wide recorder; nil keeps logging only.
func SetRecorder(r Recorder) {
	recMu.Lock()
	recorder = r
	recMu.Unlock()
}

func currentRecorder() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}
