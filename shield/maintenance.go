package shield

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// MaintenanceMode answers 503 while the maintenance row is active. consentd
// uses it to stop taking audits, for example during a browser upgrade,
// without stopping scheduled runs or health checks.
type MaintenanceMode struct {
	db      *sql.DB
	logger  *slog.Logger
	exclude []string

	active  atomic.Bool
	message atomic.Value // string
}

// NewMaintenanceMode reads the flag from db. Paths under excludePrefixes are
// never blocked.
func NewMaintenanceMode(db *sql.DB, logger *slog.Logger, excludePrefixes ...string) *MaintenanceMode {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MaintenanceMode{db: db, logger: logger, exclude: excludePrefixes}
	m.message.Store("audits paused for maintenance")
	m.Reload()
	return m
}

// Active reports whether maintenance is on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Set turns maintenance on or off and persists the flag.
func (m *MaintenanceMode) Set(active bool, message string) error {
	v := 0
	if active {
		v = 1
	}
	if message == "" {
		message = m.Message()
	}
	if _, err := m.db.Exec(`
		INSERT INTO maintenance (id, active, message) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET active = excluded.active, message = excluded.message`, v, message); err != nil {
		return err
	}
	m.Reload()
	return nil
}

// StartReloader reloads the flag every 5 seconds until done is closed.
func (m *MaintenanceMode) StartReloader(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Second)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				m.Reload()
			}
		}
	}()
}

// Reload reads the flag. A missing table or row means maintenance is off.
func (m *MaintenanceMode) Reload() {
	var (
		active  int
		message string
	)
	if err := m.db.QueryRow(`SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message); err != nil {
		m.active.Store(false)
		return
	}
	was := m.active.Swap(active == 1)
	if message != "" {
		m.message.Store(message)
	}
	switch {
	case active == 1 && !was:
		m.logger.Warn("shield: maintenance on", "message", message)
	case active != 1 && was:
		m.logger.Info("shield: maintenance off")
	}
}

// Middleware answers 503 with a JSON error while maintenance is on.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Retry-After", "300")
		WriteError(w, http.StatusServiceUnavailable, m.Message())
	})
}
