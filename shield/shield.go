// Package shield is the HTTP middleware stack of the consentcrawl API:
// security headers, request body limit, trace id with a per-request logger,
// per-client rate limits and a maintenance switch, the last two driven by
// SQLite tables.
//
//	stack, mm, rl := shield.APIStack(db, logger, "/health")
//	mm.StartReloader(done)
//	rl.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key of the per-request logger.
const LoggerKey contextKey = "shield_logger"

// MaxRequestBody bounds JSON request bodies.
const MaxRequestBody = 1 << 20

// APIStack returns the middleware stack of a JSON API, outermost first:
// SecurityHeaders, MaxBody, Trace, RateLimiter, MaintenanceMode. Paths under
// exempt bypass rate limits and maintenance.
func APIStack(db *sql.DB, logger *slog.Logger, exempt ...string) ([]func(http.Handler) http.Handler, *MaintenanceMode, *RateLimiter) {
	if logger == nil {
		logger = slog.Default()
	}
	rl := NewRateLimiter(db, logger, exempt...)
	mm := NewMaintenanceMode(db, logger, exempt...)
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(MaxRequestBody),
		Trace(logger),
		rl.Middleware,
		mm.Middleware,
	}, mm, rl
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WriteError writes {"error": msg} with status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
