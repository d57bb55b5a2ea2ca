package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/consentcrawl/idgen"
	"github.com/hazyhaar/consentcrawl/kit"
)

var newTraceID = idgen.NanoID(12)

// Trace gives each request a trace id, returned in X-Trace-ID and stored
// under kit.TraceIDKey, and a logger carrying it under LoggerKey. A trace id
// sent by the client is kept.
func Trace(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Trace-ID")
			if id == "" || len(id) > 64 {
				id = newTraceID()
			}
			w.Header().Set("X-Trace-ID", id)

			l := logger.With("trace_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := kit.WithTraceID(r.Context(), id)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
