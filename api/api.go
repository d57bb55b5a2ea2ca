// Package api serves consent audits over HTTP (chi) and MCP.
//
//	POST /audit         {url, config, screenshot} -> audit result
//	GET  /health        browser readiness
//	GET  /              service information
//	GET  /audits        recent stored results
//	GET  /audits/{id}   one stored result by id or domain, JSON or ?format=markdown
//	     /mcp           MCP tool audit_url (streamable HTTP)
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/consentcrawl/audit"
	"github.com/hazyhaar/consentcrawl/report"
	"github.com/hazyhaar/consentcrawl/shield"
	"github.com/hazyhaar/consentcrawl/store"
)

// DefaultTimeout is the wall-clock budget of one API audit.
const DefaultTimeout = 120 * time.Second

// Options configures a Server.
type Options struct {
	Auditor *audit.Auditor

	// Ready reports whether the browser can take audits. Nil means always.
	Ready func() bool

	// Store keeps results and serves /audits. Optional.
	Store *store.Store

	// JSONDir, when set, receives one JSON file per audited domain.
	JSONDir string

	// Keys, when not empty, are required on every route but / and /health.
	Keys []Key

	// Middleware runs before routing, outermost first (shield.APIStack).
	Middleware []func(http.Handler) http.Handler

	Timeout time.Duration
	Version string
	Logger  *slog.Logger
}

// Server is the HTTP surface of consentcrawl.
type Server struct {
	opts   Options
	logger *slog.Logger
	report *report.Renderer
}

// New returns a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{opts: opts, logger: opts.Logger, report: report.New()}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	for _, mw := range s.opts.Middleware {
		r.Use(mw)
	}
	r.Use(RequireKey(s.opts.Keys, "/", "/health"))

	r.NotFound(s.notFound)
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/audit", s.handleAudit)
	r.Get("/audits", s.handleList)
	r.Get("/audits/{id}", s.handleGet)
	r.Handle("/mcp", s.MCPHandler())
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "consentcrawl",
		"version":     s.opts.Version,
		"description": "Cookie consent banner audit API",
		"endpoints":   endpoints,
	})
}

var endpoints = map[string]string{
	"POST /audit":      "Audit a URL for cookie consent compliance",
	"GET /health":      "Health check",
	"GET /audits":      "Recent audit results",
	"GET /audits/{id}": "One audit result (?format=markdown for a report)",
	"/mcp":             "MCP tool audit_url (streamable HTTP)",
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Ready == nil || s.opts.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy", "browser": "ready", "message": "Service is operational",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "degraded", "browser": "not_ready", "message": "Browser not initialized",
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.endpoint()(r.Context(), &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		shield.GetLogger(r.Context()).Error("api: audit", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotImplemented, "no result store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	list, err := s.opts.Store.List(r.Context(), limit)
	if err != nil {
		shield.GetLogger(r.Context()).Error("api: list results", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list, "count": len(list)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotImplemented, "no result store configured")
		return
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := s.opts.Store.Get(r.Context(), id)
	if err == nil && res == nil {
		// Results are keyed by domain, so /audits/news.example works too.
		res, err = s.opts.Store.Get(r.Context(), audit.ResultID(audit.DomainName(id)))
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("api: get result", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "no audit result "+id)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		s.report.Render(w, *res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":               "Not found",
		"message":             "The endpoint " + r.URL.Path + " does not exist",
		"available_endpoints": []string{"/", "/health", "/audit", "/audits", "/mcp"},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	shield.WriteError(w, code, msg)
}
