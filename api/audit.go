package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/horosafe"
	"github.com/hazyhaar/consentcrawl/kit"
	"github.com/hazyhaar/consentcrawl/store"
)

// Errors returned by the audit endpoint, mapped to HTTP statuses.
var (
	ErrNotReady   = errors.New("browser not initialized, service may be starting up")
	ErrBadRequest = errors.New("bad request")
	ErrTimeout    = errors.New("audit timeout, site may be too complex or slow")
)

// AuditRequest is the body of POST /audit and the arguments of the MCP tool
// audit_url. Config fields override the service configuration one by one.
type AuditRequest struct {
	URL        string          `json:"url"`
	Config     json.RawMessage `json:"config,omitempty"`
	Screenshot *bool           `json:"screenshot,omitempty"`
}

// auditEndpoint validates the request, runs the audit within the context
// deadline and keeps the result.
func (s *Server) auditEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*AuditRequest)
	if s.opts.Ready != nil && !s.opts.Ready() {
		return nil, ErrNotReady
	}
	if r.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrBadRequest)
	}
	target, err := horosafe.ValidateURL(ctx, r.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	auditor := s.opts.Auditor
	if len(r.Config) > 0 || r.Screenshot != nil {
		cfg, err := s.requestConfig(r)
		if err != nil {
			return nil, err
		}
		auditor = auditor.WithConfig(cfg)
	}

	res := auditor.Audit(ctx, target)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	s.keep(ctx, res)
	return &res, nil
}

// requestConfig decodes the overrides on top of the service configuration.
func (s *Server) requestConfig(r *AuditRequest) (consent.AuditConfig, error) {
	cfg := s.opts.Auditor.Config()
	cfg.Languages = append([]string(nil), cfg.Languages...)
	if len(r.Config) > 0 && string(r.Config) != "null" {
		if err := json.Unmarshal(r.Config, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: config: %v", ErrBadRequest, err)
		}
	}
	if r.Screenshot != nil {
		cfg.Screenshot = *r.Screenshot
	}
	return cfg.Normalize(), nil
}

// keep stores the result and writes its JSON file when configured. Failures
// are logged; the caller still gets the result.
func (s *Server) keep(ctx context.Context, res consent.AuditResult) {
	if s.opts.Store != nil {
		if err := s.opts.Store.Save(context.WithoutCancel(ctx), res); err != nil {
			s.logger.Error("api: save result", "url", res.URL, "error", err)
		}
	}
	if s.opts.JSONDir != "" {
		if _, err := store.WriteJSON(s.opts.JSONDir, res); err != nil {
			s.logger.Error("api: write result", "url", res.URL, "error", err)
		}
	}
}

func (s *Server) endpoint() kit.Endpoint {
	return kit.Chain(
		kit.Logging(s.logger, "audit"),
		kit.WithTimeout(s.opts.Timeout),
	)(s.auditEndpoint)
}
