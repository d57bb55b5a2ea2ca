package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/dbopen"
)

// Summary is the listing form of a stored result.
type Summary struct {
	ID                 string         `json:"id"`
	URL                string         `json:"url"`
	DomainName         string         `json:"domain_name"`
	ExtractionDatetime time.Time      `json:"extraction_datetime"`
	Status             consent.Status `json:"status"`
	StatusMsg          string         `json:"status_msg"`
	CMPType            string         `json:"cmp_type,omitempty"`
	RunID              string         `json:"run_id,omitempty"`
	DurationMS         int64          `json:"duration_ms"`
}

const insertResult = `
	INSERT OR REPLACE INTO audit_results
		(id, url, domain_name, extraction_datetime, status, status_msg, duration_ms, cmp_type, run_id,
		 banner_info, categories, vendors, cookies, ui_context, screenshot_files,
		 actual_cookies, third_party_domains, tracking_domains)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// Save stores r, replacing any earlier result with the same id.
func (s *Store) Save(ctx context.Context, r consent.AuditResult) error {
	return s.SaveRun(ctx, "", r)
}

// SaveRun stores r tagged with the batch or scheduled run that produced it.
func (s *Store) SaveRun(ctx context.Context, runID string, r consent.AuditResult) error {
	if r.ID == "" {
		return errors.New("store: result without id")
	}
	cols := []any{
		r.BannerInfo, r.Categories, r.Vendors, r.Cookies, r.UIContext, r.ScreenshotFiles,
		r.ActualCookies, r.ThirdPartyDomains, r.TrackingDomains,
	}
	args := []any{
		r.ID, r.URL, r.DomainName, r.ExtractionDatetime.UTC().Format(time.RFC3339Nano),
		string(r.Status), r.StatusMsg, r.DurationMS, r.BannerInfo.CMPType, runID,
	}
	for _, c := range cols {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", r.ID, err)
		}
		args = append(args, string(b))
	}
	if _, err := dbopen.Exec(ctx, s.DB, insertResult, args...); err != nil {
		return fmt.Errorf("store: save %s: %w", r.URL, err)
	}
	return nil
}

// Get returns the result with id, or nil, nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*consent.AuditResult, error) {
	var (
		r       consent.AuditResult
		at      string
		status  string
		cmpType string
		runID   string
		blobs   [9]string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, url, domain_name, extraction_datetime, status, status_msg, duration_ms, cmp_type, run_id,
		       banner_info, categories, vendors, cookies, ui_context, screenshot_files,
		       actual_cookies, third_party_domains, tracking_domains
		FROM audit_results WHERE id = ?`, id).Scan(
		&r.ID, &r.URL, &r.DomainName, &at, &status, &r.StatusMsg, &r.DurationMS, &cmpType, &runID,
		&blobs[0], &blobs[1], &blobs[2], &blobs[3], &blobs[4], &blobs[5], &blobs[6], &blobs[7], &blobs[8],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}

	r.Status = consent.Status(status)
	r.ExtractionDatetime, _ = time.Parse(time.RFC3339Nano, at)
	dst := []any{
		&r.BannerInfo, &r.Categories, &r.Vendors, &r.Cookies, &r.UIContext, &r.ScreenshotFiles,
		&r.ActualCookies, &r.ThirdPartyDomains, &r.TrackingDomains,
	}
	for i, d := range dst {
		if err := json.Unmarshal([]byte(blobs[i]), d); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", id, err)
		}
	}
	return &r, nil
}

// List returns the most recent results, newest first. A non-positive limit
// means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.summaries(ctx, `
		SELECT id, url, domain_name, extraction_datetime, status, status_msg, cmp_type, run_id, duration_ms
		FROM audit_results ORDER BY extraction_datetime DESC LIMIT ?`, limit)
}

// ListRun returns the results of one run, by URL.
func (s *Store) ListRun(ctx context.Context, runID string) ([]Summary, error) {
	return s.summaries(ctx, `
		SELECT id, url, domain_name, extraction_datetime, status, status_msg, cmp_type, run_id, duration_ms
		FROM audit_results WHERE run_id = ? ORDER BY url`, runID)
}

func (s *Store) summaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum    Summary
			at     string
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.URL, &sum.DomainName, &at, &status, &sum.StatusMsg,
			&sum.CMPType, &sum.RunID, &sum.DurationMS); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		sum.Status = consent.Status(status)
		sum.ExtractionDatetime, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes the result with id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM audit_results WHERE id = ?`, id)
	return err
}
