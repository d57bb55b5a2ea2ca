package store

// Schema is the DDL of the audit results table. Nested result fields are
// stored as JSON text.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_results (
    id                  TEXT PRIMARY KEY,
    url                 TEXT NOT NULL,
    domain_name         TEXT NOT NULL,
    extraction_datetime TEXT NOT NULL,
    status              TEXT NOT NULL,
    status_msg          TEXT NOT NULL DEFAULT '',
    duration_ms         INTEGER NOT NULL DEFAULT 0,
    cmp_type            TEXT NOT NULL DEFAULT '',
    run_id              TEXT NOT NULL DEFAULT '',
    banner_info         TEXT NOT NULL DEFAULT '{}',
    categories          TEXT NOT NULL DEFAULT '[]',
    vendors             TEXT NOT NULL DEFAULT '[]',
    cookies             TEXT NOT NULL DEFAULT '[]',
    ui_context          TEXT NOT NULL DEFAULT '{}',
    screenshot_files    TEXT NOT NULL DEFAULT '[]',
    actual_cookies      TEXT NOT NULL DEFAULT '[]',
    third_party_domains TEXT NOT NULL DEFAULT '[]',
    tracking_domains    TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_audit_results_datetime ON audit_results(extraction_datetime DESC);
CREATE INDEX IF NOT EXISTS idx_audit_results_run ON audit_results(run_id);
`
