package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/consentcrawl/consent"
	"github.com/hazyhaar/consentcrawl/horosafe"
)

// WriteJSON writes r as indented JSON to <dir>/<safe domain>.json, creating
// dir when needed, and returns the file path. A re-audit overwrites the file.
func WriteJSON(dir string, r consent.AuditResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: output dir: %w", err)
	}
	path, err := horosafe.OutputPath(dir, r.DomainName, ".json")
	if err != nil {
		return "", fmt.Errorf("store: output path: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("store: encode %s: %w", r.URL, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("store: write %s: %w", path, err)
	}
	return path, nil
}
