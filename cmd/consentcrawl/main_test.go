package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTargets(t *testing.T) {
	got, err := targets("https://example.com")
	if err != nil || len(got) != 1 || got[0] != "https://example.com" {
		t.Fatalf("single = %v, %v", got, err)
	}

	dir := t.TempDir()
	list := filepath.Join(dir, "sites.TXT")
	if err := os.WriteFile(list, []byte("https://a.example/\n# skip\nhttps://b.example/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = targets(list)
	if err != nil || len(got) != 2 {
		t.Fatalf("list = %v, %v", got, err)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("\n# none\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := targets(empty); err == nil {
		t.Fatal("empty list accepted")
	}
}

func TestAuditConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.yaml")
	if err := os.WriteFile(path, []byte("max_ui_depth: 0\ntimeout_banner: 2500\nlanguages: [de]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := auditConfig(options{configPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxUIDepth != 0 || cfg.TimeoutBanner != 2500 || len(cfg.Languages) != 1 || cfg.Languages[0] != "de" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TimeoutModal != 8000 || cfg.BatchSize != 15 {
		t.Errorf("defaults lost: %+v", cfg)
	}

	if _, err := auditConfig(options{configPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("missing config accepted")
	}
}
