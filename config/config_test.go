package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("pager:\n  data_path: /tmp/gist.db\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pager.DataPath != "/tmp/gist.db" {
		t.Errorf("data path not preserved: %q", cfg.Pager.DataPath)
	}
	if cfg.Pager.PageSizeBytes != defaultPageSizeBytes {
		t.Errorf("expected default page size, got %d", cfg.Pager.PageSizeBytes)
	}
	if cfg.Maintenance.WorkMemKiB != defaultWorkMemKiB {
		t.Errorf("expected default work mem, got %d", cfg.Maintenance.WorkMemKiB)
	}
	if cfg.Maintenance.CronExpr != defaultCronExpr {
		t.Errorf("expected default cron expr, got %q", cfg.Maintenance.CronExpr)
	}
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "pager:\n  data_path: /tmp/gist.db\n  page_size_bytes: 16384\nmaintenance:\n  work_mem_kib: 1024\n  cron_expr: \"*/5 * * * * *\"\n  no_overlap: true\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pager.PageSizeBytes != 16384 {
		t.Errorf("page size override not applied: %d", cfg.Pager.PageSizeBytes)
	}
	if cfg.Maintenance.WorkMemKiB != 1024 {
		t.Errorf("work mem override not applied: %d", cfg.Maintenance.WorkMemKiB)
	}
	if !cfg.Maintenance.NoOverlap {
		t.Error("no_overlap override not applied")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
