package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/SimonWaldherr/gistvacuum/config"
	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	pg, err := pager.Open(pager.Config{
		DataPath:      filepath.Join(dir, "gist.db"),
		WALPath:       filepath.Join(dir, "gist.wal"),
		MetaPath:      filepath.Join(dir, "gist.meta"),
		PageSize:      8192,
		MaxCachePages: 64,
	})
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	return pg
}

func TestRunOnceEmptyIndex(t *testing.T) {
	pg := openTestPager(t)
	s := New(pg, config.MaintenanceConfig{WorkMemKiB: 4096}, func(page.HeapTID) bool { return false })

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	stats := s.LastStats()
	if stats == nil {
		t.Fatal("expected stats to be recorded")
	}
	if stats.TuplesRemoved != 0 || stats.PagesDeleted != 0 {
		t.Errorf("expected no-op stats on empty index, got %+v", stats)
	}
}

func TestNoOverlapSkipsConcurrentRun(t *testing.T) {
	pg := openTestPager(t)
	s := New(pg, config.MaintenanceConfig{WorkMemKiB: 4096, NoOverlap: true}, func(page.HeapTID) bool { return false })

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runScheduled()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runScheduled did not return promptly when overlap should have been skipped")
	}

	if s.LastStats() != nil {
		t.Error("expected skipped run to leave lastStats nil")
	}
}

func TestStartAndStopRegistersJob(t *testing.T) {
	pg := openTestPager(t)
	s := New(pg, config.MaintenanceConfig{WorkMemKiB: 4096, CronExpr: "*/1 * * * * *"}, func(page.HeapTID) bool { return false })

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}
