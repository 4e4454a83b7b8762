package cleanup

import (
	"context"
	"path/filepath"
	"testing"

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

func allocInitPage(t *testing.T, pg *pager.Pager, leaf, deleted bool) page.ID {
	t.Helper()
	id, buf := pg.AllocPage()
	gp := page.InitGist(buf, id, leaf)
	gp.SetDeleted(deleted)
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
	return id
}

func TestVacuumCleanupFreesDeletedPages(t *testing.T) {
	pg := openTestPager(t)
	root := allocInitPage(t, pg, false, false)
	_ = root
	deleted1 := allocInitPage(t, pg, true, true)
	live := allocInitPage(t, pg, true, false)
	deleted2 := allocInitPage(t, pg, true, true)
	scanned := pg.PageCount() // the checkpoint after freeing allocates a free-list page

	result, err := VacuumCleanup(context.Background(), pg)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.FreedPages != 2 {
		t.Errorf("freed_pages = %d, want 2", result.FreedPages)
	}
	if result.TotalPages != int(scanned) {
		t.Errorf("total_pages = %d, want %d", result.TotalPages, scanned)
	}

	reused, _ := pg.AllocPage()
	if reused != deleted1 && reused != deleted2 {
		t.Errorf("expected a freed page id to be reused, got %d", reused)
	}
	pg.Release(reused)
	_ = live
}

func TestVacuumCleanupNeverFreesRoot(t *testing.T) {
	pg := openTestPager(t)
	root := allocInitPage(t, pg, true, false)
	gp := page.Wrap(mustReadPage(t, pg, root))
	gp.SetDeleted(true) // pathological: root should never actually be set this way in practice
	page.SetCRC(gp.Bytes())
	pg.MarkDirty(root)
	pg.Release(root)

	result, err := VacuumCleanup(context.Background(), pg)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.FreedPages != 0 {
		t.Errorf("freed_pages = %d, want 0 (root must never be freed)", result.FreedPages)
	}
}

func TestVacuumCleanupFreesNewUninitializedPages(t *testing.T) {
	pg := openTestPager(t)
	allocInitPage(t, pg, false, false) // root
	live := allocInitPage(t, pg, true, false)

	id, buf := pg.AllocPage() // never InitGist'd
	pg.MarkDirty(id)
	pg.Release(id)

	result, err := VacuumCleanup(context.Background(), pg)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.FreedPages != 1 {
		t.Errorf("freed_pages = %d, want 1", result.FreedPages)
	}

	reused, _ := pg.AllocPage()
	if reused != id {
		t.Errorf("expected the new/uninitialized page id %d to be reused, got %d", id, reused)
	}
	pg.Release(reused)
	_ = live
	_ = buf
}

func TestVacuumCleanupFreesNothingWhenAllPagesLive(t *testing.T) {
	pg := openTestPager(t)
	allocInitPage(t, pg, true, false)
	allocInitPage(t, pg, true, false)

	result, err := VacuumCleanup(context.Background(), pg)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.FreedPages != 0 {
		t.Errorf("freed_pages = %d, want 0", result.FreedPages)
	}
}

func mustReadPage(t *testing.T, pg *pager.Pager, id page.ID) []byte {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	return buf
}
