package gistvacuum

import (
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
		MaxCachePages: 256,
	})
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	return pg
}

func allocPage(t *testing.T, pg *pager.Pager, leaf bool) page.ID {
	t.Helper()
	id, buf := pg.AllocPage()
	page.InitGist(buf, id, leaf)
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
	return id
}

func appendLeafTuple(t *testing.T, pg *pager.Pager, id page.ID, tup page.LeafTuple) {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	gp := page.Wrap(buf)
	if err := gp.AppendLeafTuple(tup); err != nil {
		t.Fatalf("append leaf tuple: %v", err)
	}
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
}

func appendDownlink(t *testing.T, pg *pager.Pager, id page.ID, dl page.Downlink) {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	gp := page.Wrap(buf)
	if err := gp.AppendDownlink(dl); err != nil {
		t.Fatalf("append downlink: %v", err)
	}
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
}

func setRightLink(t *testing.T, pg *pager.Pager, id, right page.ID) {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	page.Wrap(buf).SetRightLink(right)
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
}

func setFollowRight(t *testing.T, pg *pager.Pager, id page.ID, v bool) {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	page.Wrap(buf).SetFollowRight(v)
	page.SetCRC(buf)
	pg.MarkDirty(id)
	pg.Release(id)
}

func readPage(t *testing.T, pg *pager.Pager, id page.ID) *page.GistPage {
	t.Helper()
	buf, err := pg.ReadPage(id, pager.Normal)
	if err != nil {
		t.Fatalf("read page %d: %v", id, err)
	}
	return page.Wrap(buf)
}

func tid(block uint32, offset uint16) page.HeapTID {
	return page.HeapTID{Block: block, Offset: offset}
}
