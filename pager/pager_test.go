package pager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/gistvacuum/page"
)

func openTestPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(Config{DataPath: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestAllocReadWritePage(t *testing.T) {
	p := openTestPager(t)

	id, buf := p.AllocPage()
	gp := page.InitGist(buf, id, true)
	if err := gp.AppendLeafTuple(page.LeafTuple{TID: page.HeapTID{Block: 1, Offset: 1}, Key: []byte("k")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	page.SetCRC(gp.Bytes())
	p.MarkDirty(id)
	p.Release(id)

	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	out, err := p.ReadPage(id, Normal)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := Checkpage(out); err != nil {
		t.Fatalf("checkpage: %v", err)
	}
	rgp := page.Wrap(out)
	if rgp.Count() != 1 {
		t.Fatalf("expected 1 tuple after reload, got %d", rgp.Count())
	}
	p.Release(id)
}

func TestFreePageReusedOnAlloc(t *testing.T) {
	p := openTestPager(t)

	id1, _ := p.AllocPage()
	p.Release(id1)
	p.FreePage(id1)
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	id2, _ := p.AllocPage()
	if id2 != id1 {
		t.Fatalf("expected freed page %d to be reused, got %d", id1, id2)
	}
	p.Release(id2)
}

func TestPinExclusiveBlocksShare(t *testing.T) {
	p := openTestPager(t)
	id, _ := p.AllocPage()
	p.Release(id)

	p.PinExclusive(id)
	done := make(chan struct{})
	go func() {
		p.PinShare(id)
		p.Unlock(id, Share)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("share lock acquired while exclusive lock held")
	default:
	}
	p.Unlock(id, Exclusive)
	<-done
}

func TestYieldRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := Yield(ctx); err != nil {
		t.Fatalf("expected no error before cancel, got %v", err)
	}
	cancel()
	if err := Yield(ctx); err == nil {
		t.Fatal("expected error after cancel")
	}
}

func TestReopenRecoversSuperblock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p1, err := Open(Config{DataPath: path})
	if err != nil {
		t.Fatal(err)
	}
	p1.AllocPage()
	p1.AllocPage()
	if err := p1.Close(); err != nil {
		t.Fatal(err)
	}

	p2, err := Open(Config{DataPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()
	if p2.PageCount() != 2 {
		t.Fatalf("expected page count 2 after reopen, got %d", p2.PageCount())
	}
}
