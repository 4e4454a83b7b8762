package wal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/gistvacuum/page"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	f, err := Open(path, page.DefaultPageSize)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	lsn1, err := f.AppendRecord(&Record{Type: RecordUpdate, PageID: 3, Data: []byte("hello")})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	lsn2, err := f.AppendRecord(&Record{Type: RecordSplice, PageID: 5, Data: []byte("world")})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Fatalf("expected monotonic LSNs, got %d then %d", lsn1, lsn2)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Type != RecordUpdate || !bytes.Equal(recs[0].Data, []byte("hello")) {
		t.Errorf("record 0 mismatch: %+v", recs[0])
	}
	if recs[1].Type != RecordSplice || recs[1].PageID != 5 {
		t.Errorf("record 1 mismatch: %+v", recs[1])
	}
}

func TestTruncateResetsToHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")
	f, err := Open(path, page.DefaultPageSize)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.AppendRecord(&Record{Type: RecordCheckpoint}); err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	recs, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty WAL after truncate, got %d records", len(recs))
	}
}
