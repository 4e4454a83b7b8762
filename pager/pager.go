// Package pager implements the paged storage engine's buffer-manager
// contract: pin+lock protocol, dirty tracking, WAL-backed durability, free
// page reuse, and a sidecar superblock — adapted from the teacher's
// internal/storage/pager/pager.go LRU buffer pool and Checkpoint/Recover
// design, restructured around GiST pages and the per-page latch discipline
// spec section 5 requires instead of the teacher's single coarse pager lock.
package pager

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/wal"
)

// Strategy is a buffer-access strategy hint. BulkScan tells the pool not to
// let a long sequential physical-pass scan evict the whole working set —
// pages read under it are not promoted to the front of the LRU list.
type Strategy int

const (
	Normal Strategy = iota
	BulkScan
)

// frame is one cached page.
type frame struct {
	id     page.ID
	buf    []byte
	dirty  bool
	pinned int
	prev   *frame
	next   *frame
}

type bufferPool struct {
	mu       sync.Mutex
	maxPages int
	frames   map[page.ID]*frame
	head     *frame
	tail     *frame
}

func newBufferPool(maxPages int) *bufferPool {
	if maxPages <= 0 {
		maxPages = 1024
	}
	return &bufferPool{maxPages: maxPages, frames: make(map[page.ID]*frame, maxPages)}
}

func (bp *bufferPool) pushFront(f *frame) {
	f.prev, f.next = nil, bp.head
	if bp.head != nil {
		bp.head.prev = f
	}
	bp.head = f
	if bp.tail == nil {
		bp.tail = f
	}
}

func (bp *bufferPool) unlink(f *frame) {
	if f.prev != nil {
		f.prev.next = f.next
	} else {
		bp.head = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	} else {
		bp.tail = f.prev
	}
	f.prev, f.next = nil, nil
}

func (bp *bufferPool) moveToFront(f *frame) {
	bp.unlink(f)
	bp.pushFront(f)
}

func (bp *bufferPool) get(id page.ID, promote bool) (*frame, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.frames[id]
	if ok && promote {
		bp.moveToFront(f)
	}
	return f, ok
}

func (bp *bufferPool) insert(f *frame, promote bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if _, exists := bp.frames[f.id]; exists {
		return
	}
	for len(bp.frames) >= bp.maxPages {
		if !bp.evictOne() {
			break // every cached page pinned or dirty — grow past the cap rather than stall
		}
	}
	bp.frames[f.id] = f
	if promote {
		bp.pushFront(f)
	} else {
		// BulkScan: park at the tail so it is the first evicted, never
		// displacing the working set the way a sequential scan would.
		f.prev = bp.tail
		if bp.tail != nil {
			bp.tail.next = f
		}
		bp.tail = f
		if bp.head == nil {
			bp.head = f
		}
	}
}

func (bp *bufferPool) evictOne() bool {
	for f := bp.tail; f != nil; f = f.prev {
		if f.pinned == 0 && !f.dirty {
			bp.unlink(f)
			delete(bp.frames, f.id)
			return true
		}
	}
	return false
}

func (bp *bufferPool) remove(id page.ID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if f, ok := bp.frames[id]; ok {
		bp.unlink(f)
		delete(bp.frames, id)
	}
}

func (bp *bufferPool) dirtyFrames() []*frame {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	var out []*frame
	for _, f := range bp.frames {
		if f.dirty {
			out = append(out, f)
		}
	}
	return out
}

// Config configures a Pager.
type Config struct {
	DataPath      string // main page file
	WALPath       string // defaults to DataPath + ".wal"
	MetaPath      string // superblock sidecar, defaults to DataPath + ".meta"
	PageSize      int    // defaults to page.DefaultPageSize
	MaxCachePages int    // buffer pool capacity, defaults to 1024
}

// Pager is the central I/O layer: every page read or write goes through it so
// CRC validation, pin+lock discipline, and WAL logging happen uniformly.
type Pager struct {
	mu       sync.Mutex
	file     *os.File
	wal      *wal.File
	pool     *bufferPool
	locks    *LockManager
	free     *freeManager
	sb       *Superblock
	pageSize int
	dataPath string
	walPath  string
	metaPath string
	closed   bool
}

// Open opens or creates a paged database at cfg.DataPath.
func Open(cfg Config) (*Pager, error) {
	ps := cfg.PageSize
	if ps == 0 {
		ps = page.DefaultPageSize
	}
	if ps < page.MinPageSize || ps > page.MaxPageSize || ps&(ps-1) != 0 {
		return nil, fmt.Errorf("pager: invalid page size %d", ps)
	}

	metaPath := cfg.MetaPath
	if metaPath == "" {
		metaPath = cfg.DataPath + ".meta"
	}
	walPath := cfg.WALPath
	if walPath == "" {
		walPath = cfg.DataPath + ".wal"
	}

	isNew := true
	if _, err := os.Stat(cfg.DataPath); err == nil {
		isNew = false
	}

	f, err := os.OpenFile(cfg.DataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open data file: %w", err)
	}

	p := &Pager{
		file:     f,
		pageSize: ps,
		dataPath: cfg.DataPath,
		walPath:  walPath,
		metaPath: metaPath,
		pool:     newBufferPool(cfg.MaxCachePages),
		locks:    NewLockManager(),
		free:     newFreeManager(),
	}

	if isNew {
		p.sb = NewSuperblock(ps)
		if err := p.writeMeta(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		sb, err := p.readMeta()
		if err != nil {
			f.Close()
			return nil, err
		}
		p.sb = sb
		p.pageSize = int(sb.PageSize)
		if sb.FreeListRoot != page.Invalid {
			if err := p.free.loadFromDisk(sb.FreeListRoot, p.readPageRaw); err != nil {
				f.Close()
				return nil, fmt.Errorf("pager: load freelist: %w", err)
			}
		}
	}

	wf, err := wal.Open(walPath, p.pageSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: open WAL: %w", err)
	}
	p.wal = wf

	return p, nil
}

func (p *Pager) readMeta() (*Superblock, error) {
	buf, err := os.ReadFile(p.metaPath)
	if err != nil {
		return nil, fmt.Errorf("pager: read superblock: %w", err)
	}
	return UnmarshalSuperblock(buf)
}

func (p *Pager) writeMeta() error {
	return os.WriteFile(p.metaPath, p.sb.Marshal(), 0644)
}

func (p *Pager) readPageRaw(id page.ID) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	return buf, nil
}

func (p *Pager) writePageRaw(id page.ID, buf []byte) error {
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	return nil
}

// ── Buffer-manager contract ──────────────────────────────────────────────
//
// ReadPage, PinShare/PinExclusive, Unlock, Release, MarkDirty,
// PageGetLSN/SetPageLSN, Checkpage, Yield — named after spec section 6's
// "buffer-manager contract consumed" list.

// ReadPage loads a page into the cache (if not already resident) and
// returns its buffer, pinned. strategy controls LRU placement for
// sequential scans.
func (p *Pager) ReadPage(id page.ID, strategy Strategy) ([]byte, error) {
	promote := strategy != BulkScan
	if f, ok := p.pool.get(id, promote); ok {
		p.pool.mu.Lock()
		f.pinned++
		p.pool.mu.Unlock()
		return f.buf, nil
	}
	buf, err := p.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	f := &frame{id: id, buf: buf, pinned: 1}
	p.pool.insert(f, promote)
	return f.buf, nil
}

// PinShare acquires the page's share lock for inspection. Caller must pin
// first via ReadPage; PinShare only takes the lock.
func (p *Pager) PinShare(id page.ID) {
	p.locks.Lock(id, Share)
}

// PinExclusive acquires the page's exclusive lock for mutation. Per spec
// section 5, a caller holding Share must Unlock it before calling this —
// there is no upgrade-in-place.
func (p *Pager) PinExclusive(id page.ID) {
	p.locks.Lock(id, Exclusive)
}

// Unlock releases a page lock held in the given mode.
func (p *Pager) Unlock(id page.ID, mode LockMode) {
	p.locks.Unlock(id, mode)
}

// Release unpins a page, making it eligible for eviction once its pin count
// reaches zero.
func (p *Pager) Release(id page.ID) {
	if f, ok := p.pool.get(id, false); ok {
		p.pool.mu.Lock()
		if f.pinned > 0 {
			f.pinned--
		}
		p.pool.mu.Unlock()
	}
}

// MarkDirty flags a cached page as needing to be flushed at the next
// checkpoint.
func (p *Pager) MarkDirty(id page.ID) {
	if f, ok := p.pool.get(id, false); ok {
		p.pool.mu.Lock()
		f.dirty = true
		p.pool.mu.Unlock()
	}
}

// PageGetLSN reads the LSN stamped in a page buffer's common header.
func PageGetLSN(buf []byte) page.LSN { return page.UnmarshalHeader(buf).LSN }

// SetPageLSN stamps an LSN into a page buffer's common header and
// recomputes its CRC so the two always travel together (spec 4.C step 7:
// "lock held across the WAL emission so LSN stamping is atomic with the
// page image").
func SetPageLSN(buf []byte, lsn page.LSN) {
	page.Wrap(buf).SetLSN(lsn)
	page.SetCRC(buf)
}

// Checkpage verifies a page buffer's CRC, surfacing corruption as the
// Integrity-class error the vacuum core propagates and aborts on.
func Checkpage(buf []byte) error {
	return page.VerifyCRC(buf)
}

// Yield is the cooperative yield point inserted after every page access. It
// returns the context's error if cancellation or a deadline has fired,
// otherwise nil. No other pager operation blocks on cancellation.
func Yield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ── Allocation, WAL emission, checkpoint ─────────────────────────────────

// AllocPage hands out a free page id — reused from the free-list if one is
// available, otherwise by extending the file — and returns it pinned with a
// zeroed buffer.
func (p *Pager) AllocPage() (page.ID, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.free.alloc()
	if id == page.Invalid {
		id = p.sb.NextPageID
		p.sb.NextPageID++
	}
	buf := make([]byte, p.pageSize)
	f := &frame{id: id, buf: buf, pinned: 1}
	p.pool.insert(f, true)
	return id, buf
}

// FreePage marks a page id free for reuse and drops it from the cache.
func (p *Pager) FreePage(id page.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.freePage(id)
	p.pool.remove(id)
}

// AppendWAL writes a WAL record and returns its assigned LSN. This is the
// pager's half of the "WAL contract consumed: EmitUpdate(...) -> LSN"
// interface spec section 6 names; the vacuum core builds the record.
func (p *Pager) AppendWAL(rec *wal.Record) (page.LSN, error) {
	return p.wal.AppendRecord(rec)
}

// PageCount returns N, the exclusive upper bound of the physical pass's
// `for b in [Root, N)` loop: every page id ever allocated, live or freed.
func (p *Pager) PageCount() page.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sb.NextPageID
}

// Checkpoint flushes dirty pages, the free-list, and the superblock to
// disk, fsyncs, and truncates the WAL — mirroring the teacher's
// Pager.Checkpoint but writing the superblock to its sidecar file instead
// of page 0 of the data file.
func (p *Pager) Checkpoint() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := &wal.Record{Type: wal.RecordCheckpoint}
	lsn, err := p.wal.AppendRecord(rec)
	if err != nil {
		return err
	}
	if err := p.wal.Sync(); err != nil {
		return err
	}

	for _, f := range p.pool.dirtyFrames() {
		if err := p.writePageRaw(f.id, f.buf); err != nil {
			return fmt.Errorf("pager: checkpoint flush page %d: %w", f.id, err)
		}
		p.pool.mu.Lock()
		f.dirty = false
		p.pool.mu.Unlock()
	}

	flHead, flPages := p.free.flushToDisk(p.pageSize, func() (page.ID, []byte) {
		id := p.sb.NextPageID
		p.sb.NextPageID++
		return id, make([]byte, p.pageSize)
	})
	for _, buf := range flPages {
		id := page.ID(page.UnmarshalHeader(buf).ID)
		page.SetCRC(buf)
		if err := p.writePageRaw(id, buf); err != nil {
			return fmt.Errorf("pager: checkpoint freelist page: %w", err)
		}
	}
	p.sb.FreeListRoot = flHead
	p.sb.CheckpointLSN = lsn

	if err := p.writeMeta(); err != nil {
		return fmt.Errorf("pager: checkpoint superblock: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	return p.wal.Truncate()
}

// PageSize returns the configured page size in bytes.
func (p *Pager) PageSize() int { return p.pageSize }

// Close performs a final checkpoint and closes all underlying files.
func (p *Pager) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.Checkpoint(); err != nil {
		_ = p.wal.Close()
		_ = p.file.Close()
		return err
	}
	if err := p.wal.Close(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}
