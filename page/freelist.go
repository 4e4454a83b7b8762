package page

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Free-list pages
// ───────────────────────────────────────────────────────────────────────────
//
// Adapted from the teacher's free-list page format: a singly-linked chain of
// pages, each holding an array of free page ids. VacuumCleanup (cleanup
// package) appends to this chain when it discovers new/deleted pages; the
// pager consumes it on AllocPage. This is deliberately simpler than a real
// free-space map (spec Non-goals exclude "FSM maintenance algorithm") — it
// only tracks "this page id is free", not per-page free-byte counts.

const (
	freeListNextOff  = HeaderSize // immediately after the common header
	freeListCountOff = freeListNextOff + 4
	freeListDataOff  = freeListCountOff + 4
	freeListEntryLen = 4
)

// FreeListCapacity returns how many page ids fit on one free-list page.
func FreeListCapacity(pageSize int) int {
	return (pageSize - freeListDataOff) / freeListEntryLen
}

// FreeListPage wraps a page buffer as a free-list page.
type FreeListPage struct {
	buf []byte
}

func WrapFreeList(buf []byte) *FreeListPage { return &FreeListPage{buf: buf} }

func InitFreeList(buf []byte, id ID) *FreeListPage {
	h := &Header{Type: TypeFreeList, ID: id}
	MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[freeListNextOff:], uint32(Invalid))
	binary.LittleEndian.PutUint32(buf[freeListCountOff:], 0)
	return &FreeListPage{buf: buf}
}

func (fl *FreeListPage) Bytes() []byte { return fl.buf }

func (fl *FreeListPage) Next() ID {
	return ID(binary.LittleEndian.Uint32(fl.buf[freeListNextOff:]))
}
func (fl *FreeListPage) SetNext(id ID) {
	binary.LittleEndian.PutUint32(fl.buf[freeListNextOff:], uint32(id))
}

func (fl *FreeListPage) Count() int {
	return int(binary.LittleEndian.Uint32(fl.buf[freeListCountOff:]))
}

func (fl *FreeListPage) Get(i int) ID {
	off := freeListDataOff + i*freeListEntryLen
	return ID(binary.LittleEndian.Uint32(fl.buf[off:]))
}

// Add appends a free page id. Returns false if the page is full.
func (fl *FreeListPage) Add(id ID) bool {
	c := fl.Count()
	if c >= FreeListCapacity(len(fl.buf)) {
		return false
	}
	off := freeListDataOff + c*freeListEntryLen
	binary.LittleEndian.PutUint32(fl.buf[off:], uint32(id))
	binary.LittleEndian.PutUint32(fl.buf[freeListCountOff:], uint32(c+1))
	return true
}

// All returns every free page id stored on this page.
func (fl *FreeListPage) All() []ID {
	n := fl.Count()
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		ids[i] = fl.Get(i)
	}
	return ids
}
