package page

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// GiST page format
// ───────────────────────────────────────────────────────────────────────────
//
// Every GiST page carries an "opaque area" right after the common header,
// then a slot directory that grows toward the end of the page while the
// tuple data fills from the end of the page back toward the opaque area.
// Inner-page tuples carry
// a child page id; leaf-page tuples carry a heap tuple id (HeapTID). Both
// share the same physical slot format: a 2-byte length-prefixed key blob
// following a fixed-size identifier field.
//
// Opaque area layout (immediately after the HeaderSize-byte common header):
//   [20:21]  Flags        (1 byte)  — bit0 leaf, bit1 deleted, bit2 followRight
//   [21:25]  RightLink    (uint32 LE)
//   [25:33]  NSN          (uint64 LE)
//   [33:41]  PruneXid     (uint64 LE)
//   [41:43]  SlotCount    (uint16 LE)
//   [43:45]  FreeSpaceEnd (uint16 LE)
//   [45:49]  Reserved
//
// Slot directory starts right after that, 4 bytes/slot (Offset uint16,
// Length uint16), matching the teacher's slotted-page convention
// (internal/storage/pager/slotted_page.go) but with the GiST-specific
// opaque fields folded directly into this area instead of bolting them on
// after a generic slotted page, the way internal/storage/pager/btree_page.go
// customizes the slotted-page offsets for its own B+Tree metadata.

const (
	gistFlagsOff      = HeaderSize // immediately after the common header
	gistRightLinkOff  = gistFlagsOff + 1
	gistNSNOff        = gistRightLinkOff + 4
	gistPruneXidOff   = gistNSNOff + 8
	gistSlotCountOff  = gistPruneXidOff + 8
	gistFreeSpaceOff  = gistSlotCountOff + 2
	gistSlotDirOff    = gistFreeSpaceOff + 2 + 4 // +4 bytes reserved padding
	gistSlotEntrySize = 4
)

// Opaque flag bits.
const (
	flagLeaf        uint8 = 1 << 0
	flagDeleted     uint8 = 1 << 1
	flagFollowRight uint8 = 1 << 2
)

// HeapTID identifies a heap tuple: the block it lives in and its offset
// within that block. Leaf-page tuples carry one of these as their payload.
type HeapTID struct {
	Block  uint32
	Offset uint16
}

func (t HeapTID) String() string { return fmt.Sprintf("(%d,%d)", t.Block, t.Offset) }

// GistPage wraps a raw page buffer as a GiST inner or leaf page.
type GistPage struct {
	buf []byte
}

// Wrap wraps an existing page buffer without touching its contents.
func Wrap(buf []byte) *GistPage { return &GistPage{buf: buf} }

// InitGist initializes buf as an empty GiST page of the given kind.
func InitGist(buf []byte, id ID, leaf bool) *GistPage {
	pt := TypeGistInner
	if leaf {
		pt = TypeGistLeaf
	}
	h := &Header{Type: pt, ID: id}
	MarshalHeader(h, buf)
	gp := &GistPage{buf: buf}
	var flags uint8
	if leaf {
		flags = flagLeaf
	}
	buf[gistFlagsOff] = flags
	gp.SetRightLink(Invalid)
	gp.setSlotCount(0)
	gp.setFreeSpaceEnd(len(buf))
	return gp
}

func (gp *GistPage) Bytes() []byte { return gp.buf }

func (gp *GistPage) ID() ID {
	return ID(binary.LittleEndian.Uint32(gp.buf[4:8]))
}

func (gp *GistPage) LSN() LSN {
	return LSN(binary.LittleEndian.Uint64(gp.buf[8:16]))
}

func (gp *GistPage) SetLSN(lsn LSN) {
	binary.LittleEndian.PutUint64(gp.buf[8:16], uint64(lsn))
}

func (gp *GistPage) flags() uint8 { return gp.buf[gistFlagsOff] }
func (gp *GistPage) setFlag(bit uint8, v bool) {
	if v {
		gp.buf[gistFlagsOff] |= bit
	} else {
		gp.buf[gistFlagsOff] &^= bit
	}
}

func (gp *GistPage) IsLeaf() bool        { return gp.flags()&flagLeaf != 0 }
func (gp *GistPage) SetLeaf(v bool)      { gp.setFlag(flagLeaf, v) }
func (gp *GistPage) IsDeleted() bool     { return gp.flags()&flagDeleted != 0 }
func (gp *GistPage) SetDeleted(v bool)   { gp.setFlag(flagDeleted, v) }
func (gp *GistPage) FollowRight() bool   { return gp.flags()&flagFollowRight != 0 }
func (gp *GistPage) SetFollowRight(v bool) { gp.setFlag(flagFollowRight, v) }

// IsEmpty reports whether the page has no live tuples. Combined with
// page.IsNew(buf) this implements the spec's "isNew = page is uninitialized
// OR empty" rule (spec 4.C step 6).
func (gp *GistPage) IsEmpty() bool { return gp.slotCount() == 0 }

func (gp *GistPage) RightLink() ID {
	return ID(binary.LittleEndian.Uint32(gp.buf[gistRightLinkOff:]))
}
func (gp *GistPage) SetRightLink(id ID) {
	binary.LittleEndian.PutUint32(gp.buf[gistRightLinkOff:], uint32(id))
}

func (gp *GistPage) NSN() NSN {
	return NSN(binary.LittleEndian.Uint64(gp.buf[gistNSNOff:]))
}
func (gp *GistPage) SetNSN(n NSN) {
	binary.LittleEndian.PutUint64(gp.buf[gistNSNOff:], uint64(n))
}

func (gp *GistPage) PruneXid() TxID {
	return TxID(binary.LittleEndian.Uint64(gp.buf[gistPruneXidOff:]))
}
func (gp *GistPage) SetPruneXid(t TxID) {
	binary.LittleEndian.PutUint64(gp.buf[gistPruneXidOff:], uint64(t))
}

// ── Slot directory (shift-on-delete, offsets collapse like a B-tree page) ──

func (gp *GistPage) slotCount() int {
	return int(binary.LittleEndian.Uint16(gp.buf[gistSlotCountOff:]))
}
func (gp *GistPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint16(gp.buf[gistSlotCountOff:], uint16(n))
}

// Count returns the number of live tuples on the page (1-based offsets
// 1..Count() are valid).
func (gp *GistPage) Count() int { return gp.slotCount() }

func (gp *GistPage) freeSpaceEnd() int {
	return int(binary.LittleEndian.Uint16(gp.buf[gistFreeSpaceOff:]))
}
func (gp *GistPage) setFreeSpaceEnd(off int) {
	binary.LittleEndian.PutUint16(gp.buf[gistFreeSpaceOff:], uint16(off))
}
func (gp *GistPage) slotDirEnd() int {
	return gistSlotDirOff + gp.slotCount()*gistSlotEntrySize
}
func (gp *GistPage) freeSpace() int {
	return gp.freeSpaceEnd() - gp.slotDirEnd() - gistSlotEntrySize
}

type slotEntry struct {
	Offset uint16
	Length uint16
}

func (gp *GistPage) getSlot(i int) slotEntry {
	off := gistSlotDirOff + i*gistSlotEntrySize
	return slotEntry{
		Offset: binary.LittleEndian.Uint16(gp.buf[off:]),
		Length: binary.LittleEndian.Uint16(gp.buf[off+2:]),
	}
}
func (gp *GistPage) setSlot(i int, e slotEntry) {
	off := gistSlotDirOff + i*gistSlotEntrySize
	binary.LittleEndian.PutUint16(gp.buf[off:], e.Offset)
	binary.LittleEndian.PutUint16(gp.buf[off+2:], e.Length)
}
func (gp *GistPage) record(i int) []byte {
	e := gp.getSlot(i)
	return gp.buf[e.Offset : e.Offset+e.Length]
}

// appendRecord appends raw record bytes as a new last slot (1-based offset
// Count() after the call).
func (gp *GistPage) appendRecord(data []byte) error {
	needed := len(data)
	if gp.freeSpace() < needed {
		return fmt.Errorf("gist page full: need %d, have %d free", needed, gp.freeSpace())
	}
	newEnd := gp.freeSpaceEnd() - needed
	copy(gp.buf[newEnd:], data)
	gp.setFreeSpaceEnd(newEnd)
	idx := gp.slotCount()
	gp.setSlot(idx, slotEntry{Offset: uint16(newEnd), Length: uint16(needed)})
	gp.setSlotCount(idx + 1)
	return nil
}

// DeleteAt physically removes the tuples at the given 0-based slot indices
// (already sorted ascending, already pre-adjusted by the caller per the
// "i - ntodelete" contract of spec 4.C) by shifting later slots down. This
// is the only mutation the vacuum core performs on live tuple data; it never
// tombstones, matching spec 4.C's instruction to physically remove offsets.
func (gp *GistPage) DeleteAt(indices []int) error {
	for _, idx := range indices {
		sc := gp.slotCount()
		if idx < 0 || idx >= sc {
			return fmt.Errorf("delete: slot %d out of range [0,%d)", idx, sc)
		}
		for i := idx; i < sc-1; i++ {
			gp.setSlot(i, gp.getSlot(i+1))
		}
		gp.setSlot(sc-1, slotEntry{})
		gp.setSlotCount(sc - 1)
	}
	return nil
}

// ── Inner (downlink) tuples ────────────────────────────────────────────────

// Downlink is an inner-page tuple: a child page id plus its separator key.
type Downlink struct {
	Child ID
	Key   []byte
}

func marshalDownlink(d Downlink) []byte {
	rec := make([]byte, 4+2+len(d.Key))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(d.Child))
	binary.LittleEndian.PutUint16(rec[4:6], uint16(len(d.Key)))
	copy(rec[6:], d.Key)
	return rec
}

func unmarshalDownlink(rec []byte) Downlink {
	child := ID(binary.LittleEndian.Uint32(rec[0:4]))
	kl := int(binary.LittleEndian.Uint16(rec[4:6]))
	key := make([]byte, kl)
	copy(key, rec[6:6+kl])
	return Downlink{Child: child, Key: key}
}

// GetDownlink returns the tuple at 0-based index i of an inner page.
func (gp *GistPage) GetDownlink(i int) Downlink {
	return unmarshalDownlink(gp.record(i))
}

// AppendDownlink adds a downlink as the new last tuple.
func (gp *GistPage) AppendDownlink(d Downlink) error {
	return gp.appendRecord(marshalDownlink(d))
}

// AllDownlinks returns every inner-page tuple in storage order.
func (gp *GistPage) AllDownlinks() []Downlink {
	n := gp.slotCount()
	out := make([]Downlink, n)
	for i := 0; i < n; i++ {
		out[i] = gp.GetDownlink(i)
	}
	return out
}

// ── Leaf tuples ─────────────────────────────────────────────────────────────

// LeafTuple is a leaf-page entry: a heap tuple id plus its indexed key.
type LeafTuple struct {
	TID HeapTID
	Key []byte
}

func marshalLeaf(t LeafTuple) []byte {
	rec := make([]byte, 4+2+2+len(t.Key))
	binary.LittleEndian.PutUint32(rec[0:4], t.TID.Block)
	binary.LittleEndian.PutUint16(rec[4:6], t.TID.Offset)
	binary.LittleEndian.PutUint16(rec[6:8], uint16(len(t.Key)))
	copy(rec[8:], t.Key)
	return rec
}

func unmarshalLeaf(rec []byte) LeafTuple {
	tid := HeapTID{
		Block:  binary.LittleEndian.Uint32(rec[0:4]),
		Offset: binary.LittleEndian.Uint16(rec[4:6]),
	}
	kl := int(binary.LittleEndian.Uint16(rec[6:8]))
	key := make([]byte, kl)
	copy(key, rec[8:8+kl])
	return LeafTuple{TID: tid, Key: key}
}

// GetLeafTuple returns the tuple at 0-based index i of a leaf page.
func (gp *GistPage) GetLeafTuple(i int) LeafTuple {
	return unmarshalLeaf(gp.record(i))
}

// AppendLeafTuple adds a leaf tuple as the new last tuple.
func (gp *GistPage) AppendLeafTuple(t LeafTuple) error {
	return gp.appendRecord(marshalLeaf(t))
}

// AllLeafTuples returns every leaf-page tuple in storage order.
func (gp *GistPage) AllLeafTuples() []LeafTuple {
	n := gp.slotCount()
	out := make([]LeafTuple, n)
	for i := 0; i < n; i++ {
		out[i] = gp.GetLeafTuple(i)
	}
	return out
}

// NeedsRightSiblingVisit implements the spec 4.C/4.D sibling rule: a page
// must still be walked via its right-link even if the parent doesn't yet
// list it, whenever it has a pending split (followRight) or was split more
// recently than the parent last observed (parentNSN < page.NSN).
func (gp *GistPage) NeedsRightSiblingVisit(parentNSN NSN) bool {
	if gp.RightLink() == Invalid {
		return false
	}
	return gp.FollowRight() || parentNSN < gp.NSN()
}
