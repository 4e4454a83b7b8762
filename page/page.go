// Package page implements the fixed-size, CRC-checksummed page format shared
// by every on-disk structure the vacuum core touches: GiST inner/leaf pages
// and the free-list pages used to hand pages back for reuse.
//
// Every page carries a common header (type, id, LSN, CRC) followed by a
// type-specific body. Page id 0 (Root) is the GiST tree root; pager
// metadata lives in a separate sidecar file (pager.Superblock) rather than
// stealing a page id. Page layout beyond the header is owned by the
// page/gist.go (GiST opaque area) and page/freelist.go files — neither of
// which needs per-type flag bits here, since GiST's leaf/deleted/followRight
// bits already live in its own opaque area immediately after this header.
package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// DefaultPageSize is the default page size in bytes (8 KiB).
	DefaultPageSize = 8192

	// MinPageSize is the minimum allowed page size (4 KiB).
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size (64 KiB).
	MaxPageSize = 65536

	// HeaderSize is the size of the common page header in bytes:
	//   [0]     Type  (1 byte)
	//   [1:4]   pad   (3 bytes, for ID's 4-byte alignment; unused)
	//   [4:8]   ID    (uint32 LE)
	//   [8:16]  LSN   (uint64 LE)
	//   [16:20] CRC32 (uint32 LE)
	// Nothing below this layer stores per-page flag bits in the common
	// header — GiST's opaque area keeps its own flags byte instead, so
	// there is no spare "Flags" field to reserve up here.
	HeaderSize = 20

	// Invalid is the sentinel page ID meaning "no page".
	Invalid ID = 0xFFFFFFFF

	// Root is the page id of the tree root. It is never reclaimed: when
	// every tuple in the index is dead the root degrades to an empty leaf
	// instead of being deleted.
	Root ID = 0
)

// Type identifies the kind of data stored in a page.
type Type uint8

const (
	TypeGistInner Type = 0x01
	TypeGistLeaf  Type = 0x02
	TypeFreeList  Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeGistInner:
		return "GiST-Inner"
	case TypeGistLeaf:
		return "GiST-Leaf"
	case TypeFreeList:
		return "FreeList"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// ID is a 32-bit page identifier. Invalid (all-ones) denotes "no page";
// Root (0) denotes the tree root.
type ID uint32

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// NSN is a node-sequence-number: a monotonic timestamp stamped on every
// page split, compared against a remembered parent NSN to detect "a split
// happened on this page since the parent was last read".
type NSN uint64

// TxID is a transaction identifier, stamped into a deleted page's
// prune_xid so its space is only reused once the id is old enough.
type TxID uint64

// Header is the common header present at the start of every page.
type Header struct {
	Type Type
	ID   ID
	LSN  LSN
	CRC  uint32
}

const (
	hdrTypeOff = 0
	hdrIDOff   = 4
	hdrLSNOff  = 8
	hdrCRCOff  = 16
)

// MarshalHeader writes h into the first HeaderSize bytes of buf.
func MarshalHeader(h *Header, buf []byte) {
	if len(buf) < HeaderSize {
		panic("buffer too small for page header")
	}
	buf[hdrTypeOff] = byte(h.Type)
	binary.LittleEndian.PutUint32(buf[hdrIDOff:], uint32(h.ID))
	binary.LittleEndian.PutUint64(buf[hdrLSNOff:], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[hdrCRCOff:], h.CRC)
}

// UnmarshalHeader reads a Header from the first HeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) Header {
	return Header{
		Type: Type(buf[hdrTypeOff]),
		ID:   ID(binary.LittleEndian.Uint32(buf[hdrIDOff:])),
		LSN:  LSN(binary.LittleEndian.Uint64(buf[hdrLSNOff:])),
		CRC:  binary.LittleEndian.Uint32(buf[hdrCRCOff:]),
	}
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// checksum runs CRC32-C over buf with the CRC field itself masked to zero,
// so a page's stored checksum never depends on its own previous value.
func checksum(buf []byte) uint32 {
	digest := crc32.New(crcTable)
	digest.Write(buf[:hdrCRCOff])
	digest.Write(make([]byte, 4))
	digest.Write(buf[hdrCRCOff+4:])
	return digest.Sum32()
}

// ComputeCRC computes the CRC32-C of a full page, treating the CRC field as
// zero during computation.
func ComputeCRC(buf []byte) uint32 { return checksum(buf) }

// SetCRC computes and writes the CRC into the page header.
func SetCRC(buf []byte) {
	binary.LittleEndian.PutUint32(buf[hdrCRCOff:], checksum(buf))
}

// VerifyCRC checks the CRC32 checksum of a page. This is the "verify page
// integrity" external-collaborator step run by the physical pass and the
// fallback descent (spec 4.C step 2); the rescan pass does not call it.
func VerifyCRC(buf []byte) error {
	stored := binary.LittleEndian.Uint32(buf[hdrCRCOff:])
	want := checksum(buf)
	if stored != want {
		id := ID(binary.LittleEndian.Uint32(buf[hdrIDOff:]))
		return fmt.Errorf("page %d: checksum mismatch: on-disk %08x, recomputed %08x", id, stored, want)
	}
	return nil
}

// New allocates a zeroed page buffer of the given size with a marshaled
// header for type pt and id.
func New(pageSize int, pt Type, id ID) []byte {
	buf := make([]byte, pageSize)
	MarshalHeader(&Header{Type: pt, ID: id}, buf)
	return buf
}

// IsNew reports whether a page buffer still has its zero-value header type
// — i.e. it was allocated but never initialized with InitGist*.
func IsNew(buf []byte) bool {
	return buf[hdrTypeOff] == 0
}
