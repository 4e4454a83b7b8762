package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/SimonWaldherr/gistvacuum/page"
)

// Superblock holds pager metadata that lives OUTSIDE the page-id space: the
// teacher reserves page 0 of the main file for this (internal/storage/pager/superblock.go),
// but spec section 3 fixes page id 0 ("Root") as the GiST tree root itself,
// so this metadata is kept in a small sidecar file instead of stealing a
// page id — the same information, different storage, so the tree's own
// page numbering starts clean at the root.
type Superblock struct {
	FormatVersion uint32
	PageSize      uint32
	NextPageID    page.ID // high-water mark: next id AllocPage hands out
	FreeListRoot  page.ID
	CheckpointLSN page.LSN
}

const (
	superblockFormatVersion = 1
	superblockMagic         = "GISTMETA"
	superblockLen           = 8 + 4 + 4 + 4 + 4 + 8 + 4 // magic+version+pagesize+next+freeroot+lsn+crc
)

// NewSuperblock returns metadata for a brand-new database: the root GiST
// page (id Root == 0) has not been allocated yet, so NextPageID starts at 0.
func NewSuperblock(pageSize int) *Superblock {
	return &Superblock{
		FormatVersion: superblockFormatVersion,
		PageSize:      uint32(pageSize),
		NextPageID:    0,
		FreeListRoot:  page.Invalid,
	}
}

var superblockCRCTable = crc32.MakeTable(crc32.Castagnoli)

// Marshal serializes the superblock into a fixed-size buffer.
func (sb *Superblock) Marshal() []byte {
	buf := make([]byte, superblockLen)
	copy(buf[0:8], superblockMagic)
	binary.LittleEndian.PutUint32(buf[8:12], sb.FormatVersion)
	binary.LittleEndian.PutUint32(buf[12:16], sb.PageSize)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(sb.NextPageID))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(sb.FreeListRoot))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(sb.CheckpointLSN))
	h := crc32.New(superblockCRCTable)
	h.Write(buf[0:32])
	binary.LittleEndian.PutUint32(buf[32:36], h.Sum32())
	return buf
}

// UnmarshalSuperblock parses a superblock buffer produced by Marshal.
func UnmarshalSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockLen {
		return nil, fmt.Errorf("superblock: short buffer (%d bytes)", len(buf))
	}
	if string(buf[0:8]) != superblockMagic {
		return nil, fmt.Errorf("superblock: bad magic")
	}
	h := crc32.New(superblockCRCTable)
	h.Write(buf[0:32])
	if h.Sum32() != binary.LittleEndian.Uint32(buf[32:36]) {
		return nil, fmt.Errorf("superblock: CRC mismatch")
	}
	return &Superblock{
		FormatVersion: binary.LittleEndian.Uint32(buf[8:12]),
		PageSize:      binary.LittleEndian.Uint32(buf[12:16]),
		NextPageID:    page.ID(binary.LittleEndian.Uint32(buf[16:20])),
		FreeListRoot:  page.ID(binary.LittleEndian.Uint32(buf[20:24])),
		CheckpointLSN: page.LSN(binary.LittleEndian.Uint64(buf[24:32])),
	}, nil
}
