// Package wal implements the append-only write-ahead log the pager uses to
// make every vacuum page mutation crash-consistent, adapted from the
// teacher's internal/storage/pager/wal.go physical-logging format.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/SimonWaldherr/gistvacuum/page"
)

// File format:
//
// WAL file header (32 bytes):
//   [0:8]   Magic      "GISTWAL\x00"
//   [8:12]  Version    uint32 LE
//   [12:16] PageSize   uint32 LE
//   [16:24] Reserved
//   [24:28] HeaderCRC  uint32 LE (CRC of bytes 0:24)
//   [28:32] Padding
//
// Record (variable length):
//   [0]      Type        (1 byte)
//   [1:9]    LSN         (uint64 LE)
//   [9:13]   PageID      (uint32 LE) — for Update/Splice/RootDemote; 0 for Checkpoint
//   [13:17]  DataLen     (uint32 LE)
//   [17:21]  RecordCRC   (uint32 LE, over bytes 0:17 then data; the CRC field itself is skipped)
//   [21:21+DataLen] Data

const (
	magic      = "GISTWAL\x00"
	version    = uint32(1)
	fileHdrLen = 32
	recHdrLen  = 21
)

// RecordType identifies the kind of WAL record.
type RecordType uint8

const (
	// RecordUpdate logs a leaf/inner tuple deletion: the data payload is
	// the full post-mutation page image. This models gistXLogUpdate from
	// spec 6's WAL contract (EmitUpdate) without reproducing Postgres's
	// tuple-delta format, which is explicitly out of scope (spec Non-goals:
	// "WAL record format").
	RecordUpdate RecordType = 0x01
	// RecordSplice logs a left-sibling right-link splice.
	RecordSplice RecordType = 0x02
	// RecordRootDemote logs the root-to-leaf conversion when the whole
	// index empties.
	RecordRootDemote RecordType = 0x03
	// RecordCheckpoint marks a durable checkpoint boundary.
	RecordCheckpoint RecordType = 0x04
)

func (t RecordType) String() string {
	switch t {
	case RecordUpdate:
		return "UPDATE"
	case RecordSplice:
		return "SPLICE"
	case RecordRootDemote:
		return "ROOT_DEMOTE"
	case RecordCheckpoint:
		return "CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Record is the in-memory representation of one WAL entry.
type Record struct {
	Type   RecordType
	LSN    page.LSN
	PageID page.ID
	Data   []byte
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// File manages the append-only WAL file on disk.
type File struct {
	mu       sync.Mutex
	f        *os.File
	pageSize int
	nextLSN  page.LSN
	writePos int64
}

// Open opens or creates a WAL file at path.
func Open(path string, pageSize int) (*File, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	wf := &File{f: f, pageSize: pageSize, nextLSN: 1}
	if exists {
		if err := wf.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, err
		}
		wf.writePos = pos
	} else {
		if err := wf.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		wf.writePos = fileHdrLen
	}
	return wf, nil
}

func (wf *File) writeHeader() error {
	buf := make([]byte, fileHdrLen)
	copy(buf[0:8], magic)
	binary.LittleEndian.PutUint32(buf[8:12], version)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(wf.pageSize))
	h := crc32.New(crcTable)
	h.Write(buf[0:24])
	binary.LittleEndian.PutUint32(buf[24:28], h.Sum32())
	_, err := wf.f.WriteAt(buf, 0)
	return err
}

func (wf *File) validateHeader() error {
	buf := make([]byte, fileHdrLen)
	if _, err := wf.f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read WAL header: %w", err)
	}
	if string(buf[0:8]) != magic {
		return fmt.Errorf("bad WAL magic")
	}
	h := crc32.New(crcTable)
	h.Write(buf[0:24])
	if h.Sum32() != binary.LittleEndian.Uint32(buf[24:28]) {
		return fmt.Errorf("WAL header CRC mismatch")
	}
	wf.pageSize = int(binary.LittleEndian.Uint32(buf[12:16]))
	return nil
}

// AppendRecord writes rec to the log, stamping and returning its LSN.
func (wf *File) AppendRecord(rec *Record) (page.LSN, error) {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	lsn := wf.nextLSN
	wf.nextLSN++
	rec.LSN = lsn

	buf := make([]byte, recHdrLen+len(rec.Data))
	buf[0] = byte(rec.Type)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(lsn))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(rec.PageID))
	binary.LittleEndian.PutUint32(buf[13:17], uint32(len(rec.Data)))
	copy(buf[recHdrLen:], rec.Data)

	h := crc32.New(crcTable)
	h.Write(buf[0:17])
	h.Write(buf[recHdrLen:])
	binary.LittleEndian.PutUint32(buf[17:21], h.Sum32())

	n, err := wf.f.WriteAt(buf, wf.writePos)
	if err != nil {
		return 0, fmt.Errorf("WAL append: %w", err)
	}
	wf.writePos += int64(n)
	return lsn, nil
}

// Sync fsyncs the WAL file.
func (wf *File) Sync() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.f.Sync()
}

// Truncate resets the WAL to just its header, for use after a checkpoint.
func (wf *File) Truncate() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if err := wf.f.Truncate(fileHdrLen); err != nil {
		return err
	}
	wf.writePos = fileHdrLen
	return nil
}

// Close closes the underlying file.
func (wf *File) Close() error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.f.Close()
}

// ReadAll reads every record in the WAL file in append order, for recovery
// and for test assertions that WAL replay reaches the same post-state.
func ReadAll(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open WAL for read: %w", err)
	}
	defer f.Close()

	hdr := make([]byte, fileHdrLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, fmt.Errorf("read WAL header: %w", err)
	}

	var recs []*Record
	for {
		head := make([]byte, recHdrLen)
		if _, err := io.ReadFull(f, head); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read WAL record header: %w", err)
		}
		dataLen := binary.LittleEndian.Uint32(head[13:17])
		data := make([]byte, dataLen)
		if dataLen > 0 {
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, fmt.Errorf("read WAL record data: %w", err)
			}
		}
		rec := &Record{
			Type:   RecordType(head[0]),
			LSN:    page.LSN(binary.LittleEndian.Uint64(head[1:9])),
			PageID: page.ID(binary.LittleEndian.Uint32(head[9:13])),
			Data:   data,
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
