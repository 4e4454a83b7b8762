package page

import "testing"

func TestHeaderMarshalRoundTrip(t *testing.T) {
	h := Header{Type: TypeGistLeaf, ID: ID(99), LSN: LSN(12345), CRC: 0xDEADBEEF}
	buf := make([]byte, HeaderSize)
	MarshalHeader(&h, buf)
	h2 := UnmarshalHeader(buf)
	if h2.Type != h.Type || h2.ID != h.ID || h2.LSN != h.LSN || h2.CRC != h.CRC {
		t.Fatalf("header roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestCRCDetectsCorruption(t *testing.T) {
	buf := New(DefaultPageSize, TypeGistLeaf, 1)
	SetCRC(buf)
	if err := VerifyCRC(buf); err != nil {
		t.Fatalf("valid CRC failed: %v", err)
	}
	buf[100] ^= 0xFF
	if err := VerifyCRC(buf); err == nil {
		t.Fatal("expected CRC error after corruption")
	}
}

func TestIsNew(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	if !IsNew(buf) {
		t.Fatal("zeroed buffer should be reported as new")
	}
	InitGist(buf, 3, true)
	if IsNew(buf) {
		t.Fatal("initialized buffer should not be reported as new")
	}
}
