package partition

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gyuho/raftlog/entry"
)

const testR = 4

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := Create(filepath.Join(dir, "0"), 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var wbuf []byte
	h := entry.Header{Term: 1, Length: 5}
	if err := p.Write(2, h, []byte("hello"), &wbuf); err != nil {
		t.Fatal(err)
	}

	var rbuf []byte
	got, err := p.Read(2, &rbuf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Index != 2 || got.Header != h || !bytes.Equal(got.Payload, []byte("hello")) {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestReadEmptySlot(t *testing.T) {
	dir := t.TempDir()
	p, err := Create(filepath.Join(dir, "0"), 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var rbuf []byte
	if _, err := p.Read(1, &rbuf); err != ErrInvalidIndex {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestContainsAndOutOfRange(t *testing.T) {
	dir := t.TempDir()
	p, err := Create(filepath.Join(dir, "1"), 1, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if !p.Contains(4) || !p.Contains(7) {
		t.Fatal("expected indices 4..7 to belong to partition 1 (R=4)")
	}
	if p.Contains(3) || p.Contains(8) {
		t.Fatal("expected indices outside [4,8) to not belong to partition 1")
	}

	var wbuf []byte
	if err := p.Write(3, entry.Header{}, nil, &wbuf); err != ErrInvalidIndex {
		t.Fatalf("expected ErrInvalidIndex writing out-of-range index, got %v", err)
	}
}

func TestOpenReconstructsOffsets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0")
	p, err := Create(path, 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	var wbuf []byte
	if err := p.Write(0, entry.Header{Term: 1, Length: 3}, []byte("abc"), &wbuf); err != nil {
		t.Fatal(err)
	}
	if err := p.Write(1, entry.Header{Term: 1, Length: 3}, []byte("def"), &wbuf); err != nil {
		t.Fatal(err)
	}
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	p2, err := Open(path, 0, testR, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()

	var rbuf []byte
	got, err := p2.Read(1, &rbuf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload, []byte("def")) {
		t.Fatalf("unexpected payload after reopen: %q", got.Payload)
	}
}

func TestZeroFromClearsTailSlots(t *testing.T) {
	dir := t.TempDir()
	p, err := Create(filepath.Join(dir, "0"), 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var wbuf []byte
	for i := uint64(0); i < testR; i++ {
		if err := p.Write(i, entry.Header{Length: 1}, []byte("x"), &wbuf); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.ZeroFrom(2); err != nil {
		t.Fatal(err)
	}

	var rbuf []byte
	if _, err := p.Read(1, &rbuf); err != nil {
		t.Fatalf("index 1 should survive ZeroFrom(2): %v", err)
	}
	if _, err := p.Read(2, &rbuf); err != ErrInvalidIndex {
		t.Fatalf("expected index 2 zeroed, got %v", err)
	}
	if _, err := p.Read(3, &rbuf); err != ErrInvalidIndex {
		t.Fatalf("expected index 3 zeroed, got %v", err)
	}
}

func TestRepairTruncatesTornWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0")
	p, err := Create(path, 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	var wbuf []byte
	if err := p.Write(0, entry.Header{Length: 3}, []byte("abc"), &wbuf); err != nil {
		t.Fatal(err)
	}

	// simulate a torn write: record an offset table entry whose header
	// claims a longer payload than what actually landed on disk.
	tornOffset := p.tail
	hdrBuf := make([]byte, entry.HeaderSize)
	entry.EncodeHeader(hdrBuf, entry.Header{Length: 100})
	if _, err := p.f.WriteAt(hdrBuf, tornOffset); err != nil {
		t.Fatal(err)
	}
	var off [8]byte
	putLEUint64(off[:], uint64(tornOffset))
	if _, err := p.f.WriteAt(off[:], int64(p.slot(1)*8)); err != nil {
		t.Fatal(err)
	}
	p.headerOffsets[p.slot(1)] = uint64(tornOffset)
	p.tail = tornOffset + entry.HeaderSize

	if err := p.Repair(); err != nil {
		t.Fatal(err)
	}

	if p.tail != tornOffset {
		t.Fatalf("expected tail truncated back to %d, got %d", tornOffset, p.tail)
	}

	var rbuf []byte
	got, err := p.Read(0, &rbuf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload, []byte("abc")) {
		t.Fatalf("repair must preserve the intact entry, got %q", got.Payload)
	}
	if _, err := p.Read(1, &rbuf); err != ErrInvalidIndex {
		t.Fatalf("expected torn slot 1 dropped, got %v", err)
	}
}

func TestDrop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0")
	p, err := Create(path, 0, testR, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Drop(); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, 0, testR, false); err == nil {
		t.Fatal("expected partition file to be removed after Drop")
	}
}
