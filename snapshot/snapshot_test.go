package snapshot

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gyuho/raftlog/entry"
)

func writeTestSnapshot(t *testing.T, dir string, index uint64, payload []byte) {
	t.Helper()
	h := entry.Header{Term: 3}
	tempPath, err := WriteNew(dir, index, h, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := InstallFromTempAndSwap(dir, tempPath); err != nil {
		t.Fatal(err)
	}
}

func TestWriteNewInstallAndRead(t *testing.T) {
	dir := t.TempDir()
	writeTestSnapshot(t, dir, 42, []byte("snapshot payload"))

	e, idx, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 42 || e.Index != 42 {
		t.Fatalf("expected index 42, got %d/%d", idx, e.Index)
	}
	if !bytes.Equal(e.Payload, []byte("snapshot payload")) {
		t.Fatalf("unexpected payload: %q", e.Payload)
	}
	if !e.Header.IsSnapshot() {
		t.Fatal("expected FlagIsSnapshot set")
	}
}

func TestReadEmptyWhenNoSnapshot(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Fatal("expected no snapshot yet")
	}
	if _, _, err := Read(dir); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestReadDetectsCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTestSnapshot(t, dir, 7, []byte("abcdef"))

	path := filepath.Join(dir, CanonicalName)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// corrupt a payload byte without touching the footer.
	b[footerEnd] ^= 0xFF
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Read(dir); err != ErrCRCMismatch {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestInstallReplacesPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeTestSnapshot(t, dir, 1, []byte("first"))
	writeTestSnapshot(t, dir, 2, []byte("second"))

	e, idx, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 || !bytes.Equal(e.Payload, []byte("second")) {
		t.Fatalf("expected second snapshot to win, got idx=%d payload=%q", idx, e.Payload)
	}
}

func TestWriteNewDoesNotInstall(t *testing.T) {
	dir := t.TempDir()
	h := entry.Header{}
	if _, err := WriteNew(dir, 5, h, func(w io.Writer) error {
		_, err := w.Write([]byte("x"))
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if Exists(dir) {
		t.Fatal("WriteNew must not install the canonical snapshot")
	}
}
