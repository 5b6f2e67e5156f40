package session

import (
	"context"
	"testing"
	"time"
)

func TestOpenCloseSession(t *testing.T) {
	m := NewManager(2, 1024, 4096)
	ctx := context.Background()

	s, err := m.OpenSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Buf) != 1024 {
		t.Fatalf("expected buffer size 1024, got %d", len(s.Buf))
	}
	m.CloseSession(s)
}

func TestOpenSessionBoundedByMaxConcurrentReads(t *testing.T) {
	m := NewManager(1, 16, 16)
	ctx := context.Background()

	s1, err := m.OpenSession(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := m.OpenSession(cctx); err == nil {
		t.Fatal("expected second session to block when maxConcurrentReads=1 is exhausted")
	}

	m.CloseSession(s1)
	s2, err := m.OpenSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	m.CloseSession(s2)
}

func TestWriterSessionDistinctFromPool(t *testing.T) {
	m := NewManager(2, 16, 16)
	w := m.WriterSession()
	if w.ID != -1 {
		t.Fatalf("expected writer session id -1, got %d", w.ID)
	}
	if w.WriteBuf == nil {
		t.Fatal("expected writer session to carry a WriteBuf")
	}

	ctx := context.Background()
	s, err := m.OpenSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.WriteBuf != nil {
		t.Fatal("pool sessions must not carry a WriteBuf")
	}
	m.CloseSession(s)
}

func TestCompactionBufferSize(t *testing.T) {
	m := NewManager(1, 16, 2048)
	if len(m.CompactionBuffer()) != 2048 {
		t.Fatalf("expected compaction buffer size 2048, got %d", len(m.CompactionBuffer()))
	}
}
