package cache

import (
	"testing"

	"github.com/gyuho/raftlog/entry"
)

func TestBufferPoolReuse(t *testing.T) {
	p := NewBufferPool(64)
	b := p.Get()
	if len(*b) != 64 {
		t.Fatalf("expected buffer size 64, got %d", len(*b))
	}
	p.Put(b)
	b2 := p.Get()
	if len(*b2) != 64 {
		t.Fatalf("expected reused buffer size 64, got %d", len(*b2))
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := New(OnCommit)
	h := entry.Header{Term: 2, Length: 3}
	c.Put(5, h, []byte("abc"))

	got, ok := c.Get(5)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Index != 5 || got.Header != h || string(got.Payload) != "abc" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Kind != entry.KindCached {
		t.Fatalf("expected KindCached, got %v", got.Kind)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(OnCommit)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected cache miss on empty cache")
	}
}

func TestEvict(t *testing.T) {
	c := New(OnCommit)
	c.Put(1, entry.Header{}, []byte("x"))
	c.Evict(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected entry evicted")
	}
}

func TestEvictRange(t *testing.T) {
	c := New(OnCommit)
	for i := uint64(0); i < 5; i++ {
		c.Put(i, entry.Header{}, []byte{byte(i)})
	}
	c.EvictRange(1, 3)
	for i := uint64(1); i <= 3; i++ {
		if _, ok := c.Get(i); ok {
			t.Fatalf("expected index %d evicted", i)
		}
	}
	if _, ok := c.Get(0); !ok {
		t.Fatal("expected index 0 to survive EvictRange(1,3)")
	}
	if _, ok := c.Get(4); !ok {
		t.Fatal("expected index 4 to survive EvictRange(1,3)")
	}
}

func TestNotifyCommittedUnderOnCommitPolicy(t *testing.T) {
	c := New(OnCommit)
	c.Put(1, entry.Header{}, []byte("x"))
	c.NotifyCommitted(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected OnCommit policy to evict on NotifyCommitted")
	}
}

func TestNotifyCommittedUnderOnFlushPolicy(t *testing.T) {
	c := New(OnFlush)
	c.Put(1, entry.Header{}, []byte("x"))
	c.NotifyCommitted(1)
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected OnFlush policy to ignore NotifyCommitted")
	}
	c.NotifyFlushed(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected OnFlush policy to evict on NotifyFlushed")
	}
}
