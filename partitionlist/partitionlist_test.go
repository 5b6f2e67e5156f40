package partitionlist

import (
	"path/filepath"
	"testing"

	"github.com/gyuho/raftlog/partition"
)

const testR = 4

func fakeCreate(dir string) func(number uint64) (*partition.Partition, error) {
	return func(number uint64) (*partition.Partition, error) {
		return partition.Create(filepath.Join(dir, "p"+string(rune('0'+number))), number, testR, 0, false)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New(testR)
	create := fakeCreate(dir)

	p1, err := l.GetOrCreate(5, create)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := l.GetOrCreate(6, create)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("indices 5 and 6 fall in the same partition (R=4) and must share one Partition")
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 partition, got %d", l.Len())
	}
}

func TestTryGetMissing(t *testing.T) {
	l := New(testR)
	if _, ok := l.TryGet(0); ok {
		t.Fatal("expected no partition in an empty list")
	}
}

func TestHeadTailAndAllOrdering(t *testing.T) {
	dir := t.TempDir()
	l := New(testR)
	create := fakeCreate(dir)

	for _, idx := range []uint64{0, 8, 4} { // out-of-order creation
		if _, err := l.GetOrCreate(idx, create); err != nil {
			t.Fatal(err)
		}
	}

	if l.Head().Number != 0 {
		t.Fatalf("expected head partition 0, got %d", l.Head().Number)
	}
	if l.Tail().Number != 2 {
		t.Fatalf("expected tail partition 2, got %d", l.Tail().Number)
	}

	all := l.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(all))
	}
	for i, p := range all {
		if p.Number != uint64(i) {
			t.Fatalf("All() not in ascending order: %+v", all)
		}
	}
}

func TestDetachRemovesOnlyFullyCoveredPartitions(t *testing.T) {
	dir := t.TempDir()
	l := New(testR)
	create := fakeCreate(dir)

	for _, idx := range []uint64{0, 4, 8} {
		if _, err := l.GetOrCreate(idx, create); err != nil {
			t.Fatal(err)
		}
	}

	// partition 0 covers [0,4), partition 1 covers [4,8): uptoIndex=5
	// should only detach partition 0, since partition 1's last index
	// (7) exceeds 5.
	detached := l.Detach(5)
	if len(detached) != 1 || detached[0].Number != 0 {
		t.Fatalf("expected only partition 0 detached, got %+v", detached)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 partitions remaining, got %d", l.Len())
	}
	if l.Head().Number != 1 {
		t.Fatalf("expected new head partition 1, got %d", l.Head().Number)
	}

	detached2 := l.Detach(11)
	if len(detached2) != 2 {
		t.Fatalf("expected remaining 2 partitions detached, got %+v", detached2)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty list, got %d", l.Len())
	}
	if l.Head() != nil || l.Tail() != nil {
		t.Fatal("expected nil head/tail after full detach")
	}
}
