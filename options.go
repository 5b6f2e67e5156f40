package raftlog

import (
	"fmt"

	"github.com/gyuho/raftlog/cache"
)

// CompactionMode selects how buildSnapshot/compaction is scheduled
// relative to the commit+apply step.
type CompactionMode int

const (
	// CompactionSequential runs compaction strictly after apply,
	// under the same Exclusive critical section as commit.
	CompactionSequential CompactionMode = iota
	// CompactionForeground runs compaction after apply, still under
	// Exclusive, but is the mode meant for callers that can tolerate
	// compaction and apply sharing one critical section without a
	// dedicated background worker driving ForceCompaction.
	CompactionForeground
	// CompactionBackground never builds a snapshot inline with
	// commit; Commit instead schedules ForceCompaction on a background
	// scheduler once compactionCount is non-zero, and callers may also
	// call ForceCompaction directly. ForceCompaction holds the
	// Compaction lock for both the build and the install.
	CompactionBackground
)

func (m CompactionMode) String() string {
	switch m {
	case CompactionSequential:
		return "sequential"
	case CompactionForeground:
		return "foreground"
	case CompactionBackground:
		return "background"
	default:
		return fmt.Sprintf("CompactionMode(%d)", int(m))
	}
}

// Options configures a Log's on-disk layout and runtime behavior.
type Options struct {
	// RecordsPerPartition is R, the number of indices each partition
	// file covers.
	RecordsPerPartition uint64
	// BufferSize is the per-session I/O buffer size, in bytes.
	BufferSize int
	// SnapshotBufferSize is the compaction session's I/O buffer size,
	// in bytes.
	SnapshotBufferSize int
	// InitialPartitionSize is the number of bytes preallocated beyond
	// a new partition's header as a hint to the filesystem.
	InitialPartitionSize int64
	// MaxConcurrentReads bounds the number of concurrent WeakRead
	// sessions.
	MaxConcurrentReads int
	// WriteThrough opens partition files O_SYNC, trading write latency
	// for never needing an explicit Flush to make a write durable.
	// node.state is written and fsynced on every mutation regardless of
	// this option.
	WriteThrough bool
	// CompactionMode selects sequential, foreground, or background
	// compaction scheduling.
	CompactionMode CompactionMode
	// CacheEvictionPolicy selects when the entry cache drops a cached
	// uncommitted payload.
	CacheEvictionPolicy cache.EvictionPolicy
	// ReplayOnInitialize re-applies every entry in (snapshotIndex,
	// commitIndex] to the state machine on Open, for the case where
	// the process crashed between commit and apply.
	ReplayOnInitialize bool
	// BackupCompression names the compression scheme an external
	// backup-tool collaborator should use; the log core itself never
	// compresses anything and only carries the value through.
	BackupCompression string
}

// DefaultOptions returns the options a new Log should use absent
// caller overrides.
func DefaultOptions() Options {
	return Options{
		RecordsPerPartition:  4096,
		BufferSize:           64 * 1024,
		SnapshotBufferSize:   1 << 20,
		InitialPartitionSize: 0,
		MaxConcurrentReads:   16,
		WriteThrough:         false,
		CompactionMode:       CompactionSequential,
		CacheEvictionPolicy:  cache.OnCommit,
	}
}

// Validate reports an error for any option combination the log core
// cannot operate under.
func (o Options) Validate() error {
	if o.RecordsPerPartition < 2 {
		return fmt.Errorf("raftlog: RecordsPerPartition must be >= 2")
	}
	if o.BufferSize <= 0 {
		return fmt.Errorf("raftlog: BufferSize must be > 0")
	}
	if o.SnapshotBufferSize <= 0 {
		return fmt.Errorf("raftlog: SnapshotBufferSize must be > 0")
	}
	if o.MaxConcurrentReads <= 0 {
		return fmt.Errorf("raftlog: MaxConcurrentReads must be > 0")
	}
	return nil
}
