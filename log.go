// Package raftlog implements a partitioned, crash-safe Raft log store:
// fixed-size on-disk partitions of entries (package partition), a
// sorted partition list (package partitionlist), a snapshot file
// (package snapshot), a node-state file (package nodestate), a
// four-mode lock manager (package lock), a session pool and entry
// cache (packages session, cache), and a commit-wait signal (package
// commitwait). Log wires all of these into the append, commit+apply+
// compaction, and snapshot-install paths.
//
// Grounded on the teacher's top-level raftwal.WAL type
// (github.com/gyuho/db/raftwal/*.go), which plays the same "single
// owner struct wiring together an on-disk encoder, a directory of
// segment files, and a rename-based snapshot cutover" role that Log
// plays here, generalized from a single append-only WAL to the spec's
// partitioned, concurrently-readable, independently-compactable log.
package raftlog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gyuho/raftlog/cache"
	"github.com/gyuho/raftlog/commitwait"
	"github.com/gyuho/raftlog/entry"
	"github.com/gyuho/raftlog/lock"
	"github.com/gyuho/raftlog/nodestate"
	"github.com/gyuho/raftlog/partition"
	"github.com/gyuho/raftlog/partitionlist"
	"github.com/gyuho/raftlog/pkg/fileutil"
	rlioutil "github.com/gyuho/raftlog/pkg/ioutil"
	"github.com/gyuho/raftlog/pkg/scheduleutil"
	"github.com/gyuho/raftlog/pkg/xlog"
	"github.com/gyuho/raftlog/session"
	"github.com/gyuho/raftlog/snapshot"
)

var logger = xlog.NewLogger("raftlog", xlog.INFO)

// rangeTooBigThreshold bounds how many entries a single Read call will
// materialize into memory at once.
const rangeTooBigThreshold = 1 << 20

// Log is a single Raft node's partitioned, on-disk log.
type Log struct {
	dir  string
	opts Options

	nodeState  *nodestate.File
	partitions *partitionlist.List
	locks      *lock.Manager
	sessions   *session.Manager
	entryCache *cache.EntryCache
	commit     *commitwait.Signal

	sm         StateMachine
	newBuilder NewBuilderFunc

	snapshotIndex uint64

	// background runs ForceCompaction asynchronously for
	// CompactionBackground, off the goroutine that called Commit, so
	// committers never block on a compaction they did not ask for.
	background scheduleutil.Scheduler

	disposed bool
}

// Open opens or creates a log rooted at dir. sm is the state machine
// committed entries are applied to; newBuilder constructs a fresh
// SnapshotBuilder for each buildSnapshot/ForceCompaction call.
func Open(dir string, opts Options, sm StateMachine, newBuilder NewBuilderFunc) (*Log, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := fileutil.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("raftlog: open %q: %w", dir, err)
	}

	ns, err := nodestate.Open(filepath.Join(dir, "node.state"))
	if err != nil {
		return nil, fmt.Errorf("raftlog: open node.state: %w", err)
	}

	l := &Log{
		dir:        dir,
		opts:       opts,
		nodeState:  ns,
		partitions: partitionlist.New(opts.RecordsPerPartition),
		locks:      lock.New(),
		sessions:   session.NewManager(opts.MaxConcurrentReads, opts.BufferSize, opts.SnapshotBufferSize),
		entryCache: cache.New(opts.CacheEvictionPolicy),
		commit:     commitwait.New(),
		sm:         sm,
		newBuilder: newBuilder,
	}
	if opts.CompactionMode == CompactionBackground {
		l.background = scheduleutil.NewSchedulerFIFO()
	}

	if err := l.loadPartitions(); err != nil {
		return nil, err
	}

	if snapshot.Exists(dir) {
		_, idx, err := snapshot.Read(dir)
		if err != nil {
			return nil, fmt.Errorf("raftlog: read snapshot: %w", err)
		}
		l.snapshotIndex = idx
	}

	if opts.ReplayOnInitialize {
		if err := l.replay(context.Background()); err != nil {
			return nil, fmt.Errorf("raftlog: replay: %w", err)
		}
	}

	l.commit.Trigger(l.nodeState.Get().CommitIndex)
	return l, nil
}

// loadPartitions scans dir for partition files, named by decimal
// partition number, and opens each one.
func (l *Log) loadPartitions() error {
	names, err := fileutil.ReadDir(l.dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		number, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue // node.state, snapshot, snapshot.new, etc.
		}
		path := filepath.Join(l.dir, name)
		p, err := partition.Open(path, number, l.opts.RecordsPerPartition, l.opts.WriteThrough)
		if err != nil {
			return fmt.Errorf("raftlog: open partition %q: %w", path, err)
		}
		if _, err := l.partitions.GetOrCreate(number*l.opts.RecordsPerPartition, func(uint64) (*partition.Partition, error) {
			return p, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// replay re-applies every entry in (snapshotIndex, commitIndex] to sm,
// for the case where the process crashed between commit and apply
// leaving lastApplied behind commitIndex. Called only from Open,
// before the Log is returned to any caller, so it is safe to borrow
// the writer session's buffer here without holding the Write lock.
func (l *Log) replay(ctx context.Context) error {
	ns := l.nodeState.Get()
	if l.snapshotIndex > 0 {
		e, _, err := snapshot.Read(l.dir)
		if err != nil && err != snapshot.ErrEmpty {
			return err
		}
		if err == nil {
			if err := l.sm.Apply(ctx, e); err != nil {
				return err
			}
		}
	}
	writer := l.sessions.WriterSession()
	for idx := l.snapshotIndex + 1; idx <= ns.CommitIndex; idx++ {
		e, err := l.readForApply(idx, &writer.Buf)
		if err != nil {
			return err
		}
		if err := l.sm.Apply(ctx, e); err != nil {
			return err
		}
	}
	return l.nodeState.Mutate(func(s *nodestate.State) { s.LastApplied = ns.CommitIndex })
}

func (l *Log) createPartition(number uint64) (*partition.Partition, error) {
	path := filepath.Join(l.dir, strconv.FormatUint(number, 10))
	return partition.Create(path, number, l.opts.RecordsPerPartition, l.opts.InitialPartitionSize, l.opts.WriteThrough)
}

// AppendEntry is one entry to append, paired with whether the caller
// wants it kept in the entry cache for low-latency reads before it is
// necessarily flushed.
type AppendEntry struct {
	Header  entry.Header
	Payload []byte
	Cache   bool
}

// Append writes entries starting at startIndex. If startIndex is at or
// below the current commit index, Append returns ErrInvalidAppend
// unless skipCommitted is set, in which case the already-committed
// prefix of entries is silently dropped (the transport-replay case: a
// leader may resend entries a follower already committed). If
// startIndex is below the current tail but above commitIndex, this is
// a tail rewrite and requires the stronger Exclusive lock, since slots
// orphaned by a shorter rewrite must be zeroed under the same critical
// section that performs the write.
func (l *Log) Append(ctx context.Context, entries []AppendEntry, startIndex uint64, skipCommitted bool) error {
	if l.disposed {
		return ErrDisposed
	}
	for _, e := range entries {
		if e.Header.IsSnapshot() {
			return ErrInvalidAppend
		}
	}

	ns := l.nodeState.Get()
	if startIndex <= ns.CommitIndex {
		if !skipCommitted {
			return ErrInvalidAppend
		}
		drop := ns.CommitIndex + 1 - startIndex
		if drop >= uint64(len(entries)) {
			return nil
		}
		entries = entries[drop:]
		startIndex = ns.CommitIndex + 1
	}
	if len(entries) == 0 {
		return nil
	}

	tailIndex := ns.LastIndex + 1
	if startIndex > tailIndex {
		return ErrInvalidIndex
	}

	mode := lock.Write
	isTailRewrite := startIndex < tailIndex
	if isTailRewrite {
		mode = lock.Exclusive
	}
	token, err := l.locks.Acquire(ctx, mode)
	if err != nil {
		return err
	}
	defer token.Release()

	writer := l.sessions.WriterSession()
	newLastIndex := startIndex + uint64(len(entries)) - 1

	var lastPartition *partition.Partition
	var segmentStart uint64
	for i, e := range entries {
		idx := startIndex + uint64(i)
		p, err := l.partitions.GetOrCreate(idx, l.createPartition)
		if err != nil {
			return err
		}
		if err := p.Write(idx, e.Header, e.Payload, &writer.WriteBuf); err != nil {
			return err
		}
		if e.Cache {
			l.entryCache.Put(idx, e.Header, append([]byte(nil), e.Payload...))
		} else {
			l.entryCache.Evict(idx)
		}
		if p != lastPartition {
			if lastPartition != nil {
				if err := lastPartition.Flush(); err != nil {
					return err
				}
				l.notifyFlushed(segmentStart, idx-1)
			}
			lastPartition = p
			segmentStart = idx
		}
	}
	if lastPartition != nil {
		if err := lastPartition.Flush(); err != nil {
			return err
		}
		l.notifyFlushed(segmentStart, startIndex+uint64(len(entries))-1)
	}

	if isTailRewrite && newLastIndex < ns.LastIndex {
		if err := l.zeroOrphanedTail(newLastIndex+1, ns.LastIndex); err != nil {
			return err
		}
	}

	return l.nodeState.Mutate(func(s *nodestate.State) { s.LastIndex = newLastIndex })
}

// zeroOrphanedTail zeros every slot in [from, to] across however many
// partitions that range spans, implementing the resolution this
// repository picked for short tail rewrites: orphaned slots are zeroed
// rather than left dangling behind a lowered lastIndex.
func (l *Log) zeroOrphanedTail(from, to uint64) error {
	r := l.opts.RecordsPerPartition
	for idx := from; idx <= to; idx = (idx/r + 1) * r {
		p, ok := l.partitions.TryGet(idx)
		if !ok {
			continue
		}
		if err := p.ZeroFrom(idx); err != nil {
			return err
		}
		l.entryCache.EvictRange(idx, to)
	}
	return nil
}

// notifyFlushed tells the entry cache that every index in [lo, hi] now
// sits in a partition that has just completed a flush, so a cache
// configured with CacheEvictionPolicy = OnFlush can drop them.
func (l *Log) notifyFlushed(lo, hi uint64) {
	for idx := lo; idx <= hi; idx++ {
		l.entryCache.NotifyFlushed(idx)
	}
}

// Read returns the entries in [lo, hi], inclusive. If lo == 0 and hi
// == 0 and the log is empty (no entries and no snapshot), it returns
// the ephemeral initial entry. If the whole range is at or below the
// snapshot index, it returns only the single snapshot entry.
func (l *Log) Read(ctx context.Context, lo, hi uint64) ([]entry.LogEntry, error) {
	if l.disposed {
		return nil, ErrDisposed
	}
	if lo == 0 && hi == 0 {
		ns := l.nodeState.Get()
		if ns.LastIndex == 0 && l.snapshotIndex == 0 {
			return []entry.LogEntry{entry.NewInitial()}, nil
		}
	}
	if hi < lo {
		return nil, ErrInvalidIndex
	}
	if hi-lo+1 > rangeTooBigThreshold {
		return nil, ErrRangeTooBig
	}

	token, err := l.locks.Acquire(ctx, lock.WeakRead)
	if err != nil {
		return nil, err
	}
	defer token.Release()

	sess, err := l.sessions.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer l.sessions.CloseSession(sess)

	var out []entry.LogEntry
	start := lo
	if l.snapshotIndex > 0 && lo <= l.snapshotIndex {
		e, _, err := snapshot.Read(l.dir)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if hi <= l.snapshotIndex {
			return out, nil
		}
		start = l.snapshotIndex + 1
	}

	for idx := start; idx <= hi; idx++ {
		if e, ok := l.entryCache.Get(idx); ok {
			out = append(out, e)
			continue
		}
		p, ok := l.partitions.TryGet(idx)
		if !ok {
			return nil, ErrInvalidIndex
		}
		e, err := p.Read(idx, &sess.Buf)
		if err != nil {
			return nil, fmt.Errorf("raftlog: read index %d: %w", idx, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// readForApply reads a single committed index for the commit/apply and
// buildSnapshot walks, preferring the entry cache over partition I/O.
// buf is the caller's C5 session buffer: the commit/replay path passes
// the writer session's, buildSnapshotPayload passes the dedicated
// compaction buffer, so concurrent callers never share one slice. A
// missing partition here is the one fatal storage condition in the log
// core: the index is at or below commitIndex, so its backing partition
// must exist.
func (l *Log) readForApply(idx uint64, buf *[]byte) (entry.LogEntry, error) {
	if e, ok := l.entryCache.Get(idx); ok {
		return e, nil
	}
	p, ok := l.partitions.TryGet(idx)
	if !ok {
		logger.Panicf("%v", &missingPartitionError{index: idx})
	}
	return p.Read(idx, buf)
}

// Commit advances commitIndex up to endIndex (or to the current
// lastIndex if endIndex is nil), applies every newly-committed entry to
// the state machine, runs compaction inline for CompactionSequential
// and CompactionForeground, and returns the number of newly-committed
// entries.
func (l *Log) Commit(ctx context.Context, endIndex *uint64) (int, error) {
	if l.disposed {
		return 0, ErrDisposed
	}
	token, err := l.locks.Acquire(ctx, lock.Exclusive)
	if err != nil {
		return 0, err
	}

	ns := l.nodeState.Get()
	target := ns.LastIndex
	if endIndex != nil && *endIndex < target {
		target = *endIndex
	}
	if target <= ns.CommitIndex {
		token.Release()
		return 0, nil
	}

	if err := l.nodeState.Mutate(func(s *nodestate.State) { s.CommitIndex = target }); err != nil {
		token.Release()
		return 0, err
	}

	writer := l.sessions.WriterSession()
	count := 0
	for idx := ns.LastApplied + 1; idx <= target; idx++ {
		e, err := l.readForApply(idx, &writer.Buf)
		if err != nil {
			token.Release()
			return count, err
		}
		if err := l.sm.Apply(ctx, e); err != nil {
			token.Release()
			return count, err
		}
		if err := l.nodeState.Mutate(func(s *nodestate.State) { s.LastApplied = idx }); err != nil {
			token.Release()
			return count, err
		}
		l.entryCache.NotifyCommitted(idx)
		count++
	}

	var detached []*partition.Partition
	switch l.opts.CompactionMode {
	case CompactionBackground:
		// Deferred: scheduled below, after the lock is released, so the
		// background job's own Compaction acquisition never has to wait
		// on the Exclusive token this call still holds.
	default:
		if target-l.snapshotIndex >= l.opts.RecordsPerPartition {
			tempPath, err := l.buildSnapshotPayload(ctx, target)
			if err != nil {
				token.Release()
				return count, err
			}
			detached, err = l.installBuiltSnapshot(tempPath, target)
			if err != nil {
				token.Release()
				return count, err
			}
		}
	}

	token.Release()

	if l.opts.CompactionMode == CompactionBackground && l.compactionCount() > 0 {
		l.background.Schedule(func(ctx context.Context) {
			if err := l.ForceCompaction(ctx, 0); err != nil {
				logger.Warningf("background compaction: %v", err)
			}
		})
	}

	l.commit.Trigger(target)

	for _, p := range detached {
		if err := p.Drop(); err != nil {
			logger.Warningf("drop detached partition %q: %v", p.Path(), err)
		}
	}
	return count, nil
}

// compactionCount computes how many whole partitions' worth of applied
// entries sit beyond the current snapshot, per the background
// compaction bound: floor((lastApplied-snapshotIndex)/R) - 1, clamped
// to 0, leaving at least one full partition of slack behind lastApplied
// so WeakRead sessions reading just-applied entries are never racing a
// background compactor for the same partition.
func (l *Log) compactionCount() uint64 {
	ns := l.nodeState.Get()
	if ns.LastApplied <= l.snapshotIndex {
		return 0
	}
	n := (ns.LastApplied - l.snapshotIndex) / l.opts.RecordsPerPartition
	if n == 0 {
		return 0
	}
	return n - 1
}

// ForceCompaction builds and installs a snapshot covering up to n
// partitions' worth of applied entries beyond the current snapshot
// (capped by compactionCount), for CompactionBackground mode. It holds
// Compaction for both the build and the install swap: Compaction is
// compatible with Write and WeakRead, so writers and readers are still
// unblocked, but the single compactionHeld slot in the lock manager
// also serializes concurrent ForceCompaction callers against each
// other, which buildSnapshotPayload's use of the one shared C5
// compaction buffer requires.
func (l *Log) ForceCompaction(ctx context.Context, n uint64) error {
	if l.disposed {
		return ErrDisposed
	}
	token, err := l.locks.Acquire(ctx, lock.Compaction)
	if err != nil {
		return err
	}

	avail := l.compactionCount()
	if avail == 0 {
		token.Release()
		return nil
	}
	if n == 0 || n > avail {
		n = avail
	}
	target := l.snapshotIndex + n*l.opts.RecordsPerPartition

	tempPath, err := l.buildSnapshotPayload(ctx, target)
	if err != nil {
		token.Release()
		return err
	}
	detached, err := l.installBuiltSnapshot(tempPath, target)
	token.Release()
	if err != nil {
		return err
	}

	for _, p := range detached {
		if err := p.Drop(); err != nil {
			logger.Warningf("drop detached partition %q: %v", p.Path(), err)
		}
	}
	return nil
}

// buildSnapshotPayload walks committed entries from the current
// snapshot index up to and including upTo through a fresh
// SnapshotBuilder and streams the result into dir/snapshot.new, reading
// through the C5 compaction buffer per §4.4's "distinct larger buffer
// sized per configuration" for compaction. The caller must hold
// Compaction or Exclusive for the duration of this call, both of which
// admit at most one holder, so this buffer is never shared
// concurrently.
func (l *Log) buildSnapshotPayload(ctx context.Context, upTo uint64) (string, error) {
	builder := l.newBuilder()
	defer builder.Dispose()

	buf := l.sessions.CompactionBuffer()
	cursor := l.snapshotIndex + 1
	for cursor <= upTo {
		e, err := l.readForApply(cursor, &buf)
		if err != nil {
			return "", err
		}
		if err := builder.Apply(e); err != nil {
			return "", err
		}
		next := builder.AdjustIndex(l.snapshotIndex+1, upTo, cursor+1)
		if next <= cursor {
			next = cursor + 1
		}
		cursor = next
	}

	h := entry.Header{Term: l.nodeState.Get().Term, Timestamp: uint64(nowFunc().UnixNano())}
	return snapshot.WriteNew(l.dir, upTo, h, builder.WriteTo)
}

// installBuiltSnapshot atomically swaps tempPath in as the canonical
// snapshot, advances snapshotIndex, and detaches (without deleting) the
// partitions now wholly subsumed by it. The caller must hold Compaction
// or Exclusive and must delete the returned partitions' files only
// after releasing that lock.
func (l *Log) installBuiltSnapshot(tempPath string, upTo uint64) ([]*partition.Partition, error) {
	if err := snapshot.InstallFromTempAndSwap(l.dir, tempPath); err != nil {
		return nil, err
	}
	l.snapshotIndex = upTo
	return l.partitions.Detach(upTo), nil
}

// InstallSnapshot receives a remote snapshot covering indices up to and
// including snapshotIndex, installs it as the canonical snapshot,
// rewinds/advances node state to match, re-applies the snapshot to the
// state machine, and drops any partitions it subsumes.
func (l *Log) InstallSnapshot(ctx context.Context, h entry.Header, snapshotIndex uint64, payload io.Reader) error {
	if l.disposed {
		return ErrDisposed
	}
	token, err := l.locks.Acquire(ctx, lock.Exclusive)
	if err != nil {
		return err
	}

	src := payload
	if h.Length > 0 {
		rc := rlioutil.NewExactReadCloser(io.NopCloser(payload), int64(h.Length))
		defer rc.Close()
		src = rc
	}
	tempPath, err := snapshot.WriteNew(l.dir, snapshotIndex, h, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
	if err != nil {
		token.Release()
		return err
	}
	if err := snapshot.InstallFromTempAndSwap(l.dir, tempPath); err != nil {
		token.Release()
		return err
	}
	l.snapshotIndex = snapshotIndex

	if err := l.nodeState.Mutate(func(s *nodestate.State) {
		if s.LastIndex < snapshotIndex {
			s.LastIndex = snapshotIndex
		}
		s.CommitIndex = snapshotIndex
		s.LastApplied = snapshotIndex
	}); err != nil {
		token.Release()
		return err
	}

	e, _, err := snapshot.Read(l.dir)
	if err != nil {
		token.Release()
		return err
	}
	if err := l.sm.Apply(ctx, e); err != nil {
		token.Release()
		return err
	}

	detached := l.partitions.Detach(snapshotIndex)
	l.entryCache.EvictRange(0, snapshotIndex)
	token.Release()

	for _, p := range detached {
		if err := p.Drop(); err != nil {
			logger.Warningf("drop detached partition %q: %v", p.Path(), err)
		}
	}

	l.commit.Trigger(snapshotIndex)
	return nil
}

// WaitForCommit blocks until commitIndex reaches at least target, or
// ctx is canceled.
func (l *Log) WaitForCommit(ctx context.Context, target uint64) bool {
	if l.nodeState.Get().CommitIndex >= target {
		return true
	}
	return l.commit.WaitForIndex(ctx, target)
}

// NodeState returns a snapshot of the current persisted node state.
func (l *Log) NodeState() nodestate.State { return l.nodeState.Get() }

// SnapshotIndex returns the index covered by the current canonical
// snapshot, or 0 if none has ever been installed.
func (l *Log) SnapshotIndex() uint64 { return l.snapshotIndex }

// Close flushes and closes every open partition. It does not delete
// anything.
func (l *Log) Close() error {
	if l.disposed {
		return nil
	}
	l.disposed = true
	if l.background != nil {
		l.background.Stop()
	}
	var firstErr error
	for _, p := range l.partitions.All() {
		if err := p.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// nowFunc is overridable in tests; production code always uses
// time.Now.
var nowFunc = time.Now
