package raftlog

import (
	"context"
	"io"

	"github.com/gyuho/raftlog/entry"
)

// StateMachine is the external collaborator that committed entries are
// applied to. Apply must be idempotent under at-least-once replay: on
// Open, if ReplayOnInitialize is set, every entry in (snapshotIndex,
// commitIndex] is re-applied regardless of how far lastApplied had
// actually reached before the last crash.
type StateMachine interface {
	Apply(ctx context.Context, e entry.LogEntry) error
}

// SnapshotBuilder drives a single buildSnapshot call: Apply folds one
// committed entry's payload into the builder's running state, AdjustIndex
// lets the builder skip ahead past indices it has already subsumed (for
// example a key/value builder that only needs the latest write per key),
// and WriteTo streams the accumulated snapshot payload out once the
// walk reaches its target index. Dispose releases any resources the
// builder holds regardless of whether the walk completed.
type SnapshotBuilder interface {
	Apply(e entry.LogEntry) error
	AdjustIndex(snapshotIndex, target, cursor uint64) uint64
	WriteTo(w io.Writer) error
	Dispose()
}

// NewBuilderFunc constructs a fresh SnapshotBuilder for one
// buildSnapshot call.
type NewBuilderFunc func() SnapshotBuilder
