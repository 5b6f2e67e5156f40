package raftlog

import (
	"fmt"

	"github.com/gyuho/raftlog/entry"
)

// ErrInvalidIndex is returned when a caller asks to read or append an
// index outside the log's valid range.
var ErrInvalidIndex = fmt.Errorf("raftlog: invalid index")

// ErrInvalidAppend is returned when an append violates a structural
// invariant: appending a snapshot-flagged entry through Append, or
// appending at or below commitIndex without skipCommitted.
var ErrInvalidAppend = fmt.Errorf("raftlog: invalid append")

// ErrRangeTooBig is returned when a read range would require
// materializing more entries than the core is willing to buffer in one
// call.
var ErrRangeTooBig = fmt.Errorf("raftlog: requested range too big")

// ErrDisposed is returned by any operation on a Log that has already
// been closed.
var ErrDisposed = fmt.Errorf("raftlog: log is disposed")

// ErrReadLogEntryTwice is returned when a stream-bound LogEntry's
// payload is consumed more than once via WriteTo. It is the same value
// as entry.ErrReadTwice, which LogEntry.WriteTo returns.
var ErrReadLogEntryTwice = entry.ErrReadTwice

// missingPartitionError marks the one fatal condition in the log core:
// commit/apply walking forward finds no partition backing an index at
// or below commitIndex. A missing partition at or below commitIndex
// means durable state has been lost; per §7 the process cannot recover
// from this by returning an error to the caller, so Log.readForApply
// logs and panics instead of returning this type to a caller.
type missingPartitionError struct {
	index uint64
}

func (e *missingPartitionError) Error() string {
	return fmt.Sprintf("raftlog: no partition backs committed index %d", e.index)
}
