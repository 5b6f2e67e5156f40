// Package entry defines the fixed on-disk header layout for a single
// log entry and the in-memory representations the rest of the log core
// passes around.
package entry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed size, in bytes, of an entry's metadata header:
// term(8) + timestamp(8) + flags(1) + commandId(4) + length(8).
const HeaderSize = 29

// Flag bits within Header.Flags.
const (
	// FlagIsSnapshot marks an entry as a snapshot entry; such entries are
	// only ever stored in the snapshot file, never in a partition.
	FlagIsSnapshot byte = 1 << 0

	// FlagCommandIDPresent distinguishes "commandId is 0" from "commandId
	// is absent." The spec leaves this ambiguous; this repository resolves
	// it by carrying presence as an explicit bit rather than treating 0 as
	// a sentinel, since 0 is a legitimate application-defined tag.
	FlagCommandIDPresent byte = 1 << 1
)

// Header is the fixed-layout metadata that precedes every entry payload,
// little-endian on disk.
type Header struct {
	Term       uint64
	Timestamp  uint64
	Flags      byte
	CommandID  uint32
	Length     uint64
}

// IsSnapshot reports whether Flags has FlagIsSnapshot set.
func (h Header) IsSnapshot() bool { return h.Flags&FlagIsSnapshot != 0 }

// CommandIDOK returns the commandId and whether it is actually present,
// per FlagCommandIDPresent.
func (h Header) CommandIDOK() (uint32, bool) {
	return h.CommandID, h.Flags&FlagCommandIDPresent != 0
}

// EncodeHeader writes h into buf, which must be at least HeaderSize bytes.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Term)
	binary.LittleEndian.PutUint64(buf[8:16], h.Timestamp)
	buf[16] = h.Flags
	binary.LittleEndian.PutUint32(buf[17:21], h.CommandID)
	binary.LittleEndian.PutUint64(buf[21:29], h.Length)
}

// DecodeHeader reads a Header out of buf, which must be at least
// HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("entry: short header (%d < %d)", len(buf), HeaderSize)
	}
	return Header{
		Term:      binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
		Flags:     buf[16],
		CommandID: binary.LittleEndian.Uint32(buf[17:21]),
		Length:    binary.LittleEndian.Uint64(buf[21:29]),
	}, nil
}

// Kind tags the variant a LogEntry carries, modeling the source's
// dynamic dispatch over entry types (cached, partitioned, snapshot,
// the ephemeral initial entry of an empty log) as a tagged sum with a
// common capability set, per the spec's own design note.
type Kind int

const (
	// KindInitial is the ephemeral term-0 entry returned by read(0, 0)
	// on an otherwise empty log. It has no backing storage.
	KindInitial Kind = iota
	// KindCached is an uncommitted entry still living in the entry cache,
	// not yet (or not necessarily) flushed to its partition.
	KindCached
	// KindPartitioned is an entry read back from a partition file.
	KindPartitioned
	// KindSnapshotEntry is the single logical entry the snapshot file
	// represents for all indices <= snapshot_index.
	KindSnapshotEntry
)

// LogEntry is the value handed back by read paths and passed into
// append paths. Payload is a view: for KindPartitioned and
// KindSnapshotEntry reads it is only valid until the owning session's
// buffer is reused by a subsequent read on the same session.
type LogEntry struct {
	Kind    Kind
	Index   uint64
	Header  Header
	Payload []byte

	// consumed guards ReadLogEntryTwice: set once a stream-bound entry's
	// payload has been handed to WriteTo or otherwise drained.
	consumed bool
}

// NewInitial returns the ephemeral term-0 entry for an empty log.
func NewInitial() LogEntry {
	return LogEntry{Kind: KindInitial, Index: 0, Header: Header{Term: 0}}
}

// Term returns the entry's Raft term.
func (e LogEntry) Term() uint64 { return e.Header.Term }

// Timestamp returns the entry's creation time.
func (e LogEntry) Timestamp() uint64 { return e.Header.Timestamp }

// Length returns the payload length in bytes.
func (e LogEntry) Length() uint64 { return e.Header.Length }

// IsSnapshot reports whether this entry represents the snapshot.
func (e LogEntry) IsSnapshot() bool {
	return e.Kind == KindSnapshotEntry || e.Header.IsSnapshot()
}

// WriteTo streams the entry's header and payload to w. It fails with
// ErrReadTwice if called more than once on the same stream-bound entry.
func (e *LogEntry) WriteTo(w io.Writer) (int64, error) {
	if e.consumed {
		return 0, ErrReadTwice
	}
	e.consumed = true

	var hdr [HeaderSize]byte
	EncodeHeader(hdr[:], e.Header)
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(e.Payload)
	return int64(n + m), err
}

// ErrReadTwice is returned when a stream-bound LogEntry's payload is
// consumed more than once.
var ErrReadTwice = fmt.Errorf("entry: consumed twice")
