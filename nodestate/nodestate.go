// Package nodestate persists the small fixed-size record of term, last
// vote, commit index, last-applied index and last index, flushed to
// disk on every mutation.
//
// The record shape follows the teacher's raftpb.HardState
// (term/votedFor/commitIndex), extended with lastApplied and lastIndex
// per the spec's node-state model, and with LastVote represented as a
// uuid.UUID ("uuid-or-zero") rather than the teacher's uint64 VotedFor,
// per the spec's explicit data-model wording.
package nodestate

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/gyuho/raftlog/pkg/fileutil"
	"github.com/gyuho/raftlog/pkg/xlog"
)

var logger = xlog.NewLogger("nodestate", xlog.INFO)

// RecordSize is the fixed on-disk size: term(8) + lastVote(16) +
// commitIndex(8) + lastApplied(8) + lastIndex(8).
const RecordSize = 8 + 16 + 8 + 8 + 8

// State is the in-memory mirror of the persisted record.
type State struct {
	Term        uint64
	LastVote    uuid.UUID
	CommitIndex uint64
	LastApplied uint64
	LastIndex   uint64
}

// checkInvariants enforces commitIndex <= lastIndex, lastApplied <=
// commitIndex (term and snapshot_index <= commitIndex are enforced by
// the callers that own those fields).
func (s State) checkInvariants() error {
	if s.CommitIndex > s.LastIndex {
		return fmt.Errorf("nodestate: commitIndex %d > lastIndex %d", s.CommitIndex, s.LastIndex)
	}
	if s.LastApplied > s.CommitIndex {
		return fmt.Errorf("nodestate: lastApplied %d > commitIndex %d", s.LastApplied, s.CommitIndex)
	}
	return nil
}

// Encode writes s into buf, which must be at least RecordSize bytes.
func Encode(buf []byte, s State) {
	binary.LittleEndian.PutUint64(buf[0:8], s.Term)
	copy(buf[8:24], s.LastVote[:])
	binary.LittleEndian.PutUint64(buf[24:32], s.CommitIndex)
	binary.LittleEndian.PutUint64(buf[32:40], s.LastApplied)
	binary.LittleEndian.PutUint64(buf[40:48], s.LastIndex)
}

// Decode reads a State out of buf, which must be at least RecordSize
// bytes.
func Decode(buf []byte) (State, error) {
	if len(buf) < RecordSize {
		return State{}, fmt.Errorf("nodestate: short record (%d < %d)", len(buf), RecordSize)
	}
	var s State
	s.Term = binary.LittleEndian.Uint64(buf[0:8])
	copy(s.LastVote[:], buf[8:24])
	s.CommitIndex = binary.LittleEndian.Uint64(buf[24:32])
	s.LastApplied = binary.LittleEndian.Uint64(buf[32:40])
	s.LastIndex = binary.LittleEndian.Uint64(buf[40:48])
	return s, nil
}

// File is the on-disk node.state file, flushed on every mutation.
type File struct {
	path string
	cur  State
}

// Open loads node.state from path, creating a zero-value record if the
// file does not exist yet.
func Open(path string) (*File, error) {
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		f := &File{path: path, cur: State{}}
		if werr := f.persist(); werr != nil {
			return nil, werr
		}
		return f, nil
	case err != nil:
		return nil, err
	}

	s, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if err := s.checkInvariants(); err != nil {
		logger.Errorf("loaded node.state violates invariants: %v", err)
		return nil, err
	}
	return &File{path: path, cur: s}, nil
}

// Get returns the current in-memory state.
func (f *File) Get() State { return f.cur }

func (f *File) persist() error {
	var buf [RecordSize]byte
	Encode(buf[:], f.cur)
	return fileutil.WriteSync(f.path, buf[:], fileutil.PrivateFileMode)
}

// Mutate applies fn to a copy of the current state, validates
// invariants, and if it returns nil, flushes the new state to disk and
// commits it in memory. On any error the in-memory state is unchanged.
func (f *File) Mutate(fn func(*State)) error {
	next := f.cur
	fn(&next)

	if err := next.checkInvariants(); err != nil {
		return err
	}
	prev := f.cur
	f.cur = next
	if err := f.persist(); err != nil {
		f.cur = prev
		return err
	}
	return nil
}
