package crcutil

import (
	"hash"
	"hash/crc32"
)

// hash32 wraps hash/crc32's table-driven update so that a CRC stream can
// be resumed with a non-zero initial value, the way a WAL or partition
// file continues its checksum across a file cut without rehashing
// everything that came before.
type hash32 struct {
	crc  uint32
	init uint32
	tab  *crc32.Table
}

// New returns a hash.Hash32 that starts from prev instead of 0, using tab
// as the update table. Everything else behaves like hash/crc32's own
// Hash32: Write accumulates, Sum32 returns the running value, Reset goes
// back to prev (not 0).
func New(prev uint32, tab *crc32.Table) hash.Hash32 {
	return &hash32{crc: prev, init: prev, tab: tab}
}

func (h *hash32) Write(p []byte) (int, error) {
	h.crc = crc32.Update(h.crc, h.tab, p)
	return len(p), nil
}

func (h *hash32) Sum32() uint32 { return h.crc }

func (h *hash32) Sum(in []byte) []byte {
	s := h.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (h *hash32) Reset() { h.crc = h.init }

func (h *hash32) Size() int { return crc32.Size }

func (h *hash32) BlockSize() int { return 1 }
