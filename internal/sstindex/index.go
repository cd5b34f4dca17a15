// Package sstindex is the in-memory representation of an SST's index
// block: three parallel, equal-length sequences of key, vLog offset and
// value length, kept sorted ascending by key, plus binary search over
// them.
package sstindex

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// EntrySize is the on-disk size of one (key, voffset, vlen) triple.
const EntrySize = 24

// Index holds the parallel key/voffset/vlen arrays for one SST.
type Index struct {
	keys     []uint64
	voffsets []uint64
	vlens    []uint64
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.keys) }

// Key returns the key at position i. i must be in [0, Len()).
func (idx *Index) Key(i int) uint64 { return idx.keys[i] }

// Offset returns the vLog offset at position i. i must be in [0, Len()).
func (idx *Index) Offset(i int) uint64 { return idx.voffsets[i] }

// Vlen returns the value length at position i. i must be in [0, Len()).
func (idx *Index) Vlen(i int) uint64 { return idx.vlens[i] }

// Insert appends a new entry. The caller is responsible for maintaining
// ascending key order.
func (idx *Index) Insert(key, voffset, vlen uint64) {
	idx.keys = append(idx.keys, key)
	idx.voffsets = append(idx.voffsets, voffset)
	idx.vlens = append(idx.vlens, vlen)
}

// Search returns the position of key and true if present, else (0, false).
func (idx *Index) Search(key uint64) (int, bool) {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= key })
	if i < len(idx.keys) && idx.keys[i] == key {
		return i, true
	}
	return 0, false
}

// LowerBound returns the position of the first key >= k, or Len() if none.
func (idx *Index) LowerBound(k uint64) int {
	return sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= k })
}

// Encode serializes every entry as (key:8, voffset:8, vlen:8) little-endian.
func (idx *Index) Encode() []byte {
	buf := make([]byte, len(idx.keys)*EntrySize)
	for i := range idx.keys {
		off := i * EntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], idx.keys[i])
		binary.LittleEndian.PutUint64(buf[off+8:off+16], idx.voffsets[i])
		binary.LittleEndian.PutUint64(buf[off+16:off+24], idx.vlens[i])
	}
	return buf
}

// Decode parses n entries from the front of buf.
func Decode(buf []byte, n uint64) (*Index, error) {
	idx := &Index{
		keys:     make([]uint64, n),
		voffsets: make([]uint64, n),
		vlens:    make([]uint64, n),
	}
	for i := uint64(0); i < n; i++ {
		off := int(i) * EntrySize
		if off+EntrySize > len(buf) {
			return nil, fmt.Errorf("sstindex: short buffer decoding %d entries: got %d bytes", n, len(buf))
		}
		idx.keys[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		idx.voffsets[i] = binary.LittleEndian.Uint64(buf[off+8 : off+16])
		idx.vlens[i] = binary.LittleEndian.Uint64(buf[off+16 : off+24])
	}
	return idx, nil
}
