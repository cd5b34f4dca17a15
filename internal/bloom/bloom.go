// Package bloom implements the fixed-size bloom filter embedded in every
// SST. Bit storage is backed by github.com/bits-and-blooms/bitset, the
// same dependency the reference's sst.Writer pulls in (there via
// bloom/v3); the bit-position derivation itself is the engine's own,
// because the spec fixes an exact hash contract — one
// MurmurHash3_x64_128 call per key, seed 0, four resulting words each
// taken modulo the bit-array size — that bloom/v3's own hashing does not
// expose.
package bloom

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/Risc-lt/LSM-KV/internal/xmurmur"
)

// SizeBytes is the on-disk/in-memory size of every SST's bloom filter.
const SizeBytes = 8192

const sizeBits = SizeBytes * 8

// seed is used for both Insert and Find. The reference's source uses
// seed 0 for insert and seed 1 for find, which makes the filter useless
// (every find looks up the wrong bits); per spec §4.1/§9 this is a
// known bug in the original and must NOT be reproduced.
const seed = 0

// Filter is a fixed SizeBytes-byte bloom filter over uint64 keys.
type Filter struct {
	bits *bitset.BitSet
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{bits: bitset.New(sizeBits)}
}

func positions(key uint64) [4]uint {
	h := xmurmur.SumKey(key, seed)
	var pos [4]uint
	for i, w := range h {
		pos[i] = uint(w) % sizeBits
	}
	return pos
}

// Insert sets the four bit positions derived from key.
func (f *Filter) Insert(key uint64) {
	for _, p := range positions(key) {
		f.bits.Set(p)
	}
}

// Find reports whether all four bit positions derived from key are set.
// A false result proves key is absent; a true result is a probabilistic
// maybe.
func (f *Filter) Find(key uint64) bool {
	for _, p := range positions(key) {
		if !f.bits.Test(p) {
			return false
		}
	}
	return true
}

// WriteTo serializes the filter as SizeBytes little-endian-packed bytes,
// bit i living in byte i/8, LSB-first within the byte.
func (f *Filter) WriteTo(w io.Writer) error {
	buf := f.pack()
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != SizeBytes {
		return fmt.Errorf("bloom: short write: wrote %d of %d bytes", n, SizeBytes)
	}
	return nil
}

func (f *Filter) pack() []byte {
	buf := make([]byte, SizeBytes)
	for i := uint(0); i < sizeBits; i++ {
		if f.bits.Test(i) {
			buf[i/8] |= 1 << (i % 8)
		}
	}
	return buf
}

// ReadFrom loads a filter previously serialized by WriteTo from exactly
// SizeBytes of buf.
func ReadFrom(buf []byte) (*Filter, error) {
	if len(buf) < SizeBytes {
		return nil, fmt.Errorf("bloom: short buffer: got %d bytes, need %d", len(buf), SizeBytes)
	}
	bs := bitset.New(sizeBits)
	for i := uint(0); i < sizeBits; i++ {
		if buf[i/8]&(1<<(i%8)) != 0 {
			bs.Set(i)
		}
	}
	return &Filter{bits: bs}, nil
}
