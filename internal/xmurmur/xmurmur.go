// Package xmurmur adapts the 128-bit MurmurHash3 variant used throughout
// the storage engine to the four-word contract the bloom filter expects.
package xmurmur

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// Sum128To4 hashes data with the given seed and splits the 128-bit digest
// into four 32-bit words, matching MurmurHash3_x64_128(ptr, len, seed, out[4]).
func Sum128To4(data []byte, seed uint32) [4]uint32 {
	h1, h2 := murmur3.Sum128WithSeed(data, seed)

	var out [4]uint32
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], h1)
	binary.LittleEndian.PutUint64(buf[8:16], h2)
	out[0] = binary.LittleEndian.Uint32(buf[0:4])
	out[1] = binary.LittleEndian.Uint32(buf[4:8])
	out[2] = binary.LittleEndian.Uint32(buf[8:12])
	out[3] = binary.LittleEndian.Uint32(buf[12:16])
	return out
}

// SumKey hashes a fixed-width uint64 key the same way the original
// MurmurHash3_x64_128(&key, sizeof(K), seed, hash) call does.
func SumKey(key uint64, seed uint32) [4]uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return Sum128To4(buf[:], seed)
}
