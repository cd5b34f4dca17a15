// Package sstheader codecs the fixed 32-byte record every SST file
// starts with: timestamp, key_count, min_key, max_key, all little-endian
// uint64s.
package sstheader

import (
	"encoding/binary"
	"fmt"
)

// Size is the on-disk size of a Header in bytes.
const Size = 32

// Header is the fixed leading record of every .sst file.
type Header struct {
	Timestamp uint64
	KeyCount  uint64
	MinKey    uint64
	MaxKey    uint64
}

// Encode writes h as 32 little-endian bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint64(buf[0:8], h.Timestamp)
	binary.LittleEndian.PutUint64(buf[8:16], h.KeyCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.MinKey)
	binary.LittleEndian.PutUint64(buf[24:32], h.MaxKey)
	return buf
}

// Decode parses a Header from the first Size bytes of buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < Size {
		return Header{}, fmt.Errorf("sstheader: short buffer: got %d bytes, need %d", len(buf), Size)
	}
	return Header{
		Timestamp: binary.LittleEndian.Uint64(buf[0:8]),
		KeyCount:  binary.LittleEndian.Uint64(buf[8:16]),
		MinKey:    binary.LittleEndian.Uint64(buf[16:24]),
		MaxKey:    binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}
