// Package sst is an immutable on-disk sorted run: a 32-byte header, a
// fixed-size bloom filter, and a key index, composed and queried the
// way the reference's sst.Writer/Reader pair does, but against the
// exact fixed-size binary layout spec §3/§6 mandates instead of the
// reference's block-structured, compressed format.
package sst

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Risc-lt/LSM-KV/internal/bloom"
	"github.com/Risc-lt/LSM-KV/internal/kv"
	"github.com/Risc-lt/LSM-KV/internal/skiplist"
	"github.com/Risc-lt/LSM-KV/internal/sstheader"
	"github.com/Risc-lt/LSM-KV/internal/sstindex"
	"github.com/Risc-lt/LSM-KV/internal/vlog"
)

// MaxFileSize is the hard cap on a serialized SST (spec §3).
const MaxFileSize = 16384

// MaxEntries is the largest key_count an SST can hold within MaxFileSize.
const MaxEntries = (MaxFileSize - sstheader.Size - bloom.SizeBytes) / sstindex.EntrySize

const dataOffset = sstheader.Size + bloom.SizeBytes

// SST is one immutable, already-written sorted run on disk.
type SST struct {
	Path   string
	Header sstheader.Header
	bloom  *bloom.Filter
	index  *sstindex.Index
}

// Entry is one (key, voffset, vlen) triple going into a new SST's index.
type Entry struct {
	Key     uint64
	Voffset uint64
	Vlen    uint64
}

// FromFile opens and parses an existing .sst file.
func FromFile(path string) (*SST, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sst: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, dataOffset)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("sst: read header+bloom from %s: %w", path, err)
	}

	header, err := sstheader.Decode(buf[:sstheader.Size])
	if err != nil {
		return nil, err
	}
	filter, err := bloom.ReadFrom(buf[sstheader.Size:dataOffset])
	if err != nil {
		return nil, err
	}

	idxBuf := make([]byte, header.KeyCount*sstindex.EntrySize)
	if len(idxBuf) > 0 {
		if _, err := f.ReadAt(idxBuf, int64(dataOffset)); err != nil {
			return nil, fmt.Errorf("sst: read index from %s: %w", path, err)
		}
	}
	idx, err := sstindex.Decode(idxBuf, header.KeyCount)
	if err != nil {
		return nil, err
	}

	return &SST{Path: path, Header: header, bloom: filter, index: idx}, nil
}

// BuildEntriesFromMemtable computes the (key, voffset, vlen) triples a
// flush will assign, given the vLog head snapshot taken before the
// flush started. Entries must be iterated and appended to the vLog in
// this exact order so the computed offsets line up with reality.
//
// A tombstone gets a vLog frame exactly like any other value, carrying
// DeleteTag as its payload (spec §3): nothing here distinguishes a
// delete from a genuine value, including one that happens to be empty.
func BuildEntriesFromMemtable(records []skiplist.Record[uint64, []byte], vlogOffsetSnapshot uint64) []Entry {
	entries := make([]Entry, 0, len(records))
	offset := vlogOffsetSnapshot
	for _, r := range records {
		entries = append(entries, Entry{Key: r.Key, Voffset: offset, Vlen: uint64(len(r.Val))})
		offset += uint64(vlog.FrameSize(len(r.Val)))
	}
	return entries
}

// FromEntries builds and writes a new SST at path from already-sorted,
// already-offset entries (used both for memtable flushes and for
// compaction output, where offsets are already known and no vLog I/O is
// needed).
func FromEntries(path string, timestamp uint64, entries []Entry) (*SST, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("sst: cannot build an empty SST")
	}
	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("sst: %d entries exceeds max %d", len(entries), MaxEntries)
	}

	filter := bloom.New()
	idx := sstindex.New()
	for _, e := range entries {
		filter.Insert(e.Key)
		idx.Insert(e.Key, e.Voffset, e.Vlen)
	}

	header := sstheader.Header{
		Timestamp: timestamp,
		KeyCount:  uint64(len(entries)),
		MinKey:    entries[0].Key,
		MaxKey:    entries[len(entries)-1].Key,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sst: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header.Encode()); err != nil {
		return nil, err
	}
	if err := filter.WriteTo(f); err != nil {
		return nil, err
	}
	if _, err := f.Write(idx.Encode()); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	return &SST{Path: path, Header: header, bloom: filter, index: idx}, nil
}

// CheckIfKeyExist reports whether key could plausibly be present:
// within the SST's key range AND not provably absent per the bloom
// filter.
func (s *SST) CheckIfKeyExist(key uint64) bool {
	if s.Header.KeyCount == 0 {
		return false
	}
	if key < s.Header.MinKey || key > s.Header.MaxKey {
		return false
	}
	return s.bloom.Find(key)
}

// Search returns the index position of key, if CheckIfKeyExist would
// also return true for it.
func (s *SST) Search(key uint64) (int, bool) {
	return s.index.Search(key)
}

// Offset returns the (voffset, vlen) pair for the entry at position i.
func (s *SST) Offset(i int) (voffset, vlen uint64) {
	return s.index.Offset(i), s.index.Vlen(i)
}

// KeyAt, OffsetAt, VlenAt expose raw index access for compaction's merge step.
func (s *SST) KeyAt(i int) uint64    { return s.index.Key(i) }
func (s *SST) OffsetAt(i int) uint64 { return s.index.Offset(i) }
func (s *SST) VlenAt(i int) uint64   { return s.index.Vlen(i) }

// Len returns the number of entries in the index.
func (s *SST) Len() int { return s.index.Len() }

// ScanResult is one key's value as of the SST being scanned, resolved
// through the vLog.
type ScanResult struct {
	Key       uint64
	Timestamp uint64
	Value     []byte
}

// Scan resolves every key in [lo, hi] through v, calling visit for each.
// Resolution failures (out-of-range or checksum mismatch reads) are
// reported to onSkip rather than aborting the scan, matching spec §7's
// "skip the offending entry" propagation rule.
func (s *SST) Scan(lo, hi uint64, v *vlog.Vlog, visit func(ScanResult), onSkip func(error)) {
	start := s.index.LowerBound(lo)
	for i := start; i < s.index.Len(); i++ {
		key := s.index.Key(i)
		if key > hi {
			return
		}
		voffset, vlen := s.index.Offset(i), s.index.Vlen(i)
		value, err := v.ReadValue(voffset, vlen)
		if err != nil {
			if onSkip != nil {
				onSkip(err)
			}
			continue
		}
		visit(ScanResult{Key: key, Timestamp: s.Header.Timestamp, Value: value})
	}
}

// Lookup checks key against the range and bloom filter, searches the
// index, and resolves the value through v, returning its kv.Result as
// of this SST's timestamp. ok is false only if the key is absent from the index
// entirely; a tombstone is still ok=true with State=Deleted.
func (s *SST) Lookup(key uint64, v *vlog.Vlog) (result kv.Result, ok bool, err error) {
	if !s.CheckIfKeyExist(key) {
		return kv.Result{State: kv.NotPresent}, false, nil
	}
	i, found := s.index.Search(key)
	if !found {
		return kv.Result{State: kv.NotPresent}, false, nil
	}
	voffset, vlen := s.index.Offset(i), s.index.Vlen(i)
	value, err := v.ReadValue(voffset, vlen)
	if err != nil {
		return kv.Result{}, true, err
	}
	if kv.IsTombstone(value) {
		return kv.Result{State: kv.Deleted}, true, nil
	}
	return kv.Result{State: kv.Found, Value: value}, true, nil
}

// Delete removes the backing file from disk.
func (s *SST) Delete() error {
	return os.Remove(s.Path)
}

// SortEntriesByKey sorts entries ascending by key, the order FromEntries
// expects.
func SortEntriesByKey(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
