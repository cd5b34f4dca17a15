// Package memtable is the in-memory, size-bounded write buffer sitting
// in front of every flush to an SST. It wraps internal/skiplist the way
// the reference's memtable package wraps its own skip list, but keyed
// by the engine's fixed uint64 key domain and backed by a
// internal/walrec write-ahead log instead of the reference's in-memory-
// only skiplist.Memtable.
package memtable

import (
	"github.com/Risc-lt/LSM-KV/internal/kv"
	"github.com/Risc-lt/LSM-KV/internal/skiplist"
	"github.com/Risc-lt/LSM-KV/internal/sstheader"
	"github.com/Risc-lt/LSM-KV/internal/walrec"
)

// SSTBudget is the maximum serialized size of a flushed SST (spec §3).
const SSTBudget = 16384

// BloomSize is the fixed bloom filter payload carried by every SST.
const BloomSize = 8192

// baseSize is the projected size of an SST containing zero entries:
// header + bloom filter.
const baseSize = sstheader.Size + BloomSize

// Memtable is an ordered, size-bounded buffer over a skip list, backed
// by a write-ahead log for crash recovery.
type Memtable struct {
	sl   *skiplist.SkipList[uint64, []byte]
	size int
	wal  *walrec.Writer
}

// Open constructs a memtable backed by the WAL file at walPath,
// replaying any existing records into the skip list first.
func Open(walPath string) (*Memtable, error) {
	m := &Memtable{
		sl:   skiplist.New[uint64, []byte](),
		size: baseSize,
	}

	if err := walrec.Replay(walPath, func(l walrec.Log) error {
		if l.IsDelete {
			m.delKV(l.Key)
		} else {
			m.putKV(l.Key, l.Value)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	wal, err := walrec.OpenWriter(walPath)
	if err != nil {
		return nil, err
	}
	m.wal = wal
	return m, nil
}

// Size returns the memtable's current projected on-disk SST size.
func (m *Memtable) Size() int { return m.size }

// Len returns the number of live keys (including tombstones) buffered.
func (m *Memtable) Len() int { return m.sl.Len() }

func (m *Memtable) insertDelta(value []byte) int {
	return sstindexEntrySize() + len(value)
}

// sstindexEntrySize returns the per-key index cost (key + voffset + vlen
// fields), kept as its own function so the accounting rule in
// putCheck/putKV stays in exactly one place.
func sstindexEntrySize() int { return 8 + 8 + 8 }

// PutCheck reports whether applying Put(key, value) would keep the
// projected SST size within SSTBudget.
func (m *Memtable) PutCheck(key uint64, value []byte) bool {
	return m.size+m.delta(key, value) <= SSTBudget
}

func (m *Memtable) delta(key uint64, value []byte) int {
	if old, ok := m.sl.Find(key); ok {
		return len(value) - len(old)
	}
	return m.insertDelta(value)
}

// Put applies (key, value) to the skip list, updates the projected
// size, and appends + syncs a WAL record.
func (m *Memtable) Put(key uint64, value []byte) error {
	m.putKV(key, value)
	return m.wal.Put(key, value)
}

// Del overwrites key's value with the tombstone sentinel.
func (m *Memtable) Del(key uint64) error {
	m.delKV(key)
	return m.wal.Del(key)
}

// putKV applies a PUT to the skip list and size counter without
// touching the WAL; used directly during WAL replay.
func (m *Memtable) putKV(key uint64, value []byte) {
	m.size += m.delta(key, value)
	m.sl.Insert(key, value)
}

// delKV applies a DEL (tombstone overwrite) without touching the WAL.
func (m *Memtable) delKV(key uint64) {
	m.putKV(key, []byte(kv.DeleteTag))
}

// Get looks up key, distinguishing a live value from a tombstone from
// absence entirely.
func (m *Memtable) Get(key uint64) kv.Result {
	val, ok := m.sl.Find(key)
	if !ok {
		return kv.Result{State: kv.NotPresent}
	}
	if kv.IsTombstone(val) {
		return kv.Result{State: kv.Deleted}
	}
	return kv.Result{State: kv.Found, Value: val}
}

// Scan appends every live (non-tombstone) key in [lo, hi] to out, in
// ascending key order.
func (m *Memtable) Scan(lo, hi uint64, out *[]skiplist.Record[uint64, []byte]) {
	m.sl.Range(lo, hi, func(key uint64, val []byte) bool {
		if !kv.IsTombstone(val) {
			*out = append(*out, skiplist.Record[uint64, []byte]{Key: key, Val: val})
		}
		return true
	})
}

// ScanWithTombstones appends every key in [lo, hi] to out, tombstones
// included, in ascending key order. The engine's own Scan needs this:
// a memtable delete must be able to shadow an older, still-live copy
// of the same key sitting in an SST.
func (m *Memtable) ScanWithTombstones(lo, hi uint64, out *[]skiplist.Record[uint64, []byte]) {
	m.sl.Range(lo, hi, func(key uint64, val []byte) bool {
		*out = append(*out, skiplist.Record[uint64, []byte]{Key: key, Val: val})
		return true
	})
}

// CopyAll returns every (key, value) pair, including tombstones, in
// ascending key order — the payload a flush seals into a new L0 SST.
func (m *Memtable) CopyAll() []skiplist.Record[uint64, []byte] {
	return m.sl.CopyAll()
}

// Reset clears the skip list, resets the projected size, and truncates
// the WAL.
func (m *Memtable) Reset() error {
	m.sl.Clear()
	m.size = baseSize
	return m.wal.Truncate()
}

// Close releases the WAL file handle.
func (m *Memtable) Close() error {
	return m.wal.Close()
}
