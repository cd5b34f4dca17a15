// Package engine is the public storage engine API: it owns the
// memtable, the vLog, and the level-indexed set of on-disk SSTs, and
// orchestrates writes, reads, scans, compaction, and GC across them.
// The boot/put/get/compact shape follows segmentmanager.diskSegmentManager
// and memtable.MemTable in the reference, generalized from a single
// rotating log to the spec's leveled SST tree.
package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Risc-lt/LSM-KV/internal/fsutil"
	"github.com/Risc-lt/LSM-KV/internal/kv"
	"github.com/Risc-lt/LSM-KV/internal/memtable"
	"github.com/Risc-lt/LSM-KV/internal/skiplist"
	"github.com/Risc-lt/LSM-KV/internal/sst"
	"github.com/Risc-lt/LSM-KV/internal/vlog"
)

// walFileName is the WAL's fixed path, kept relative to the process's
// working directory — the reference's own wal_writer.go hard-codes a
// single log file rather than nesting it under the data directory, and
// spec §6 preserves that.
const walFileName = "./WAL.log"

const vlogFileName = "vLog"

// levelCap returns cap(L) = 2^(L+1): L0 holds 2, L1 holds 4, and so on.
func levelCap(level int) int {
	return 1 << uint(level+1)
}

// Engine is a single open instance of the storage engine, rooted at one
// sst_dir. Only one Engine should ever be open on a given dir at a time
// (spec §5: single-process, single-writer).
type Engine struct {
	sstDir string

	memtable *memtable.Memtable
	vlog     *vlog.Vlog

	maxTimestamp uint64
	levels       map[int]map[uint64]*sst.SST

	vlogHeadSnapshot uint64
}

// Open boots an engine rooted at dir: it creates dir if absent, reloads
// every existing level-<L>/<id>.sst file, replays the WAL into a fresh
// memtable, and opens (or creates) the value log.
func Open(dir string) (*Engine, error) {
	if err := fsutil.Mkdir(dir); err != nil {
		return nil, fmt.Errorf("engine: create sst_dir %s: %w", dir, err)
	}

	e := &Engine{
		sstDir: dir,
		levels: make(map[int]map[uint64]*sst.SST),
	}

	if err := e.loadLevels(); err != nil {
		return nil, err
	}

	mt, err := memtable.Open(walFileName)
	if err != nil {
		return nil, fmt.Errorf("engine: open memtable: %w", err)
	}
	e.memtable = mt

	vl, err := vlog.Open(filepath.Join(dir, vlogFileName))
	if err != nil {
		return nil, fmt.Errorf("engine: open vlog: %w", err)
	}
	e.vlog = vl
	e.vlogHeadSnapshot = vl.Head()

	return e, nil
}

// loadLevels walks sst_dir/level-<L>/*.sst, parsing every file and
// seeding levels and maxTimestamp (spec §4.8 Boot).
func (e *Engine) loadLevels() error {
	entries, err := os.ReadDir(e.sstDir)
	if err != nil {
		return fmt.Errorf("engine: read sst_dir %s: %w", e.sstDir, err)
	}

	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		var level int
		if _, err := fmt.Sscanf(dirEntry.Name(), "level-%d", &level); err != nil {
			continue
		}

		levelDir := filepath.Join(e.sstDir, dirEntry.Name())
		files, err := os.ReadDir(levelDir)
		if err != nil {
			return fmt.Errorf("engine: read %s: %w", levelDir, err)
		}

		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".sst" {
				continue
			}
			var id uint64
			if _, err := fmt.Sscanf(f.Name(), "%d.sst", &id); err != nil {
				continue
			}
			s, err := sst.FromFile(filepath.Join(levelDir, f.Name()))
			if err != nil {
				return fmt.Errorf("engine: load %s: %w", f.Name(), err)
			}
			e.levelSet(level)[id] = s
			if s.Header.Timestamp > e.maxTimestamp {
				e.maxTimestamp = s.Header.Timestamp
			}
		}
	}
	return nil
}

func (e *Engine) levelSet(level int) map[uint64]*sst.SST {
	m, ok := e.levels[level]
	if !ok {
		m = make(map[uint64]*sst.SST)
		e.levels[level] = m
	}
	return m
}

func (e *Engine) levelDir(level int) string {
	return filepath.Join(e.sstDir, fmt.Sprintf("level-%d", level))
}

// deepestLevel returns the highest level index currently holding any
// SST, or -1 if the engine has no SSTs at all.
func (e *Engine) deepestLevel() int {
	deepest := -1
	for level, files := range e.levels {
		if len(files) > 0 && level > deepest {
			deepest = level
		}
	}
	return deepest
}

// nextFileID picks a file id unique within level, using a microsecond
// clock with a collision retry, matching spec §4.8's "the microsecond
// wall clock is acceptable, but the engine must guarantee uniqueness".
func (e *Engine) nextFileID(level int) uint64 {
	files := e.levelSet(level)
	id := uint64(time.Now().UnixMicro())
	for {
		if _, exists := files[id]; !exists {
			return id
		}
		id++
	}
}

// Put inserts or overwrites the value for key.
func (e *Engine) Put(key uint64, value []byte) error {
	if e.memtable.PutCheck(key, value) {
		return e.memtable.Put(key, value)
	}
	if err := e.flush(); err != nil {
		return err
	}
	return e.memtable.Put(key, value)
}

// flush seals the current memtable into a new L0 SST, stages every one
// of its values (tombstones included) in the vLog, truncates the
// memtable and its WAL,
// and runs compaction to quiescence (spec §4.8 put, steps a-h).
func (e *Engine) flush() error {
	payload := e.memtable.CopyAll()
	if len(payload) == 0 {
		return nil
	}

	e.maxTimestamp++
	timestamp := e.maxTimestamp

	entries := sst.BuildEntriesFromMemtable(payload, e.vlogHeadSnapshot)
	e.vlog.ReadFromList(stageableEntries(payload))

	if _, err := e.vlog.WriteToFile(e.vlogHeadSnapshot); err != nil {
		return fmt.Errorf("engine: flush vlog: %w", err)
	}

	level := 0
	if err := fsutil.Mkdir(e.levelDir(level)); err != nil {
		return err
	}
	id := e.nextFileID(level)
	path := filepath.Join(e.levelDir(level), fmt.Sprintf("%d.sst", id))
	s, err := sst.FromEntries(path, timestamp, entries)
	if err != nil {
		return fmt.Errorf("engine: seal flush into %s: %w", path, err)
	}
	e.levelSet(level)[id] = s

	e.vlogHeadSnapshot = e.vlog.Head()

	if err := e.memtable.Reset(); err != nil {
		return fmt.Errorf("engine: reset memtable after flush: %w", err)
	}

	return e.compactToQuiescence()
}

// stageableEntries converts a memtable payload into the vLog entries a
// flush appends. Every record gets a frame, tombstones included, so a
// flushed delete is represented in the vLog exactly like a normal value
// (spec §3).
func stageableEntries(payload []skiplist.Record[uint64, []byte]) []vlog.Entry {
	out := make([]vlog.Entry, 0, len(payload))
	for _, r := range payload {
		out = append(out, vlog.Entry{Key: r.Key, Value: r.Val})
	}
	return out
}

// Get returns the current value for key, or an empty slice if the key
// is absent or was deleted (spec §4.8 get).
func (e *Engine) Get(key uint64) []byte {
	switch r := e.memtable.Get(key); r.State {
	case kv.Found:
		return r.Value
	case kv.Deleted:
		return nil
	}

	maxLevel := e.deepestLevel()
	for level := 0; level <= maxLevel; level++ {
		files := e.levelSet(level)
		if len(files) == 0 {
			continue
		}

		ids := make([]uint64, 0, len(files))
		for id := range files {
			ids = append(ids, id)
		}
		if level == 0 {
			sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		} else {
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		}

		var best kv.Result
		haveBest := false
		var bestTimestamp uint64
		for _, id := range ids {
			s := files[id]
			result, ok, err := s.Lookup(key, e.vlog)
			if err != nil {
				log.Printf("engine: get(%d): skip level %d id %d: %v", key, level, id, err)
				continue
			}
			if !ok {
				continue
			}
			if !haveBest || s.Header.Timestamp > bestTimestamp {
				best, bestTimestamp, haveBest = result, s.Header.Timestamp, true
			}
		}
		if haveBest {
			if best.State == kv.Deleted {
				return nil
			}
			return best.Value
		}
	}
	return nil
}

// Del deletes key, returning false if it was already absent.
func (e *Engine) Del(key uint64) (bool, error) {
	if e.Get(key) == nil {
		return false, nil
	}
	if err := e.Put(key, []byte(kv.DeleteTag)); err != nil {
		return false, err
	}
	return true, nil
}

// ScanResult is one (key, value) pair returned by Scan.
type ScanResult struct {
	Key   uint64
	Value []byte
}

type scanAcc struct {
	timestamp uint64
	value     []byte
}

// Scan appends every live key in [lo, hi] to out, in ascending key
// order, merging every SST level with the memtable's own entries,
// tombstones included (which always win, per spec §4.8 scan).
func (e *Engine) Scan(lo, hi uint64, out *[]ScanResult) {
	acc := make(map[uint64]scanAcc)

	for _, files := range e.levels {
		for _, s := range files {
			s.Scan(lo, hi, e.vlog, func(r sst.ScanResult) {
				cur, exists := acc[r.Key]
				if !exists || r.Timestamp > cur.timestamp {
					acc[r.Key] = scanAcc{timestamp: r.Timestamp, value: r.Value}
				}
			}, func(err error) {
				log.Printf("engine: scan skip: %v", err)
			})
		}
	}

	// The memtable's own tombstones must take part in the merge too, not
	// just its live entries, otherwise a key deleted in the memtable but
	// still present in an older SST survives the scan.
	var memOut []skiplist.Record[uint64, []byte]
	e.memtable.ScanWithTombstones(lo, hi, &memOut)
	for _, r := range memOut {
		acc[r.Key] = scanAcc{timestamp: e.maxTimestamp + 1, value: r.Val}
	}

	keys := make([]uint64, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		v := acc[k]
		if kv.IsTombstone(v.value) {
			continue
		}
		*out = append(*out, ScanResult{Key: k, Value: v.value})
	}
}

// Reset clears the engine back to an empty state: the memtable and its
// WAL, every SST at every level, and the vLog.
func (e *Engine) Reset() error {
	if err := e.memtable.Reset(); err != nil {
		return err
	}

	for level, files := range e.levels {
		for id, s := range files {
			if err := s.Delete(); err != nil {
				return fmt.Errorf("engine: reset: delete level %d id %d: %w", level, id, err)
			}
		}
		delete(e.levels, level)
	}

	vlogPath := filepath.Join(e.sstDir, vlogFileName)
	if err := fsutil.RmFile(vlogPath); err != nil {
		return fmt.Errorf("engine: reset: remove vlog: %w", err)
	}
	vl, err := vlog.Open(vlogPath)
	if err != nil {
		return fmt.Errorf("engine: reset: reopen vlog: %w", err)
	}
	e.vlog = vl
	e.vlogHeadSnapshot = 0
	e.maxTimestamp = 0

	return nil
}

// GC scans forward from the vLog's tail, relocating every frame whose
// value is still the latest SST-visible record for its key, then
// punches a hole over the reclaimed region (spec §4.5).
func (e *Engine) GC(chunkSize uint64) error {
	frames, err := e.vlog.ScanFromTail(chunkSize)
	if err != nil {
		return fmt.Errorf("engine: gc scan: %w", err)
	}
	if len(frames) == 0 {
		return nil
	}

	var newTail uint64
	for _, frame := range frames {
		newTail = frame.Offset + uint64(frame.Size)
		if !frame.Valid {
			log.Printf("engine: gc: checksum mismatch at offset %d, treating frame as dead", frame.Offset)
			continue
		}
		if e.isLatestLiveValue(frame.Key, frame.Offset) {
			if err := e.Put(frame.Key, frame.Value); err != nil {
				return fmt.Errorf("engine: gc: relocate key %d: %w", frame.Key, err)
			}
		}
	}

	return e.vlog.AdvanceTail(newTail, func(path string, offset, length int64) error {
		return fsutil.PunchHolePath(path, offset, length)
	})
}

// isLatestLiveValue reports whether (key, voffset) is still the
// highest-timestamp, non-tombstone record for key across every level.
// Tombstone-ness is decided by the frame's actual content, not its
// length: a flushed tombstone carries a real vLog frame like any other
// value (spec §3), so vlen alone can't tell the two apart.
func (e *Engine) isLatestLiveValue(key uint64, voffset uint64) bool {
	var bestTimestamp uint64
	var bestVoffset uint64
	var bestIsTombstone bool
	found := false

	for _, files := range e.levels {
		for _, s := range files {
			if !s.CheckIfKeyExist(key) {
				continue
			}
			i, ok := s.Search(key)
			if !ok {
				continue
			}
			ts := s.Header.Timestamp
			if found && ts <= bestTimestamp {
				continue
			}
			off, vlen := s.Offset(i)
			value, err := e.vlog.ReadValue(off, vlen)
			if err != nil {
				log.Printf("engine: gc: skip key %d at offset %d: %v", key, off, err)
				continue
			}
			bestTimestamp = ts
			bestVoffset = off
			bestIsTombstone = kv.IsTombstone(value)
			found = true
		}
	}

	if !found || bestIsTombstone {
		return false
	}
	return bestVoffset == voffset
}

// Close flushes a non-empty memtable (mirroring the reference's
// KVStore destructor, which refuses to drop buffered writes silently)
// and releases the WAL file handle.
func (e *Engine) Close() error {
	if e.memtable.Len() > 0 {
		if err := e.flush(); err != nil {
			return fmt.Errorf("engine: close: final flush: %w", err)
		}
	}
	return e.memtable.Close()
}
