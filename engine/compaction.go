package engine

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/Risc-lt/LSM-KV/internal/fsutil"
	"github.com/Risc-lt/LSM-KV/internal/kv"
	"github.com/Risc-lt/LSM-KV/internal/sst"
)

// needsCompact returns the smallest level whose SST count exceeds its
// capacity, or ok=false if every level is within budget.
func (e *Engine) needsCompact() (level int, ok bool) {
	levels := make([]int, 0, len(e.levels))
	for l := range e.levels {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		if len(e.levels[l]) > levelCap(l) {
			return l, true
		}
	}
	return 0, false
}

// compactToQuiescence repeatedly compacts the smallest overfull level
// until none remains (spec §4.8 put step h / Compaction step 9).
func (e *Engine) compactToQuiescence() error {
	for {
		level, ok := e.needsCompact()
		if !ok {
			return nil
		}
		if err := e.compactLevel(level); err != nil {
			return fmt.Errorf("engine: compact level %d: %w", level, err)
		}
	}
}

type sstRef struct {
	level int
	id    uint64
	s     *sst.SST
}

// compactLevel merges level's overfull SSTs (all of them, at L=0; the
// oldest excess at L≥1) with whatever SSTs in level+1 overlap their
// combined key range, producing a fresh, size-bounded run of SSTs at
// level+1 and deleting every input.
func (e *Engine) compactLevel(level int) error {
	selected := e.selectFromLevel(level)
	if len(selected) == 0 {
		return nil
	}

	kmin, kmax := selected[0].s.Header.MinKey, selected[0].s.Header.MaxKey
	for _, r := range selected[1:] {
		if r.s.Header.MinKey < kmin {
			kmin = r.s.Header.MinKey
		}
		if r.s.Header.MaxKey > kmax {
			kmax = r.s.Header.MaxKey
		}
	}

	nextLevel := level + 1
	for id, s := range e.levelSet(nextLevel) {
		if s.Header.MinKey <= kmax && s.Header.MaxKey >= kmin {
			selected = append(selected, sstRef{level: nextLevel, id: id, s: s})
		}
	}

	if err := fsutil.Mkdir(e.levelDir(nextLevel)); err != nil {
		return err
	}

	merged, maxInputTimestamp := e.mergeSelected(selected)

	// Tombstone GC only at the deepest level, and only once level+1
	// becomes that deepest level by absorbing this compaction's output.
	deepest := e.deepestLevelExcluding(selected)
	if nextLevel >= deepest {
		merged = dropDeadTombstones(merged)
	}

	if err := e.repartitionInto(nextLevel, merged, maxInputTimestamp); err != nil {
		return err
	}

	for _, r := range selected {
		if err := r.s.Delete(); err != nil {
			return fmt.Errorf("delete input level %d id %d: %w", r.level, r.id, err)
		}
		delete(e.levelSet(r.level), r.id)
	}

	return nil
}

// selectFromLevel implements Compaction step 1: at L=0 every SST is
// taken; at L≥1 only the oldest |levels[L]| - cap(L) SSTs are, ordered
// by (timestamp, min_key) ascending.
func (e *Engine) selectFromLevel(level int) []sstRef {
	files := e.levelSet(level)
	refs := make([]sstRef, 0, len(files))
	for id, s := range files {
		refs = append(refs, sstRef{level: level, id: id, s: s})
	}
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i].s.Header, refs[j].s.Header
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.MinKey < b.MinKey
	})

	if level == 0 {
		return refs
	}
	excess := len(refs) - levelCap(level)
	if excess <= 0 {
		return nil
	}
	return refs[:excess]
}

// deepestLevelExcluding computes the deepest level that would still
// hold an SST after removing every ref in selected from its level.
func (e *Engine) deepestLevelExcluding(selected []sstRef) int {
	remaining := make(map[int]int, len(e.levels))
	for level, files := range e.levels {
		remaining[level] = len(files)
	}
	for _, r := range selected {
		remaining[r.level]--
	}
	deepest := -1
	for level, n := range remaining {
		if n > 0 && level > deepest {
			deepest = level
		}
	}
	return deepest
}

type mergedEntry struct {
	timestamp     uint64
	voffset, vlen uint64
	isTombstone   bool
	level         int
}

// mergeSelected implements Compaction step 5: iterate every selected
// SST's index entries, keeping the highest-timestamp entry per key
// (ties broken in favor of the lower level, i.e. L over L+1). Selected
// is walked lowest level first so a same-timestamp entry from L is
// already in place by the time L+1's copy is considered. Whether an
// entry is a tombstone is decided by reading its actual vLog bytes
// (vlen alone can't tell a delete from a genuine empty value); an
// entry whose value can't be resolved is logged and dropped, matching
// spec §7's "skip the offending entry" rule.
func (e *Engine) mergeSelected(selected []sstRef) (map[uint64]mergedEntry, uint64) {
	ordered := make([]sstRef, len(selected))
	copy(ordered, selected)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].level < ordered[j].level })

	merged := make(map[uint64]mergedEntry)
	var maxTimestamp uint64

	for _, r := range ordered {
		s := r.s
		if s.Header.Timestamp > maxTimestamp {
			maxTimestamp = s.Header.Timestamp
		}
		for i := 0; i < s.Len(); i++ {
			key := s.KeyAt(i)
			voffset, vlen := s.OffsetAt(i), s.VlenAt(i)
			value, err := e.vlog.ReadValue(voffset, vlen)
			if err != nil {
				log.Printf("engine: compact: skip key %d at offset %d: %v", key, voffset, err)
				continue
			}
			cand := mergedEntry{timestamp: s.Header.Timestamp, voffset: voffset, vlen: vlen, isTombstone: kv.IsTombstone(value), level: r.level}

			cur, exists := merged[key]
			if !exists || cand.timestamp > cur.timestamp {
				merged[key] = cand
			}
			// cand.timestamp == cur.timestamp: cur already won by
			// virtue of coming from a lower (or equal) level first.
		}
	}
	return merged, maxTimestamp
}

func dropDeadTombstones(merged map[uint64]mergedEntry) map[uint64]mergedEntry {
	out := make(map[uint64]mergedEntry, len(merged))
	for k, v := range merged {
		if v.isTombstone {
			continue
		}
		out[k] = v
	}
	return out
}

// repartitionInto implements Compaction step 7: sweep merged in
// ascending key order, sealing a new SST at level every time the next
// entry would push the index past MaxEntries.
func (e *Engine) repartitionInto(level int, merged map[uint64]mergedEntry, timestamp uint64) error {
	if len(merged) == 0 {
		return nil
	}

	keys := make([]uint64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var batch []sst.Entry
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		id := e.nextFileID(level)
		path := filepath.Join(e.levelDir(level), fmt.Sprintf("%d.sst", id))
		s, err := sst.FromEntries(path, timestamp, batch)
		if err != nil {
			return err
		}
		e.levelSet(level)[id] = s
		batch = nil
		return nil
	}

	for _, k := range keys {
		v := merged[k]
		if len(batch) == sst.MaxEntries {
			if err := flushBatch(); err != nil {
				return err
			}
		}
		batch = append(batch, sst.Entry{Key: k, Voffset: v.voffset, Vlen: v.vlen})
	}
	return flushBatch()
}
