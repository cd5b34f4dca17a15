package sst

import (
	"path/filepath"
	"testing"

	"github.com/Risc-lt/LSM-KV/internal/kv"
	"github.com/Risc-lt/LSM-KV/internal/skiplist"
	"github.com/Risc-lt/LSM-KV/internal/vlog"
)

func buildVlogAndSST(t *testing.T, dir string, pairs []skiplist.Record[uint64, []byte]) (*SST, *vlog.Vlog) {
	t.Helper()

	v, err := vlog.Open(filepath.Join(dir, "vLog"))
	if err != nil {
		t.Fatalf("vlog.Open: %v", err)
	}

	entries := BuildEntriesFromMemtable(pairs, v.Head())

	stage := make([]vlog.Entry, 0, len(pairs))
	for _, p := range pairs {
		stage = append(stage, vlog.Entry{Key: p.Key, Value: p.Val})
	}
	v.ReadFromList(stage)
	if _, err := v.WriteToFile(v.Head()); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	s, err := FromEntries(filepath.Join(dir, "level-0", "1.sst"), 1, entries)
	if err != nil {
		t.Fatalf("FromEntries: %v", err)
	}
	return s, v
}

func TestFromEntriesHeaderFields(t *testing.T) {
	dir := t.TempDir()
	pairs := []skiplist.Record[uint64, []byte]{
		{Key: 1, Val: []byte("a")},
		{Key: 5, Val: []byte("bb")},
		{Key: 9, Val: []byte("ccc")},
	}
	s, _ := buildVlogAndSST(t, dir, pairs)

	if s.Header.KeyCount != 3 {
		t.Fatalf("expected key_count 3, got %d", s.Header.KeyCount)
	}
	if s.Header.MinKey != 1 || s.Header.MaxKey != 9 {
		t.Fatalf("expected min/max (1,9), got (%d,%d)", s.Header.MinKey, s.Header.MaxKey)
	}
}

func TestCheckIfKeyExistAndLookup(t *testing.T) {
	dir := t.TempDir()
	pairs := []skiplist.Record[uint64, []byte]{
		{Key: 1, Val: []byte("a")},
		{Key: 5, Val: []byte("bb")},
		{Key: 9, Val: []byte("ccc")},
	}
	s, v := buildVlogAndSST(t, dir, pairs)

	if !s.CheckIfKeyExist(5) {
		t.Fatalf("expected key 5 to plausibly exist")
	}
	if s.CheckIfKeyExist(1000) {
		t.Fatalf("expected key 1000 to be out of range")
	}

	result, ok, err := s.Lookup(5, v)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || result.State != kv.Found || string(result.Value) != "bb" {
		t.Fatalf("expected Found(bb), got ok=%v result=%+v", ok, result)
	}
}

func TestLookupTombstone(t *testing.T) {
	dir := t.TempDir()
	pairs := []skiplist.Record[uint64, []byte]{
		{Key: 1, Val: []byte(kv.DeleteTag)},
	}
	s, v := buildVlogAndSST(t, dir, pairs)

	result, ok, err := s.Lookup(1, v)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || result.State != kv.Deleted {
		t.Fatalf("expected Deleted, got ok=%v result=%+v", ok, result)
	}
}

func TestLookupEmptyValueIsNotATombstone(t *testing.T) {
	dir := t.TempDir()
	pairs := []skiplist.Record[uint64, []byte]{
		{Key: 1, Val: []byte{}},
	}
	s, v := buildVlogAndSST(t, dir, pairs)

	result, ok, err := s.Lookup(1, v)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || result.State != kv.Found {
		t.Fatalf("expected Found, got ok=%v result=%+v", ok, result)
	}
	if len(result.Value) != 0 {
		t.Fatalf("expected an empty value, got %q", result.Value)
	}
}

func TestScanRange(t *testing.T) {
	dir := t.TempDir()
	var pairs []skiplist.Record[uint64, []byte]
	for k := uint64(0); k < 20; k++ {
		pairs = append(pairs, skiplist.Record[uint64, []byte]{Key: k, Val: []byte{byte(k)}})
	}
	s, v := buildVlogAndSST(t, dir, pairs)

	var got []ScanResult
	s.Scan(5, 10, v, func(r ScanResult) {
		got = append(got, r)
	}, func(err error) {
		t.Fatalf("unexpected scan skip: %v", err)
	})

	if len(got) != 6 {
		t.Fatalf("expected 6 results in [5,10], got %d", len(got))
	}
	for i, r := range got {
		if r.Key != uint64(5+i) {
			t.Fatalf("expected ascending keys starting at 5, got %v at position %d", r.Key, i)
		}
	}
}

func TestFromFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pairs := []skiplist.Record[uint64, []byte]{
		{Key: 1, Val: []byte("a")},
		{Key: 2, Val: []byte("b")},
	}
	s, _ := buildVlogAndSST(t, dir, pairs)

	loaded, err := FromFile(s.Path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if loaded.Header != s.Header {
		t.Fatalf("expected header round-trip, got %+v want %+v", loaded.Header, s.Header)
	}
	if !loaded.CheckIfKeyExist(1) || !loaded.CheckIfKeyExist(2) {
		t.Fatalf("expected both keys to exist after reload")
	}
}

func TestFromEntriesRejectsEmptyAndOverflow(t *testing.T) {
	if _, err := FromEntries(filepath.Join(t.TempDir(), "x.sst"), 1, nil); err == nil {
		t.Fatalf("expected an error building an SST from zero entries")
	}

	entries := make([]Entry, MaxEntries+1)
	for i := range entries {
		entries[i] = Entry{Key: uint64(i), Voffset: 0, Vlen: 1}
	}
	if _, err := FromEntries(filepath.Join(t.TempDir(), "y.sst"), 1, entries); err == nil {
		t.Fatalf("expected an error building an SST with more than MaxEntries entries")
	}
}
