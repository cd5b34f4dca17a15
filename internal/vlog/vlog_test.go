package vlog

import (
	"path/filepath"
	"testing"
)

func TestAppendAndReadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vLog")
	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.Head() != 0 || v.Tail() != 0 {
		t.Fatalf("expected fresh log to start at (0,0), got (%d,%d)", v.Tail(), v.Head())
	}

	v.ReadFromList([]Entry{
		{Key: 1, Value: []byte("alpha")},
		{Key: 2, Value: []byte("beta")},
	})
	head, err := v.WriteToFile(0)
	if err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	if head != v.Head() {
		t.Fatalf("WriteToFile returned %d, Head() reports %d", head, v.Head())
	}

	val, err := v.ReadValue(0, 5)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if string(val) != "alpha" {
		t.Fatalf("expected alpha, got %q", val)
	}

	secondOffset := FrameSize(5)
	val, err = v.ReadValue(uint64(secondOffset), 4)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if string(val) != "beta" {
		t.Fatalf("expected beta, got %q", val)
	}
}

func TestReadFromListSkipsEmptyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vLog")
	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	v.ReadFromList([]Entry{
		{Key: 1, Value: []byte("x")},
		{Key: 2, Value: nil},
	})
	if _, err := v.WriteToFile(0); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	wantHead := uint64(FrameSize(1))
	if v.Head() != wantHead {
		t.Fatalf("expected head %d (one frame written), got %d", wantHead, v.Head())
	}
}

func TestReadValueOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vLog")
	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v.ReadFromList([]Entry{{Key: 1, Value: []byte("hi")}})
	if _, err := v.WriteToFile(0); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	if _, err := v.ReadValue(1000, 2); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestGCRelocationAndHolePunch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vLog")
	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v.ReadFromList([]Entry{
		{Key: 1, Value: []byte("one")},
		{Key: 2, Value: []byte("two")},
		{Key: 3, Value: []byte("three")},
	})
	if _, err := v.WriteToFile(0); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	frames, err := v.ScanFromTail(uint64(FrameSize(3) + FrameSize(3)))
	if err != nil {
		t.Fatalf("ScanFromTail: %v", err)
	}
	if len(frames) < 2 {
		t.Fatalf("expected at least 2 frames scanned, got %d", len(frames))
	}
	if frames[0].Key != 1 || string(frames[0].Value) != "one" {
		t.Fatalf("expected first frame to be key 1/one, got %+v", frames[0])
	}

	newTail := frames[len(frames)-1].Offset + uint64(frames[len(frames)-1].Size)
	var punched bool
	if err := v.AdvanceTail(newTail, func(path string, offset, length int64) error {
		punched = true
		return nil
	}); err != nil {
		t.Fatalf("AdvanceTail: %v", err)
	}
	if !punched {
		t.Fatalf("expected AdvanceTail to invoke the punch callback")
	}
	if v.Tail() != newTail {
		t.Fatalf("expected tail %d, got %d", newTail, v.Tail())
	}
}

func TestWriteToFileTruncatesOnRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vLog")
	v, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v.ReadFromList([]Entry{{Key: 1, Value: []byte("aaaaaaaaaa")}})
	if _, err := v.WriteToFile(0); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	firstHead := v.Head()

	v.ReadFromList([]Entry{{Key: 2, Value: []byte("b")}})
	if _, err := v.WriteToFile(0); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}
	if v.Head() >= firstHead {
		t.Fatalf("expected rewriting at offset 0 to shrink the log (was %d), got head %d", firstHead, v.Head())
	}
}
