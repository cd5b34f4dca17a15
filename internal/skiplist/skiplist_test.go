package skiplist

import "testing"

func TestEmptySkipList(t *testing.T) {
	sl := New[int, string]()

	if sl.Len() != 0 {
		t.Fatalf("expected len 0, got %d", sl.Len())
	}
	if _, ok := sl.Find(1); ok {
		t.Fatalf("expected not found in empty skiplist")
	}
}

func TestInsertAndFind(t *testing.T) {
	sl := New[int, string]()
	sl.Insert(10, "ten")

	val, ok := sl.Find(10)
	if !ok || val != "ten" {
		t.Fatalf("expected (ten,true), got (%v,%v)", val, ok)
	}
}

func TestUpdateExistingKey(t *testing.T) {
	sl := New[int, string]()
	sl.Insert(1, "one")
	sl.Insert(1, "uno")

	val, ok := sl.Find(1)
	if !ok || val != "uno" {
		t.Fatalf("update failed, got (%v,%v)", val, ok)
	}
	if sl.Len() != 1 {
		t.Fatalf("expected len 1, got %d", sl.Len())
	}
}

func TestSequentialInsertAndFind(t *testing.T) {
	sl := New[int, int]()
	for i := 1; i <= 1000; i++ {
		sl.Insert(i, i*i)
	}
	for i := 1; i <= 1000; i++ {
		v, ok := sl.Find(i)
		if !ok || v != i*i {
			t.Fatalf("Find(%d) = (%v,%v), want (%d,true)", i, v, ok, i*i)
		}
	}
	if sl.Len() != 1000 {
		t.Fatalf("expected len 1000, got %d", sl.Len())
	}
}

func TestCopyAllAscending(t *testing.T) {
	sl := New[int, string]()
	for _, k := range []int{5, 1, 4, 2, 3} {
		sl.Insert(k, "v")
	}

	got := sl.CopyAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}
	for i, r := range got {
		if r.Key != i+1 {
			t.Fatalf("expected ascending keys, got %v at position %d", r.Key, i)
		}
	}
}

func TestRemove(t *testing.T) {
	sl := New[int, string]()
	sl.Insert(1, "a")
	sl.Insert(2, "b")
	sl.Insert(3, "c")

	if !sl.Remove(2) {
		t.Fatalf("expected Remove(2) to report found")
	}
	if _, ok := sl.Find(2); ok {
		t.Fatalf("expected key 2 to be gone after Remove")
	}
	if sl.Len() != 2 {
		t.Fatalf("expected len 2, got %d", sl.Len())
	}
	if sl.Remove(2) {
		t.Fatalf("expected second Remove(2) to report not found")
	}
}

func TestRange(t *testing.T) {
	sl := New[int, int]()
	for i := 0; i <= 20; i += 2 {
		sl.Insert(i, i)
	}

	var got []int
	sl.Range(5, 15, func(k, v int) bool {
		got = append(got, k)
		return true
	})

	want := []int{6, 8, 10, 12, 14}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRangeEarlyStop(t *testing.T) {
	sl := New[int, int]()
	for i := 0; i < 10; i++ {
		sl.Insert(i, i)
	}

	var seen int
	sl.Range(0, 9, func(k, v int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Fatalf("expected Range to stop after 3 callbacks, got %d", seen)
	}
}

func TestClear(t *testing.T) {
	sl := New[int, string]()
	for i := 0; i < 10; i++ {
		sl.Insert(i, "v")
	}
	sl.Clear()

	if sl.Len() != 0 {
		t.Fatalf("expected len 0 after Clear, got %d", sl.Len())
	}
	if _, ok := sl.Find(5); ok {
		t.Fatalf("expected key 5 gone after Clear")
	}

	sl.Insert(5, "back")
	if v, ok := sl.Find(5); !ok || v != "back" {
		t.Fatalf("expected skiplist usable after Clear, got (%v,%v)", v, ok)
	}
}

func TestArenaReusesFreedSlots(t *testing.T) {
	sl := New[int, int]()
	for i := 0; i < 100; i++ {
		sl.Insert(i, i)
	}
	for i := 0; i < 100; i++ {
		sl.Remove(i)
	}
	for i := 100; i < 200; i++ {
		sl.Insert(i, i)
	}
	if sl.Len() != 100 {
		t.Fatalf("expected len 100, got %d", sl.Len())
	}
	if len(sl.arena) > 203 {
		t.Fatalf("expected freed slots to be reused rather than the arena growing unbounded, arena len=%d", len(sl.arena))
	}
}
