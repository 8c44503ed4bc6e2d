package slab

import "testing"

func TestAllocReusesFreedBlock(t *testing.T) {
	a := New([]int{64, 256}, 4)

	b1 := a.Alloc(32)
	if len(b1.Bytes()) != 32 {
		t.Fatalf("got len %d, want 32", len(b1.Bytes()))
	}
	a.Free(b1)

	b2 := a.Alloc(16)
	if cap(b2.Bytes()) != 64 {
		t.Fatalf("expected reused class-64 block, got cap %d", cap(b2.Bytes()))
	}
}

func TestAllocBypassesLargeSizes(t *testing.T) {
	a := New([]int{64, 256}, 4)
	b := a.Alloc(bypassSize)
	if b.class != -1 {
		t.Fatalf("expected bypass (class -1), got %d", b.class)
	}
}

func TestCapZeroDisablesCache(t *testing.T) {
	a := New([]int{64}, 4)
	a.SetCap(0, 0)

	b := a.Alloc(32)
	a.Free(b)

	a.mu.Lock()
	n := len(a.free[0])
	a.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected free list to stay empty with cap 0, got %d", n)
	}
}

func TestStatsTrackLiveAllocations(t *testing.T) {
	a := New([]int{64}, 4)
	b := a.Alloc(10)
	if s := a.Stats(); s.Count != 1 || s.Bytes != 10 {
		t.Fatalf("got %+v, want count=1 bytes=10", s)
	}
	a.Free(b)
	if s := a.Stats(); s.Count != 0 || s.Bytes != 0 {
		t.Fatalf("got %+v, want zeroed after free", s)
	}
}

func TestMustAllocReturnsUsableBlock(t *testing.T) {
	a := New([]int{64}, 4)
	b := a.MustAlloc(10)
	if len(b.Bytes()) != 10 {
		t.Fatalf("got len %d, want 10", len(b.Bytes()))
	}
}
