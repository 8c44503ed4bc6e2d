// Package refcell implements the SharedReferenceCell of the specification:
// an atomically ref-counted cell that owns a value of type T, letting
// callback code and the reactor thread share one value without a mutex on
// the hot path, and reclaim it exactly once all holders are done.
//
// Grounded on the teacher's atomic-counter idioms used throughout
// core/pools/*.go and core/observability/monitor.go (atomic.Uint64/Bool
// counters protecting shared state without a mutex); the reset/unique
// contract itself is new — nothing in the pack implements exactly this, so
// it is built the way the teacher builds all its other counters.
package refcell

import "sync/atomic"

// Cell holds one value of type T behind an atomic reference count. The zero
// value is empty (holds nil); use Reset to install a value.
type Cell[T any] struct {
	refs  atomic.Int64
	value atomic.Pointer[T]
}

// New constructs a Cell already holding v, with a reference count of 1.
func New[T any](v T) *Cell[T] {
	c := &Cell[T]{}
	c.value.Store(&v)
	c.refs.Store(1)
	return c
}

// Acquire increments the reference count and returns the current value.
// Safe to call concurrently with Release and with other Acquires.
func (c *Cell[T]) Acquire() *T {
	c.refs.Add(1)
	return c.value.Load()
}

// Release decrements the reference count. Returns true if this was the last
// reference (the cell is now logically empty, though the value is left in
// place for Reset to overwrite).
func (c *Cell[T]) Release() bool {
	return c.refs.Add(-1) == 0
}

// Unique reports whether exactly one reference is outstanding — the
// condition under which a holder may safely mutate the value in place
// without racing another holder.
func (c *Cell[T]) Unique() bool {
	return c.refs.Load() == 1
}

// Reset installs a new value and resets the reference count to 1. Callers
// must ensure no other goroutine holds a reference when calling Reset —
// typically only safe once Unique() (or a prior Release reporting true) has
// been observed.
func (c *Cell[T]) Reset(v T) {
	c.value.Store(&v)
	c.refs.Store(1)
}

// Value returns the current value without affecting the reference count.
func (c *Cell[T]) Value() *T {
	return c.value.Load()
}

// RefCount returns the current reference count, for diagnostics.
func (c *Cell[T]) RefCount() int64 {
	return c.refs.Load()
}
