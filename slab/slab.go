// Package slab implements a size-classed free-list allocator in front of
// the Go allocator, amortizing the cost of many short-lived allocations of
// near-identical size (receive-buffer chunks, per-connection control
// blocks).
package slab

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// bypassSize is the smallest request size that skips the cache entirely
// and goes straight to make([]byte, n).
const bypassSize = 4096

// defaultClasses covers every cacheable size below bypassSize.
var defaultClasses = []int{64, 256, 512, 1024, 2048, 4096 - 1}

// Block is a slab-owned byte region. Free must be called exactly once per
// Block obtained from Alloc; it is not safe to use Block concurrently from
// multiple goroutines.
type Block struct {
	data  []byte
	class int // index into Allocator.classes, or -1 if bypassed
	size  int // size requested at Alloc time, as counted in Stats
}

// Bytes returns the block's backing slice, length n as requested at Alloc time.
func (b *Block) Bytes() []byte { return b.data }

// Trim shrinks the block's reported length to n, for callers that allocated
// room for a read up front but only filled part of it (e.g. a syscall.Read
// returning fewer bytes than the buffer's capacity). n must not exceed the
// block's current length.
func (b *Block) Trim(n int) { b.data = b.data[:n] }

// Allocator is a size-classed free-list cache. The zero value is not usable;
// construct with New.
type Allocator struct {
	mu      sync.Mutex
	classes []int
	free    [][]*Block
	caps    []atomic.Int64 // per-class cap, reconfigurable at runtime
	empty   []atomic.Bool  // probe flag: true once a class's free list is known empty

	count atomic.Int64 // live blocks handed out, not yet freed
	bytes atomic.Int64 // live bytes handed out, not yet freed
}

// New creates an Allocator with the given size classes (sorted ascending)
// and a uniform initial per-class cap.
func New(classes []int, initialCap int) *Allocator {
	if len(classes) == 0 {
		classes = defaultClasses
	}
	a := &Allocator{
		classes: append([]int(nil), classes...),
		free:    make([][]*Block, len(classes)),
		caps:    make([]atomic.Int64, len(classes)),
		empty:   make([]atomic.Bool, len(classes)),
	}
	for i := range a.caps {
		a.caps[i].Store(int64(initialCap))
		a.empty[i].Store(true)
	}
	return a
}

// Default returns an Allocator using defaultClasses with a
// 256-block-per-class cap.
func Default() *Allocator { return New(defaultClasses, 256) }

// classFor returns the index of the smallest class able to satisfy n, or -1
// if n must bypass the cache.
func (a *Allocator) classFor(n int) int {
	if n >= bypassSize {
		return -1
	}
	for i, sz := range a.classes {
		if n <= sz {
			return i
		}
	}
	return -1
}

// Alloc returns a Block of at least n writable bytes. A cache miss always
// falls through to make(), so Alloc does not return nil.
func (a *Allocator) Alloc(n int) *Block {
	class := a.classFor(n)
	if class < 0 {
		return a.allocDirect(n, -1)
	}

	// Probe outside the lock: skip locking entirely when the class is
	// known empty or disabled (cap 0).
	if a.caps[class].Load() > 0 && !a.empty[class].Load() {
		a.mu.Lock()
		list := a.free[class]
		if len(list) > 0 {
			blk := list[len(list)-1]
			a.free[class] = list[:len(list)-1]
			if len(a.free[class]) == 0 {
				a.empty[class].Store(true)
			}
			a.mu.Unlock()
			blk.data = blk.data[:n]
			blk.size = n
			a.track(n)
			return blk
		}
		a.mu.Unlock()
	}

	return a.allocDirect(n, class)
}

// MustAlloc is the throwing variant: it panics instead of returning nil.
func (a *Allocator) MustAlloc(n int) *Block {
	b := a.Alloc(n)
	if b == nil {
		panic(fmt.Sprintf("slab: allocation of %d bytes failed", n))
	}
	return b
}

func (a *Allocator) allocDirect(n, class int) *Block {
	cap := n
	if class >= 0 {
		cap = a.classes[class]
	}
	blk := &Block{data: make([]byte, n, cap), class: class, size: n}
	a.track(n)
	return blk
}

func (a *Allocator) track(n int) {
	a.count.Add(1)
	a.bytes.Add(int64(n))
}

// Free returns a Block to its size-class free list, or to the system
// allocator if the class is full, disabled, or the block bypassed the cache.
func (a *Allocator) Free(b *Block) {
	if b == nil {
		return
	}
	a.count.Add(-1)
	a.bytes.Add(-int64(b.size))

	if b.class < 0 {
		return
	}
	class := b.class
	if a.caps[class].Load() <= 0 {
		return
	}

	a.mu.Lock()
	if int64(len(a.free[class])) < a.caps[class].Load() {
		b.data = b.data[:0]
		a.free[class] = append(a.free[class], b)
		a.empty[class].Store(false)
	}
	a.mu.Unlock()
}

// SetCap reconfigures the per-class cap at runtime. A cap of 0 disables
// caching for that class; blocks already on its free list stay there and
// are not handed out again while the cap is 0.
func (a *Allocator) SetCap(class int, cap int) {
	if class < 0 || class >= len(a.caps) {
		return
	}
	a.caps[class].Store(int64(cap))
}

// Stats reports live-allocation counters.
type Stats struct {
	Count int64
	Bytes int64
}

// Stats returns the current live-block and live-byte counts.
func (a *Allocator) Stats() Stats {
	return Stats{Count: a.count.Load(), Bytes: a.bytes.Load()}
}
