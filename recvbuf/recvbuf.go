// Package recvbuf implements the thread-safe receive-chunk staging area
// described by the network pool: raw read chunks are pushed from the
// reactor thread, and a single owning thread periodically merges them into
// a contiguous, compactable window a framer can scan.
//
// Grounded on the teacher's growing-read-buffer handling in
// core/http/parser.go (a single []byte window bounded by capacity) and the
// linked-buffer compaction model in cloudwego-netpoll's nocopy_linkbuffer.go.
package recvbuf

import (
	"sync"

	"github.com/searchktools/reactorpool/buffer"
	"github.com/searchktools/reactorpool/slab"
)

// chunk holds either a slab-owned block (the common case, freed through
// alloc once merged) or an externally-owned slice handed in via PushExternal
// (a connection callback's own Allocate buffer), which is only ever copied
// from, never freed here.
type chunk struct {
	block *slab.Block
	extern []byte
}

func (c chunk) bytes() []byte {
	if c.block != nil {
		return c.block.Bytes()
	}
	return c.extern
}

// Buffer is the ReceiveBuffer of the specification. Cursor reports how many
// bytes have been merged and are therefore visible to a framer; a framer's
// own scan position (HttpContext.analysisCursor, JsonContext.analysisCursor)
// advances independently and must never exceed Cursor().
type Buffer struct {
	initialCapacity int
	maxCapacity     int
	alloc           *slab.Allocator

	merged   *buffer.Buffer
	overflow bool

	mu      sync.Mutex
	pending []chunk
}

// New constructs a Buffer with the given initial and maximum merged
// capacities, freeing pending chunks through alloc.
func New(initialCapacity, maxCapacity int, alloc *slab.Allocator) *Buffer {
	if alloc == nil {
		alloc = slab.Default()
	}
	return &Buffer{
		initialCapacity: initialCapacity,
		maxCapacity:     maxCapacity,
		alloc:           alloc,
		merged:          buffer.New(0),
	}
}

// PushRaw appends a slab-owned block to the pending queue. Non-blocking;
// safe to call from any thread. The caller relinquishes ownership of block —
// Merge frees it once its bytes are copied in, even on the overflow path.
func (b *Buffer) PushRaw(block *slab.Block) {
	b.mu.Lock()
	b.pending = append(b.pending, chunk{block: block})
	b.mu.Unlock()
}

// PushExternal appends a connection callback's own read buffer to the
// pending queue — the buffer-negotiation path of ConnectionCallback.Allocate.
// Unlike PushRaw, Merge never frees data through the slab allocator for this
// chunk, since the callback (not the pool) owns its lifetime.
func (b *Buffer) PushExternal(data []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, chunk{extern: data})
	b.mu.Unlock()
}

// Overflow reports whether the buffer has exceeded maxCapacity. Once true
// it never clears.
func (b *Buffer) Overflow() bool { return b.overflow }

// Cursor returns the number of bytes merged so far and handed to the framer.
func (b *Buffer) Cursor() int { return b.merged.Len() }

// Len is an alias for Cursor, for call sites that read more naturally in
// terms of "how much data is there".
func (b *Buffer) Len() int { return b.merged.Len() }

// Merged returns all merged bytes, [0, Len()).
func (b *Buffer) Merged() []byte { return b.merged.Bytes() }

// Merge must be called from a single owning thread (the worker holding this
// context). It drains the pending queue, growing merged by doubling (capped
// at maxCapacity) and appending each chunk in order; sets Overflow if the
// total would exceed maxCapacity.
func (b *Buffer) Merge() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if b.overflow {
		for _, c := range pending {
			b.alloc.Free(c.block)
		}
		return
	}

	total := 0
	for _, c := range pending {
		total += len(c.bytes())
	}
	if total == 0 {
		return
	}

	if b.merged.Len()+total > b.maxCapacity {
		b.overflow = true
		for _, c := range pending {
			b.alloc.Free(c.block)
		}
		return
	}

	oldLen := b.merged.Len()
	needed := oldLen + total
	if needed > b.merged.Cap() {
		newCap := b.merged.Cap()
		if newCap == 0 {
			newCap = b.initialCapacity
			if newCap == 0 {
				newCap = 64
			}
		}
		for newCap < needed {
			newCap *= 2
		}
		if newCap > b.maxCapacity {
			newCap = b.maxCapacity
		}
		b.merged.Resize(newCap, true)
	}
	b.merged.Resize(needed, true)

	off := oldLen
	for _, c := range pending {
		data := c.bytes()
		copy(b.merged.Slice(off, off+len(data)), data)
		off += len(data)
		b.alloc.Free(c.block)
	}
}

// Reset clears merged content and overflow so the buffer can be reused by a
// fresh connection. Does not affect pending state (callers must quiesce
// producers first).
func (b *Buffer) Reset() {
	b.merged.Reset()
	b.overflow = false
}

// Compact discards the first n bytes, shifting the remaining merged bytes
// down to offset 0. Used by framers' clear()/reinitForNext() to bound
// memory on long-lived, pipelined connections.
func (b *Buffer) Compact(n int) {
	if n <= 0 {
		return
	}
	remaining := b.merged.Bytes()[n:]
	shifted := buffer.New(len(remaining))
	copy(shifted.Slice(0, len(remaining)), remaining)
	shifted.Resize(len(remaining), true)
	b.merged = shifted
}
