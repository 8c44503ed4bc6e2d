// Package buffer implements an owned, resizable byte region with
// transfer-out semantics, grounded on the teacher's tiered buffer pools
// (core/pools/buffer_pool.go) but exposing ownership transfer rather than
// pool-managed reuse.
package buffer

// Buffer is an owned byte region with a used length distinct from its
// allocated capacity.
type Buffer struct {
	data   []byte
	length int
}

// New constructs an empty buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// FromCopy constructs a buffer by copying src.
func FromCopy(src []byte) *Buffer {
	b := &Buffer{data: make([]byte, len(src)), length: len(src)}
	copy(b.data, src)
	return b
}

// Len returns the used length.
func (b *Buffer) Len() int { return b.length }

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the used portion of the buffer. The returned slice aliases
// the buffer's storage and is invalidated by the next Resize or TransferOut.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

// Slice returns the backing storage over [start, end), ignoring length —
// used by callers (the receive buffer) that manage their own cursor over
// the full capacity.
func (b *Buffer) Slice(start, end int) []byte { return b.data[start:end] }

// Resize grows or shrinks the buffer to newLen. If preserve is true,
// existing bytes up to min(length, newLen) survive; otherwise the contents
// are unspecified. Growing beyond capacity reallocates.
func (b *Buffer) Resize(newLen int, preserve bool) {
	if newLen <= len(b.data) {
		if !preserve {
			b.length = newLen
			return
		}
		b.length = newLen
		return
	}

	next := make([]byte, newLen)
	if preserve {
		copy(next, b.data[:b.length])
	}
	b.data = next
	b.length = newLen
}

// TransferOut yields the buffer's backing allocation to the caller and
// leaves this Buffer empty. The destination takes ownership.
func (b *Buffer) TransferOut() []byte {
	out := b.data[:b.length]
	b.data = nil
	b.length = 0
	return out
}

// Reset empties the buffer without releasing its allocation, so it can be
// reused for the next message.
func (b *Buffer) Reset() {
	b.length = 0
}
