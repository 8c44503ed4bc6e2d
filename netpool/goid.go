package netpool

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID extracts the calling goroutine's ID from its stack
// trace header ("goroutine NNN [running]:"). Used only to decide whether a
// Pool or Connection method (bind, unbind, connect, send, close) was called
// from the reactor loop's own goroutine (the
// direct-call fast path) versus some other goroutine (which must go through
// the command queue). Not exposed outside the package.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
