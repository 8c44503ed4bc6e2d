// Package json implements the bracket-balanced JSON message framer: it
// finds the boundaries of a single top-level JSON object or array within a
// growing receive-buffer window, without decoding the value itself.
//
// Grounded loosely on the explicit cursor discipline of the teacher's
// length-prefixed core/rpc/protocol/frame.go, adapted from a length prefix
// to counting brackets.
package json

import (
	"github.com/searchktools/reactorpool/buffer"
	"github.com/searchktools/reactorpool/recvbuf"
)

// State is one of JsonContext's framing states.
type State int

const (
	Start State = iota
	Object
	Array
	Done
	Bad
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case Object:
		return "object"
	case Array:
		return "array"
	case Done:
		return "done"
	case Bad:
		return "bad"
	default:
		return "unknown"
	}
}

// Context is the JsonContext of the specification. It implements the fix
// for the documented string-literal limitation (see the design note on
// brackets inside JSON strings): an in-string sub-state tracks unescaped
// quotes so that brackets inside string literals are not counted.
type Context struct {
	recv *recvbuf.Buffer

	analysisCursor int
	state          State
	depth          int
	startOffset    int

	inString bool
	escaped  bool
}

// New constructs a Context over the given receive buffer.
func New(recv *recvbuf.Buffer) *Context {
	return &Context{recv: recv, state: Start}
}

// Recv returns the underlying receive buffer.
func (c *Context) Recv() *recvbuf.Buffer { return c.recv }

// State returns the current framing state.
func (c *Context) State() State { return c.state }

// Analyse advances analysisCursor as far as available bytes allow. Returns
// true when terminal (state ∈ {Done, Bad}).
func (c *Context) Analyse() bool {
	buf := c.recv.Merged()

	if c.recv.Overflow() {
		c.state = Bad
		return true
	}

	for c.analysisCursor < len(buf) {
		b := buf[c.analysisCursor]

		switch c.state {
		case Start:
			if isJSONSpace(b) {
				c.analysisCursor++
				continue
			}
			switch b {
			case '{':
				c.startOffset = c.analysisCursor
				c.state = Object
				c.depth = 1
			case '[':
				c.startOffset = c.analysisCursor
				c.state = Array
				c.depth = 1
			default:
				c.state = Bad
				return true
			}
			c.analysisCursor++

		case Object, Array:
			c.analysisCursor++
			if c.inString {
				if c.escaped {
					c.escaped = false
				} else if b == '\\' {
					c.escaped = true
				} else if b == '"' {
					c.inString = false
				}
				continue
			}
			switch b {
			case '"':
				c.inString = true
			case '{', '[':
				c.depth++
			case '}', ']':
				c.depth--
				if c.depth == 0 {
					c.state = Done
					return true
				}
			}

		case Done, Bad:
			return true
		}
	}

	return c.state == Done || c.state == Bad
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Extract copies [startOffset, analysisCursor) into dst.
func (c *Context) Extract(dst *buffer.Buffer) {
	buf := c.recv.Merged()
	n := c.analysisCursor - c.startOffset
	dst.Resize(n, false)
	copy(dst.Slice(0, n), buf[c.startOffset:c.analysisCursor])
}

// ReferenceContent returns a borrowed view over [startOffset, analysisCursor),
// valid only until the next PushRaw/Merge/Restart/Clear on the underlying
// receive buffer.
func (c *Context) ReferenceContent() []byte {
	buf := c.recv.Merged()
	return buf[c.startOffset:c.analysisCursor]
}

// Restart resets framing state while keeping the buffer, so a persistent
// connection can frame the next back-to-back message.
func (c *Context) Restart() {
	c.state = Start
	c.depth = 0
	c.startOffset = 0
	c.inString = false
	c.escaped = false
	// analysisCursor is left as-is: it already points past the consumed
	// message, and the next Analyse() call resumes scanning from there.
}

// Clear behaves like Restart but also compacts the buffer, dropping
// consumed bytes; any unconsumed tail is kept and moved to offset 0.
func (c *Context) Clear() {
	c.recv.Compact(c.analysisCursor)
	c.analysisCursor = 0
	c.Restart()
}
