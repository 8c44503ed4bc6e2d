// Package http implements the incremental HTTP/1.1 request framer: a
// restartable state machine that turns a growing receive-buffer window
// into a sequence of well-formed requests, including chunked transfer
// encoding and keep-alive pipelining.
//
// Grounded on the teacher's core/http/parser.go (zero-copy offset scanning
// over a byte window) and core/http/request.go (header field handling);
// the chunked-transfer state machine itself is new, since the teacher's
// parser does not support it.
package http

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/reactorpool/buffer"
	"github.com/searchktools/reactorpool/recvbuf"
)

// State is one of HttpContext's framing states.
type State int

const (
	Uninit State = iota
	Start
	ReadHeader
	ReadBody
	ReadChunkHeader
	ReadChunkBody
	ReadChunkFooter
	Done
	Bad
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Start:
		return "start"
	case ReadHeader:
		return "read-header"
	case ReadBody:
		return "read-body"
	case ReadChunkHeader:
		return "read-chunk-header"
	case ReadChunkBody:
		return "read-chunk-body"
	case ReadChunkFooter:
		return "read-chunk-footer"
	case Done:
		return "done"
	case Bad:
		return "bad"
	default:
		return "unknown"
	}
}

type lineRange struct {
	start, length int
}

type chunkRange struct {
	start, length int
}

// Header is a single case-preserving, whitespace-trimmed (name, value)
// pair, as returned by Headers().
type Header struct {
	Name  string
	Value string
}

// Context is the HttpContext of the specification.
type Context struct {
	recv *recvbuf.Buffer

	state          State
	analysisCursor int
	lineStart      int

	lines  []lineRange
	chunks []chunkRange

	headerSize    int
	keepAlive     bool
	chunked       bool
	contentLength int

	currentChunkSize int

	headers []Header
}

// New constructs a Context over the given receive buffer.
func New(recv *recvbuf.Buffer) *Context {
	return &Context{recv: recv, state: Uninit}
}

// Recv returns the underlying receive buffer, so callers can PushRaw/Merge.
func (c *Context) Recv() *recvbuf.Buffer { return c.recv }

// State returns the current framing state.
func (c *Context) State() State { return c.state }

// Analyse advances analysisCursor as far as available bytes allow. It is
// idempotent: calling it again without new merged bytes leaves all state
// unchanged and returns the same result. Returns true when terminal
// (state ∈ {Done, Bad}).
func (c *Context) Analyse() bool {
	for {
		switch c.state {
		case Uninit:
			c.state = Start

		case Start:
			buf := c.recv.Merged()
			if c.analysisCursor >= len(buf) {
				return false
			}
			if buf[c.analysisCursor] == '\n' {
				c.state = Bad
				return true
			}
			c.state = ReadHeader

		case ReadHeader:
			if c.recv.Overflow() {
				c.state = Bad
				return true
			}
			progressed := c.scanHeaderLines()
			if c.state == Bad {
				return true
			}
			if !progressed {
				return false
			}

		case ReadBody:
			if !c.tryFinishBody() {
				return false
			}

		case ReadChunkHeader:
			ok, needMore := c.tryParseChunkSize()
			if !ok {
				c.state = Bad
				return true
			}
			if needMore {
				return false
			}

		case ReadChunkBody:
			if !c.tryReadChunkBody() {
				return false
			}

		case ReadChunkFooter:
			if !c.tryReadChunkFooter() {
				return false
			}

		case Done, Bad:
			return true
		}
	}
}

// scanHeaderLines consumes as many complete \r\n-terminated lines as are
// available, returning true iff it made forward progress (found at least
// one more line, or transitioned state). A \n not preceded by \r is a
// parse error per the specification.
func (c *Context) scanHeaderLines() bool {
	buf := c.recv.Merged()
	progressed := false

	for {
		rest := buf[c.analysisCursor:]
		idx := bytes.IndexByte(rest, '\n')
		if idx == -1 {
			return progressed
		}

		nlPos := c.analysisCursor + idx
		if nlPos == 0 || buf[nlPos-1] != '\r' {
			c.state = Bad
			return true
		}

		lineLen := nlPos - 1 - c.lineStart
		c.lines = append(c.lines, lineRange{start: c.lineStart, length: lineLen})
		c.analysisCursor = nlPos + 1
		progressed = true

		if lineLen == 0 {
			c.headerSize = c.analysisCursor
			c.decodeHeaders(buf)
			switch {
			case c.chunked:
				c.state = ReadChunkHeader
			case c.contentLength > 0:
				c.state = ReadBody
			default:
				c.state = Done
			}
			return true
		}

		c.lineStart = c.analysisCursor
	}
}

// decodeHeaders recognises Connection/Content-Length/Transfer-Encoding on
// the header lines collected in c.lines[1 : len(c.lines)-1] (excluding the
// request line and the terminating blank line). Header names/values that
// fail RFC 7230 token/field-value validation are dropped rather than
// aborting the whole message.
func (c *Context) decodeHeaders(buf []byte) {
	headerLines := c.lines[1 : len(c.lines)-1]
	for _, ln := range headerLines {
		line := buf[ln.start : ln.start+ln.length]
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		c.headers = append(c.headers, Header{Name: name, Value: value})

		switch {
		case equalFoldASCII(name, "Connection") && equalFoldASCII(value, "Keep-Alive"):
			c.keepAlive = true
		case equalFoldASCII(name, "Content-Length"):
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				c.contentLength = n
			}
		case equalFoldASCII(name, "Transfer-Encoding") && equalFoldASCII(value, "chunked"):
			c.chunked = true
		}
	}
}

func equalFoldASCII(a, b string) bool { return bytes.EqualFold([]byte(a), []byte(b)) }

func (c *Context) tryFinishBody() bool {
	buf := c.recv.Merged()
	available := len(buf) - c.analysisCursor
	if available < c.contentLength {
		return false
	}
	c.chunks = append(c.chunks, chunkRange{start: c.analysisCursor, length: c.contentLength})
	c.analysisCursor += c.contentLength
	c.state = Done
	return true
}

// tryParseChunkSize parses a hex chunk-size line. Leading whitespace is
// accepted; once a hex digit is seen, any non-hex, non-whitespace byte
// (e.g. the ';' of a chunk extension) ends the size and the remainder of
// the line up to \r\n is skipped. Returns (ok, needMore).
func (c *Context) tryParseChunkSize() (ok bool, needMore bool) {
	buf := c.recv.Merged()
	rest := buf[c.analysisCursor:]
	idx := bytes.IndexByte(rest, '\n')
	if idx == -1 {
		return true, true
	}
	nlPos := c.analysisCursor + idx
	if nlPos == 0 || buf[nlPos-1] != '\r' {
		return false, false
	}

	line := buf[c.analysisCursor : nlPos-1]
	size, ok := parseChunkSizeLine(line)
	if !ok {
		return false, false
	}

	c.currentChunkSize = size
	c.analysisCursor = nlPos + 1
	if size == 0 {
		c.state = ReadChunkFooter
	} else {
		c.state = ReadChunkBody
	}
	return true, false
}

func parseChunkSizeLine(line []byte) (int, bool) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	start := i
	for i < len(line) && isHexDigit(line[i]) {
		i++
	}
	if i == start {
		return 0, false
	}
	size, err := strconv.ParseInt(string(line[start:i]), 16, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return int(size), true
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// tryReadChunkBody waits for currentChunkSize+2 bytes (body plus trailing
// \r\n), appends the body range to chunks, and loops back to ReadChunkHeader.
func (c *Context) tryReadChunkBody() bool {
	buf := c.recv.Merged()
	need := c.currentChunkSize + 2
	available := len(buf) - c.analysisCursor
	if available < need {
		return false
	}
	if buf[c.analysisCursor+c.currentChunkSize] != '\r' || buf[c.analysisCursor+c.currentChunkSize+1] != '\n' {
		c.state = Bad
		return true
	}
	c.chunks = append(c.chunks, chunkRange{start: c.analysisCursor, length: c.currentChunkSize})
	c.analysisCursor += need
	c.state = ReadChunkHeader
	return true
}

// tryReadChunkFooter reads optional trailer lines until an empty line.
func (c *Context) tryReadChunkFooter() bool {
	buf := c.recv.Merged()
	for {
		rest := buf[c.analysisCursor:]
		idx := bytes.IndexByte(rest, '\n')
		if idx == -1 {
			return false
		}
		nlPos := c.analysisCursor + idx
		if nlPos == 0 || buf[nlPos-1] != '\r' {
			c.state = Bad
			return true
		}
		lineLen := nlPos - 1 - c.analysisCursor
		c.analysisCursor = nlPos + 1
		if lineLen == 0 {
			c.state = Done
			return true
		}
	}
}

// RequestLine splits the first line on spaces; exactly two spaces are
// expected. Returns an error instead of undefined behaviour when that
// isn't the case (see the HTTP request-line design note).
func (c *Context) RequestLine() (method, uri, version string, err error) {
	if len(c.lines) == 0 {
		return "", "", "", fmt.Errorf("http: request line not yet parsed")
	}
	buf := c.recv.Merged()
	ln := c.lines[0]
	line := buf[ln.start : ln.start+ln.length]

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return "", "", "", fmt.Errorf("http: malformed request line %q", line)
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return "", "", "", fmt.Errorf("http: malformed request line %q", line)
	}
	sp2 += sp1 + 1
	if bytes.IndexByte(line[sp2+1:], ' ') != -1 {
		return "", "", "", fmt.Errorf("http: malformed request line %q", line)
	}

	return string(line[:sp1]), string(line[sp1+1 : sp2]), string(line[sp2+1:]), nil
}

// Headers returns all decoded (name, value) pairs, case-preserving.
func (c *Context) Headers() []Header { return append([]Header(nil), c.headers...) }

// KeepAlive reports whether Connection: Keep-Alive was seen.
func (c *Context) KeepAlive() bool { return c.keepAlive }

// Chunked reports whether Transfer-Encoding: chunked was seen.
func (c *Context) Chunked() bool { return c.chunked }

// ContentLength returns the decoded Content-Length, or 0 if absent. A
// Content-Length header is still reported when the message is chunked.
func (c *Context) ContentLength() int { return c.contentLength }

// HeaderSize returns the byte offset immediately after the blank line that
// terminates the header section.
func (c *Context) HeaderSize() int { return c.headerSize }

// Body concatenates all recorded chunk ranges into a single buffer.
func (c *Context) Body() *buffer.Buffer {
	buf := c.recv.Merged()
	total := 0
	for _, ch := range c.chunks {
		total += ch.length
	}
	out := buffer.New(total)
	off := 0
	for _, ch := range c.chunks {
		copy(out.Slice(off, off+ch.length), buf[ch.start:ch.start+ch.length])
		off += ch.length
	}
	out.Resize(total, true)
	return out
}

// ExtractInto snapshots the parsed message (everything up through
// analysisCursor) into dst, leaving dst's own framing state untouched by
// this Context.
func (c *Context) ExtractInto(dst *buffer.Buffer) {
	buf := c.recv.Merged()
	dst.Resize(c.analysisCursor, false)
	copy(dst.Slice(0, c.analysisCursor), buf[:c.analysisCursor])
}

// ReinitForNext moves the completed message into former (if non-nil),
// shifts any bytes past analysisCursor to offset 0, and resets state to
// Uninit so the next Analyse() can parse the next pipelined message.
func (c *Context) ReinitForNext(former *buffer.Buffer) {
	if former != nil {
		c.ExtractInto(former)
	}
	c.recv.Compact(c.analysisCursor)
	c.resetFramingState()
}

// Clear behaves like ReinitForNext but without snapshotting the completed
// message.
func (c *Context) Clear() {
	c.recv.Compact(c.analysisCursor)
	c.resetFramingState()
}

func (c *Context) resetFramingState() {
	c.state = Uninit
	c.analysisCursor = 0
	c.lineStart = 0
	c.lines = c.lines[:0]
	c.chunks = c.chunks[:0]
	c.headers = c.headers[:0]
	c.headerSize = 0
	c.keepAlive = false
	c.chunked = false
	c.contentLength = 0
	c.currentChunkSize = 0
}
