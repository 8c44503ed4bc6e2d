package http

import (
	"bytes"
	"testing"

	"github.com/searchktools/reactorpool/recvbuf"
	"github.com/searchktools/reactorpool/slab"
)

func newContext(t *testing.T, data string) (*Context, *recvbuf.Buffer) {
	t.Helper()
	alloc := slab.Default()
	rb := recvbuf.New(256, 1<<20, alloc)
	blk := alloc.Alloc(len(data))
	copy(blk.Bytes(), data)
	rb.PushRaw(blk)
	rb.Merge()
	return New(rb), rb
}

// Scenario A: HTTP keep-alive pipelining.
func TestKeepAlivePipelining(t *testing.T) {
	first := "GET /a HTTP/1.1\r\nHost: x\r\nConnection: Keep-Alive\r\nContent-Length: 3\r\n\r\nABC"
	second := "GET /b HTTP/1.1\r\n\r\n"
	ctx, _ := newContext(t, first+second)

	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done after first message, got %v", ctx.State())
	}
	method, uri, _, err := ctx.RequestLine()
	if err != nil || method != "GET" || uri != "/a" {
		t.Fatalf("got method=%q uri=%q err=%v", method, uri, err)
	}
	if !bytes.Equal(ctx.Body().Bytes(), []byte("ABC")) {
		t.Fatalf("body = %q, want ABC", ctx.Body().Bytes())
	}
	if !ctx.KeepAlive() {
		t.Fatal("expected keepAlive=true")
	}

	ctx.ReinitForNext(nil)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done after second message, got %v", ctx.State())
	}
	method, uri, _, err = ctx.RequestLine()
	if err != nil || method != "GET" || uri != "/b" {
		t.Fatalf("got method=%q uri=%q err=%v", method, uri, err)
	}
	if ctx.KeepAlive() {
		t.Fatal("expected keepAlive=false for second message")
	}
	if ctx.Body().Len() != 0 {
		t.Fatalf("expected empty body for second message, got %q", ctx.Body().Bytes())
	}
}

// Scenario B: HTTP chunked transfer encoding.
func TestChunkedBody(t *testing.T) {
	data := "POST /u HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nHello\r\n6\r\n World\r\n0\r\n\r\n"
	ctx, _ := newContext(t, data)

	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done, got %v", ctx.State())
	}
	if !bytes.Equal(ctx.Body().Bytes(), []byte("Hello World")) {
		t.Fatalf("body = %q, want %q", ctx.Body().Bytes(), "Hello World")
	}
}

// Scenario C: malformed bare LF.
func TestBareLineFeedIsBad(t *testing.T) {
	data := "GET / HTTP/1.1\nHost: x\r\n\r\n"
	ctx, _ := newContext(t, data)

	if !ctx.Analyse() || ctx.State() != Bad {
		t.Fatalf("expected bad, got %v", ctx.State())
	}
}

// Invariant 3: Analyse is monotonic — repeated calls without new bytes are
// no-ops.
func TestAnalyseIsIdempotentWithoutNewBytes(t *testing.T) {
	ctx, _ := newContext(t, "GET /a HTTP/1.1\r\nHost: x\r\n\r\n")
	first := ctx.Analyse()
	state1 := ctx.State()
	second := ctx.Analyse()
	if first != second || state1 != ctx.State() {
		t.Fatalf("repeated Analyse changed result: (%v,%v) vs (%v,%v)", first, state1, second, ctx.State())
	}
}

// Split-read invariant analogue for HTTP: a request arriving across two
// pushes parses once complete.
func TestSplitAcrossTwoPushes(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	part1 := "GET /a HTTP/1.1\r\nHost: x\r\n"
	blk1 := alloc.Alloc(len(part1))
	copy(blk1.Bytes(), part1)
	rb.PushRaw(blk1)
	rb.Merge()
	if ctx.Analyse() {
		t.Fatal("expected need-more-input, got terminal")
	}

	part2 := "\r\n"
	blk2 := alloc.Alloc(len(part2))
	copy(blk2.Bytes(), part2)
	rb.PushRaw(blk2)
	rb.Merge()
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done after second push, got %v", ctx.State())
	}
}

func TestRequestLineRequiresExactlyTwoSpaces(t *testing.T) {
	ctx, _ := newContext(t, "GET /a HTTP/1.1 extra\r\nHost: x\r\n\r\n")
	ctx.Analyse()
	if _, _, _, err := ctx.RequestLine(); err == nil {
		t.Fatal("expected error for request line with more than two spaces")
	}
}

func TestMalformedSingleHeaderIsDroppedNotFatal(t *testing.T) {
	// A header value containing a raw control byte fails RFC 7230 field-value
	// validation; the rest of the otherwise well-formed message still parses.
	data := "GET /a HTTP/1.1\r\nHost: x\r\nX-Bad: \x01bad\r\nContent-Length: 0\r\n\r\n"
	ctx, _ := newContext(t, data)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done despite one malformed header, got %v", ctx.State())
	}
	for _, h := range ctx.Headers() {
		if h.Name == "X-Bad" {
			t.Fatal("malformed header should have been dropped")
		}
	}
}
