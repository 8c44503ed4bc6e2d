package json

import (
	"bytes"
	"testing"

	"github.com/searchktools/reactorpool/recvbuf"
	"github.com/searchktools/reactorpool/slab"
)

func push(t *testing.T, rb *recvbuf.Buffer, alloc *slab.Allocator, s string) {
	t.Helper()
	blk := alloc.Alloc(len(s))
	copy(blk.Bytes(), s)
	rb.PushRaw(blk)
	rb.Merge()
}

// Scenario D: JSON split across reads.
func TestSplitAcrossReads(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	push(t, rb, alloc, `{"a":`)
	if ctx.Analyse() {
		t.Fatal("expected need-more-input after first push")
	}

	push(t, rb, alloc, `1,"b":[2,3]}`)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done, got %v", ctx.State())
	}
	want := `{"a":1,"b":[2,3]}`
	if !bytes.Equal(ctx.ReferenceContent(), []byte(want)) {
		t.Fatalf("got %q, want %q", ctx.ReferenceContent(), want)
	}
}

func TestBracketsInsideStringsAreNotCounted(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	push(t, rb, alloc, `{"note":"a } b ] c","n":1}`)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done, got %v", ctx.State())
	}
}

func TestEscapedQuoteDoesNotEndString(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	push(t, rb, alloc, `{"s":"a\"}b"}`)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done, got %v", ctx.State())
	}
}

func TestGarbageAtStartIsBad(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	push(t, rb, alloc, `x{}`)
	if !ctx.Analyse() || ctx.State() != Bad {
		t.Fatalf("expected bad, got %v", ctx.State())
	}
}

func TestRestartFramesBackToBackMessages(t *testing.T) {
	alloc := slab.Default()
	rb := recvbuf.New(64, 1<<20, alloc)
	ctx := New(rb)

	push(t, rb, alloc, `{"first":1}{"second":2}`)
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done on first message, got %v", ctx.State())
	}
	if !bytes.Equal(ctx.ReferenceContent(), []byte(`{"first":1}`)) {
		t.Fatalf("got %q", ctx.ReferenceContent())
	}

	ctx.Restart()
	if !ctx.Analyse() || ctx.State() != Done {
		t.Fatalf("expected done on second message, got %v", ctx.State())
	}
	if !bytes.Equal(ctx.ReferenceContent(), []byte(`{"second":2}`)) {
		t.Fatalf("got %q", ctx.ReferenceContent())
	}
}
