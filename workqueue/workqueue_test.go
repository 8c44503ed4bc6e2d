package workqueue

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTasksAllRun(t *testing.T) {
	q := New(16, 4)
	var count atomic.Int64
	const n = 200
	for i := 0; i < n; i++ {
		q.Push(func() { count.Add(1) })
	}
	q.Close()
	q.Join()
	if count.Load() != n {
		t.Fatalf("got %d completions, want %d", count.Load(), n)
	}
}

func TestPushBlocksAtCapacity(t *testing.T) {
	q := New(1, 1)
	block := make(chan struct{})
	started := make(chan struct{})
	q.Push(func() {
		close(started)
		<-block
	})
	<-started         // the sole worker is busy with the first task
	q.Push(func() {}) // this one fills the queue's capacity of 1

	pushed := make(chan struct{})
	go func() {
		q.Push(func() {})
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("Push should have blocked at capacity")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	<-pushed
	q.Close()
	q.Join()
}

func TestTryPushFailsWhenFull(t *testing.T) {
	q := New(1, 1)
	block := make(chan struct{})
	defer close(block)

	started := make(chan struct{})
	q.Push(func() {
		close(started)
		<-block
	})
	<-started // worker is now busy; the queue itself is free to accept one more

	if !q.TryPush(func() { <-block }) {
		t.Fatal("TryPush should succeed while queue has room")
	}
	if q.TryPush(func() {}) {
		t.Fatal("TryPush should fail once capacity 1 is occupied and the sole worker is busy")
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	q := New(0, 1)
	q.Close()
	if q.Push(func() {}) {
		t.Fatal("Push after Close should report failure")
	}
	q.Join()
}
