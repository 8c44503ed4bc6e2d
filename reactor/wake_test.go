package reactor

import (
	"syscall"
	"testing"
)

func TestWakeDrainConsumesPendingByte(t *testing.T) {
	w, err := NewWake()
	if err != nil {
		t.Fatalf("NewWake: %v", err)
	}
	defer w.Close()

	w.Wake()
	w.Wake()
	w.Wake()
	w.Drain()

	var buf [1]byte
	n, err := syscall.Read(w.Fd(), buf[:])
	if n > 0 {
		t.Fatal("expected no data left after Drain")
	}
	if err != syscall.EAGAIN && err != nil {
		t.Fatalf("unexpected error probing drained pipe: %v", err)
	}
}
