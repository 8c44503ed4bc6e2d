package netpool

import (
	"net"
	"testing"
	"time"

	"github.com/searchktools/reactorpool/slab"
)

// TestUDPSendRecvRoundTrip binds a UDP socket, receives a datagram from a
// plain net.DialUDP client, and echoes a reply back through SendUdp.
func TestUDPSendRecvRoundTrip(t *testing.T) {
	pool, err := New(slab.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pool.Run()
	defer pool.Shutdown()

	cb := &testUDPCallback{packetCh: make(chan udpPacket, 4)}
	addr, err := ParseAddr("127.0.0.1:19307")
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	id, err := pool.BindUdp(addr, cb)
	if err != nil {
		t.Fatalf("BindUdp: %v", err)
	}

	serverAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:19307")
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var pkt udpPacket
	select {
	case pkt = <-cb.packetCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the datagram")
	}
	if string(pkt.data) != "ping" {
		t.Fatalf("got %q, want %q", pkt.data, "ping")
	}

	if err := pool.SendUdp(id, pkt.from, []byte("pong")); err != nil {
		t.Fatalf("SendUdp: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "pong" {
		t.Fatalf("got %q, want %q", buf[:n], "pong")
	}
}

// TestUDPPayloadTooLargeRejected exercises the §4.6/§6 boundary: a datagram
// over MaxUDPPayload bytes is rejected before syscall.Sendto, reported via
// SendError, here through the cross-thread-queued path (SendUdp called from
// the test goroutine).
func TestUDPPayloadTooLargeRejected(t *testing.T) {
	pool, err := New(slab.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pool.Run()
	defer pool.Shutdown()

	cb := &testUDPCallback{packetCh: make(chan udpPacket, 1), errCh: make(chan error, 1)}
	addr, err := ParseAddr("127.0.0.1:19308")
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	id, err := pool.BindUdp(addr, cb)
	if err != nil {
		t.Fatalf("BindUdp: %v", err)
	}

	dest, err := ParseAddr("127.0.0.1:19309")
	if err != nil {
		t.Fatalf("ParseAddr: %v", err)
	}
	oversized := make([]byte, MaxUDPPayload+1)

	// Cross-thread path: this goroutine is not the reactor thread, so
	// SendUdp queues the payload rather than calling sendUDPDirect inline.
	if err := pool.SendUdp(id, dest, oversized); err != nil {
		t.Fatalf("SendUdp: %v", err)
	}

	select {
	case err := <-cb.errCh:
		if err != ErrUDPPayloadTooLarge {
			t.Fatalf("expected ErrUDPPayloadTooLarge, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendError never fired for an oversized payload")
	}
}
