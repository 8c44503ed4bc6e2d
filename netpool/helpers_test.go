package netpool

import (
	"sync"
	"testing"
	"time"
)

// testCallback is a ConnectionCallback double recording every lifecycle
// event so tests can assert on invocation counts and ordering without
// touching the reactor thread themselves.
type testCallback struct {
	ts TimeoutSettings
	cs ConnectionSettings

	packetCh  chan struct{}
	dropCh    chan error
	onStartup func(id uint64)

	mu        sync.Mutex
	started   bool
	id        uint64
	shutdowns int
	drops     int
	received  []byte
}

func (c *testCallback) Allocate(suggested int) []byte      { return nil }
func (c *testCallback) Deallocate(buf []byte, dataLen int) {}

func (c *testCallback) Packet(conn *Connection, data []byte) {
	c.mu.Lock()
	c.received = append(c.received, data...)
	c.mu.Unlock()
	conn.Recv().Compact(len(data))
	if c.packetCh != nil {
		select {
		case c.packetCh <- struct{}{}:
		default:
		}
	}
}

func (c *testCallback) Drop(conn *Connection, err error) {
	c.mu.Lock()
	c.drops++
	c.mu.Unlock()
	if c.dropCh != nil {
		select {
		case c.dropCh <- err:
		default:
		}
	}
}

func (c *testCallback) Startup(id uint64, peer Addr) {
	c.mu.Lock()
	c.started = true
	c.id = id
	c.mu.Unlock()
	if c.onStartup != nil {
		c.onStartup(id)
	}
}

func (c *testCallback) Shutdown() {
	c.mu.Lock()
	c.shutdowns++
	c.mu.Unlock()
}

func (c *testCallback) Settings() ConnectionSettings     { return c.cs }
func (c *testCallback) TimeoutSettings() TimeoutSettings { return c.ts }

func (c *testCallback) connID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *testCallback) shutdownCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdowns
}

func (c *testCallback) waitStarted(t *testing.T) uint64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		started, id := c.started, c.id
		c.mu.Unlock()
		if started {
			return id
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Startup never fired")
	return 0
}

// testFactory hands every accepted connection the same testCallback, which
// is sufficient for tests that only ever accept one connection.
type testFactory struct {
	cb ConnectionCallback
	cs ConnectionSettings
}

func (f *testFactory) NewCallback(local Addr) ConnectionCallback { return f.cb }
func (f *testFactory) Startup(local Addr)                        {}
func (f *testFactory) Shutdown(local Addr)                       {}
func (f *testFactory) ListenError(local Addr, err error)         {}
func (f *testFactory) Settings() ConnectionSettings              { return f.cs }

// udpPacket captures one Packet callback invocation on a UDPCallback double.
type udpPacket struct {
	from Addr
	data []byte
}

type testUDPCallback struct {
	packetCh chan udpPacket
	errCh    chan error
}

func (c *testUDPCallback) Startup(local Addr)  {}
func (c *testUDPCallback) Shutdown(local Addr) {}

func (c *testUDPCallback) Packet(local, from Addr, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case c.packetCh <- udpPacket{from: from, data: cp}:
	default:
	}
}

func (c *testUDPCallback) SendError(local, to Addr, err error) {
	if c.errCh != nil {
		select {
		case c.errCh <- err:
		default:
		}
	}
}

func (c *testUDPCallback) RecvError(local Addr, err error) {}
