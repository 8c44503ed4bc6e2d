package netpool

import (
	"sync/atomic"
	"syscall"
	"time"

	"github.com/searchktools/reactorpool/reactor"
	"github.com/searchktools/reactorpool/recvbuf"
	"github.com/searchktools/reactorpool/slab"
)

// ConnectionCallback is the application's hook into one TCP connection.
// All methods are invoked on the reactor thread only.
//
// Allocate/Deallocate negotiate ownership of each per-read buffer: before
// every socket read, Allocate is offered the pool's suggested read size and
// may return its own buffer to read into (taking responsibility for its
// lifetime) or nil to let the pool's slab allocator supply one, as normal.
// Deallocate is invoked once that read's bytes have been staged into the
// connection's receive buffer, reporting dataLen — the number of bytes
// actually read into a callback-supplied buffer, or 0 when the pool
// provided (and therefore owns and frees) the buffer itself.
//
// Startup fires once, after accept or a successful outbound connect, with
// the connection's id and peer address. Shutdown fires exactly once, right
// after the socket is closed (and after Drop, when there is an error),
// regardless of how many times Close is requested.
//
// Grounded on the teacher's Engine's implicit per-connection lifecycle
// (acceptConnections/handleRead/closeConnection in core/engine.go), made
// explicit here as an interface so the pool is protocol-agnostic instead of
// hardwired to HTTP.
type ConnectionCallback interface {
	Allocate(suggested int) []byte
	Deallocate(buf []byte, dataLen int)
	Packet(conn *Connection, data []byte)
	Drop(conn *Connection, err error)
	Startup(id uint64, peer Addr)
	Shutdown()
	Settings() ConnectionSettings
	TimeoutSettings() TimeoutSettings
}

// ConnectionSettings configures one connection's buffers.
type ConnectionSettings struct {
	InitialRecvCapacity int
	MaxRecvCapacity     int
}

// TimeoutSettings configures the tri-role timer's durations. Zero disables
// that role's timeout.
type TimeoutSettings struct {
	Connect time.Duration
	Idle    time.Duration
	Send    time.Duration
}

var nextConnID atomic.Uint64

// Connection is a single TCP connection owned by the reactor thread. Its
// fields are touched only from that thread, except Send/Close which are
// safe to call from any thread (they simply enqueue a command).
type Connection struct {
	id       uint64
	fd       int
	peer     Addr
	local    Addr
	pool     *Pool
	callback ConnectionCallback

	recv  *recvbuf.Buffer
	timer reactor.Timer

	writeBuf    []byte
	writePaused bool

	closed atomic.Bool
}

func newConnection(pool *Pool, fd int, peer, local Addr, cb ConnectionCallback, alloc *slab.Allocator) *Connection {
	settings := cb.Settings()
	if settings.InitialRecvCapacity == 0 {
		settings.InitialRecvCapacity = 4096
	}
	if settings.MaxRecvCapacity == 0 {
		settings.MaxRecvCapacity = 1 << 20
	}
	return &Connection{
		id:       nextConnID.Add(1),
		fd:       fd,
		peer:     peer,
		local:    local,
		pool:     pool,
		callback: cb,
		recv:     recvbuf.New(settings.InitialRecvCapacity, settings.MaxRecvCapacity, alloc),
	}
}

// ID uniquely identifies this connection for the lifetime of the pool.
func (c *Connection) ID() uint64 { return c.id }

// Peer returns the remote endpoint.
func (c *Connection) Peer() Addr { return c.peer }

// Local returns the local endpoint.
func (c *Connection) Local() Addr { return c.local }

// Recv exposes the connection's receive buffer to framers.
func (c *Connection) Recv() *recvbuf.Buffer { return c.recv }

// Send queues data for writing to the peer. Safe from any thread: on the
// reactor thread itself it writes inline (the direct-call optimization);
// otherwise it enqueues a cmdSendTCP command.
func (c *Connection) Send(data []byte) {
	if c.pool.onReactorThread() {
		c.pool.sendTCPDirect(c, data)
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.pool.queue.push(command{kind: cmdSendTCP, connID: c.id, payload: cp})
	c.pool.wake.Wake()
}

// Close requests the connection be closed. Safe from any thread; idempotent
// — a second call after the first has been processed is a silent no-op.
func (c *Connection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.pool.onReactorThread() {
		c.pool.closeConnection(c, nil)
		return
	}
	c.pool.queue.push(command{kind: cmdClose, connID: c.id})
	c.pool.wake.Wake()
}

func (c *Connection) setSockoptsTCP() error {
	if err := syscall.SetNonblock(c.fd, true); err != nil {
		return err
	}
	syscall.SetsockoptInt(c.fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	syscall.SetsockoptInt(c.fd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
	return nil
}
