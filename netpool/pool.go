package netpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactorpool/pools"
	"github.com/searchktools/reactorpool/reactor"
	"github.com/searchktools/reactorpool/slab"
)

var (
	ErrClosed             = errors.New("netpool: pool closed")
	ErrNotFound           = errors.New("netpool: handle not found")
	ErrIdleTimeout        = errors.New("netpool: idle timeout")
	ErrSendTimeout        = errors.New("netpool: send timeout")
	ErrConnTimeout        = errors.New("netpool: connect timeout")
	ErrUDPPayloadTooLarge = errors.New("netpool: udp payload exceeds maximum size")
)

// MaxUDPPayload is the largest datagram SendUdp will hand to the kernel:
// 65535 (max IP packet) minus an 8-byte UDP header minus a 20-byte IPv4
// header. Larger payloads are rejected at the API boundary rather than
// risking a kernel-level EMSGSIZE or IP fragmentation.
const MaxUDPPayload = 65507

// Pool is the single-reactor TCP/UDP runtime (NetworkPool of the
// specification). One goroutine — the one that calls Run — drives the
// poller; every other goroutine interacts with the pool only through the
// Bind/Connect/Send/Close methods, which either execute inline (the
// direct-call optimization, when the caller turns out to already be the
// loop goroutine) or enqueue a command and Wake the loop.
//
// Grounded on the teacher's core.Engine (core/engine.go): NewEngine's pool
// wiring, Run's ResolveTCPAddr/ListenTCP/poller.Wait loop, and
// acceptConnections' socket-option dance are all carried over, generalized
// from an HTTP-only accept loop to bind/connect/send/close commands across
// both TCP and UDP.
type Pool struct {
	poller reactor.Poller
	wake   *reactor.Wake
	queue  commandQueue
	alloc  *slab.Allocator
	log    *zap.Logger

	metrics Metrics

	mu          sync.RWMutex
	listeners   map[int]*listener
	udpSockets  map[int]*udpSocket
	connections map[int]*Connection
	byConnID    map[uint64]*Connection
	byListenID  map[uint64]*listener
	byUDPID     map[uint64]*udpSocket
	pendingConn map[int]ConnectionCallback // fd -> callback, while connect() is in progress

	nextListenerID atomic.Uint64
	nextUDPID      atomic.Uint64

	loopGoroutineID atomic.Uint64
	running         atomic.Bool
	stopCh          chan struct{}

	idleSweep time.Duration
}

// Option configures optional Pool behavior at construction time.
type Option func(*Pool)

// WithGCTuning applies pools.OptimizeForHighThroughput once, at
// construction: a busy reactor loop allocates a slab block on every TCP
// readable event (unless ConnectionCallback.Allocate supplies its own
// buffer) and a pools.BytePool buffer on every UDP read, so raising GOGC
// trades memory for fewer
// stop-the-world pauses under sustained load.
//
// Grounded on the teacher's core/pools/gc_tuning.go, previously built and
// tested in isolation with no caller; this wires it into the one place the
// specification calls for GC tuning to be applied.
func WithGCTuning() Option {
	return func(p *Pool) {
		pools.OptimizeForHighThroughput()
	}
}

// New constructs a Pool. alloc is the slab allocator backing every
// connection's receive buffer; pass slab.Default() unless the caller wants
// a dedicated size-class layout.
func New(alloc *slab.Allocator, log *zap.Logger, opts ...Option) (*Pool, error) {
	poller, err := reactor.NewPoller()
	if err != nil {
		return nil, err
	}
	wake, err := reactor.NewWake()
	if err != nil {
		poller.Close()
		return nil, err
	}
	if err := poller.Add(wake.Fd(), false); err != nil {
		poller.Close()
		wake.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		poller:      poller,
		wake:        wake,
		alloc:       alloc,
		log:         log,
		listeners:   make(map[int]*listener),
		udpSockets:  make(map[int]*udpSocket),
		connections: make(map[int]*Connection),
		byConnID:    make(map[uint64]*Connection),
		byListenID:  make(map[uint64]*listener),
		byUDPID:     make(map[uint64]*udpSocket),
		pendingConn: make(map[int]ConnectionCallback),
		stopCh:      make(chan struct{}),
		idleSweep:   time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Metrics returns a snapshot of pool-wide counters.
func (p *Pool) Metrics() Snapshot { return p.metrics.Snapshot() }

func (p *Pool) onReactorThread() bool {
	return p.running.Load() && p.loopGoroutineID.Load() == currentGoroutineID()
}

// Run drives the reactor loop until Shutdown is called. It blocks the
// calling goroutine, which becomes the single reactor thread for the
// lifetime of the pool — mirroring the teacher's Engine.Run(addr), extended
// to service commands and UDP sockets in addition to TCP accepts/reads.
func (p *Pool) Run() error {
	p.loopGoroutineID.Store(currentGoroutineID())
	p.running.Store(true)
	defer p.running.Store(false)

	lastSweep := time.Now()
	for {
		select {
		case <-p.stopCh:
			return nil
		default:
		}

		timeoutMs := int(p.idleSweep / time.Millisecond)
		events, err := p.poller.Wait(timeoutMs)
		if err != nil {
			p.log.Error("poller wait failed", zap.Error(err))
			continue
		}

		for _, ev := range events {
			p.dispatch(ev)
		}

		p.drainCommands()

		now := time.Now()
		if now.Sub(lastSweep) >= p.idleSweep {
			p.sweepTimeouts(now)
			lastSweep = now
		}
	}
}

// Shutdown signals the reactor loop to stop; Run returns at the start of its
// next iteration. It does not close the poller, the wake handle, listeners,
// UDP sockets or open connections, and fires no Shutdown callbacks.
// Safe to call from any thread.
func (p *Pool) Shutdown() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	p.wake.Wake()
}

func (p *Pool) dispatch(ev reactor.Event) {
	if ev.Fd == p.wake.Fd() {
		p.wake.Drain()
		return
	}

	p.mu.RLock()
	if l, ok := p.listeners[ev.Fd]; ok {
		p.mu.RUnlock()
		p.acceptTCP(l)
		return
	}
	if u, ok := p.udpSockets[ev.Fd]; ok {
		p.mu.RUnlock()
		p.readUDP(u)
		return
	}
	conn, ok := p.connections[ev.Fd]
	p.mu.RUnlock()
	if !ok {
		return
	}

	if ev.Writable {
		p.handleWritable(conn)
	}
	if ev.Readable {
		p.handleReadable(conn)
	}
}

func (p *Pool) drainCommands() {
	for _, c := range p.queue.drain() {
		p.execCommand(c)
	}
}

func (p *Pool) execCommand(c command) {
	var id uint64
	var err error
	switch c.kind {
	case cmdBindTCP:
		id, err = p.bindTCP(c.addr, c.factory)
	case cmdBindUDP:
		id, err = p.bindUDP(c.addr, c.udpCb)
	case cmdUnbindTCP:
		err = p.unbindListener(c.listenerID)
	case cmdUnbindUDP:
		err = p.unbindUDP(c.listenerID)
	case cmdSendTCP:
		if conn := p.byConnID[c.connID]; conn != nil {
			p.sendTCPDirect(conn, c.payload)
		}
	case cmdSendUDP:
		if u := p.byUDPID[c.listenerID]; u != nil {
			p.sendUDPDirect(u, c.to, c.payload)
		}
	case cmdConnect:
		id, err = p.connectTCP(c.addr, c.connCb)
	case cmdClose:
		if conn := p.byConnID[c.connID]; conn != nil {
			p.closeConnection(conn, nil)
		}
	}
	if c.done != nil {
		c.done <- result{id: id, err: err}
	}
}

func (p *Pool) sweepTimeouts(now time.Time) {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.connections))
	for _, c := range p.connections {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		if !c.timer.Expired(now) {
			continue
		}
		role := c.timer.Role()
		var tr timeoutRole
		var reason error
		switch role {
		case reactor.RoleConnect:
			tr, reason = timeoutRoleConnect, ErrConnTimeout
		case reactor.RoleIdle:
			tr, reason = timeoutRoleIdle, ErrIdleTimeout
		case reactor.RoleSend:
			tr, reason = timeoutRoleSend, ErrSendTimeout
		default:
			continue
		}
		p.metrics.recordTimeout(tr)
		p.closeConnection(c, reason)
	}
}

// BindTcp registers a TCP listener on addr. factory.NewCallback is invoked
// once per accepted connection, on the reactor thread.
func (p *Pool) BindTcp(addr Addr, factory ServerFactory) (uint64, error) {
	if p.onReactorThread() {
		return p.bindTCP(addr, factory)
	}
	done := make(chan result, 1)
	p.queue.push(command{kind: cmdBindTCP, addr: addr, factory: factory, done: done})
	p.wake.Wake()
	r := <-done
	return r.id, r.err
}

// BindUdp registers a UDP socket on addr.
func (p *Pool) BindUdp(addr Addr, cb UDPCallback) (uint64, error) {
	if p.onReactorThread() {
		return p.bindUDP(addr, cb)
	}
	done := make(chan result, 1)
	p.queue.push(command{kind: cmdBindUDP, addr: addr, udpCb: cb, done: done})
	p.wake.Wake()
	r := <-done
	return r.id, r.err
}

// UnbindTcp closes a previously bound TCP listener.
func (p *Pool) UnbindTcp(id uint64) error {
	if p.onReactorThread() {
		return p.unbindListener(id)
	}
	done := make(chan result, 1)
	p.queue.push(command{kind: cmdUnbindTCP, listenerID: id, done: done})
	p.wake.Wake()
	return (<-done).err
}

// UnbindUdp closes a previously bound UDP socket.
func (p *Pool) UnbindUdp(id uint64) error {
	if p.onReactorThread() {
		return p.unbindUDP(id)
	}
	done := make(chan result, 1)
	p.queue.push(command{kind: cmdUnbindUDP, listenerID: id, done: done})
	p.wake.Wake()
	return (<-done).err
}

// Connect initiates an outbound TCP connection. cb.Startup is invoked once
// the connection completes (possibly synchronously, if the connect finishes
// immediately).
func (p *Pool) Connect(addr Addr, cb ConnectionCallback) (uint64, error) {
	if p.onReactorThread() {
		return p.connectTCP(addr, cb)
	}
	done := make(chan result, 1)
	p.queue.push(command{kind: cmdConnect, addr: addr, connCb: cb, done: done})
	p.wake.Wake()
	r := <-done
	return r.id, r.err
}

// SendTcp queues data for writing on an existing connection, identified by
// ID rather than by holding the *Connection itself.
func (p *Pool) SendTcp(connID uint64, data []byte) error {
	p.mu.RLock()
	conn := p.byConnID[connID]
	p.mu.RUnlock()
	if conn == nil {
		return ErrNotFound
	}
	conn.Send(data)
	return nil
}

// SendUdp sends one datagram from a bound UDP socket to addr.
func (p *Pool) SendUdp(udpID uint64, to Addr, data []byte) error {
	if p.onReactorThread() {
		p.mu.RLock()
		u := p.byUDPID[udpID]
		p.mu.RUnlock()
		if u == nil {
			return ErrNotFound
		}
		p.sendUDPDirect(u, to, data)
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	p.queue.push(command{kind: cmdSendUDP, listenerID: udpID, to: to, payload: cp})
	p.wake.Wake()
	return nil
}

// Close closes a connection by ID. Idempotent.
func (p *Pool) Close(connID uint64) {
	p.mu.RLock()
	conn := p.byConnID[connID]
	p.mu.RUnlock()
	if conn == nil {
		return
	}
	conn.Close()
}

func setsockoptReuse(fd int) {
	syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
