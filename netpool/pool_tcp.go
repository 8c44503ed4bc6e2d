package netpool

import (
	"syscall"

	"github.com/searchktools/reactorpool/reactor"
	"github.com/searchktools/reactorpool/slab"
	"go.uber.org/zap"
)

const acceptBacklog = 1024

func (p *Pool) bindTCP(addr Addr, factory ServerFactory) (uint64, error) {
	fd, err := listenSocket(addr, acceptBacklog)
	if err != nil {
		factory.ListenError(addr, err)
		return 0, err
	}
	if err := p.poller.Add(fd, false); err != nil {
		syscall.Close(fd)
		factory.ListenError(addr, err)
		return 0, err
	}
	id := p.nextListenerID.Add(1)
	l := &listener{id: id, fd: fd, local: addr, factory: factory}

	p.mu.Lock()
	p.listeners[fd] = l
	p.byListenID[id] = l
	p.mu.Unlock()

	factory.Startup(addr)
	return id, nil
}

func (p *Pool) unbindListener(id uint64) error {
	p.mu.Lock()
	l, ok := p.byListenID[id]
	if ok {
		delete(p.byListenID, id)
		delete(p.listeners, l.fd)
	}
	p.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	p.poller.Remove(l.fd)
	syscall.Close(l.fd)
	l.factory.Shutdown(l.local)
	return nil
}

func (p *Pool) acceptTCP(l *listener) {
	for {
		fd, sa, err := syscall.Accept(l.fd)
		if err != nil {
			if err != syscall.EAGAIN {
				p.metrics.recordAcceptError()
				p.log.Debug("accept failed", zap.Error(err))
			}
			return
		}
		p.metrics.recordAccept()

		peer := addrFromSockaddr(sa)
		cb := l.factory.NewCallback(l.local)
		conn := newConnection(p, fd, peer, l.local, cb, p.alloc)
		if err := conn.setSockoptsTCP(); err != nil {
			syscall.Close(fd)
			continue
		}
		if err := p.poller.Add(fd, false); err != nil {
			syscall.Close(fd)
			continue
		}

		p.mu.Lock()
		p.connections[fd] = conn
		p.byConnID[conn.id] = conn
		p.mu.Unlock()

		if ts := cb.TimeoutSettings(); ts.Idle > 0 {
			conn.timer.Arm(reactor.RoleIdle, ts.Idle)
		}
		cb.Startup(conn.id, peer)
	}
}

func (p *Pool) connectTCP(addr Addr, cb ConnectionCallback) (uint64, error) {
	fd, connected, err := connectSocket(addr)
	if err != nil {
		p.metrics.recordConnectError()
		return 0, err
	}
	conn := newConnection(p, fd, addr, localAddr(fd), cb, p.alloc)

	if !connected {
		if err := p.poller.Add(fd, true); err != nil {
			syscall.Close(fd)
			return 0, err
		}
		p.mu.Lock()
		p.connections[fd] = conn
		p.byConnID[conn.id] = conn
		p.mu.Unlock()
		if ts := cb.TimeoutSettings(); ts.Connect > 0 {
			conn.timer.Arm(reactor.RoleConnect, ts.Connect)
		}
		return conn.id, nil
	}

	conn.setSockoptsTCP()
	if err := p.poller.Add(fd, false); err != nil {
		syscall.Close(fd)
		return 0, err
	}
	p.mu.Lock()
	p.connections[fd] = conn
	p.byConnID[conn.id] = conn
	p.mu.Unlock()
	p.metrics.recordConnect()
	if ts := cb.TimeoutSettings(); ts.Idle > 0 {
		conn.timer.Arm(reactor.RoleIdle, ts.Idle)
	}
	cb.Startup(conn.id, addr)
	return conn.id, nil
}

const suggestedReadSize = 8192

func (p *Pool) handleReadable(conn *Connection) {
	for {
		custom := conn.callback.Allocate(suggestedReadSize)

		var blk *slab.Block
		var buf []byte
		if custom != nil {
			buf = custom
		} else {
			blk = p.alloc.Alloc(suggestedReadSize)
			buf = blk.Bytes()
		}

		n, err := syscall.Read(conn.fd, buf)
		full := len(buf)
		if n > 0 {
			p.metrics.recordRead(n)
			if custom != nil {
				conn.recv.PushExternal(custom[:n])
				conn.callback.Deallocate(custom, n)
			} else {
				blk.Trim(n)
				conn.recv.PushRaw(blk)
				conn.callback.Deallocate(nil, 0)
			}
			if ts := conn.callback.TimeoutSettings(); ts.Idle > 0 {
				conn.timer.Arm(reactor.RoleIdle, ts.Idle)
			}
		} else {
			if custom == nil {
				p.alloc.Free(blk)
			}
			conn.callback.Deallocate(custom, 0)
		}
		if err != nil {
			if err == syscall.EAGAIN {
				break
			}
			p.closeConnection(conn, err)
			return
		}
		if n == 0 {
			p.closeConnection(conn, nil)
			return
		}
		if n < full {
			break
		}
	}

	conn.recv.Merge()
	if conn.recv.Overflow() {
		p.metrics.recordOverflow()
	}
	conn.callback.Packet(conn, conn.recv.Merged())
}

func (p *Pool) handleWritable(conn *Connection) {
	wasConnecting := len(conn.writeBuf) == 0 && !conn.writePaused
	if wasConnecting {
		if errno, _ := syscall.GetsockoptInt(conn.fd, syscall.SOL_SOCKET, syscall.SO_ERROR); errno != 0 {
			p.closeConnection(conn, syscall.Errno(errno))
			return
		}
		conn.timer.Disarm()
		conn.setSockoptsTCP()
		p.poller.ModifyWrite(conn.fd, false)
		p.metrics.recordConnect()
		if ts := conn.callback.TimeoutSettings(); ts.Idle > 0 {
			conn.timer.Arm(reactor.RoleIdle, ts.Idle)
		}
		conn.callback.Startup(conn.id, conn.peer)
		return
	}
	p.flushWrite(conn)
}

func (p *Pool) flushWrite(conn *Connection) {
	for len(conn.writeBuf) > 0 {
		n, err := syscall.Write(conn.fd, conn.writeBuf)
		if n > 0 {
			p.metrics.recordWrite(n)
			conn.writeBuf = conn.writeBuf[n:]
		}
		if err != nil {
			if err == syscall.EAGAIN {
				return
			}
			p.closeConnection(conn, err)
			return
		}
	}
	if conn.writePaused {
		conn.writePaused = false
		conn.timer.Disarm()
		p.poller.ModifyWrite(conn.fd, false)
		if ts := conn.callback.TimeoutSettings(); ts.Idle > 0 {
			conn.timer.Arm(reactor.RoleIdle, ts.Idle)
		}
	}
}

// sendTCPDirect performs the write inline. Called either from Connection.Send
// on the reactor thread (the direct-call optimization) or from the command
// queue once a cmdSendTCP command is dequeued.
func (p *Pool) sendTCPDirect(conn *Connection, data []byte) {
	if conn.closed.Load() && len(conn.writeBuf) == 0 {
		return
	}
	if len(conn.writeBuf) == 0 {
		n, err := syscall.Write(conn.fd, data)
		if err == nil && n == len(data) {
			p.metrics.recordWrite(n)
			if ts := conn.callback.TimeoutSettings(); ts.Idle > 0 {
				conn.timer.Arm(reactor.RoleIdle, ts.Idle)
			}
			return
		}
		if err != nil && err != syscall.EAGAIN {
			p.closeConnection(conn, err)
			return
		}
		if n > 0 {
			p.metrics.recordWrite(n)
			data = data[n:]
		}
	}
	conn.writeBuf = append(conn.writeBuf, data...)
	if !conn.writePaused {
		conn.writePaused = true
		p.poller.ModifyWrite(conn.fd, true)
		if ts := conn.callback.TimeoutSettings(); ts.Send > 0 {
			conn.timer.Arm(reactor.RoleSend, ts.Send)
		}
	}
}

func (p *Pool) closeConnection(conn *Connection, cause error) {
	p.mu.Lock()
	_, ok := p.connections[conn.fd]
	if ok {
		delete(p.connections, conn.fd)
		delete(p.byConnID, conn.id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	conn.closed.Store(true)
	conn.timer.Disarm()
	p.poller.Remove(conn.fd)
	syscall.Close(conn.fd)
	p.metrics.recordClose()

	if cause != nil {
		conn.callback.Drop(conn, cause)
	}
	conn.callback.Shutdown()
}
