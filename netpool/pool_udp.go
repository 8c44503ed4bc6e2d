package netpool

import (
	"syscall"

	"go.uber.org/zap"

	"github.com/searchktools/reactorpool/pools"
)

// udpScratchPool supplies the transient read buffer readUDP drains each
// datagram into before copying the actual payload out — reused across
// readable events instead of allocated fresh every time.
//
// Grounded on the teacher's core/pools/byte_pool.go tiered sync.Pool.
var udpScratchPool = pools.NewBytePoolWithSizes([]int{65536})

func (p *Pool) bindUDP(addr Addr, cb UDPCallback) (uint64, error) {
	fd, err := udpSocketFor(addr)
	if err != nil {
		cb.RecvError(addr, err)
		return 0, err
	}
	if err := p.poller.Add(fd, false); err != nil {
		syscall.Close(fd)
		cb.RecvError(addr, err)
		return 0, err
	}
	id := p.nextUDPID.Add(1)
	u := &udpSocket{id: id, fd: fd, local: addr, cb: cb}

	p.mu.Lock()
	p.udpSockets[fd] = u
	p.byUDPID[id] = u
	p.mu.Unlock()

	cb.Startup(addr)
	return id, nil
}

func (p *Pool) unbindUDP(id uint64) error {
	p.mu.Lock()
	u, ok := p.byUDPID[id]
	if ok {
		delete(p.byUDPID, id)
		delete(p.udpSockets, u.fd)
	}
	p.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	p.poller.Remove(u.fd)
	syscall.Close(u.fd)
	u.cb.Shutdown(u.local)
	return nil
}

func (p *Pool) readUDP(u *udpSocket) {
	bufPtr := udpScratchPool.GetBuffer(65536)
	defer udpScratchPool.PutBuffer(bufPtr)
	buf := *bufPtr
	for {
		n, sa, err := syscall.Recvfrom(u.fd, buf, 0)
		if err != nil {
			if err != syscall.EAGAIN {
				p.log.Debug("udp recv failed", zap.Error(err))
				u.cb.RecvError(u.local, err)
			}
			return
		}
		p.metrics.recordRead(n)
		from := addrFromSockaddr(sa)
		data := make([]byte, n)
		copy(data, buf[:n])
		u.cb.Packet(u.local, from, data)
	}
}

func (p *Pool) sendUDPDirect(u *udpSocket, to Addr, data []byte) {
	if len(data) > MaxUDPPayload {
		u.cb.SendError(u.local, to, ErrUDPPayloadTooLarge)
		return
	}
	err := syscall.Sendto(u.fd, data, 0, sockaddrFor(to))
	if err != nil {
		u.cb.SendError(u.local, to, err)
		return
	}
	p.metrics.recordWrite(len(data))
}
