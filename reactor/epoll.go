//go:build linux
// +build linux

package reactor

import "syscall"

type epollPoller struct {
	epfd   int
	events []syscall.EpollEvent
}

// NewPoller creates a new Poller (Linux).
func NewPoller() (Poller, error) {
	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd, events: make([]syscall.EpollEvent, 1024)}, nil
}

func eventMask(writable bool) uint32 {
	// EPOLLIN, EPOLLRDHUP (peer shutdown detection); level-triggered.
	mask := uint32(syscall.EPOLLIN) | 0x2000
	if writable {
		mask |= uint32(syscall.EPOLLOUT)
	}
	return mask
}

func (p *epollPoller) Add(fd int, writable bool) error {
	ev := syscall.EpollEvent{Events: eventMask(writable), Fd: int32(fd)}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) ModifyWrite(fd int, writable bool) error {
	ev := syscall.EpollEvent{Events: eventMask(writable), Fd: int32(fd)}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := syscall.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&uint32(syscall.EPOLLIN) != 0 || e.Events&0x2000 != 0,
			Writable: e.Events&uint32(syscall.EPOLLOUT) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return syscall.Close(p.epfd)
}

// SetNonblock sets non-blocking mode on fd.
func SetNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
