//go:build darwin || freebsd || netbsd || openbsd
// +build darwin freebsd netbsd openbsd

package reactor

import "syscall"

type kqueuePoller struct {
	kq      int
	events  []syscall.Kevent_t
	writers map[int]bool
}

// NewPoller creates a new Poller (kqueue-based BSD/Darwin).
func NewPoller() (Poller, error) {
	kq, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kq:      kq,
		events:  make([]syscall.Kevent_t, 1024),
		writers: make(map[int]bool),
	}, nil
}

func (p *kqueuePoller) Add(fd int, writable bool) error {
	changes := []syscall.Kevent_t{
		{Ident: uint64(fd), Filter: syscall.EVFILT_READ, Flags: syscall.EV_ADD},
	}
	if writable {
		changes = append(changes, syscall.Kevent_t{Ident: uint64(fd), Filter: syscall.EVFILT_WRITE, Flags: syscall.EV_ADD})
		p.writers[fd] = true
	}
	_, err := syscall.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) ModifyWrite(fd int, writable bool) error {
	already := p.writers[fd]
	if writable == already {
		return nil
	}
	flags := uint16(syscall.EV_ADD)
	if !writable {
		flags = syscall.EV_DELETE
	}
	change := syscall.Kevent_t{Ident: uint64(fd), Filter: syscall.EVFILT_WRITE, Flags: flags}
	_, err := syscall.Kevent(p.kq, []syscall.Kevent_t{change}, nil, nil)
	if err != nil {
		return err
	}
	p.writers[fd] = writable
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	changes := []syscall.Kevent_t{
		{Ident: uint64(fd), Filter: syscall.EVFILT_READ, Flags: syscall.EV_DELETE},
	}
	if p.writers[fd] {
		changes = append(changes, syscall.Kevent_t{Ident: uint64(fd), Filter: syscall.EVFILT_WRITE, Flags: syscall.EV_DELETE})
		delete(p.writers, fd)
	}
	// Best-effort: the kernel already drops filters when the fd is closed.
	syscall.Kevent(p.kq, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *syscall.Timespec
	if timeoutMs >= 0 {
		t := syscall.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := syscall.Kevent(p.kq, nil, p.events, ts)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		ev, ok := byFd[fd]
		if !ok {
			ev = &Event{Fd: fd}
			byFd[fd] = ev
			order = append(order, fd)
		}
		switch e.Filter {
		case syscall.EVFILT_READ:
			ev.Readable = true
		case syscall.EVFILT_WRITE:
			ev.Writable = true
		}
	}

	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFd[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return syscall.Close(p.kq)
}

// SetNonblock sets non-blocking mode on fd.
func SetNonblock(fd int) error {
	return syscall.SetNonblock(fd, true)
}
