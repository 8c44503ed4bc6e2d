package reactor

import "syscall"

// Wake is the async-wake handle: a self-pipe that lets any thread interrupt
// a blocked Poller.Wait on the reactor thread. The reactor registers Fd()
// for read-readiness and calls Drain() once woken.
type Wake struct {
	r, w int
}

// NewWake creates a non-blocking pipe pair for waking the reactor loop.
func NewWake() (*Wake, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	return &Wake{r: fds[0], w: fds[1]}, nil
}

// Fd returns the read end, for Poller.Add.
func (k *Wake) Fd() int { return k.r }

// Wake writes a single byte, waking a blocked Wait. Safe to call from any
// thread; EAGAIN (pipe already has a pending wake byte) is not an error.
func (k *Wake) Wake() {
	var b [1]byte
	for {
		_, err := syscall.Write(k.w, b[:])
		if err == syscall.EINTR {
			continue
		}
		return
	}
}

// Drain reads and discards all pending wake bytes after a read-ready event
// on Fd(). Call once per wakeup before resuming Wait.
func (k *Wake) Drain() {
	var buf [64]byte
	for {
		n, err := syscall.Read(k.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close releases both pipe ends.
func (k *Wake) Close() error {
	err1 := syscall.Close(k.r)
	err2 := syscall.Close(k.w)
	if err1 != nil {
		return err1
	}
	return err2
}
