package netpool

import "syscall"

func sockaddrFor(a Addr) syscall.Sockaddr {
	if a.Family == IPv6 {
		var ip [16]byte
		copy(ip[:], a.IP.To16())
		return &syscall.SockaddrInet6{Port: a.Port, Addr: ip}
	}
	var ip [4]byte
	copy(ip[:], a.IP.To4())
	return &syscall.SockaddrInet4{Port: a.Port, Addr: ip}
}

func addrFromSockaddr(sa syscall.Sockaddr) Addr {
	switch s := sa.(type) {
	case *syscall.SockaddrInet4:
		ip := make([]byte, 4)
		copy(ip, s.Addr[:])
		return NewAddr(ip, s.Port)
	case *syscall.SockaddrInet6:
		ip := make([]byte, 16)
		copy(ip, s.Addr[:])
		return NewAddr(ip, s.Port)
	default:
		return Addr{}
	}
}

func domainFor(a Addr) int {
	if a.Family == IPv6 {
		return syscall.AF_INET6
	}
	return syscall.AF_INET
}

func listenSocket(addr Addr, backlog int) (int, error) {
	fd, err := syscall.Socket(domainFor(addr), syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	setsockoptReuse(fd)
	if err := syscall.Bind(fd, sockaddrFor(addr)); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	return fd, nil
}

func udpSocketFor(addr Addr) (int, error) {
	fd, err := syscall.Socket(domainFor(addr), syscall.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}
	setsockoptReuse(fd)
	if err := syscall.Bind(fd, sockaddrFor(addr)); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, err
	}
	return fd, nil
}

func connectSocket(addr Addr) (int, bool, error) {
	fd, err := syscall.Socket(domainFor(addr), syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, false, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, false, err
	}
	err = syscall.Connect(fd, sockaddrFor(addr))
	if err == nil {
		return fd, true, nil
	}
	if err == syscall.EINPROGRESS {
		return fd, false, nil
	}
	syscall.Close(fd)
	return -1, false, err
}

func localAddr(fd int) Addr {
	sa, err := syscall.Getsockname(fd)
	if err != nil {
		return Addr{}
	}
	return addrFromSockaddr(sa)
}
