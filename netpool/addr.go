// Package netpool is the network pool facade: the single-reactor TCP/UDP
// runtime that accepts bind/connect/send/close commands from any thread and
// executes them on one event-loop thread, dispatching callbacks and
// enforcing per-connection timeouts.
//
// Grounded on the teacher's core.Engine (core/engine.go): the accept loop,
// per-connection socket options, and connection-pool handling all follow its
// shape, generalized from an HTTP-only server into a protocol-agnostic
// TCP+UDP pool driven by the framer-less callback interfaces below.
package netpool

import (
	"fmt"
	"net"
)

// Family distinguishes IPv4 from IPv6 addresses.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

// Addr is a minimal address value type: an IP plus a port plus an address
// family, independent of net.Addr's allocation and interface overhead. The
// spec explicitly scopes address-wrapper design out of the core; this is the
// smallest supplement that lets bind/connect commands carry an endpoint.
type Addr struct {
	IP     net.IP
	Port   int
	Family Family
}

// NewAddr builds an Addr from an IP and port, inferring family from the IP's
// shape.
func NewAddr(ip net.IP, port int) Addr {
	f := IPv4
	if ip.To4() == nil {
		f = IPv6
	}
	return Addr{IP: ip, Port: port, Family: f}
}

// ParseAddr parses a "host:port" string into an Addr. Hostnames are resolved
// via net.ResolveIPAddr; name resolution policy beyond that is out of scope
// (the spec excludes name resolution from the core).
func ParseAddr(hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, err
	}
	ipAddr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return Addr{}, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Addr{}, fmt.Errorf("netpool: invalid port %q: %w", portStr, err)
	}
	return NewAddr(ipAddr.IP, port), nil
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// TCPAddr converts to the standard library's representation, for use at the
// syscall boundary.
func (a Addr) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.IP, Port: a.Port}
}

// UDPAddr converts to the standard library's representation.
func (a Addr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: a.Port}
}
