package netpool

// UDPCallback is the application's hook into one bound UDP socket.
// Packet is invoked once per datagram read, on the reactor thread; UDP is
// connectionless so there is no per-peer Connection object, only the
// source Addr accompanying each packet.
type UDPCallback interface {
	Startup(local Addr)
	Shutdown(local Addr)
	Packet(local Addr, from Addr, data []byte)
	SendError(local Addr, to Addr, err error)
	RecvError(local Addr, err error)
}

type udpSocket struct {
	id    uint64
	fd    int
	local Addr
	cb    UDPCallback
}
