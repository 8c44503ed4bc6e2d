/*
Package reactorpool provides a single-reactor asynchronous network pool for
Go: one event-loop goroutine owns every socket, driven by an epoll (Linux)
or kqueue (BSD/macOS) poller, while bind/connect/send/close commands can be
issued safely from any goroutine.

The pool itself speaks only bytes. Two protocol framers are layered on top
of it for turning a connection's merged receive buffer into discrete
messages: an HTTP/1.1 request parser (chunked transfer, keep-alive) and a
bracket-balanced JSON message framer.

Quick Start

	package main

	import (
	    "github.com/searchktools/reactorpool/netpool"
	    "github.com/searchktools/reactorpool/slab"
	)

	type echoCallback struct{}

	func (echoCallback) Allocate(suggested int) []byte              { return nil }
	func (echoCallback) Deallocate(buf []byte, dataLen int)         {}
	func (echoCallback) Drop(conn *netpool.Connection, err error)   {}
	func (echoCallback) Startup(id uint64, peer netpool.Addr)       {}
	func (echoCallback) Shutdown()                                  {}
	func (echoCallback) Settings() netpool.ConnectionSettings       { return netpool.ConnectionSettings{} }
	func (echoCallback) TimeoutSettings() netpool.TimeoutSettings   { return netpool.TimeoutSettings{} }
	func (echoCallback) Packet(conn *netpool.Connection, data []byte) {
	    conn.Send(data)
	    conn.Recv().Compact(len(data))
	}

	type echoFactory struct{}

	func (echoFactory) NewCallback(local netpool.Addr) netpool.ConnectionCallback { return echoCallback{} }
	func (echoFactory) Startup(local netpool.Addr)                                {}
	func (echoFactory) Shutdown(local netpool.Addr)                               {}
	func (echoFactory) ListenError(local netpool.Addr, err error)                 {}
	func (echoFactory) Settings() netpool.ConnectionSettings                      { return netpool.ConnectionSettings{} }

	func main() {
	    pool, _ := netpool.New(slab.Default(), nil)
	    addr, _ := netpool.ParseAddr(":9000")
	    go pool.Run()
	    pool.BindTcp(addr, echoFactory{}) // waits for the reactor loop to run the bind
	    select {}
	}

Modules

The module is organized around the reactor core and two protocol framers
built on it:

  - netpool: the pool façade (Pool, Connection, ServerFactory,
    ConnectionCallback, UDPCallback, Metrics) — bind/connect/send/close
    from any goroutine, dispatched on the single reactor thread
  - reactor: low-level event-loop primitives (Poller, epoll/kqueue,
    self-pipe wake, per-connection Timer)
  - framer/http: HTTP/1.1 request parser (chunked transfer, keep-alive)
  - framer/json: bracket-balanced JSON message framer
  - recvbuf: the merged per-connection receive buffer both framers scan
  - slab: size-classed byte-slice allocator fronting socket reads
  - workqueue: bounded FIFO task queue for offloading callback work
  - refcell: atomically-refcounted cell for sharing pooled values
  - rpc: a length-prefixed binary RPC client/server built on netpool.Pool
  - pools: tiered byte-slice and buffer pools plus GC tuning helpers
  - config: static Settings plus a dynamic Manager for runtime overrides
  - app: process lifecycle glue (signal handling, graceful shutdown)

See SPEC_FULL.md for the full specification this module implements.
*/
package reactorpool
