// Package client implements an RPC client over the network pool.
//
// Grounded on the teacher's core/rpc/client/client.go (same Call/Go/Ping
// shape, same pending-call bookkeeping via sync.Map), rewritten against
// netpool.Pool.Connect instead of net.DialTimeout: the teacher's receive()
// goroutine blocking on io.ReadFull becomes a ConnectionCallback whose
// Packet method the reactor thread invokes as bytes arrive.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/searchktools/reactorpool/netpool"
	"github.com/searchktools/reactorpool/rpc/codec"
	"github.com/searchktools/reactorpool/rpc/protocol"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrTimeout       = errors.New("request timeout")
)

// Client is one RPC connection to a server, dialed through a netpool.Pool.
type Client struct {
	pool  *netpool.Pool
	codec codec.Codec
	log   *zap.Logger

	connID    uint64
	reqID     atomic.Uint32
	pending   sync.Map // requestID -> *Call

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once

	ready chan error // receives nil from Startup, or the error passed to Drop
}

// Call represents one in-flight or completed RPC call.
type Call struct {
	Service string
	Method  string
	Args    interface{}
	Reply   interface{}
	Error   error
	Done    chan *Call
}

// Option configures a Client.
type Option func(*Client)

// WithClientCodec sets the codec used to encode args and decode replies.
func WithClientCodec(c codec.Codec) Option {
	return func(cl *Client) { cl.codec = c }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(log *zap.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// Dial connects to addr over pool and blocks until the connection completes
// or dialTimeout elapses.
func Dial(pool *netpool.Pool, addr string, dialTimeout time.Duration, opts ...Option) (*Client, error) {
	a, err := netpool.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid address %q: %w", addr, err)
	}

	c := &Client{
		pool:  pool,
		codec: &codec.JSONCodec{},
		log:   zap.NewNop(),
		ready: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := pool.Connect(a, &connCallback{client: c}); err != nil {
		return nil, fmt.Errorf("rpc: dial error: %w", err)
	}

	select {
	case err := <-c.ready:
		if err != nil {
			return nil, err
		}
		return c, nil
	case <-time.After(dialTimeout):
		return nil, fmt.Errorf("rpc: dial timeout after %s", dialTimeout)
	}
}

// connCallback adapts netpool.ConnectionCallback to the Client.
type connCallback struct {
	client   *Client
	consumed int
}

func (cc *connCallback) Allocate(suggested int) []byte { return nil }

func (cc *connCallback) Deallocate(buf []byte, dataLen int) {}

func (cc *connCallback) Drop(conn *netpool.Connection, err error) {
	select {
	case cc.client.ready <- err:
	default:
	}
}

func (cc *connCallback) Startup(id uint64, peer netpool.Addr) {
	cc.client.connID = id
	select {
	case cc.client.ready <- nil:
	default:
	}
}

func (cc *connCallback) Shutdown() {
	cc.client.Close()
}

func (cc *connCallback) Settings() netpool.ConnectionSettings {
	return netpool.ConnectionSettings{}
}

func (cc *connCallback) TimeoutSettings() netpool.TimeoutSettings {
	return netpool.TimeoutSettings{}
}

func (cc *connCallback) Packet(conn *netpool.Connection, data []byte) {
	for {
		avail := len(data) - cc.consumed
		if avail < protocol.HeaderSize {
			break
		}
		size, err := protocol.GetFrameSize(data[cc.consumed : cc.consumed+protocol.HeaderSize])
		if err != nil {
			cc.client.log.Warn("rpc client malformed header", zap.Error(err))
			conn.Close()
			return
		}
		if avail < size {
			break
		}
		frame, err := protocol.Decode(data[cc.consumed : cc.consumed+size])
		if err != nil {
			cc.client.log.Warn("rpc client malformed frame", zap.Error(err))
			conn.Close()
			return
		}
		cc.consumed += size
		cc.client.handleFrame(frame)
	}
	if cc.consumed > 0 {
		conn.Recv().Compact(cc.consumed)
		cc.consumed = 0
	}
}

// Call makes a synchronous RPC call, blocking until a reply arrives or ctx
// is done.
func (c *Client) Call(ctx context.Context, service, method string, args, reply interface{}) error {
	call := &Call{Service: service, Method: method, Args: args, Reply: reply, Done: make(chan *Call, 1)}
	c.Go(call)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case call := <-call.Done:
		return call.Error
	}
}

// Go makes an asynchronous RPC call; call.Done receives the completed Call.
func (c *Client) Go(call *Call) *Call {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		call.Error = ErrClientClosed
		call.done()
		return call
	}
	c.mu.Unlock()

	requestID := c.reqID.Add(1)
	c.pending.Store(requestID, call)

	meta := Metadata(call.Service, call.Method)
	payload, err := c.codec.Encode(call.Args)
	if err != nil {
		call.Error = fmt.Errorf("encode args error: %w", err)
		c.pending.Delete(requestID)
		call.done()
		return call
	}

	frame := protocol.NewFrame(protocol.TypeRequest, requestID)
	frame.Metadata = meta
	frame.Payload = payload

	if err := c.send(frame); err != nil {
		call.Error = err
		c.pending.Delete(requestID)
		call.done()
		return call
	}
	return call
}

// Metadata marshals a service/method pair into the frame metadata field.
func Metadata(service, method string) []byte {
	data, _ := json.Marshal(map[string]string{"service": service, "method": method})
	return data
}

func (c *Client) send(frame *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.pool.SendTcp(c.connID, frame.Encode())
}

func (c *Client) handleFrame(frame *protocol.Frame) {
	val, ok := c.pending.LoadAndDelete(frame.RequestID)
	if !ok {
		c.log.Debug("rpc unexpected response", zap.Uint32("requestID", frame.RequestID))
		return
	}
	call := val.(*Call)

	switch frame.Type {
	case protocol.TypeResponse:
		if err := c.codec.Decode(frame.Payload, call.Reply); err != nil {
			call.Error = fmt.Errorf("decode reply error: %w", err)
		}
	case protocol.TypeError:
		call.Error = errors.New(string(frame.Payload))
	case protocol.TypePong:
	default:
		call.Error = fmt.Errorf("unexpected frame type: %d", frame.Type)
	}
	call.done()
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
	}
}

// Ping sends a keepalive ping and waits for the pong.
func (c *Client) Ping(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	requestID := c.reqID.Add(1)
	frame := protocol.NewFrame(protocol.TypePing, requestID)

	call := &Call{Done: make(chan *Call, 1)}
	c.pending.Store(requestID, call)

	if err := c.send(frame); err != nil {
		c.pending.Delete(requestID)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		c.pending.Delete(requestID)
		return ErrTimeout
	case <-call.Done:
		return call.Error
	}
}

// Close closes the underlying connection and fails all pending calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.connID != 0 {
			c.pool.Close(c.connID)
		}
		c.pending.Range(func(key, value interface{}) bool {
			call := value.(*Call)
			call.Error = ErrClientClosed
			call.done()
			c.pending.Delete(key)
			return true
		})
	})
	return nil
}
