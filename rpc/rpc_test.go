package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/searchktools/reactorpool/netpool"
	"github.com/searchktools/reactorpool/rpc/client"
	"github.com/searchktools/reactorpool/rpc/server"
	"github.com/searchktools/reactorpool/slab"
)

type EchoArgs struct {
	Text string
}

type EchoReply struct {
	Text string
}

type EchoService struct{}

func (EchoService) Echo(ctx context.Context, args *EchoArgs) (*EchoReply, error) {
	return &EchoReply{Text: args.Text}, nil
}

func TestCallRoundTrip(t *testing.T) {
	pool, err := netpool.New(slab.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pool.Run()
	defer pool.Shutdown()

	srv := server.NewServer(pool)
	if err := srv.Register("echo", EchoService{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := srv.Listen("127.0.0.1:18372"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cl, err := client.Dial(pool, "127.0.0.1:18372", 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cl.Close()

	var reply EchoReply
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Call(ctx, "echo", "Echo", &EchoArgs{Text: "hi"}, &reply); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Text != "hi" {
		t.Fatalf("got %q, want %q", reply.Text, "hi")
	}
}

func TestPing(t *testing.T) {
	pool, err := netpool.New(slab.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go pool.Run()
	defer pool.Shutdown()

	srv := server.NewServer(pool)
	if err := srv.Listen("127.0.0.1:18373"); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cl, err := client.Dial(pool, "127.0.0.1:18373", 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cl.Close()

	if err := cl.Ping(2 * time.Second); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
