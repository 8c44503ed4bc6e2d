package config

import (
	"flag"
	"runtime"
	"time"

	"github.com/searchktools/reactorpool/netpool"
)

// Settings holds the network pool's static configuration: listen
// addresses, per-role timeout defaults, and the ambient-stack knobs
// (GC tuning, metrics, worker count) SPEC_FULL.md calls out as external
// interfaces.
type Settings struct {
	TCPAddr string
	UDPAddr string

	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	SendTimeout    time.Duration

	InitialRecvCapacity int
	MaxRecvCapacity     int

	WorkerCount     int
	WorkQueueDepth  int
	GCTuning        bool
	MetricsEnabled  bool
	Env             string
}

// New loads Settings from command-line flags.
func New() *Settings {
	s := &Settings{}

	flag.StringVar(&s.TCPAddr, "tcp-addr", ":8080", "TCP listen address")
	flag.StringVar(&s.UDPAddr, "udp-addr", "", "UDP listen address (empty disables UDP)")
	flag.DurationVar(&s.ConnectTimeout, "connect-timeout", 10*time.Second, "outbound connect timeout")
	flag.DurationVar(&s.IdleTimeout, "idle-timeout", 60*time.Second, "connection idle timeout")
	flag.DurationVar(&s.SendTimeout, "send-timeout", 30*time.Second, "pending-write send timeout")
	flag.IntVar(&s.InitialRecvCapacity, "recv-initial-capacity", 4096, "initial per-connection receive buffer size")
	flag.IntVar(&s.MaxRecvCapacity, "recv-max-capacity", 1<<20, "maximum per-connection receive buffer size")
	flag.IntVar(&s.WorkerCount, "workers", 0, "work queue worker count (0 = runtime.NumCPU())")
	flag.IntVar(&s.WorkQueueDepth, "work-queue-depth", 1024, "bounded work queue capacity")
	flag.BoolVar(&s.GCTuning, "gc-tuning", false, "apply high-throughput GC tuning at startup")
	flag.BoolVar(&s.MetricsEnabled, "metrics", true, "enable pool metrics collection")
	flag.StringVar(&s.Env, "env", "development", "environment (development/production)")

	flag.Parse()
	return s
}

// TimeoutSettings projects the relevant fields into the shape
// netpool.ConnectionCallback.TimeoutSettings expects.
func (s *Settings) TimeoutSettings() netpool.TimeoutSettings {
	return netpool.TimeoutSettings{
		Connect: s.ConnectTimeout,
		Idle:    s.IdleTimeout,
		Send:    s.SendTimeout,
	}
}

// ConnectionSettings projects the relevant fields into the shape
// netpool.ConnectionCallback.Settings/ServerFactory.Settings expects.
func (s *Settings) ConnectionSettings() netpool.ConnectionSettings {
	return netpool.ConnectionSettings{
		InitialRecvCapacity: s.InitialRecvCapacity,
		MaxRecvCapacity:     s.MaxRecvCapacity,
	}
}

// Workers returns the configured work queue worker count, defaulting to
// runtime.NumCPU() when unset (WorkerCount == 0, the flag default).
func (s *Settings) Workers() int {
	if s.WorkerCount > 0 {
		return s.WorkerCount
	}
	return runtime.NumCPU()
}
