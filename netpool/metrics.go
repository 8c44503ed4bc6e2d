package netpool

import "sync/atomic"

// Metrics holds atomic counters for pool-wide socket operations. Adapted
// from the teacher's PerformanceMonitor (core/observability/monitor.go),
// which tracked per-handler latency buckets; here the counters are
// repointed from per-HTTP-handler stats to per-socket-operation totals,
// since the pool has no notion of handlers.
type Metrics struct {
	accepts       atomic.Uint64
	connects      atomic.Uint64
	reads         atomic.Uint64
	writes        atomic.Uint64
	bytesRead     atomic.Uint64
	bytesWritten  atomic.Uint64
	closes        atomic.Uint64
	timeoutsIdle  atomic.Uint64
	timeoutsConn  atomic.Uint64
	timeoutsSend  atomic.Uint64
	overflows     atomic.Uint64
	acceptErrors  atomic.Uint64
	connectErrors atomic.Uint64
}

// Snapshot is a point-in-time copy of Metrics, safe to read without racing
// further updates.
type Snapshot struct {
	Accepts       uint64
	Connects      uint64
	Reads         uint64
	Writes        uint64
	BytesRead     uint64
	BytesWritten  uint64
	Closes        uint64
	TimeoutsIdle  uint64
	TimeoutsConn  uint64
	TimeoutsSend  uint64
	Overflows     uint64
	AcceptErrors  uint64
	ConnectErrors uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Accepts:       m.accepts.Load(),
		Connects:      m.connects.Load(),
		Reads:         m.reads.Load(),
		Writes:        m.writes.Load(),
		BytesRead:     m.bytesRead.Load(),
		BytesWritten:  m.bytesWritten.Load(),
		Closes:        m.closes.Load(),
		TimeoutsIdle:  m.timeoutsIdle.Load(),
		TimeoutsConn:  m.timeoutsConn.Load(),
		TimeoutsSend:  m.timeoutsSend.Load(),
		Overflows:     m.overflows.Load(),
		AcceptErrors:  m.acceptErrors.Load(),
		ConnectErrors: m.connectErrors.Load(),
	}
}

func (m *Metrics) recordAccept()        { m.accepts.Add(1) }
func (m *Metrics) recordAcceptError()   { m.acceptErrors.Add(1) }
func (m *Metrics) recordConnect()       { m.connects.Add(1) }
func (m *Metrics) recordConnectError()  { m.connectErrors.Add(1) }
func (m *Metrics) recordRead(n int)     { m.reads.Add(1); m.bytesRead.Add(uint64(n)) }
func (m *Metrics) recordWrite(n int)    { m.writes.Add(1); m.bytesWritten.Add(uint64(n)) }
func (m *Metrics) recordClose()         { m.closes.Add(1) }
func (m *Metrics) recordOverflow()      { m.overflows.Add(1) }
func (m *Metrics) recordTimeout(role timeoutRole) {
	switch role {
	case timeoutRoleConnect:
		m.timeoutsConn.Add(1)
	case timeoutRoleIdle:
		m.timeoutsIdle.Add(1)
	case timeoutRoleSend:
		m.timeoutsSend.Add(1)
	}
}

type timeoutRole int

const (
	timeoutRoleConnect timeoutRole = iota
	timeoutRoleIdle
	timeoutRoleSend
)
