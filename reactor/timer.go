package reactor

import "time"

// Role identifies which of the three timeout roles a Timer is currently
// armed for. Only one role is ever active on a given connection at a time:
// arming a new role replaces whichever deadline was previously set.
type Role int

const (
	RoleNone Role = iota
	RoleConnect
	RoleIdle
	RoleSend
)

// Timer tracks a single deadline for one of Connect/Idle/Send. It carries no
// goroutine or OS handle of its own: the reactor loop sweeps armed timers
// against the monotonic clock once per iteration, the same way the teacher's
// engine swept idle connections on a ticker.
type Timer struct {
	role     Role
	deadline time.Time
}

// Arm sets the timer to role, expiring after d from now. Arming replaces any
// previously active role and deadline.
func (t *Timer) Arm(role Role, d time.Duration) {
	t.role = role
	t.deadline = time.Now().Add(d)
}

// Disarm clears the timer; Expired will never report true again until the
// next Arm.
func (t *Timer) Disarm() {
	t.role = RoleNone
	t.deadline = time.Time{}
}

// Role returns the currently armed role, or RoleNone.
func (t *Timer) Role() Role { return t.role }

// Expired reports whether the timer is armed and its deadline has passed.
func (t *Timer) Expired(now time.Time) bool {
	return t.role != RoleNone && !t.deadline.IsZero() && now.After(t.deadline)
}

// Remaining returns the duration until expiry, or 0 if already expired or
// unarmed.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if t.role == RoleNone {
		return 0
	}
	d := t.deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
