package reactor

import (
	"testing"
	"time"
)

func TestTimerExpiredAfterDeadline(t *testing.T) {
	var timer Timer
	timer.Arm(RoleIdle, time.Millisecond)
	if timer.Expired(time.Now()) {
		t.Fatal("should not be expired immediately")
	}
	if timer.Expired(time.Now().Add(5 * time.Millisecond)) != true {
		t.Fatal("should be expired after deadline")
	}
}

func TestArmReplacesRole(t *testing.T) {
	var timer Timer
	timer.Arm(RoleConnect, time.Second)
	timer.Arm(RoleSend, 2*time.Second)
	if timer.Role() != RoleSend {
		t.Fatalf("expected RoleSend, got %v", timer.Role())
	}
}

func TestDisarmClearsExpiry(t *testing.T) {
	var timer Timer
	timer.Arm(RoleIdle, -time.Millisecond)
	timer.Disarm()
	if timer.Expired(time.Now()) {
		t.Fatal("disarmed timer should never expire")
	}
	if timer.Role() != RoleNone {
		t.Fatal("expected RoleNone after disarm")
	}
}
