package avreel

import (
	"math"
	"testing"
	"time"
)

func TestClockNowBeforeSetIsNaN(t *testing.T) {
	c := newClock(nil)
	if !math.IsNaN(c.now()) {
		t.Fatalf("expected NaN before any set(), got %v", c.now())
	}
}

func TestClockSetThenNow(t *testing.T) {
	c := newClock(nil)
	c.set(5.0, 1)
	got := c.now()
	if got < 5.0 || got > 5.05 {
		t.Fatalf("now() immediately after set(5.0) = %v, want close to 5.0", got)
	}
}

// TestClockSerialMismatchIsNaN checks the discontinuity-detection rule: once
// the packet queue's serial moves past what the clock last observed, now()
// reports NaN until the next set().
func TestClockSerialMismatchIsNaN(t *testing.T) {
	serial := int32(1)
	c := newClock(func() int32 { return serial })
	c.set(1.0, 1)
	if math.IsNaN(c.now()) {
		t.Fatalf("now() should not be NaN while serials match")
	}
	serial = 2
	if !math.IsNaN(c.now()) {
		t.Fatalf("now() should be NaN once serialView() diverges from the clock's serial")
	}
}

// TestClockSetSpeedNoJump is property C1 : changing speed must
// not cause a discontinuity in now() at the instant of the change.
func TestClockSetSpeedNoJump(t *testing.T) {
	c := newClock(nil)
	c.set(10.0, 1)
	time.Sleep(5 * time.Millisecond)

	before := c.now()
	c.setSpeed(2.0)
	after := c.now()

	if math.Abs(after-before) > 0.01 {
		t.Fatalf("setSpeed introduced a jump: before=%v after=%v", before, after)
	}
	if c.getSpeed() != 2.0 {
		t.Fatalf("getSpeed() = %v, want 2.0", c.getSpeed())
	}
}

func TestClockPauseFreezesPosition(t *testing.T) {
	c := newClock(nil)
	c.set(3.0, 1)
	c.setPaused(true)
	first := c.now()
	time.Sleep(10 * time.Millisecond)
	second := c.now()
	if first != second {
		t.Fatalf("paused clock moved: %v -> %v", first, second)
	}

	c.setPaused(false)
	time.Sleep(5 * time.Millisecond)
	if c.now() <= second {
		t.Fatalf("clock did not resume advancing after unpausing")
	}
}

func TestClockSyncToPullsOnLargeDrift(t *testing.T) {
	master := newClock(nil)
	master.set(100.0, 1)

	slave := newClock(nil)
	slave.set(0.0, 1)

	slave.syncTo(master)
	if math.Abs(slave.now()-100.0) > 0.05 {
		t.Fatalf("syncTo did not pull slave to master: got %v", slave.now())
	}
}

func TestClockSyncToIgnoresSmallDrift(t *testing.T) {
	master := newClock(nil)
	master.set(1.0, 1)

	slave := newClock(nil)
	slave.set(1.002, 1)

	slave.syncTo(master)
	if math.Abs(slave.now()-1.002) > 0.05 {
		t.Fatalf("syncTo should not have pulled slave for sub-threshold drift")
	}
}
