package avreel

import (
	"math"
	"sync"
	"time"
)

// clock is a monotonic playback clock with drift, speed, pause, and serial
// gating.
//
// Cyclic-ownership note: a clock needs to know whether its owning
// PacketQueue has moved past a flush since the clock was last set, but the
// queue shouldn't need to know about every clock reading it. Rather than
// holding a pointer back into the queue, a clock holds only a read-only
// accessor closure returning the queue's current serial.
type clock struct {
	mutex sync.Mutex

	pts         float64 // last set PTS, in seconds
	ptsDrift    float64 // pts - wallClock at the moment of the last set
	lastUpdated float64 // wallClock value at the moment of the last set
	speed       float64
	serial      int32 // serial of the last set call
	paused      bool

	serialView func() int32 // nil for the external clock, which stands alone
}

// wallClockEpoch anchors wallClock's readings.
var wallClockEpoch = time.Now()

// wallClock returns a high-resolution monotonic wall-clock reading in
// seconds. It is not tied to time.Now's absolute value, only its deltas.
func wallClock() float64 {
	return time.Since(wallClockEpoch).Seconds()
}

// newClock creates a clock. serialView may be nil for the external clock,
// which is never compared against a packet queue's serial.
func newClock(serialView func() int32) *clock {
	c := &clock{speed: 1.0, serialView: serialView}
	c.set(math.NaN(), -1)
	return c
}

// now returns the current playback position in seconds, or NaN if the
// clock's serial doesn't match its packet queue's current serial (a
// discontinuity has been observed downstream but not reflected here yet).
func (c *clock) now() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.noLockNow()
}

func (c *clock) noLockNow() float64 {
	if c.serialView != nil && c.serialView() != c.serial {
		return math.NaN()
	}
	if c.paused {
		return c.pts
	}
	wall := wallClock()
	return c.ptsDrift + wall + (wall-c.lastUpdated)*(c.speed-1.0)
}

// set recomputes ptsDrift and lastUpdated so that now == pts at this
// instant, then stores serial as the clock's new view of its queue.
func (c *clock) set(pts float64, serial int32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.noLockSet(pts, serial)
}

func (c *clock) noLockSet(pts float64, serial int32) {
	wall := wallClock()
	c.pts = pts
	c.lastUpdated = wall
	c.ptsDrift = pts - wall
	c.serial = serial
}

// setSpeed changes the playback speed. It first re-anchors via set(now,
// serial) so that now is continuous across the speed change — no jump at
// the instant setSpeed is called.
func (c *clock) setSpeed(speed float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.noLockNow()
	c.noLockSet(now, c.serial)
	c.speed = speed
}

func (c *clock) getSpeed() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.speed
}

func (c *clock) setPaused(paused bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if paused == c.paused {
		return
	}
	if paused {
		// freeze at the current position
		c.pts = c.noLockNow()
	} else {
		c.noLockSet(c.pts, c.serial)
	}
	c.paused = paused
}

// syncTo pulls this clock to match slave iff the two have drifted by more
// than noSyncThreshold seconds, or this clock is currently NaN.
func (c *clock) syncTo(slave *clock) {
	this := c.now()
	other := slave.now()
	if !math.IsNaN(other) && (math.IsNaN(this) || math.Abs(this-other) > noSyncThreshold) {
		c.set(other, slave.currentSerial())
	}
}

func (c *clock) currentSerial() int32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.serial
}
