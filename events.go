package avreel

import "time"

// EventKind enumerates the host-facing input events the engine's eventStep
// reacts to, event pump description.
type EventKind uint8

const (
	EventNone EventKind = iota
	EventTogglePause
	EventStepFrame
	EventToggleFullscreen
	EventSeekLeft
	EventSeekRight
	EventSeekUp
	EventSeekDown
	EventSeekPgUp
	EventSeekPgDn
	EventCycleAudioStream
	EventCycleVideoStream
	EventCycleSubtitleStream
	EventCycleChapter
	EventToggleMute
	EventVolumeDown
	EventVolumeUp
	EventMouseSeek // seek by a click fraction along the window width
	EventMouseMove // show the cursor, reset the auto-hide timer
	EventQuit
	EventWindowResize
)

// Event is one input occurrence delivered to Engine.EventStep. Fields beyond
// Kind are interpreted only by the kinds that use them.
type Event struct {
	Kind EventKind

	// MouseFraction is set for EventMouseSeek: the horizontal click
	// position expressed as a fraction of the window width, in [0, 1].
	MouseFraction float64

	// Width/Height are set for EventWindowResize.
	Width, Height int
}

// EventPump is the host's input source. The core engine ships no concrete
// pump: a host (e.g. one built on ebiten/v2/inpututil) polls its
// windowing toolkit and
// translates results into Events per the key table below, then calls
// Engine.EventStep once per Event (or with EventNone when idle).
//
// Key bindings : pause=Space, step=S, full-screen=F,
// seek=Left/Right/Up/Down/PgUp/PgDn, cycle streams=A/V/T/C, mute=M,
// volume=9/0, exit=Esc/Q. Mouse: double left-click toggles fullscreen,
// single click seeks by horizontal fraction, movement shows the cursor.
type EventPump interface {
	// Poll returns the next pending event, or ok=false if none is queued.
	Poll() (Event, bool)
}

// cursorState tracks the mouse-auto-hide timer referenced by 
// ("move to show cursor"). The host owns the actual cursor visibility call;
// this only tracks the deadline.
type cursorState struct {
	lastMove time.Time
	lastHidden bool
}

func (c *cursorState) noteMove(now time.Time) {
	c.lastMove = now
	c.lastHidden = false
}

// shouldHide reports whether cursorHideDelay has elapsed since the last
// recorded mouse movement.
func (c *cursorState) shouldHide(now time.Time) bool {
	if c.lastHidden {
		return false
	}
	if now.Sub(c.lastMove) < cursorHideDelay {
		return false
	}
	c.lastHidden = true
	return true
}
