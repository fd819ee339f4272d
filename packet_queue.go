package avreel

import (
	"sync"
)

// packetKind tags a packetQueue entry's variant, replacing the original
// design's sentinel-by-pointer-identity FlushPacket with a proper tagged
// union.
type packetKind uint8

const (
	packetData packetKind = iota
	packetFlush
	packetNull
)

// packetEntry is one (packet, serial) tuple queued between the demuxer and
// a decoder. kind discriminates data packets from the Flush/Null sentinels.
type packetEntry struct {
	kind   packetKind
	serial int32

	// payload for packetData entries. Populated by the mediasource
	// adapter; see mediasource.go for why this already holds a decoded
	// reisen frame rather than a raw compressed buffer.
	payload decodedUnit

	// size is the accounting weight used for backpressure: for
	// packetData entries this is the underlying buffer size in bytes.
	size     int
	duration float64 // seconds, 0 if unknown
}

// packetQueue is a bounded FIFO of (packet, serial) tuples plus the
// flush-serial protocol. One producer (the demuxer), one consumer (the
// matching decoder).
type packetQueue struct {
	mutex     sync.Mutex
	cond      *sync.Cond
	entries   []packetEntry
	size      int     // cumulative byte size of queued entries
	duration  float64 // cumulative duration of queued entries, in seconds
	serial    int32
	aborted   bool
	drainSig  chan struct{} // signaled (non-blocking) when the queue empties
	streamIdx int
}

func newPacketQueue(streamIdx int) *packetQueue {
	q := &packetQueue{streamIdx: streamIdx, drainSig: make(chan struct{}, 1)}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// start clears the abort flag and pushes the initial FlushPacket, bumping
// serial 0 -> 1.
func (q *packetQueue) start() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.aborted = false
	q.noLockPutFlush()
}

// abort sets the abort flag and wakes every blocked reader.
func (q *packetQueue) abort() {
	q.mutex.Lock()
	q.aborted = true
	q.mutex.Unlock()
	q.cond.Broadcast()
}

func (q *packetQueue) isAborted() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.aborted
}

// put appends a data packet. Returns ErrAborted if the queue has been
// aborted; the caller is responsible for releasing the packet's underlying
// resources in that case.
func (q *packetQueue) put(payload decodedUnit, size int, duration float64) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.aborted {
		return ErrAborted
	}
	q.entries = append(q.entries, packetEntry{
		kind:     packetData,
		serial:   q.serial,
		payload:  payload,
		size:     size,
		duration: duration,
	})
	q.size += size
	q.duration += duration
	q.cond.Signal()
	return nil
}

// putFlush appends a FlushPacket sentinel, bumping serial before insertion
// so the sentinel itself carries the new serial.
func (q *packetQueue) putFlush() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.aborted {
		return ErrAborted
	}
	q.noLockPutFlush()
	return nil
}

func (q *packetQueue) noLockPutFlush() {
	q.serial++
	q.entries = append(q.entries, packetEntry{kind: packetFlush, serial: q.serial})
	q.cond.Signal()
}

// putNull appends an empty packet signaling end-of-stream to the decoder.
func (q *packetQueue) putNull() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.aborted {
		return ErrAborted
	}
	q.entries = append(q.entries, packetEntry{kind: packetNull, serial: q.serial})
	q.cond.Signal()
	return nil
}

// get removes and returns the head entry. If block is true and the queue
// is empty, get waits on the non-empty condition until an entry arrives or
// the queue is aborted.
func (q *packetQueue) get(block bool) (packetEntry, bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for {
		if q.aborted {
			return packetEntry{}, false, ErrAborted
		}
		if len(q.entries) > 0 {
			e := q.entries[0]
			q.entries = q.entries[1:]
			if e.kind == packetData {
				q.size -= e.size
				q.duration -= e.duration
			}
			if len(q.entries) == 0 {
				select {
				case q.drainSig <- struct{}{}:
				default:
				}
			}
			return e, true, nil
		}
		if !block {
			return packetEntry{}, false, nil
		}
		q.cond.Wait()
	}
}

// flush unrefs and drops every queued entry, zeroing counters. serial is
// left unchanged.
func (q *packetQueue) flush() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, e := range q.entries {
		if e.kind == packetData && e.payload != nil {
			e.payload.release()
		}
	}
	q.entries = nil
	q.size = 0
	q.duration = 0
}

// counters returns a snapshot of the queue's counters, taken under the
// queue's mutex, for backpressure decisions.
func (q *packetQueue) counters() (count int, size int, duration float64, serial int32) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries), q.size, q.duration, q.serial
}

func (q *packetQueue) currentSerial() int32 {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.serial
}

// hasEnoughPackets reports true if: the stream is disabled (q == nil), the
// queue is aborted, the stream is an attached-picture, or
// count > MIN_FRAMES && (duration == 0 || durationSeconds > 1.0).
func (q *packetQueue) hasEnoughPackets(attachedPicture bool) bool {
	if q == nil {
		return true
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.aborted || attachedPicture {
		return true
	}
	return len(q.entries) > minFrames && (q.duration == 0 || q.duration > 1.0)
}
