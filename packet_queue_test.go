package avreel

import (
	"testing"
	"time"
)

type fakeUnit struct{ released bool }

func (u *fakeUnit) kind() streamKind { return streamVideo }
func (u *fakeUnit) release()         { u.released = true }

func TestPacketQueueStartBumpsSerial(t *testing.T) {
	q := newPacketQueue(0)
	if s := q.currentSerial(); s != 0 {
		t.Fatalf("fresh queue serial = %d, want 0", s)
	}
	q.start()
	entry, ok, err := q.get(false)
	if err != nil || !ok {
		t.Fatalf("expected the initial flush entry, got ok=%v err=%v", ok, err)
	}
	if entry.kind != packetFlush || entry.serial != 1 {
		t.Fatalf("expected a Flush entry with serial 1, got %+v", entry)
	}
}

// TestPacketQueuePutFlushBumpsSerialBeforeInsert is property Q1: the
// FlushPacket sentinel itself must carry the new, post-bump serial.
func TestPacketQueuePutFlushBumpsSerialBeforeInsert(t *testing.T) {
	q := newPacketQueue(0)
	q.start() // serial -> 1

	_ = q.put(&fakeUnit{}, 100, 0)
	if err := q.putFlush(); err != nil {
		t.Fatalf("putFlush: %v", err)
	}
	_ = q.put(&fakeUnit{}, 50, 0)

	e1, _, _ := q.get(false)
	if e1.kind != packetData || e1.serial != 1 {
		t.Fatalf("first entry = %+v, want data@serial1", e1)
	}
	e2, _, _ := q.get(false)
	if e2.kind != packetFlush || e2.serial != 2 {
		t.Fatalf("flush entry = %+v, want flush@serial2", e2)
	}
	e3, _, _ := q.get(false)
	if e3.kind != packetData || e3.serial != 2 {
		t.Fatalf("entry after flush = %+v, want data@serial2 (packets enqueued after a flush carry its serial)", e3)
	}
}

// TestPacketQueueGetDrainsFIFOOrder is property Q2.
func TestPacketQueueGetDrainsFIFOOrder(t *testing.T) {
	q := newPacketQueue(0)
	q.start()
	for i := 0; i < 5; i++ {
		_ = q.put(&fakeUnit{}, 10, 0)
	}
	_, _, _ = q.get(false) // drain the initial flush

	for i := 0; i < 5; i++ {
		e, ok, err := q.get(false)
		if err != nil || !ok {
			t.Fatalf("get(%d): ok=%v err=%v", i, ok, err)
		}
		if e.kind != packetData {
			t.Fatalf("get(%d) kind = %v, want packetData", i, e.kind)
		}
	}
	if _, ok, _ := q.get(false); ok {
		t.Fatalf("expected queue to be empty after draining all puts")
	}
}

func TestPacketQueueAbortUnblocksGet(t *testing.T) {
	q := newPacketQueue(0)
	q.start()
	_, _, _ = q.get(false) // drain initial flush

	done := make(chan error, 1)
	go func() {
		_, _, err := q.get(true)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.abort()

	select {
	case err := <-done:
		if err != ErrAborted {
			t.Fatalf("blocked get() returned %v after abort, want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("abort() did not unblock a waiting get()")
	}
}

func TestPacketQueueFlushReleasesPayloads(t *testing.T) {
	q := newPacketQueue(0)
	q.start()
	u1, u2 := &fakeUnit{}, &fakeUnit{}
	_ = q.put(u1, 10, 0)
	_ = q.put(u2, 10, 0)

	q.flush()

	if !u1.released || !u2.released {
		t.Fatalf("flush() did not release queued payloads: u1=%v u2=%v", u1.released, u2.released)
	}
	if count, size, _, _ := q.counters(); count != 0 || size != 0 {
		t.Fatalf("counters after flush = count=%d size=%d, want 0,0", count, size)
	}
}

func TestPacketQueueHasEnoughPackets(t *testing.T) {
	q := newPacketQueue(0)
	q.start()

	if q.hasEnoughPackets(false) {
		t.Fatalf("empty queue should not report enough packets")
	}
	if !q.hasEnoughPackets(true) {
		t.Fatalf("attached-picture streams should always report enough packets")
	}

	for i := 0; i < minFrames+1; i++ {
		_ = q.put(&fakeUnit{}, 10, 2.0)
	}
	if !q.hasEnoughPackets(false) {
		t.Fatalf("queue with > minFrames entries and > 1s duration should report enough packets")
	}
}

func TestPacketQueuePutAfterAbortReturnsError(t *testing.T) {
	q := newPacketQueue(0)
	q.start()
	q.abort()
	if err := q.put(&fakeUnit{}, 1, 0); err != ErrAborted {
		t.Fatalf("put() after abort = %v, want ErrAborted", err)
	}
}
