package avreel

import (
	"testing"
	"time"
)

// fakeVideoStream is a minimal videoStreamSource stub for exercising the
// attached-picture control flow without a real reisen-backed stream.
type fakeVideoStream struct {
	attached     bool
	attachedUnit decodedUnit
}

func (fakeVideoStream) Open() error                     { return nil }
func (fakeVideoStream) Close() error                    { return nil }
func (fakeVideoStream) Rewind(time.Duration) error      { return nil }
func (fakeVideoStream) Duration() (time.Duration, error) { return 0, nil }
func (fakeVideoStream) FrameRate() (int, int)            { return 30, 1 }
func (fakeVideoStream) Width() int                       { return 0 }
func (fakeVideoStream) Height() int                      { return 0 }
func (fakeVideoStream) Index() int                       { return 0 }

func (f fakeVideoStream) IsAttachedPicture() bool { return f.attached }
func (f fakeVideoStream) AttachedPicture() (decodedUnit, bool) {
	if !f.attached {
		return nil, false
	}
	return f.attachedUnit, true
}

func TestMaybeQueueAttachmentQueuesPictureThenNull(t *testing.T) {
	videoPQ := newPacketQueue(0)
	videoPQ.start()
	_, _, _ = videoPQ.get(false) // drain the initial flush
	unit := &fakeUnit{}
	d := &demuxer{
		hasVideo:            true,
		videoPQ:             videoPQ,
		videoStream:         fakeVideoStream{attached: true, attachedUnit: unit},
		queueAttachmentsReq: true,
	}

	d.maybeQueueAttachment()

	if d.queueAttachmentsReq {
		t.Fatalf("queueAttachmentsReq should be cleared after consuming it")
	}

	first, ok, err := videoPQ.get(false)
	if err != nil || !ok {
		t.Fatalf("expected a queued picture packet, got ok=%v err=%v", ok, err)
	}
	if first.kind != packetData || first.payload != unit {
		t.Fatalf("first entry should be the cloned attachment packet")
	}

	second, ok, err := videoPQ.get(false)
	if err != nil || !ok {
		t.Fatalf("expected a trailing null packet, got ok=%v err=%v", ok, err)
	}
	if second.kind != packetNull {
		t.Fatalf("second entry kind = %v, want packetNull", second.kind)
	}
}

func TestMaybeQueueAttachmentNoopWhenNotAttached(t *testing.T) {
	videoPQ := newPacketQueue(0)
	videoPQ.start()
	_, _, _ = videoPQ.get(false) // drain the initial flush
	d := &demuxer{
		hasVideo:            true,
		videoPQ:             videoPQ,
		videoStream:         fakeVideoStream{attached: false},
		queueAttachmentsReq: true,
	}

	d.maybeQueueAttachment()

	if d.queueAttachmentsReq {
		t.Fatalf("queueAttachmentsReq should still be cleared even when nothing is attached")
	}
	if _, ok, _ := videoPQ.get(false); ok {
		t.Fatalf("no packet should have been queued for a non-attached-picture stream")
	}
}

func TestMaybeQueueAttachmentIsOneShot(t *testing.T) {
	videoPQ := newPacketQueue(0)
	videoPQ.start()
	_, _, _ = videoPQ.get(false) // drain the initial flush
	d := &demuxer{
		hasVideo:            true,
		videoPQ:             videoPQ,
		videoStream:         fakeVideoStream{attached: true, attachedUnit: &fakeUnit{}},
		queueAttachmentsReq: false, // as if already consumed
	}

	d.maybeQueueAttachment()

	if _, ok, _ := videoPQ.get(false); ok {
		t.Fatalf("maybeQueueAttachment should be a no-op when queueAttachmentsReq is already false")
	}
}

func TestHandleSeekSetsQueueAttachmentsReq(t *testing.T) {
	videoPQ := newPacketQueue(0)
	videoPQ.start()
	d := &demuxer{
		hasVideo:    true,
		videoPQ:     videoPQ,
		videoStream: fakeVideoStream{},
		extClock:    newClock(nil),
	}
	d.requestSeek(1*time.Second, 0, false)

	if !d.handleSeek() {
		t.Fatalf("handleSeek should report true for a pending seek")
	}
	if !d.queueAttachmentsReq {
		t.Fatalf("handleSeek should set queueAttachmentsReq so a post-seek attachment is re-queued")
	}
}

func TestWaitForBufferRoomReturnsOnDrain(t *testing.T) {
	videoPQ := newPacketQueue(0)
	videoPQ.start()
	d := &demuxer{videoPQ: videoPQ, audioPQ: newPacketQueue(1)}
	d.audioPQ.start()

	_ = videoPQ.put(&fakeUnit{}, 1, 0)
	go func() {
		_, _, _ = videoPQ.get(true) // the initial flush
		_, _, _ = videoPQ.get(true) // drains the queue, signaling drainSig
	}()

	done := make(chan struct{})
	go func() {
		d.waitForBufferRoom()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("waitForBufferRoom did not return promptly after a queue drained")
	}
}
