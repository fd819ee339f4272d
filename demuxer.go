package avreel

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// seekRequest captures a pending seek. Written by the UI/API thread and
// read by the demuxer goroutine; , the write must be
// published (here: under seekMu) before the demuxer next wakes and
// observes it.
type seekRequest struct {
	pending bool
	pos     time.Duration
	rel     time.Duration
	byBytes bool
}

// demuxer implements component C6: the state machine that reads packets
// from the source and dispatches them to the three packetQueues, honoring
// seek, pause, eof, backpressure and looping.
type demuxer struct {
	src  mediaSource
	opts EngineOptions

	videoPQ, audioPQ, subtitlePQ *packetQueue
	hasVideo, hasAudio           bool
	videoStream                  videoStreamSource
	audioStream                  audioStreamSource

	extClock *clock

	videoDone func() bool // reports whether the video decoder has drained its serial
	audioDone func() bool

	videoFrameQueuedCount func() int
	audioFrameQueuedCount func() int

	seekMu  sync.Mutex
	seekReq seekRequest

	pauseMu    sync.Mutex
	paused     bool
	lastPaused bool

	// queueAttachmentsReq mirrors the original's queue_attachments_req:
	// set once at stream open and again after every seek, consumed by
	// maybeQueueAttachment on the next loop iteration.
	queueAttachmentsReq bool

	eof     atomic.Bool
	aborted atomic.Bool

	onEOF   func() // called when EOF is reported and looping is disabled; repeated on each loop iteration while the source stays drained
	onFatal func(error)
}

// requestSeek queues a seek to be handled on the demuxer's next iteration.
func (d *demuxer) requestSeek(pos, rel time.Duration, byBytes bool) {
	d.seekMu.Lock()
	d.seekReq = seekRequest{pending: true, pos: pos, rel: rel, byBytes: byBytes}
	d.seekMu.Unlock()
}

func (d *demuxer) setPaused(p bool) {
	d.pauseMu.Lock()
	d.paused = p
	d.pauseMu.Unlock()
}

func (d *demuxer) abort() { d.aborted.Store(true) }

// run is the demuxer loop described in . It returns once
// aborted is set.
func (d *demuxer) run() {
	for {
		if d.aborted.Load() {
			return
		}

		d.pauseMu.Lock()
		paused := d.paused
		lastPaused := d.lastPaused
		d.lastPaused = paused
		d.pauseMu.Unlock()
		_ = lastPaused // reisen exposes no readPause/readPlay hook to call here

		if d.handleSeek() {
			continue
		}

		d.maybeQueueAttachment()

		if d.shouldBackoffForBuffers() {
			d.waitForBufferRoom()
			continue
		}

		if d.checkAutoLoopOrEOF() {
			continue
		}

		unit, ok, err := d.src.readPacket()
		if err != nil {
			if d.onFatal != nil {
				d.onFatal(err)
			}
			return
		}
		if !ok {
			if !d.eof.Load() {
				d.eof.Store(true)
				if d.hasVideo {
					_ = d.videoPQ.putNull()
				}
				if d.hasAudio {
					_ = d.audioPQ.putNull()
				}
			}
			time.Sleep(transientErrWait)
			continue
		}

		d.dispatch(unit)
	}
}

// handleSeek performs a pending seek and reports whether the caller should
// restart its loop iteration immediately.
func (d *demuxer) handleSeek() bool {
	d.seekMu.Lock()
	req := d.seekReq
	if !req.pending {
		d.seekMu.Unlock()
		return false
	}
	d.seekReq = seekRequest{}
	d.seekMu.Unlock()

	target := req.pos + req.rel
	if target < 0 {
		target = 0
	}

	if d.hasVideo {
		if err := d.videoStream.Rewind(target); err != nil {
			if d.onFatal != nil {
				d.onFatal(err)
			}
			return true
		}
		d.videoPQ.flush()
		_ = d.videoPQ.putFlush()
	}
	if d.hasAudio {
		if err := d.audioStream.Rewind(target); err != nil {
			if d.onFatal != nil {
				d.onFatal(err)
			}
			return true
		}
		d.audioPQ.flush()
		_ = d.audioPQ.putFlush()
	}
	if d.subtitlePQ != nil {
		d.subtitlePQ.flush()
		_ = d.subtitlePQ.putFlush()
	}

	if req.byBytes {
		d.extClock.set(math.NaN(), d.extClock.currentSerial())
	} else {
		d.extClock.set(target.Seconds(), d.extClock.currentSerial())
	}
	d.eof.Store(false)
	d.queueAttachmentsReq = true
	return true
}

// maybeQueueAttachment implements §4.6 step 4: when a seek (or stream
// open) has just happened and the video stream is an attached picture
// (e.g. embedded cover art on an audio file), clone its one packet into
// the video queue followed by a null packet, so the decoder shows it once
// and then reports itself drained rather than blocking on more video.
//
// reisen's VideoStream does not surface ffmpeg's AV_DISPOSITION_ATTACHED_PIC
// bit, so IsAttachedPicture() conservatively reports false until the
// Media Library exposes stream disposition; this keeps the control-flow
// path in place for when it does, rather than silently dropping it.
func (d *demuxer) maybeQueueAttachment() {
	if !d.queueAttachmentsReq {
		return
	}
	d.queueAttachmentsReq = false

	if !d.hasVideo || !d.videoStream.IsAttachedPicture() {
		return
	}

	unit, ok := d.videoStream.AttachedPicture()
	if !ok {
		return
	}
	if err := d.videoPQ.put(unit, 0, 0); err != nil {
		unit.release()
		return
	}
	_ = d.videoPQ.putNull()
}

// waitForBufferRoom blocks until either packet queue signals it has
// drained (drainSig, §4.4) or a short timeout elapses, so the demuxer
// tops up promptly instead of blind-polling on a fixed interval.
func (d *demuxer) waitForBufferRoom() {
	var videoSig, audioSig <-chan struct{}
	if d.videoPQ != nil {
		videoSig = d.videoPQ.drainSig
	}
	if d.audioPQ != nil {
		audioSig = d.audioPQ.drainSig
	}

	timer := time.NewTimer(backpressurePollWait)
	defer timer.Stop()
	select {
	case <-videoSig:
	case <-audioSig:
	case <-timer.C:
	}
}

// shouldBackoffForBuffers implements the step-5 backpressure wait.
func (d *demuxer) shouldBackoffForBuffers() bool {
	if d.opts.InfiniteBuffer {
		return false
	}

	totalBytes := 0
	if d.hasVideo {
		_, sz, _, _ := d.videoPQ.counters()
		totalBytes += sz
	}
	if d.hasAudio {
		_, sz, _, _ := d.audioPQ.counters()
		totalBytes += sz
	}
	if totalBytes > maxQueueBytes {
		return true
	}

	videoEnough := !d.hasVideo || d.videoPQ.hasEnoughPackets(d.videoStream.IsAttachedPicture())
	audioEnough := !d.hasAudio || d.audioPQ.hasEnoughPackets(false)
	return videoEnough && audioEnough
}

// checkAutoLoopOrEOF implements step 6: once every active decoder has
// finished its current serial and its frame queue is drained, either loop
// (seek to start) or report EOF to the host.
func (d *demuxer) checkAutoLoopOrEOF() bool {
	d.pauseMu.Lock()
	paused := d.paused
	d.pauseMu.Unlock()
	if paused {
		return false
	}

	videoDrained := !d.hasVideo || (d.videoDone() && d.videoFrameQueuedCount() == 0)
	audioDrained := !d.hasAudio || (d.audioDone() && d.audioFrameQueuedCount() == 0)
	if !videoDrained || !audioDrained {
		return false
	}
	if !d.eof.Load() {
		return false
	}

	if d.opts.Loop {
		d.requestSeek(0, 0, false)
		return true
	}

	if d.onEOF != nil {
		d.onEOF()
	}
	return false
}

// dispatch applies the step-8 play-range filter and routes unit to
// its stream's packetQueue, or drops it if it's outside the configured
// play range.
func (d *demuxer) dispatch(unit decodedUnit) {
	pts, size := d.unitTiming(unit)
	if d.opts.Duration > 0 {
		relative := time.Duration(pts*float64(time.Second)) - d.opts.StartTime
		if relative > d.opts.Duration {
			unit.release()
			return
		}
	}

	switch unit.kind() {
	case streamVideo:
		if d.hasVideo {
			_ = d.videoPQ.put(unit, size, 0)
		} else {
			unit.release()
		}
	case streamAudio:
		if d.hasAudio {
			_ = d.audioPQ.put(unit, size, 0)
		} else {
			unit.release()
		}
	default:
		unit.release()
	}
}

func (d *demuxer) unitTiming(unit decodedUnit) (pts float64, size int) {
	switch u := unit.(type) {
	case videoUnit:
		if off, err := u.presentationOffset(); err == nil {
			pts = off.Seconds()
		}
		size = len(u.pixels())
	case audioUnit:
		if off, err := u.presentationOffset(); err == nil {
			pts = off.Seconds()
		}
		size = len(u.samples())
	}
	return pts, size
}
