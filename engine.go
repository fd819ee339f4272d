package avreel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"golang.org/x/sync/errgroup"
)

// playerBufferSize is the audio hardware buffer the sync policy targets
// when computing drift corrections.
const playerBufferSize = 200 * time.Millisecond

// Engine is the top-level playback object: it owns the three pipelines
// (video/audio/subtitle), the clocks and sync policy that tie them
// together, and the goroutine group that runs them: a demux thread, one
// decoder thread per stream, and a presentation stage driven by the
// host's event loop (see DESIGN.md).
type Engine struct {
	src  mediaSource
	opts EngineOptions

	hasVideo, hasAudio bool

	videoPQ, audioPQ, subtitlePQ *packetQueue
	pictureQ                     *frameQueue[videoFrame]
	sampleQ                      *frameQueue[audioFrame]
	subtitleQ                    *frameQueue[subtitleFrame]

	videoClock, audioClock, extClock *clock
	sync                              *syncPolicy

	demux    *demuxer
	videoDec *videoDecoder
	audioDec *audioDecoder
	subDec   *subtitleDecoder

	present     *presenter
	audioPlayer *audio.Player

	group  *errgroup.Group
	cancel context.CancelFunc

	mu     sync.Mutex
	state  PlaybackState
	cursor cursorState

	reachedEnd atomic.Bool

	videoStreamSrc videoStreamSource
	width, height  int
}

// NewEngine opens path and wires the full pipeline, starting the demuxer
// and decoder goroutines. The engine starts paused; call TogglePause (or
// send an EventTogglePause) to begin playback, matching
// "the demuxer begins in the paused state" note.
func NewEngine(path string, opts EngineOptions) (*Engine, error) {
	src, err := openReisenSource(path)
	if err != nil {
		return nil, err
	}
	if err := src.OpenDecode(); err != nil {
		src.Close()
		return nil, fatalf("open-decode", err)
	}

	e := &Engine{src: src, opts: opts, state: Stopped}

	videoStream, hasVideo := src.VideoStream()
	audioStream, hasAudio := src.AudioStream()
	e.hasVideo = hasVideo
	e.hasAudio = hasAudio

	if hasVideo {
		if err := videoStream.Open(); err != nil {
			src.Close()
			return nil, fatalf("open-video-stream", err)
		}
		e.videoStreamSrc = videoStream
		e.width, e.height = videoStream.Width(), videoStream.Height()
	}
	var sampleRate, channels int
	if hasAudio {
		if err := audioStream.Open(); err != nil {
			src.Close()
			return nil, fatalf("open-audio-stream", err)
		}
		sampleRate, channels = audioStream.SampleRate(), audioStream.Channels()
		if channels > 2 {
			src.Close()
			return nil, ErrTooManyChannels
		}
	}

	e.videoPQ = newPacketQueue(0)
	e.audioPQ = newPacketQueue(1)
	e.subtitlePQ = newPacketQueue(2)

	e.pictureQ = newFrameQueue[videoFrame](e.videoPQ, 3, true)
	e.sampleQ = newFrameQueue[audioFrame](e.audioPQ, 9, false)
	e.subtitleQ = newFrameQueue[subtitleFrame](e.subtitlePQ, 16, false)

	e.extClock = newClock(nil)
	e.videoClock = newClock(e.videoPQ.currentSerial)
	e.audioClock = newClock(e.audioPQ.currentSerial)
	e.sync = newSyncPolicy(opts, e.audioClock, e.videoClock, e.extClock, hasAudio, hasVideo)

	if hasVideo {
		frNum, frDen := videoStream.FrameRate()
		e.videoDec = newVideoDecoder(e.videoPQ, e.pictureQ, videoStream, e.sync, frNum, frDen)
	}
	if hasAudio {
		e.audioDec = newAudioDecoder(e.audioPQ, e.sampleQ, audioStream, sampleRate, channels)
	}
	e.subDec = newSubtitleDecoder(e.subtitlePQ, e.subtitleQ)

	hwBufBytes := 0
	if hasAudio {
		hwBufBytes = int(playerBufferSize.Seconds() * float64(sampleRate*channels*2))
	}
	showMode := opts.ShowMode
	if showMode == ShowModeVideo && !hasVideo {
		// mirrors the original's show_mode auto-selection: fall back to
		// a spectrum view when there's nothing to paint a frame into.
		showMode = ShowModeRDFT
	}
	e.present = newPresenter(e.pictureQ, e.sampleQ, e.subtitleQ, e.sync, opts, sampleRate, channels, hwBufBytes, showMode)

	e.demux = &demuxer{
		src:                 src,
		opts:                opts,
		videoPQ:             e.videoPQ,
		audioPQ:             e.audioPQ,
		subtitlePQ:          e.subtitlePQ,
		hasVideo:            hasVideo,
		hasAudio:            hasAudio,
		extClock:            e.extClock,
		queueAttachmentsReq: true,
		onFatal:             func(error) {},
		onEOF:               func() { e.reachedEnd.Store(true) },
	}
	if hasVideo {
		e.demux.videoStream = videoStream
		e.demux.videoDone = e.videoDec.isFinished
		e.demux.videoFrameQueuedCount = e.pictureQ.queuedCount
	} else {
		e.demux.videoDone = func() bool { return true }
		e.demux.videoFrameQueuedCount = func() int { return 0 }
	}
	if hasAudio {
		e.demux.audioStream = audioStream
		e.demux.audioDone = e.audioDec.isFinished
		e.demux.audioFrameQueuedCount = e.sampleQ.queuedCount
	} else {
		e.demux.audioDone = func() bool { return true }
		e.demux.audioFrameQueuedCount = func() int { return 0 }
	}
	e.demux.setPaused(true)

	if hasAudio {
		if ctx := audio.CurrentContext(); ctx != nil {
			player, err := ctx.NewPlayer(e.present)
			if err != nil {
				src.Close()
				return nil, fatalf("new-audio-player", err)
			}
			player.SetBufferSize(playerBufferSize)
			e.audioPlayer = player
		} else {
			warnf("audio stream present but no audio.Context initialized; audio will be decoded but not played")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	group, _ := errgroup.WithContext(ctx)
	e.group = group

	e.videoPQ.start()
	e.audioPQ.start()
	e.subtitlePQ.start()

	group.Go(func() error { e.demux.run(); return nil })
	if hasVideo {
		group.Go(func() error { e.videoDec.run(); return nil })
	}
	if hasAudio {
		group.Go(func() error { e.audioDec.run(); return nil })
	}
	group.Go(func() error { e.subDec.run(); return nil })

	return e, nil
}

// EventStep applies one input event (EventNone for "no input this tick")
// and drives the refresh loop, returning how long the host should sleep
// before calling EventStep again, refresh-loop contract.
func (e *Engine) EventStep(ev Event) time.Duration {
	switch ev.Kind {
	case EventTogglePause:
		e.TogglePause()
	case EventStepFrame:
		e.StepFrame()
	case EventSeekLeft:
		e.SeekRelative(-10 * time.Second)
	case EventSeekRight:
		e.SeekRelative(10 * time.Second)
	case EventSeekDown:
		e.SeekRelative(-1 * time.Minute)
	case EventSeekUp:
		e.SeekRelative(1 * time.Minute)
	case EventSeekPgDn:
		e.SeekRelative(-10 * time.Minute)
	case EventSeekPgUp:
		e.SeekRelative(10 * time.Minute)
	case EventToggleMute:
		e.SetMuted(!e.Muted())
	case EventVolumeDown:
		e.SetVolume(e.Volume() - 0.1)
	case EventVolumeUp:
		e.SetVolume(e.Volume() + 0.1)
	case EventMouseSeek:
		if d := e.Duration(); d > 0 {
			e.Seek(time.Duration(ev.MouseFraction * float64(d)))
		}
	case EventMouseMove:
		e.cursor.noteMove(time.Now())
	case EventCycleAudioStream:
		e.CycleStream(streamAudio)
	case EventCycleVideoStream:
		e.CycleStream(streamVideo)
	case EventCycleSubtitleStream:
		e.CycleStream(streamSubtitle)
	case EventCycleChapter:
		debugf("cycle-chapter requested; mediaSource has no chapter concept, ignoring")
	}

	paused := e.isPaused()
	return e.present.refresh(paused)
}

// CurrentPicture returns the texture the host should draw this frame, if
// any is available yet.
func (e *Engine) CurrentPicture() (*videoFrame, bool) { return e.present.CurrentPicture() }

// Resolution reports the video stream's native pixel dimensions.
func (e *Engine) Resolution() (int, int) { return e.width, e.height }

// SetShowMode switches the presentation stage's display mode (spec.md
// §4.8). It takes effect on the refresh loop's next cadence check.
func (e *Engine) SetShowMode(m ShowMode) { e.present.setShowMode(m) }

// ShowMode reports the presentation stage's current display mode.
func (e *Engine) ShowMode() ShowMode { return e.present.getShowMode() }

// Waveform returns the most recently computed PCM waveform, valid when
// ShowMode is ShowModeWaves.
func (e *Engine) Waveform() []float32 { return e.present.waveform() }

// Spectrum returns the most recently computed magnitude spectrum, valid
// when ShowMode is ShowModeRDFT.
func (e *Engine) Spectrum() []float64 { return e.present.spectrum() }

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == Paused || e.state == Stopped
}

// State reports the engine's coarse playback state.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TogglePause flips between Playing and Paused.
func (e *Engine) TogglePause() {
	e.mu.Lock()
	if e.state == Playing {
		e.state = Paused
	} else {
		e.state = Playing
	}
	paused := e.state != Playing
	e.mu.Unlock()

	e.demux.setPaused(paused)
	e.videoClock.setPaused(paused)
	e.audioClock.setPaused(paused)
	e.extClock.setPaused(paused)
}

// StepFrame advances exactly one video frame, then re-pauses,
// step binding. Has no effect unless the engine is already paused.
func (e *Engine) StepFrame() {
	if !e.isPaused() {
		return
	}
	e.mu.Lock()
	e.state = Playing
	e.mu.Unlock()
	e.demux.setPaused(false)
	e.videoClock.setPaused(false)

	e.present.requestStep()

	e.mu.Lock()
	e.state = Paused
	e.mu.Unlock()
	e.demux.setPaused(true)
	e.videoClock.setPaused(true)
}

// Seek moves playback to an absolute position.
func (e *Engine) Seek(pos time.Duration) { e.demux.requestSeek(pos, 0, e.opts.SeekByBytes) }

// SeekRelative moves playback by rel relative to the current position.
func (e *Engine) SeekRelative(rel time.Duration) {
	e.demux.requestSeek(e.Position(), rel, e.opts.SeekByBytes)
}

// SetSpeed adjusts the external clock's playback speed (used by the
// realtime rubber-banding policy and any host-exposed speed control).
func (e *Engine) SetSpeed(speed float64) { e.extClock.setSpeed(speed) }

// Volume reports the current mix volume in [0, 1].
func (e *Engine) Volume() float64 {
	e.present.audioMu.Lock()
	defer e.present.audioMu.Unlock()
	return e.present.volume
}

// SetVolume sets the mix volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) {
	v = clampF(v, 0, 1)
	e.present.audioMu.Lock()
	e.present.volume = v
	e.present.audioMu.Unlock()
}

// Muted reports whether audio output is currently silenced.
func (e *Engine) Muted() bool {
	e.present.audioMu.Lock()
	defer e.present.audioMu.Unlock()
	return e.present.muted
}

// SetMuted silences or restores audio output.
func (e *Engine) SetMuted(m bool) {
	e.present.audioMu.Lock()
	e.present.muted = m
	e.present.audioMu.Unlock()
}

// Position reports the current master-clock playback position.
func (e *Engine) Position() time.Duration {
	return time.Duration(e.sync.masterClock().now() * float64(time.Second))
}

// Duration reports the source's total duration, preferring the video
// stream and falling back to audio.
func (e *Engine) Duration() time.Duration {
	if e.hasVideo {
		if d, err := e.videoStreamSrc.Duration(); err == nil {
			return d
		}
	}
	if e.hasAudio {
		if d, err := e.demux.audioStream.Duration(); err == nil {
			return d
		}
	}
	return 0
}

// CycleStream advances to the next available stream of the given kind.
// Per , mediaSource only ever opens one stream per kind, so
// this is a documented no-op beyond a debug log: there is no second track
// to switch to.
func (e *Engine) CycleStream(kind streamKind) {
	debugf("cycle-stream requested for kind=%d; single-track source, nothing to cycle to", kind)
}

// HasAudio / HasVideo report which streams are active.
func (e *Engine) HasAudio() bool { return e.hasAudio }
func (e *Engine) HasVideo() bool { return e.hasVideo }

// ReachedEnd reports whether the source has drained with looping disabled
// step 6's "EOF without loop" case). The host should treat
// this as its cue to emit a quit event or otherwise end playback.
func (e *Engine) ReachedEnd() bool { return e.reachedEnd.Load() }

// Close tears down every goroutine and releases the underlying source.
// The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.videoPQ.abort()
	e.audioPQ.abort()
	e.subtitlePQ.abort()
	e.pictureQ.signal()
	e.sampleQ.signal()
	e.subtitleQ.signal()
	e.demux.abort()
	e.cancel()
	_ = e.group.Wait()

	if e.audioPlayer != nil {
		_ = e.audioPlayer.Close()
	}
	if err := e.src.CloseDecode(); err != nil {
		warnf("close-decode: %v", err)
	}
	e.src.Close()
	return nil
}
