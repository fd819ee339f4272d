package avreel

import "time"

// ShowMode selects what the presentation stage's refresh loop treats as
// its primary deliverable , used by the audio-visualization
// branch of the refresh loop and test scenario 4 ("waves visualization
// at rdftSpeed cadence").
type ShowMode uint8

const (
	// ShowModeVideo displays decoded video frames and is the zero value.
	// NewEngine auto-falls-back to ShowModeRDFT when the source carries
	// no video stream, mirroring the original's show_mode
	// auto-selection ("m_showMode = ret >= 0 ? SHOW_MODE_VIDEO :
	// SHOW_MODE_RDFT").
	ShowModeVideo ShowMode = iota
	// ShowModeWaves renders a raw PCM waveform in place of video.
	ShowModeWaves
	// ShowModeRDFT renders a frequency-domain magnitude spectrum in
	// place of video.
	ShowModeRDFT
	// ShowModeNone disables the audio-visualization refresh entirely.
	ShowModeNone
)

// SyncMode selects which clock the other streams synchronize to. Per
// , the default policy prefers audio, falls back to video, and
// finally to the external clock; SyncVideoMaster overrides the preference
// to favor video when both are present.
type SyncMode uint8

const (
	// SyncAudioMaster prefers the audio clock, falling back to video then
	// external if no audio stream is present. This is the default.
	SyncAudioMaster SyncMode = iota
	// SyncVideoMaster prefers the video clock, falling back to audio then
	// external if no video stream is present.
	SyncVideoMaster
	// SyncExternalMaster always uses the free-running external clock.
	SyncExternalMaster
)

// EngineOptions configures an Engine at construction time. It replaces the
// original design's static, global option dictionaries (see DESIGN NOTES
// ): every tunable that used to live in a package-level var now
// lives on a value passed explicitly to NewEngine.
type EngineOptions struct {
	// SyncMode selects the master-clock policy. Zero value is SyncAudioMaster.
	SyncMode SyncMode

	// FrameDrop enables dropping late video frames to catch up to the
	// master clock . Defaults to true.
	FrameDrop bool

	// Loop, if true, seeks back to the start instead of reporting EOF once
	// every active stream drains (step 6).
	Loop bool

	// InfiniteBuffer disables the demuxer's backpressure wait, used for
	// small/already-local files where buffering everything is cheap.
	InfiniteBuffer bool

	// IsRealtime marks the source as a live capture (e.g. a network
	// stream). It enables the refresh loop's external-clock rubber-banding
	// when the external clock is master; the demuxer does not consult it.
	IsRealtime bool

	// SeekByBytes requests byte-offset seeking when the source supports
	// it. reisen-backed sources always seek by time regardless; see
	// .
	SeekByBytes bool

	// StartTime / Duration define an optional play range (step 8).
	// A zero Duration means "until EOF".
	StartTime time.Duration
	Duration time.Duration

	// Volume and Muted seed the audio callback's mix stage .
	Volume float64
	Muted bool

	// ShowMode seeds the presentation stage's initial display mode.
	// Zero value (ShowModeVideo) gets auto-fallback treatment in
	// NewEngine when there's no video stream to show.
	ShowMode ShowMode
}

// DefaultEngineOptions returns sane defaults: audio-master sync, frame
// drop enabled, no loop, bounded buffering, volume at unity.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		SyncMode:  SyncAudioMaster,
		FrameDrop: true,
		Volume:    1.0,
	}
}

// Bounded constants from .
const (
	minFrames = 25
	maxQueueBytes = 15 * 1024 * 1024
	noSyncThreshold = 10.0 // seconds
	syncThresholdMin = 0.04
	syncThresholdMax = 0.10
	frameDupThreshold = 0.10
	audioDiffAvgNB = 20
	sampleCorrectionMax = 0.10
	refreshRate = 10 * time.Millisecond
	cursorHideDelay = 1 * time.Second
	rdftSpeed = 20 * time.Millisecond
	extClockSpeedMin = 0.900
	extClockSpeedMax = 1.010
	extClockSpeedStep = 0.001
	backpressurePollWait = 10 * time.Millisecond
	transientErrWait = 10 * time.Millisecond
)
