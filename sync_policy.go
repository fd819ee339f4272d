package avreel

import "math"

// audioDiffAvgCoef is exp(log(0.01) / AUDIO_DIFF_AVG_NB), .
var audioDiffAvgCoef = math.Exp(math.Log(0.01) / audioDiffAvgNB)

// syncPolicy implements component C5: master-clock selection, video frame
// scheduling, the audio-sync accumulator, and external-clock rubber-
// banding. It holds the accumulator state that must persist across calls.
type syncPolicy struct {
	mode SyncMode

	audioClock *clock
	videoClock *clock
	extClock   *clock

	hasAudio bool
	hasVideo bool

	// audio accumulator state for synchronizeAudio
	audioDiffCum   float64
	audioDiffCount int

	frameDrop       bool
	frameDropsEarly int
	frameDropsLate  int
}

func newSyncPolicy(opts EngineOptions, audioClock, videoClock, extClock *clock, hasAudio, hasVideo bool) *syncPolicy {
	return &syncPolicy{
		mode:       opts.SyncMode,
		audioClock: audioClock,
		videoClock: videoClock,
		extClock:   extClock,
		hasAudio:   hasAudio,
		hasVideo:   hasVideo,
		frameDrop:  opts.FrameDrop,
	}
}

// masterClock returns the clock the other streams synchronize to, per the
// preference order in : audio unless SyncVideoMaster is
// configured and video is available, falling back through video then the
// external clock as streams become unavailable.
func (s *syncPolicy) masterClock() *clock {
	switch s.mode {
	case SyncVideoMaster:
		if s.hasVideo {
			return s.videoClock
		}
		if s.hasAudio {
			return s.audioClock
		}
		return s.extClock
	case SyncExternalMaster:
		return s.extClock
	default: // SyncAudioMaster
		if s.hasAudio {
			return s.audioClock
		}
		if s.hasVideo {
			return s.videoClock
		}
		return s.extClock
	}
}

func (s *syncPolicy) isVideoMaster() bool { return s.masterClock() == s.videoClock }

// computeTargetDelay implements video frame scheduling
// formula exactly, branch for branch.
func (s *syncPolicy) computeTargetDelay(lastDuration, maxFrameDuration float64) float64 {
	delay := lastDuration
	if !s.isVideoMaster() {
		diff := s.videoClock.now() - s.masterClock().now()
		syncThreshold := clampF(lastDuration, syncThresholdMin, syncThresholdMax)
		if !math.IsNaN(diff) && math.Abs(diff) < maxFrameDuration {
			switch {
			case diff <= -syncThreshold:
				delay = math.Max(0, lastDuration+diff)
			case diff >= syncThreshold && lastDuration > 0.1:
				delay = lastDuration + diff
			case diff >= syncThreshold:
				delay = 2 * lastDuration
			default:
				delay = lastDuration
			}
		}
	}
	return delay
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// synchronizeAudio computes the number of samples the audio decode step
// should target, accumulating a smoothed drift estimate and only
// correcting once it exceeds diffThreshold, .
func (s *syncPolicy) synchronizeAudio(nbSamples int, srcFreq int, hwBufBytes int, bytesPerSec float64) int {
	if s.masterClock() == s.audioClock {
		return nbSamples
	}

	diff := s.audioClock.now() - s.masterClock().now()
	if math.IsNaN(diff) || math.Abs(diff) >= noSyncThreshold {
		s.audioDiffCum = 0
		s.audioDiffCount = 0
		return nbSamples
	}

	s.audioDiffCum = diff + audioDiffAvgCoef*s.audioDiffCum
	s.audioDiffCount++
	if s.audioDiffCount < audioDiffAvgNB {
		return nbSamples
	}

	avgDiff := s.audioDiffCum * (1 - audioDiffAvgCoef)
	diffThreshold := float64(hwBufBytes) / bytesPerSec
	if math.Abs(avgDiff) <= diffThreshold {
		return nbSamples
	}

	wanted := float64(nbSamples) + diff*float64(srcFreq)
	minWanted := float64(nbSamples) * (1 - sampleCorrectionMax)
	maxWanted := float64(nbSamples) * (1 + sampleCorrectionMax)
	wanted = clampF(wanted, minWanted, maxWanted)
	return int(math.Round(wanted))
}

// updateExtClockSpeed implements the external-clock rubber-banding
// policy: called once per refresh when the master is external and the
// source is realtime.
func (s *syncPolicy) updateExtClockSpeed(videoQueueCount, audioQueueCount int) {
	speed := s.extClock.getSpeed()
	switch {
	case videoQueueCount <= 2 || audioQueueCount <= 2:
		speed = math.Max(extClockSpeedMin, speed-extClockSpeedStep)
	case videoQueueCount > 10 && audioQueueCount > 10:
		speed = math.Min(extClockSpeedMax, speed+extClockSpeedStep)
	default:
		// step back toward 1.0 by extClockSpeedStep; the step is fixed,
		// not proportional to the distance from 1.0
		if speed < 1.0 {
			speed = math.Min(1.0, speed+extClockSpeedStep)
		} else if speed > 1.0 {
			speed = math.Max(1.0, speed-extClockSpeedStep)
		}
	}
	if speed != s.extClock.getSpeed() {
		s.extClock.setSpeed(speed)
	}
}

// shouldDropLate reports whether the current video frame should be
// dropped because the wall clock has already overrun its display window,
// per the frame-drop branch of . The original distinguishes a
// tri-state -framedrop/-noframedrop/auto flag (drop unconditionally vs.
// only when video isn't master); EngineOptions.FrameDrop collapses that to
// a single bool, so here frameDrop enabled means "always drop when late"
// regardless of which clock is master.
func (s *syncPolicy) shouldDropLate(wall, frameTimer, currentFrameDuration float64) bool {
	if !s.frameDrop {
		return false
	}
	if wall-frameTimer > currentFrameDuration {
		s.frameDropsLate++
		return true
	}
	return false
}

// shouldDropEarly reports whether a just-decoded video frame should be
// dropped before even reaching the picture queue, per decoder-side
// early-drop branch.
func (s *syncPolicy) shouldDropEarly(dpts float64, frameLastFilterDelay float64, decoderSerial, videoClockSerial int32, morePacketsQueued bool) bool {
	diff := dpts - s.masterClock().now()
	if math.IsNaN(diff) {
		return false
	}
	if math.Abs(diff) < noSyncThreshold &&
		dpts-frameLastFilterDelay < 0 &&
		decoderSerial == videoClockSerial &&
		morePacketsQueued {
		s.frameDropsEarly++
		return true
	}
	return false
}
