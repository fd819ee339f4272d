package avreel

import (
	"math"
	"testing"
)

func newTestSyncPolicy(mode SyncMode, hasAudio, hasVideo bool) *syncPolicy {
	audioClock := newClock(nil)
	videoClock := newClock(nil)
	extClock := newClock(nil)
	opts := EngineOptions{SyncMode: mode, FrameDrop: true}
	return newSyncPolicy(opts, audioClock, videoClock, extClock, hasAudio, hasVideo)
}

func TestMasterClockPreferenceOrder(t *testing.T) {
	cases := []struct {
		name string
		mode SyncMode
		hasAudio, hasVideo bool
		wantVideoMaster bool
	}{
		{"audio master default", SyncAudioMaster, true, true, false},
		{"audio master falls back to video", SyncAudioMaster, false, true, true},
		{"video master preferred", SyncVideoMaster, true, true, true},
		{"video master falls back to audio", SyncVideoMaster, true, false, false},
		{"external master always external", SyncExternalMaster, true, true, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestSyncPolicy(c.mode, c.hasAudio, c.hasVideo)
			if got := s.isVideoMaster(); got != c.wantVideoMaster {
				t.Fatalf("isVideoMaster = %v, want %v", got, c.wantVideoMaster)
			}
		})
	}
}

// TestComputeTargetDelayBranches is property S1: walk every branch of the
// delay formula with constructed clock readings. Tolerances absorb the
// small amount of real wall-clock drift between the paired clock.set calls
// and the computeTargetDelay call.
func TestComputeTargetDelayBranches(t *testing.T) {
	const eps = 0.02

	// diff >= syncThreshold, lastDuration <= 0.1 -> delay = 2*lastDuration.
	s := newTestSyncPolicy(SyncAudioMaster, true, true)
	s.audioClock.set(10.0, 1)
	s.videoClock.set(10.2, 1)
	got := s.computeTargetDelay(0.05, 10.0)
	if math.Abs(got-0.10) > eps {
		t.Fatalf("diff>=threshold && lastDuration<=0.1: got %v, want ~2*lastDuration=0.10", got)
	}

	// diff >= syncThreshold, lastDuration > 0.1 -> delay = lastDuration + diff.
	s = newTestSyncPolicy(SyncAudioMaster, true, true)
	s.audioClock.set(10.0, 1)
	s.videoClock.set(10.2, 1)
	got = s.computeTargetDelay(0.5, 10.0)
	if math.Abs(got-0.7) > eps {
		t.Fatalf("diff>=threshold && lastDuration>0.1: got %v, want ~lastDuration+diff=0.7", got)
	}

	// diff <= -syncThreshold, lastDuration+diff < 0 -> delay clamped to 0.
	s = newTestSyncPolicy(SyncAudioMaster, true, true)
	s.audioClock.set(10.0, 1)
	s.videoClock.set(9.5, 1)
	got = s.computeTargetDelay(0.2, 10.0)
	if got != 0 {
		t.Fatalf("diff<=-threshold with lastDuration+diff<0: got %v, want 0 (clamped)", got)
	}

	// diff within the sync threshold -> delay unchanged.
	s = newTestSyncPolicy(SyncAudioMaster, true, true)
	s.audioClock.set(10.0, 1)
	s.videoClock.set(10.001, 1)
	got = s.computeTargetDelay(0.033, 10.0)
	if math.Abs(got-0.033) > eps {
		t.Fatalf("diff within sync threshold: got %v, want lastDuration unchanged (0.033)", got)
	}
}

func TestComputeTargetDelayVideoMasterReturnsLastDuration(t *testing.T) {
	s := newTestSyncPolicy(SyncVideoMaster, true, true)
	got := s.computeTargetDelay(0.042, 10.0)
	if got != 0.042 {
		t.Fatalf("video-master delay = %v, want lastDuration unchanged (0.042)", got)
	}
}

// TestSynchronizeAudioStaysWithinBound is property S2: the correction
// synchronizeAudio proposes must stay within ±sampleCorrectionMax of the
// input sample count once the accumulator has enough history to act.
func TestSynchronizeAudioStaysWithinBound(t *testing.T) {
	s := newTestSyncPolicy(SyncVideoMaster, true, true)
	s.videoClock.set(100.0, 1)
	s.audioClock.set(98.0, 1) // 2s behind master, within noSyncThreshold so the accumulator engages

	nbSamples := 1024
	var wanted int
	for i := 0; i < audioDiffAvgNB+5; i++ {
		wanted = s.synchronizeAudio(nbSamples, 44100, 4096, 44100*2*2)
	}

	minAllowed := int(float64(nbSamples) * (1 - sampleCorrectionMax))
	maxAllowed := int(float64(nbSamples) * (1 + sampleCorrectionMax))
	if wanted < minAllowed-1 || wanted > maxAllowed+1 {
		t.Fatalf("synchronizeAudio = %d, want within [%d, %d]", wanted, minAllowed, maxAllowed)
	}
}

func TestSynchronizeAudioNoOpWhenAudioIsMaster(t *testing.T) {
	s := newTestSyncPolicy(SyncAudioMaster, true, true)
	if got := s.synchronizeAudio(512, 44100, 4096, 44100*4.0); got != 512 {
		t.Fatalf("synchronizeAudio with audio as master = %d, want unchanged 512", got)
	}
}

func TestSynchronizeAudioResetsOnLargeDrift(t *testing.T) {
	s := newTestSyncPolicy(SyncVideoMaster, true, true)
	s.videoClock.set(1000.0, 1)
	s.audioClock.set(0.0, 1) // far beyond noSyncThreshold

	if got := s.synchronizeAudio(256, 44100, 4096, 44100*4.0); got != 256 {
		t.Fatalf("synchronizeAudio with out-of-range drift = %d, want unchanged 256", got)
	}
	if s.audioDiffCum != 0 || s.audioDiffCount != 0 {
		t.Fatalf("accumulator should reset on out-of-range drift, got cum=%v count=%v", s.audioDiffCum, s.audioDiffCount)
	}
}

func TestShouldDropLate(t *testing.T) {
	s := newTestSyncPolicy(SyncAudioMaster, true, true)
	s.frameDrop = true

	if s.shouldDropLate(10.0, 9.0, 0.5) != true {
		t.Fatalf("wall far past frameTimer+duration: want drop")
	}
	if got := s.frameDropsLate; got != 1 {
		t.Fatalf("frameDropsLate = %d, want 1", got)
	}

	if s.shouldDropLate(9.2, 9.0, 0.5) != false {
		t.Fatalf("wall within duration of frameTimer: want no drop")
	}
	if got := s.frameDropsLate; got != 1 {
		t.Fatalf("frameDropsLate should not increment on a non-drop: got %d", got)
	}

	s.frameDrop = false
	if s.shouldDropLate(20.0, 0.0, 0.1) != false {
		t.Fatalf("frameDrop disabled: want no drop regardless of lateness")
	}
}

func TestUpdateExtClockSpeedRubberBanding(t *testing.T) {
	s := newTestSyncPolicy(SyncExternalMaster, true, true)
	s.extClock.setSpeed(1.0)

	s.updateExtClockSpeed(1, 1) // both queues starved -> speed should decrease
	if s.extClock.getSpeed() >= 1.0 {
		t.Fatalf("expected speed to drop below 1.0 on starved queues, got %v", s.extClock.getSpeed())
	}

	s.extClock.setSpeed(1.0)
	s.updateExtClockSpeed(20, 20) // both queues well-buffered -> speed should increase
	if s.extClock.getSpeed() <= 1.0 {
		t.Fatalf("expected speed to rise above 1.0 on well-buffered queues, got %v", s.extClock.getSpeed())
	}

	if speed := s.extClock.getSpeed(); speed < extClockSpeedMin || speed > extClockSpeedMax {
		t.Fatalf("speed %v escaped bounds [%v, %v]", speed, extClockSpeedMin, extClockSpeedMax)
	}
}
