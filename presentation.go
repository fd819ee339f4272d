package avreel

import (
	"io"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// presenter implements component C7: the refresh loop that decides when
// the next picture is due, and the audio callback that decides how many
// bytes to emit. One presenter is owned by each Engine.
type presenter struct {
	pictureQ  *frameQueue[videoFrame]
	subtitleQ *frameQueue[subtitleFrame]
	sync      *syncPolicy
	opts      EngineOptions

	frameTimer   float64
	forceRefresh bool
	stepPending  bool

	maxFrameDuration float64

	// audio-visualization state (ShowMode != ShowModeVideo), §4.7/§4.8.
	showModeMu  sync.Mutex
	showMode    ShowMode
	lastVisTime float64
	visWave     []float32
	visSpectrum []float64

	// audio callback state
	audioMu       sync.Mutex
	sampleQ       *frameQueue[audioFrame]
	stretcher     sampleStretcher
	targetRate    int
	targetChans   int
	hwBufBytes    int
	audioBuf      []byte
	audioBufIndex int
	volume        float64
	muted         bool
	audioClockSet bool
}

func newPresenter(pictureQ *frameQueue[videoFrame], sampleQ *frameQueue[audioFrame], subtitleQ *frameQueue[subtitleFrame], sync *syncPolicy, opts EngineOptions, targetRate, targetChans, hwBufBytes int, showMode ShowMode) *presenter {
	return &presenter{
		pictureQ:         pictureQ,
		subtitleQ:        subtitleQ,
		sampleQ:          sampleQ,
		sync:             sync,
		opts:             opts,
		maxFrameDuration: 10.0,
		stretcher:        newSampleStretcher(),
		targetRate:       targetRate,
		targetChans:      targetChans,
		hwBufBytes:       hwBufBytes,
		volume:           opts.Volume,
		muted:            opts.Muted,
		showMode:         showMode,
	}
}

// setShowMode changes the presentation stage's display mode, per
// Engine.SetShowMode (spec.md §4.8).
func (p *presenter) setShowMode(m ShowMode) {
	p.showModeMu.Lock()
	p.showMode = m
	p.showModeMu.Unlock()
}

func (p *presenter) getShowMode() ShowMode {
	p.showModeMu.Lock()
	defer p.showModeMu.Unlock()
	return p.showMode
}

// waveform returns the most recently computed PCM waveform samples for
// ShowModeWaves, or nil if none has been computed yet.
func (p *presenter) waveform() []float32 {
	p.showModeMu.Lock()
	defer p.showModeMu.Unlock()
	return p.visWave
}

// spectrum returns the most recently computed magnitude spectrum for
// ShowModeRDFT, or nil if none has been computed yet.
func (p *presenter) spectrum() []float64 {
	p.showModeMu.Lock()
	defer p.showModeMu.Unlock()
	return p.visSpectrum
}

func (p *presenter) requestStep() { p.stepPending = true }

// CurrentPicture is a non-blocking observer for the host's Draw callback.
func (p *presenter) CurrentPicture() (*videoFrame, bool) {
	slot, ok := p.pictureQ.peekLast()
	if !ok {
		return nil, false
	}
	return &slot.value, true
}

// refresh implements the video half of : decide whether the current
// picture is due, advance the queue if so, and report how long the caller
// should sleep before calling refresh again.
func (p *presenter) refresh(paused bool) (sleepFor time.Duration) {
	sleepFor = refreshRate

	if p.opts.IsRealtime && p.sync.masterClock() == p.sync.extClock {
		videoCount, audioCount := 0, 0
		if p.pictureQ != nil && p.pictureQ.pq != nil {
			videoCount, _, _, _ = p.pictureQ.pq.counters()
		}
		if p.sampleQ != nil && p.sampleQ.pq != nil {
			audioCount, _, _, _ = p.sampleQ.pq.counters()
		}
		p.sync.updateExtClockSpeed(videoCount, audioCount)
	}

	if showMode := p.getShowMode(); showMode != ShowModeVideo && showMode != ShowModeNone && p.sampleQ != nil {
		wall := wallClock()
		if wall-p.lastVisTime >= rdftSpeed.Seconds() {
			p.lastVisTime = wall
			p.visualize(showMode)
		}
	}

	if p.pictureQ == nil {
		return sleepFor
	}

	for {
		cur, ok := p.pictureQ.peek()
		if !ok {
			break
		}

		last, hasLast := p.pictureQ.peekLast()
		wall := wallClock()

		if hasLast && last.meta.serial != cur.meta.serial {
			p.frameTimer = wall
		}

		if paused && !p.stepPending {
			break
		}

		lastDuration := p.vpDuration(last, hasLast, cur)
		delay := p.sync.computeTargetDelay(lastDuration, p.maxFrameDuration)

		if wall < p.frameTimer+delay {
			remaining := time.Duration((p.frameTimer + delay - wall) * float64(time.Second))
			if remaining < sleepFor {
				sleepFor = remaining
			}
			break
		}

		p.frameTimer += delay
		if delay > 0 && wall-p.frameTimer > frameDupThreshold {
			p.frameTimer = wall
		}

		p.sync.videoClock.set(cur.meta.pts, cur.meta.serial)
		p.sync.extClock.syncTo(p.sync.videoClock)

		if next, ok := p.pictureQ.peekNext(); ok && p.pictureQ.remaining() > 1 {
			nextDuration := p.vpDuration(cur, true, next)
			if p.sync.shouldDropLate(wall, p.frameTimer, nextDuration) {
				p.pictureQ.next()
				continue
			}
		}

		p.advanceSubtitles(cur.meta.pts)
		p.pictureQ.next()
		p.forceRefresh = true

		if p.stepPending {
			p.stepPending = false
			return 0 // the one stepped frame has been presented
		}
		break
	}

	return sleepFor
}

// vpDuration computes the display duration for the current frame, given
// the previously shown one, per .
func (p *presenter) vpDuration(last *frameSlot[videoFrame], hasLast bool, cur *frameSlot[videoFrame]) float64 {
	if hasLast && last.meta.serial == cur.meta.serial {
		d := cur.meta.pts - last.meta.pts
		if d > 0 && d <= p.maxFrameDuration {
			return d
		}
	}
	return cur.meta.duration
}

// visualize implements the audio-visualization refresh branch (spec.md
// §4.7): it samples the audio frame at the head of the sample queue (the
// next one the audio callback will play) and recomputes
// either the waveform or the magnitude spectrum, depending on showMode.
func (p *presenter) visualize(showMode ShowMode) {
	slot, ok := p.sampleQ.peekLast()
	if !ok {
		return
	}

	mono := monoMix(bytesToInt16(slot.value.samples), slot.value.channels)
	if len(mono) == 0 {
		return
	}

	switch showMode {
	case ShowModeWaves:
		wave := make([]float32, len(mono))
		for i, v := range mono {
			wave[i] = float32(v)
		}
		p.showModeMu.Lock()
		p.visWave = wave
		p.showModeMu.Unlock()

	case ShowModeRDFT:
		coeffs := fft.FFTReal(mono)
		magnitudes := make([]float64, len(coeffs))
		for i, c := range coeffs {
			magnitudes[i] = cmplx.Abs(c)
		}
		p.showModeMu.Lock()
		p.visSpectrum = magnitudes
		p.showModeMu.Unlock()
	}
}

// monoMix downmixes interleaved PCM to a single channel of normalized
// [-1, 1] samples, the input fft.FFTReal is given.
func monoMix(pcm []int16, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(pcm))
		for i, v := range pcm {
			out[i] = float64(v) / 32768.0
		}
		return out
	}

	frames := len(pcm) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(pcm[i*channels+c])
		}
		out[i] = float64(sum) / float64(channels) / 32768.0
	}
	return out
}

// advanceSubtitles drops subtitle frames whose display window has already
// elapsed relative to the video clock, per .
func (p *presenter) advanceSubtitles(videoPts float64) {
	if p.subtitleQ == nil {
		return
	}
	for {
		slot, ok := p.subtitleQ.peek()
		if !ok {
			return
		}
		endAt := slot.meta.pts + slot.value.endDisplayTime
		if videoPts < endAt {
			return
		}
		p.subtitleQ.next()
	}
}

// --- audio callback (the other half of ) ---

const minAudioBufferBytes = 4096

// Read implements the audio sink's pull-model callback: the host's
// io.Reader-shaped audio player asks for len(buffer) bytes and this call
// must fill them synchronously, including the multiple-of-4 guard ebiten's
// stereo 16-bit PCM stream requires.
func (p *presenter) Read(buffer []byte) (int, error) {
	if len(buffer)&0b11 != 0 {
		buffer = buffer[:len(buffer)&^0b11]
	}

	p.audioMu.Lock()
	defer p.audioMu.Unlock()

	written := 0
	for written < len(buffer) {
		if p.audioBufIndex >= len(p.audioBuf) {
			if !p.fillAudioBuf() {
				// nothing decodable right now: emit silence rather than
				// block the audio device.
				n := copy(buffer[written:], make([]byte, minAudioBufferBytes))
				written += n
				break
			}
		}
		n := copy(buffer[written:], p.audioBuf[p.audioBufIndex:])
		p.mixVolume(buffer[written : written+n])
		p.audioBufIndex += n
		written += n
	}

	writeBufSize := len(p.audioBuf) - p.audioBufIndex
	if p.audioClockSet {
		bytesPerSec := float64(p.targetRate * p.targetChans * 2)
		if bytesPerSec > 0 {
			adj := float64(2*p.hwBufBytes+writeBufSize) / bytesPerSec
			p.sync.audioClock.set(p.sync.audioClock.now()-adj, p.sync.audioClock.currentSerial())
			p.sync.extClock.syncTo(p.sync.audioClock)
		}
	}
	return written, nil
}

func (p *presenter) mixVolume(buf []byte) {
	if p.muted {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	if p.volume >= 0.999 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(buf[i]) | int16(buf[i+1])<<8
		scaled := int16(float64(sample) * p.volume)
		buf[i] = byte(scaled)
		buf[i+1] = byte(scaled >> 8)
	}
}

// fillAudioBuf implements audioDecodeFrame from : pull one readable
// sample frame, stretch it per the sync policy, and stage it as the
// callback's current buffer. Returns false if no frame is available.
func (p *presenter) fillAudioBuf() bool {
	slot, ok := p.sampleQ.peek()
	if !ok {
		return false
	}

	nbSamples := slot.value.nbSamples
	wanted := p.sync.synchronizeAudio(nbSamples, slot.value.sampleRate, p.hwBufBytes, float64(slot.value.sampleRate*slot.value.channels*2))

	pcm := bytesToInt16(slot.value.samples)
	compensation := 1.0
	if nbSamples > 0 {
		compensation = float64(wanted) / float64(nbSamples)
	}

	var out []int16
	if wanted != nbSamples || slot.value.sampleRate != p.targetRate || slot.value.channels != p.targetChans {
		out = p.stretcher.resample(pcm, slot.value.channels, slot.value.sampleRate, p.targetRate, compensation)
	} else {
		out = pcm
	}

	p.audioBuf = int16ToBytes(out)
	p.audioBufIndex = 0

	if !math.IsNaN(slot.meta.pts) {
		p.sync.audioClock.set(slot.meta.pts+slot.meta.duration, slot.meta.serial)
		p.audioClockSet = true
	}

	p.sampleQ.next()
	return true
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

var _ io.Reader = (*presenter)(nil)
