package avreel

import resampler "github.com/tphakala/go-audio-resampler"

// sampleStretcher is the narrow seam the audio callback (presentation.go's
// fillAudioBuf) talks through for the audio-sample-stretch resync branch
// of : converting a PCM buffer at srcRate to dstRate (equal when no
// stretch is requested), with an additional compensation ratio applied on
// top to grow or shrink the output sample count by the delta
// synchronizeAudio computed.
//
// Wrapping go-audio-resampler behind this interface keeps the presenter
// and sync_policy.go ignorant of the resampler's exact constructor/method
// shape.
type sampleStretcher interface {
	// resample converts pcm (interleaved int16 samples) from srcRate to
	// dstRate*compensation, returning the converted buffer.
	resample(pcm []int16, channels, srcRate, dstRate int, compensation float64) []int16
}

type resamplerStretcher struct{}

func newSampleStretcher() sampleStretcher { return resamplerStretcher{} }

func (resamplerStretcher) resample(pcm []int16, channels, srcRate, dstRate int, compensation float64) []int16 {
	if len(pcm) == 0 || srcRate <= 0 {
		return pcm
	}
	effectiveDst := int(float64(dstRate) * compensation)
	if effectiveDst <= 0 {
		effectiveDst = dstRate
	}
	r := resampler.New(channels, srcRate, effectiveDst)
	out, err := r.Process(pcm)
	if err != nil {
		warnf("audio resample failed (src=%d dst=%d comp=%.4f): %v", srcRate, effectiveDst, compensation, err)
		return pcm
	}
	return out
}
