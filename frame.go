package avreel

import "github.com/hajimehoshi/ebiten/v2"

// frameMeta carries the fields every decoded frame has in common,
// regardless of stream kind: presentation timestamp, duration, byte
// position (for seek checkpointing) and the discontinuity serial assigned
// when the packet that produced it was enqueued.
type frameMeta struct {
	pts float64
	duration float64
	position int64
	serial int32
}

// videoFrame is a decoded picture: a reused ebiten.Image written in place
// (no per-frame allocation) plus the metadata lists for video
// frames.
type videoFrame struct {
	frameMeta
	image *ebiten.Image
	width, height int
	sar float64 // sample aspect ratio
}

// Image returns the frame's backing texture, reused across frames and
// overwritten in place on the next decode of the same slot. Callers that
// need to keep a frame's contents must copy it before the next EventStep.
func (f *videoFrame) Image() *ebiten.Image { return f.image }

// audioFrame is a decoded PCM block at the stream's own rate and channel
// count. It is pushed as decoded; the audio callback (fillAudioBuf)
// resamples it to the sink's rate/channels when it consumes the frame.
type audioFrame struct {
	frameMeta
	samples []byte
	sampleRate int
	channels int
	nbSamples int
}

// subtitleRegion is one positioned block of subtitle text.
type subtitleRegion struct {
	Text string
	X, Y int
}

// subtitleFrame is a decoded subtitle cue: a region list plus start/end
// display offsets relative to pts.
type subtitleFrame struct {
	frameMeta
	regions []subtitleRegion
	startDisplayTime float64 // seconds, relative to pts
	endDisplayTime float64
}
