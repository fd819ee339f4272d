package avreel

import (
	"time"

	"github.com/erparts/reisen"
)

// streamKind identifies which of the three pipelines a decoded unit or
// frame belongs to.
type streamKind uint8

const (
	streamVideo streamKind = iota
	streamAudio
	streamSubtitle
)

// decodedUnit is the payload carried by a packetQueue entry. Per
// , reisen fuses demux+decode into one call, so what
// calls a "packet" is already a decoded reisen frame by the time it reaches
// the queue; decoder.go still performs every protocol step C4 assigns it
// (PTS stamping, nextPts projection, serial handling, flush/drop) on top of
// this payload.
type decodedUnit interface {
	kind() streamKind
	// release returns any pooled resources. No-op for reisen frames: the
	// library hands back plain Go-GC'd buffers, not refcounted ones.
	release()
}

type videoUnit struct {
	frame *reisen.VideoFrame
}

func (videoUnit) kind() streamKind { return streamVideo }
func (videoUnit) release()         {}

func (v videoUnit) presentationOffset() (time.Duration, error) { return v.frame.PresentationOffset() }
func (v videoUnit) pixels() []byte                              { return v.frame.Data() }

type audioUnit struct {
	frame *reisen.AudioFrame
}

func (audioUnit) kind() streamKind { return streamAudio }
func (audioUnit) release()         {}

func (a audioUnit) presentationOffset() (time.Duration, error) { return a.frame.PresentationOffset() }
func (a audioUnit) samples() []byte                             { return a.frame.Data() }

// mediaSource is the subset of the Media Library this package
// consumes, narrowed to what reisen actually exposes and what the demuxer
// loop needs. Defined as an interface so tests can substitute a fake
// source without linking against libav.
type mediaSource interface {
	VideoStream() (videoStreamSource, bool)
	AudioStream() (audioStreamSource, bool)

	OpenDecode() error
	CloseDecode() error
	Close()

	// readPacket demuxes the next container packet and, per the
	// demux/decode coupling documented in , immediately
	// decodes it through the owning stream, returning the decoded unit
	// ready to be queued. ok is false at end of stream.
	readPacket() (unit decodedUnit, ok bool, err error)
}

type videoStreamSource interface {
	Open() error
	Close() error
	Rewind(time.Duration) error
	Duration() (time.Duration, error)
	FrameRate() (int, int)
	Width() int
	Height() int
	Index() int

	// IsAttachedPicture reports whether this video stream is a single
	// embedded cover-art image (ffmpeg's AV_DISPOSITION_ATTACHED_PIC)
	// rather than a real video track, per §4.6 step 4.
	IsAttachedPicture() bool
	// AttachedPicture returns the stream's one picture packet, valid only
	// when IsAttachedPicture reports true.
	AttachedPicture() (decodedUnit, bool)
}

type audioStreamSource interface {
	Open() error
	Close() error
	Rewind(time.Duration) error
	Duration() (time.Duration, error)
	SampleRate() int
	Channels() int
	Index() int
}

// reisenSource adapts *reisen.Media to mediaSource.
type reisenSource struct {
	media *reisen.Media
	video *reisen.VideoStream
	audio *reisen.AudioStream
}

func openReisenSource(path string) (*reisenSource, error) {
	media, err := reisen.NewMedia(path)
	if err != nil {
		return nil, fatalf("open", err)
	}

	videoStreams := media.VideoStreams()
	audioStreams := media.AudioStreams()
	if len(videoStreams) == 0 && len(audioStreams) == 0 {
		return nil, ErrNoVideo
	}
	src := &reisenSource{media: media}
	if len(videoStreams) > 0 {
		if len(videoStreams) > 1 {
			warnf("source has multiple video streams; defaulting to the first")
		}
		src.video = videoStreams[0]
	}
	if len(audioStreams) > 0 {
		if len(audioStreams) > 1 {
			warnf("source has multiple audio streams; defaulting to the first")
		}
		src.audio = audioStreams[0]
	}
	return src, nil
}

func (s *reisenSource) VideoStream() (videoStreamSource, bool) {
	if s.video == nil {
		return nil, false
	}
	return reisenVideoStream{s.video}, true
}

func (s *reisenSource) AudioStream() (audioStreamSource, bool) {
	if s.audio == nil {
		return nil, false
	}
	return reisenAudioStream{s.audio}, true
}

func (s *reisenSource) OpenDecode() error  { return s.media.OpenDecode() }
func (s *reisenSource) CloseDecode() error { return s.media.CloseDecode() }
func (s *reisenSource) Close()             { s.media.Close() }

func (s *reisenSource) readPacket() (decodedUnit, bool, error) {
	for {
		packet, found, err := s.media.ReadPacket()
		if err != nil {
			return nil, false, err
		}
		if !found {
			if packet != nil {
				panic("broken code: packet not found but non-nil")
			}
			return nil, false, nil
		}

		switch packet.Type() {
		case reisen.StreamVideo:
			if s.video == nil || packet.StreamIndex() != s.video.Index() {
				continue
			}
			frame, gotFrame, err := s.video.ReadVideoFrame()
			if err != nil {
				return nil, false, err
			}
			if !gotFrame || frame == nil {
				continue // frame skip: packet consumed, no output yet
			}
			return videoUnit{frame: frame}, true, nil
		case reisen.StreamAudio:
			if s.audio == nil || packet.StreamIndex() != s.audio.Index() {
				continue
			}
			frame, gotFrame, err := s.audio.ReadAudioFrame()
			if err != nil {
				return nil, false, err
			}
			if !gotFrame || frame == nil {
				continue
			}
			return audioUnit{frame: frame}, true, nil
		default:
			// ignore other packet types (matches controller_yes_audio.go)
		}
	}
}

type reisenVideoStream struct{ s *reisen.VideoStream }

func (v reisenVideoStream) Open() error                     { return v.s.Open() }
func (v reisenVideoStream) Close() error                    { return v.s.Close() }
func (v reisenVideoStream) Rewind(d time.Duration) error    { return v.s.Rewind(d) }
func (v reisenVideoStream) Duration() (time.Duration, error) { return v.s.Duration() }
func (v reisenVideoStream) FrameRate() (int, int)            { return v.s.FrameRate() }
func (v reisenVideoStream) Width() int                       { return v.s.Width() }
func (v reisenVideoStream) Height() int                      { return v.s.Height() }
func (v reisenVideoStream) Index() int                       { return v.s.Index() }

// IsAttachedPicture always reports false: reisen's *reisen.VideoStream
// does not surface ffmpeg's stream disposition bitfield, so there is no
// way to distinguish embedded cover art from a real video track through
// this Media Library binding.
func (v reisenVideoStream) IsAttachedPicture() bool { return false }

func (v reisenVideoStream) AttachedPicture() (decodedUnit, bool) { return nil, false }

type reisenAudioStream struct{ s *reisen.AudioStream }

func (a reisenAudioStream) Open() error                     { return a.s.Open() }
func (a reisenAudioStream) Close() error                    { return a.s.Close() }
func (a reisenAudioStream) Rewind(d time.Duration) error    { return a.s.Rewind(d) }
func (a reisenAudioStream) Duration() (time.Duration, error) { return a.s.Duration() }
func (a reisenAudioStream) SampleRate() int                  { return a.s.SampleRate() }
func (a reisenAudioStream) Channels() int                    { return a.s.Channels() }
func (a reisenAudioStream) Index() int                       { return a.s.Index() }

// GetMediaAudioSampleRate reports the sample rate of the first audio
// stream in path, or ErrNoAudio if the media has none, routed through the
// same adapter seam the rest of the package uses.
func GetMediaAudioSampleRate(path string) (int, error) {
	src, err := openReisenSource(path)
	if err != nil {
		if err == ErrNoVideo {
			// fall through: audio-only probing doesn't require video
			media, mErr := reisen.NewMedia(path)
			if mErr != nil {
				return 0, mErr
			}
			streams := media.AudioStreams()
			if len(streams) == 0 {
				return 0, ErrNoAudio
			}
			return streams[0].SampleRate(), nil
		}
		return 0, err
	}
	audioStream, ok := src.AudioStream()
	if !ok {
		return 0, ErrNoAudio
	}
	return audioStream.(reisenAudioStream).s.SampleRate(), nil
}
