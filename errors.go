package avreel

import (
	"errors"
	"fmt"
)

// A collection of initialization errors defined by this package.
var (
	ErrNoVideo = errors.New("media contains no video stream")
	ErrNoAudio = errors.New("media contains no audio stream")
	ErrNilAudioContext = errors.New("media has audio stream but audio.Context is not initialized")
	ErrBadSampleRate = errors.New("media audio stream and audio context sample rates don't match")
	ErrTooManyChannels = errors.New("media audio streams with more than 2 channels are not supported")

	// ErrAborted is returned by blocking queue operations once the engine
	// (or the queue itself) has been told to shut down. It is never
	// escalated past the loop that observed it.
	ErrAborted = errors.New("avreel: aborted")

	// ErrSeekUnsupported describes a seek on a source that can't be rewound
	// (e.g. a live/stream source). Engine.Seek and Engine.SeekRelative
	// return no error, so nothing in this package returns it.
	ErrSeekUnsupported = errors.New("avreel: seek unsupported on this source")
)

// EngineError wraps a fatal failure from a named pipeline stage. Per
// , fatal errors are the only ones that escalate all the way up
// to the caller of NewEngine; everything else is handled locally.
type EngineError struct {
	Stage string // "open", "open-decode", "open-video-stream", "open-audio-stream", "new-audio-player"
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("avreel: %s: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func fatalf(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Stage: stage, Err: err}
}
