// Package audio defines the playback and capture devices used by the voice
// engines, plus the PCM and WAV helpers they share.
//
// A [Player] plays one [Clip] at a time and blocks until it finishes, which
// lets the engines build a strict FIFO speech queue on top of it. A
// [Microphone] records push-to-talk audio between Record and
// [Recording.Stop].
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Capture and playback errors.
var (
	ErrNoDevice      = errors.New("audio: no device")
	ErrDeviceBusy    = errors.New("audio: device busy")
	ErrPermission    = errors.New("audio: permission denied")
	ErrUnsupported   = errors.New("audio: unsupported content type")
	ErrInvalidFormat = errors.New("audio: invalid format")
)

// Format describes interleaved 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is what recognizers expect: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// Clip is an encoded audio payload such as a WAV file returned by a
// synthesizer.
type Clip struct {
	Data        []byte
	ContentType string
}

// Player plays clips on an output device.
type Player interface {
	// Play blocks until clip has been played or ctx is done. Volume is in
	// [0,1]. Cancelling ctx stops playback immediately and returns ctx.Err().
	Play(ctx context.Context, clip Clip, volume float64) error

	// Pause holds the current clip. Play keeps blocking while paused.
	Pause()

	// Resume continues a paused clip.
	Resume()
}

// Microphone opens capture sessions on an input device.
type Microphone interface {
	// Record starts capturing. Only one recording may be open at a time;
	// a second call returns [ErrDeviceBusy].
	Record(ctx context.Context) (Recording, error)
}

// Recording is an open capture session.
type Recording interface {
	// Stop ends capture and returns what was recorded as a WAV clip.
	Stop() (Clip, error)

	// Abort ends capture and discards the audio. It is safe to call after
	// Stop.
	Abort()
}
