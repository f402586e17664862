// Package tts defines the Provider interface for server-side speech synthesis.
//
// A provider turns one utterance into a complete encoded audio clip (WAV or
// MP3) in a single request. Clips are cached and played by the server voice
// engine, so providers never stream.
//
// Implementations must be safe for concurrent use; the engine prefetches
// several utterances in parallel.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a backend answers successfully but the
// payload is no larger than [MinAudioBytes].
var ErrEmptyAudio = errors.New("tts: empty audio")

// MinAudioBytes is the size at or below which a payload is treated as empty.
const MinAudioBytes = 100

// Request describes one utterance to synthesise.
type Request struct {
	// Text is the utterance. Providers may reject an empty string.
	Text string

	// Rate is the speaking-rate multiplier in [0.5, 2.0]. 1.0 is normal speed.
	Rate float64

	// Pitch is the pitch multiplier in [0.5, 2.0]. Backends without pitch
	// control ignore it.
	Pitch float64

	// Voice is a provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string

	// Language is a BCP-47 tag such as "en-US".
	Language string
}

// Audio is an encoded clip returned by a provider.
type Audio struct {
	Data []byte

	// ContentType is the MIME type reported by the backend, e.g. "audio/wav".
	ContentType string
}

// Provider is the abstraction over any synthesis backend.
type Provider interface {
	// Synthesize renders req into a playable clip. It returns an error
	// wrapping [ErrEmptyAudio] when the backend answers with no
	// more than [MinAudioBytes] bytes.
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// CheckAudio validates a backend payload against [MinAudioBytes].
func CheckAudio(data []byte, contentType string) (*Audio, error) {
	if len(data) <= MinAudioBytes {
		return nil, ErrEmptyAudio
	}
	return &Audio{Data: data, ContentType: contentType}, nil
}
