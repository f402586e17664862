// Package stt defines the Provider interface for speech recognition.
//
// A provider opens recognition sessions. A session emits final
// [types.Transcript] values on Finals and closes the channel when it ends;
// Err then reports why it ended. Two session styles exist:
//
//   - Streaming sessions listen on their own and emit a result as soon as the
//     learner stops talking. With StreamConfig.Continuous unset they end after
//     the first result.
//   - Push-to-talk sessions capture audio until Stop and then emit at most one
//     result.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// StreamConfig configures one recognition session.
type StreamConfig struct {
	// Language is the BCP-47 tag to recognise, e.g. "en-US".
	Language string

	// Continuous keeps a streaming session open across results. Push-to-talk
	// sessions ignore it.
	Continuous bool
}

// SessionHandle is one open recognition session.
type SessionHandle interface {
	// Finals emits recognised utterances. It is closed when the session ends.
	Finals() <-chan types.Transcript

	// Err reports why the session ended. It returns nil until Finals is
	// closed and for sessions that ended normally.
	Err() error

	// Stop asks the session to finish. Push-to-talk sessions transcribe what
	// was captured; streaming sessions stop listening. Results may still
	// arrive on Finals until it closes. Calling Stop more than once is safe.
	Stop() error

	// Close aborts the session and discards pending audio. Finals is closed
	// and Err reports [ErrAborted] unless the session had already ended.
	// Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any recognition backend.
type Provider interface {
	// StartStream opens a session. Errors wrap the sentinels in this package,
	// notably [ErrNotAllowed], [ErrNoDevice] and [ErrDeviceBusy] for
	// microphone failures.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
