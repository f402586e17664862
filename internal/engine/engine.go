// Package engine owns the speaker and the microphone of one voice session.
//
// An [Engine] speaks text through a strict FIFO queue and listens for
// utterances. Two strategies implement it:
//
//   - [Native] speaks with the platform synthesizer and recognises with a
//     streaming recognizer. Non-continuous listening stops after a fixed
//     window; continuous listening restarts itself shortly after each session
//     ends unless the engine is speaking.
//   - [Server] fetches clips from a TTS provider, caches them in an
//     [AudioCache] and plays them on an audio.Player. Listening is
//     push-to-talk, guarded by a desired-state and actual-state pair.
//
// [New] picks a strategy from the collaborators that are available.
//
// Exactly one engine should own the hardware at a time. Destroy releases the
// queue, any open recognition session and every cached clip.
package engine

import (
	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Engine is the voice I/O surface used by the tutor.
//
// Callbacks are invoked from engine goroutines, never while an engine lock is
// held, so they may call back into the engine.
type Engine interface {
	// Speak queues text. With interrupt set, the queue and the current
	// utterance are dropped first. Blank text is ignored.
	Speak(text string, interrupt bool)

	// Stop drops the queue and cuts off the current utterance. It is safe to
	// call when nothing is playing.
	Stop()

	// Pause holds playback; queued utterances wait until Resume.
	Pause()

	// Resume continues paused playback.
	Resume()

	// StartListening opens the microphone. Speech is stopped first.
	StartListening() error

	// StopListening ends the current recognition session. A push-to-talk
	// engine transcribes what was captured.
	StopListening()

	// SetContinuous switches between one-shot and self-restarting
	// recognition. Push-to-talk engines ignore it.
	SetContinuous(on bool)

	// UpdatePreferences merges patch into the active preferences and returns
	// the result. Persisting them is the caller's job.
	UpdatePreferences(patch prefs.Patch) prefs.Preferences

	// Preferences returns the active preferences.
	Preferences() prefs.Preferences

	// Prefetch warms the clip cache for texts that are likely to be spoken
	// next. Engines without a cache ignore it.
	Prefetch(texts []string)

	Speaking() bool
	Listening() bool

	// Kind names the strategy, "native" or "server".
	Kind() string

	// Destroy stops everything and releases resources. Further calls are
	// no-ops.
	Destroy()
}

// Callbacks are the engine lifecycle hooks. Nil hooks are skipped.
type Callbacks struct {
	// OnSpeechStart fires when the queue starts playing after being idle.
	OnSpeechStart func()

	// OnSpeechEnd fires when the queue drains or is stopped.
	OnSpeechEnd func()

	OnRecognitionResult func(t types.Transcript)
	OnListeningChange   func(listening bool)

	// OnError receives failures the learner must know about: microphone
	// permission or hardware problems and synthesis errors. Transient
	// recognition errors are not reported.
	OnError func(err error)
}

func (c Callbacks) speechStart() {
	if c.OnSpeechStart != nil {
		c.OnSpeechStart()
	}
}

func (c Callbacks) speechEnd() {
	if c.OnSpeechEnd != nil {
		c.OnSpeechEnd()
	}
}

func (c Callbacks) result(t types.Transcript) {
	if c.OnRecognitionResult != nil {
		c.OnRecognitionResult(t)
	}
}

func (c Callbacks) listening(on bool) {
	if c.OnListeningChange != nil {
		c.OnListeningChange(on)
	}
}

func (c Callbacks) err(err error) {
	if c.OnError != nil && err != nil {
		c.OnError(err)
	}
}
