// Package speech defines the platform speech synthesizer used by the native
// voice engine: a set of installed voices and a blocking Speak call.
package speech

import "context"

// Voice is an installed synthesis voice.
type Voice struct {
	Name string

	// Language is a BCP-47 tag such as "en-GB".
	Language string

	Default bool
}

// Utterance is one piece of text plus its rendering parameters.
type Utterance struct {
	Text string

	// Rate and Pitch are multipliers in [0.5, 2]; Volume is in [0, 1].
	Rate   float64
	Pitch  float64
	Volume float64

	Language string

	// Voice is nil to let the synthesizer choose.
	Voice *Voice
}

// Synthesizer speaks utterances on the platform voice.
type Synthesizer interface {
	// Voices lists the installed voices. It may be empty.
	Voices() []Voice

	// Speak blocks until u has been spoken or ctx is done, in which case it
	// returns ctx.Err(). Only one utterance plays at a time.
	Speak(ctx context.Context, u Utterance) error

	// Pause holds the current utterance.
	Pause()

	// Resume continues a paused utterance.
	Resume()
}
