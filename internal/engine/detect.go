package engine

import (
	"errors"
	"fmt"

	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
	"github.com/orbitlearn/orbitvoice/pkg/speech"
)

// Mode selects the engine strategy.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeNative Mode = "native"
	ModeServer Mode = "server"
)

// ErrNoSpeechOutput is returned by [New] when no strategy can speak.
var ErrNoSpeechOutput = errors.New("engine: no speech output available")

// Compatibility reports what the environment can do and what the learner
// should be told about it.
type Compatibility struct {
	// TTSSupported is true when either the platform synthesizer or a TTS
	// provider with a player is available.
	TTSSupported bool

	// STTSupported is true when a recognizer is available.
	STTSupported bool

	// ServerTTS is true when clips can be fetched and played.
	ServerTTS bool
}

// FullySupported reports whether both speech directions work.
func (c Compatibility) FullySupported() bool { return c.TTSSupported && c.STTSupported }

// Warning is the on-screen message for a partially supported environment,
// or "" when everything works.
func (c Compatibility) Warning() string {
	switch {
	case !c.TTSSupported && !c.STTSupported:
		return "Voice learning is not supported in this browser. Please use Chrome or Edge for the best experience."
	case c.TTSSupported && !c.STTSupported:
		return "Voice learning works best in Chrome or Edge. Voice commands may not work fully in this browser. " +
			"Speech output will work, but you may need to use keyboard or mouse for some actions."
	case !c.TTSSupported && c.STTSupported:
		return "Speech output is not supported in this browser. Please use Chrome or Edge for the full voice learning experience."
	}
	return ""
}

// SpokenWarning is the warning read aloud when voice mode starts, or "".
func (c Compatibility) SpokenWarning() string {
	switch {
	case c.FullySupported():
		return ""
	case !c.TTSSupported:
		return "Voice learning is not supported in this browser. Please switch to Chrome or Edge."
	default:
		return "Voice learning works best in Chrome or Edge. Voice commands may not work fully in this browser. " +
			"Say continue to proceed, or say cancel to exit voice mode."
	}
}

// Config lists the collaborators an engine may be built from. Any of them
// may be nil.
type Config struct {
	Mode Mode

	Synthesizer speech.Synthesizer
	TTS         tts.Provider
	Player      audio.Player
	Recognizer  stt.Provider

	Preferences prefs.Preferences
}

// Detect reports the capabilities present in cfg.
func Detect(cfg Config) Compatibility {
	server := cfg.TTS != nil && cfg.Player != nil
	return Compatibility{
		TTSSupported: server || cfg.Synthesizer != nil,
		STTSupported: cfg.Recognizer != nil,
		ServerTTS:    server,
	}
}

// New builds the engine for cfg.Mode. In auto mode the server strategy wins
// when clips can be fetched and played, otherwise the platform synthesizer
// is used.
func New(cfg Config, opts ...Option) (Engine, Compatibility, error) {
	c := Detect(cfg)
	mode := cfg.Mode
	if mode == "" || mode == ModeAuto {
		switch {
		case c.ServerTTS:
			mode = ModeServer
		case cfg.Synthesizer != nil:
			mode = ModeNative
		default:
			return nil, c, ErrNoSpeechOutput
		}
	}
	switch mode {
	case ModeServer:
		if !c.ServerTTS {
			return nil, c, fmt.Errorf("engine: server mode needs a TTS provider and a player: %w", ErrNoSpeechOutput)
		}
		return NewServer(cfg.TTS, cfg.Player, cfg.Recognizer, cfg.Preferences, opts...), c, nil
	case ModeNative:
		if cfg.Synthesizer == nil {
			return nil, c, fmt.Errorf("engine: native mode needs a synthesizer: %w", ErrNoSpeechOutput)
		}
		return NewNative(cfg.Synthesizer, cfg.Recognizer, cfg.Preferences, opts...), c, nil
	}
	return nil, c, fmt.Errorf("engine: unknown mode %q", mode)
}
