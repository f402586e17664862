package stt

import (
	"errors"

	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

// Recognition errors.
var (
	ErrNoSpeech            = errors.New("stt: no speech detected")
	ErrAborted             = errors.New("stt: aborted")
	ErrNetwork             = errors.New("stt: network error")
	ErrTranscriptionFailed = errors.New("stt: transcription failed")
	ErrNotAllowed          = errors.New("stt: microphone access denied")
	ErrNoDevice            = errors.New("stt: no microphone found")
	ErrDeviceBusy          = errors.New("stt: microphone in use")
	ErrUnsupported         = errors.New("stt: recognition not supported")
)

// IsTransient reports whether err is a recognition hiccup the engines ignore:
// no speech, an aborted session, a network blip or a failed transcription.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoSpeech) ||
		errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTranscriptionFailed)
}

// IsFatal reports whether err needs user action before recognition can work
// again: the microphone is denied, missing or held by another program.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotAllowed) ||
		errors.Is(err, ErrNoDevice) ||
		errors.Is(err, ErrDeviceBusy) ||
		errors.Is(err, ErrUnsupported)
}

// FromAudio maps a capture error onto the recognition sentinels. Errors
// that are not device failures are returned unchanged.
func FromAudio(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, audio.ErrPermission):
		return errors.Join(ErrNotAllowed, err)
	case errors.Is(err, audio.ErrNoDevice):
		return errors.Join(ErrNoDevice, err)
	case errors.Is(err, audio.ErrDeviceBusy):
		return errors.Join(ErrDeviceBusy, err)
	}
	return err
}

// Message is the text spoken to the learner for a fatal error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return "Microphone access was denied. Please allow microphone access to use voice commands."
	case errors.Is(err, ErrNoDevice):
		return "No microphone was found. Please connect a microphone to use voice commands."
	case errors.Is(err, ErrDeviceBusy):
		return "The microphone is in use by another application."
	case errors.Is(err, ErrUnsupported):
		return "Voice commands not supported. Use Chrome or Edge."
	}
	return "Something went wrong with voice recognition."
}
