// Package mock provides a test double for speech.Synthesizer.
package mock

import (
	"context"
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/speech"
)

var _ speech.Synthesizer = (*Synthesizer)(nil)

// Synthesizer records utterances. With Hold set, Speak blocks until Finish
// or cancellation; Started (if non-nil) receives each utterance first.
type Synthesizer struct {
	mu sync.Mutex

	VoiceList []speech.Voice

	Hold    bool
	Err     error
	Started chan speech.Utterance

	current chan struct{}

	Spoken      []speech.Utterance
	Cancelled   []speech.Utterance
	PauseCalls  int
	ResumeCalls int
}

// Voices implements speech.Synthesizer.
func (s *Synthesizer) Voices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoiceList
}

// Speak implements speech.Synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) error {
	s.mu.Lock()
	var wait chan struct{}
	if s.Hold {
		wait = make(chan struct{})
		s.current = wait
	}
	started, err := s.Started, s.Err
	s.mu.Unlock()

	if started != nil {
		started <- u
	}
	if err != nil {
		return err
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			s.mu.Lock()
			s.Cancelled = append(s.Cancelled, u)
			if s.current == wait {
				s.current = nil
			}
			s.mu.Unlock()
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.Spoken = append(s.Spoken, u)
	s.mu.Unlock()
	return nil
}

// Finish completes the held utterance and reports whether one was held.
func (s *Synthesizer) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	close(s.current)
	s.current = nil
	return true
}

// Pause implements speech.Synthesizer.
func (s *Synthesizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PauseCalls++
}

// Resume implements speech.Synthesizer.
func (s *Synthesizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResumeCalls++
}

// Texts returns the text of every completed utterance.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	for i, u := range s.Spoken {
		out[i] = u.Text
	}
	return out
}

// Utterances returns a copy of Spoken.
func (s *Synthesizer) Utterances() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Utterance(nil), s.Spoken...)
}
