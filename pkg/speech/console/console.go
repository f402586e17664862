// Package console renders speech as text lines on a writer, optionally paced
// at a speaking rate. It is the synthesizer used when the tutor runs in a
// terminal without audio output.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/pkg/speech"
)

var _ speech.Synthesizer = (*Synthesizer)(nil)

// wordsPerSecond at rate 1.0.
const wordsPerSecond = 2.5

// DefaultVoices is the voice list reported when none is configured.
var DefaultVoices = []speech.Voice{
	{Name: "Console Samantha", Language: "en-US", Default: true},
	{Name: "Console Daniel", Language: "en-GB"},
	{Name: "Console Karen", Language: "en-AU"},
}

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithPacing makes Speak wait roughly as long as reading the text aloud
// would take.
func WithPacing(on bool) Option {
	return func(s *Synthesizer) { s.paced = on }
}

// WithVoices replaces [DefaultVoices].
func WithVoices(v []speech.Voice) Option {
	return func(s *Synthesizer) { s.voices = v }
}

// WithPrefix sets the label printed before each line. Defaults to "tutor".
func WithPrefix(p string) Option {
	return func(s *Synthesizer) { s.prefix = p }
}

// Synthesizer writes utterances to w.
type Synthesizer struct {
	w      io.Writer
	paced  bool
	voices []speech.Voice
	prefix string

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

// New returns a synthesizer writing to w.
func New(w io.Writer, opts ...Option) *Synthesizer {
	s := &Synthesizer{w: w, voices: DefaultVoices, prefix: "tutor"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Voices implements speech.Synthesizer.
func (s *Synthesizer) Voices() []speech.Voice { return s.voices }

// Duration estimates how long text takes to say at rate.
func Duration(text string, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	return time.Duration(float64(words) / (wordsPerSecond * rate) * float64(time.Second))
}

// Speak implements speech.Synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) error {
	if err := s.waitResumed(ctx); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "%s: %s\n", s.prefix, u.Text); err != nil {
		return fmt.Errorf("console speech: write: %w", err)
	}
	if !s.paced {
		return nil
	}
	t := time.NewTimer(Duration(u.Text, u.Rate))
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.waitResumed(ctx)
}

func (s *Synthesizer) waitResumed(ctx context.Context) error {
	s.mu.Lock()
	ch := s.resumed
	paused := s.paused
	s.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause implements speech.Synthesizer.
func (s *Synthesizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resumed = make(chan struct{})
	}
}

// Resume implements speech.Synthesizer.
func (s *Synthesizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resumed)
	}
}
