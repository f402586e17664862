// Package analytics tracks voice command quality for one tutoring session.
//
// Events are kept in memory for [Tracker.Stats] and mirrored onto the
// OpenTelemetry command counter so they reach the metrics endpoint.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/observe"
)

// EventType classifies a tracked event.
type EventType string

const (
	EventCommandRecognized EventType = "command_recognized"
	EventCommandFailed     EventType = "command_failed"
	EventMisrecognition    EventType = "misrecognition"
)

// Event is one tracked occurrence.
type Event struct {
	Type      EventType
	Command   string
	Utterance string

	// Confidence is only meaningful when HasConfidence is set.
	Confidence    float64
	HasConfidence bool

	At time.Time
}

// Stats summarises the current session.
type Stats struct {
	TotalCommands      int
	SuccessRate        float64
	MisrecognitionRate float64
	AverageConfidence  float64
	Duration           time.Duration
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMetrics overrides the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// Tracker records events for at most one session at a time. It is safe for
// concurrent use.
type Tracker struct {
	now     func() time.Time
	metrics *observe.Metrics

	mu         sync.Mutex
	active     bool
	userID     string
	subtopicID string
	started    time.Time
	events     []Event
}

// New returns an idle tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// StartSession begins tracking, ending any session already in progress.
func (t *Tracker) StartSession(userID, subtopicID string) {
	t.EndSession()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.userID, t.subtopicID = userID, subtopicID
	t.started = t.now()
	t.events = nil
	t.metrics.ActiveSessions.Add(context.Background(), 1)
}

// EndSession stops tracking and discards the events.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.active = false
	t.events = nil
	t.metrics.ActiveSessions.Add(context.Background(), -1)
}

// CommandRecognized records an utterance that routed to command.
func (t *Tracker) CommandRecognized(ctx context.Context, command, utterance string, confidence float64) {
	t.track(ctx, Event{Type: EventCommandRecognized, Command: command, Utterance: utterance,
		Confidence: confidence, HasConfidence: true})
}

// CommandFailed records an utterance no command matched.
func (t *Tracker) CommandFailed(ctx context.Context, utterance string) {
	t.track(ctx, Event{Type: EventCommandFailed, Utterance: utterance})
}

// Misrecognition records an utterance the recognizer was unsure of.
// A negative confidence means none was reported.
func (t *Tracker) Misrecognition(ctx context.Context, utterance string, confidence float64) {
	t.track(ctx, Event{Type: EventMisrecognition, Utterance: utterance,
		Confidence: confidence, HasConfidence: confidence >= 0})
}

func (t *Tracker) track(ctx context.Context, e Event) {
	var outcome string
	switch e.Type {
	case EventCommandRecognized:
		outcome = "recognized"
	case EventCommandFailed:
		outcome = "failed"
	default:
		outcome = "misrecognition"
	}
	t.metrics.RecordCommand(ctx, outcome, e.Command)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	e.At = t.now()
	t.events = append(t.events, e)
}

// Events returns a copy of the session's events.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Stats summarises the session. ok is false when no session is active.
func (t *Tracker) Stats() (s Stats, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return Stats{}, false
	}
	var recognized, failed, misses, confN int
	var confSum float64
	for _, e := range t.events {
		switch e.Type {
		case EventCommandRecognized:
			recognized++
		case EventCommandFailed:
			failed++
		case EventMisrecognition:
			misses++
		}
		if e.HasConfidence {
			confSum += e.Confidence
			confN++
		}
	}
	s.TotalCommands = recognized + failed
	if s.TotalCommands > 0 {
		s.SuccessRate = float64(recognized) / float64(s.TotalCommands)
		s.MisrecognitionRate = float64(misses) / float64(s.TotalCommands)
	}
	if confN > 0 {
		s.AverageConfidence = confSum / float64(confN)
	}
	s.Duration = t.now().Sub(t.started)
	return s, true
}
