// Package resilience keeps speech synthesis available when a backend fails.
//
// Each synthesis backend sits behind a [CircuitBreaker]. A [FallbackGroup]
// tries its members in registration order and skips those whose breaker is
// open; [TTSFallback] is the tts.Provider built on top of it, letting the
// server voice engine fall back from the Orbit backend to Coqui or OpenAI.
// A cancelled context means the utterance was interrupted and never counts
// against a backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the mode a [CircuitBreaker] is in.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a few probe calls through to test the backend.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// package defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// It also caps the probes in flight.
	HalfOpenMax int

	// OnStateChange runs with the breaker lock held and must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// CircuitBreaker guards one backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int // admitted in half-open
	passed   int // succeeded in half-open
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          cfg.Clock,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = DefaultMaxFailures
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = DefaultResetTimeout
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = DefaultHalfOpenMax
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute calls fn unless the breaker rejects it with [ErrCircuitOpen].
// An error matching context.Canceled is returned as is and not recorded.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.probes, cb.passed = 0, 0
		cb.setState(StateHalfOpen)
		slog.Info("resilience: probing backend", "name", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		if probe {
			cb.probes--
		}
	case err != nil:
		cb.trip(probe)
	case probe:
		cb.passed++
		if cb.passed >= cb.halfOpenMax {
			cb.failures = 0
			cb.setState(StateClosed)
			slog.Info("resilience: backend recovered", "name", cb.name)
		}
	default:
		cb.failures = 0
	}
}

// trip counts a failure. Any failed probe reopens at once.
func (cb *CircuitBreaker) trip(probe bool) {
	cb.failures++
	if !probe && cb.failures < cb.maxFailures {
		return
	}
	if cb.state == StateHalfOpen && !probe {
		// A call admitted while closed finished after the breaker moved on.
		return
	}
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
	slog.Warn("resilience: backend disabled", "name", cb.name, "failures", cb.failures, "retry_in", cb.resetTimeout)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.probes, cb.passed = 0, 0, 0
	cb.setState(StateClosed)
	slog.Info("resilience: breaker reset", "name", cb.name)
}
