package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orbitlearn/orbitvoice/internal/observe"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] succeeded.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is shared by every member of a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each member's breaker. Its Name is
	// replaced by the member name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics, e.g. "tts".
	Kind string

	// Metrics, when set, counts calls and failures per member.
	Metrics *observe.Metrics
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// ProviderState is one member's breaker state.
type ProviderState struct {
	Name  string
	State State
}

// FallbackGroup is an ordered list of interchangeable providers. Members
// must all be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member, tried after the ones already present.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Names lists the members in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.members))
	for i, m := range fg.members {
		out[i] = m.name
	}
	return out
}

// States reports every member's breaker state in try order.
func (fg *FallbackGroup[T]) States() []ProviderState {
	out := make([]ProviderState, len(fg.members))
	for i, m := range fg.members {
		out[i] = ProviderState{Name: m.name, State: m.breaker.State()}
	}
	return out
}

// Execute runs fn against each member in turn until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a
// value. Members with an open breaker are skipped. A context.Canceled error
// stops the walk; otherwise the last failure is wrapped in [ErrAllFailed].
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() error {
			var err error
			out, err = fn(m.value)
			return err
		})
		fg.observe(m.name, err)
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, context.Canceled):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping disabled provider", "provider", m.name)
		default:
			slog.Warn("resilience: provider failed, trying next", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) observe(name string, err error) {
	m := fg.cfg.Metrics
	if m == nil || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return
	}
	kind := fg.cfg.Kind
	if kind == "" {
		kind = "provider"
	}
	ctx := context.Background()
	if err != nil {
		m.RecordProviderError(ctx, name, kind)
		m.RecordProviderRequest(ctx, name, kind, "error")
		return
	}
	m.RecordProviderRequest(ctx, name, kind, "ok")
}
