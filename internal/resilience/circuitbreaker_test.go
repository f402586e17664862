package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errSynth = errors.New("coqui: synthesis timed out")

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// step is one event in a breaker's life. A step either lets time pass,
// resets the breaker, or runs one synthesis call returning call.
type step struct {
	wait    time.Duration
	reset   bool
	call    error
	wantErr error
	want    State
}

func synth(call error) step {
	return step{call: call, wantErr: call}
}

func (s step) then(want State) step {
	s.want = want
	return s
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	t.Parallel()

	var (
		ok       = synth(nil)
		timeout  = synth(errSynth)
		cancel   = synth(context.Canceled)
		rejected = step{wantErr: ErrCircuitOpen}
		cooldown = step{wait: time.Minute}
	)

	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "timeouts disable the backend",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				rejected.then(StateOpen),
			},
		},
		{
			name: "a good clip clears the failure count",
			steps: []step{
				timeout.then(StateClosed),
				ok.then(StateClosed),
				timeout.then(StateClosed),
			},
		},
		{
			name: "interrupted speech is not a failure",
			steps: []step{
				cancel.then(StateClosed),
				cancel.then(StateClosed),
				cancel.then(StateClosed),
			},
		},
		{
			name: "still disabled before the cooldown ends",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				step{wait: 59 * time.Second}.then(StateOpen),
				rejected.then(StateOpen),
			},
		},
		{
			name: "two good trial calls re-enable the backend",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				cooldown.then(StateHalfOpen),
				ok.then(StateHalfOpen),
				ok.then(StateClosed),
			},
		},
		{
			name: "a failed trial call disables it again",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				cooldown.then(StateHalfOpen),
				timeout.then(StateOpen),
				rejected.then(StateOpen),
			},
		},
		{
			name: "an interrupted trial call gives its slot back",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				cooldown.then(StateHalfOpen),
				cancel.then(StateHalfOpen),
				ok.then(StateHalfOpen),
				ok.then(StateClosed),
			},
		},
		{
			name: "reset re-enables at once",
			steps: []step{
				timeout.then(StateClosed),
				timeout.then(StateOpen),
				step{reset: true}.then(StateClosed),
				ok.then(StateClosed),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name:         "coqui",
				MaxFailures:  2,
				ResetTimeout: time.Minute,
				HalfOpenMax:  2,
				Clock:        clock.Now,
			})
			for i, s := range tt.steps {
				switch {
				case s.wait > 0:
					clock.Advance(s.wait)
				case s.reset:
					cb.Reset()
				default:
					err := cb.Execute(func() error { return s.call })
					if !errors.Is(err, s.wantErr) {
						t.Fatalf("step %d: err = %v, want %v", i, err, s.wantErr)
					}
				}
				if got := cb.State(); got != s.want {
					t.Fatalf("step %d: state = %v, want %v", i, got, s.want)
				}
			}
		})
	}
}

func TestCircuitBreaker_ZeroConfigDefaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "orbit"})
	if cb.maxFailures != DefaultMaxFailures || cb.resetTimeout != DefaultResetTimeout || cb.halfOpenMax != DefaultHalfOpenMax {
		t.Errorf("limits = %d/%v/%d, want package defaults", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	for range DefaultMaxFailures - 1 {
		_ = cb.Execute(func() error { return errSynth })
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed below the default threshold", cb.State())
	}
	_ = cb.Execute(func() error { return errSynth })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open at the default threshold", cb.State())
	}
}

func TestCircuitBreaker_TrialCallsInFlightAreCapped(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "openai",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  1,
		Clock:        clock.Now,
	})
	_ = cb.Execute(func() error { return errSynth })
	clock.Advance(time.Minute)

	// A second sentence arriving mid-trial is turned away.
	var second error
	err := cb.Execute(func() error {
		second = cb.Execute(func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if !errors.Is(second, ErrCircuitOpen) {
		t.Errorf("call during trial = %v, want ErrCircuitOpen", second)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after the trial call passed", cb.State())
	}
}

func TestCircuitBreaker_StateChanges(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	var seen []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "openai",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  1,
		Clock:        clock.Now,
		OnStateChange: func(name string, from, to State) {
			seen = append(seen, name+" "+from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errSynth })
	clock.Advance(time.Minute)
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errSynth })
	cb.Reset()

	want := []string{
		"openai closed->open",
		"openai open->half-open",
		"openai half-open->closed",
		"openai closed->open",
		"openai open->closed",
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(7):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
