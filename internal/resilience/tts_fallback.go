package resilience

import (
	"context"
	"fmt"

	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over across synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend. An empty cfg.Kind defaults to "tts".
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after the existing ones.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Providers returns the backend names in failover order.
func (f *TTSFallback) Providers() []string {
	return f.group.Names()
}

// Check reports an error when every backend is disabled. It suits a
// readiness probe.
func (f *TTSFallback) Check(context.Context) error {
	states := f.group.States()
	for _, s := range states {
		if s.State != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("resilience: all %d tts backends disabled", len(states))
}

// Synthesize returns the clip from the first backend that succeeds.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Audio, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.Synthesize(ctx, req)
	})
}
