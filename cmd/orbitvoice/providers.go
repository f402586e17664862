package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitlearn/orbitvoice/internal/config"
	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/internal/resilience"
	"github.com/orbitlearn/orbitvoice/pkg/audio/capture"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	sttconsole "github.com/orbitlearn/orbitvoice/pkg/provider/stt/console"
	sttorbit "github.com/orbitlearn/orbitvoice/pkg/provider/stt/orbit"
	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
	"github.com/orbitlearn/orbitvoice/pkg/provider/tts/coqui"
	ttsopenai "github.com/orbitlearn/orbitvoice/pkg/provider/tts/openai"
	ttsorbit "github.com/orbitlearn/orbitvoice/pkg/provider/tts/orbit"
)

// registerBuiltinProviders wires the built-in factories into reg. Orbit
// providers without a base_url talk to backendURL; the console recognizer
// reads speech lines from input.
func registerBuiltinProviders(reg *config.Registry, backendURL string, input io.Reader) {
	// TTS

	reg.RegisterTTS("orbit", func(e config.ProviderEntry) (tts.Provider, error) {
		client := observe.HTTPClient(timeoutOr(e.Timeout))
		return ttsorbit.New(orDefault(e.BaseURL, backendURL), ttsorbit.WithHTTPClient(client))
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := e.Option("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if e.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(e.Voice))
		}
		if e.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(e.Timeout))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []ttsopenai.Option{ttsopenai.WithHTTPClient(observe.HTTPClient(timeoutOr(e.Timeout)))}
		if e.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(e.BaseURL))
		}
		if e.Voice != "" {
			opts = append(opts, ttsopenai.WithVoice(e.Voice))
		}
		return ttsopenai.New(e.APIKey, e.Model, opts...)
	})

	// STT

	reg.RegisterSTT("console", func(config.ProviderEntry) (stt.Provider, error) {
		return sttconsole.New(input), nil
	})

	reg.RegisterSTT("orbit", func(e config.ProviderEntry) (stt.Provider, error) {
		var micOpts []capture.Option
		if bin := e.Option("ffmpeg"); bin != "" {
			micOpts = append(micOpts, capture.WithBinary(bin))
		}
		if dev := e.Option("device"); dev != "" {
			micOpts = append(micOpts, capture.WithDevice(e.Option("input_format"), dev))
		}
		client := observe.HTTPClient(timeoutOr(e.Timeout))
		return sttorbit.New(orDefault(e.BaseURL, backendURL), capture.New(micOpts...), sttorbit.WithHTTPClient(client))
	})

	// Storage

	reg.RegisterStorage(config.StorageMemory, func(context.Context, config.StorageConfig) (kv.Store, func(), error) {
		return kv.NewMemoryStore(), nil, nil
	})

	reg.RegisterStorage(config.StorageFile, func(_ context.Context, c config.StorageConfig) (kv.Store, func(), error) {
		return kv.NewFileStore(c.Path), nil, nil
	})

	reg.RegisterStorage(config.StoragePostgres, func(ctx context.Context, c config.StorageConfig) (kv.Store, func(), error) {
		pool, err := pgxpool.New(ctx, c.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: postgres connect: %w", err)
		}
		store := kv.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	})

	reg.RegisterStorage(config.StorageRedis, func(ctx context.Context, c config.StorageConfig) (kv.Store, func(), error) {
		var opts []kv.RedisOption
		if c.KeyPrefix != "" {
			opts = append(opts, kv.WithKeyPrefix(c.KeyPrefix))
		}
		store, err := kv.DialRedis(ctx, c.Addr, c.Password, c.DB, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	})
}

// buildTTS creates the primary synthesizer and its fallbacks behind
// per-provider circuit breakers. Fallbacks that fail to build are skipped.
func buildTTS(reg *config.Registry, cfg config.TTSConfig, m *observe.Metrics) (*resilience.TTSFallback, error) {
	primary, err := reg.CreateTTS(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("tts primary %q: %w", cfg.Primary.Name, err)
	}
	fc := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.MaxFailures,
			ResetTimeout: cfg.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("tts: circuit breaker state change", "provider", name, "from", from, "to", to)
			},
		},
		Kind:    "tts",
		Metrics: m,
	}
	chain := resilience.NewTTSFallback(primary, cfg.Primary.Name, fc)
	for i, e := range cfg.Fallbacks {
		p, err := reg.CreateTTS(e)
		if err != nil {
			slog.Warn("tts: skipping fallback", "index", i, "name", e.Name, "err", err)
			continue
		}
		chain.AddFallback(fallbackName(e, i), p)
	}
	return chain, nil
}

// fallbackName keeps breaker names unique when a provider appears twice.
func fallbackName(e config.ProviderEntry, i int) string {
	if e.BaseURL == "" {
		return fmt.Sprintf("%s#%d", e.Name, i+1)
	}
	if u, err := url.Parse(e.BaseURL); err == nil && u.Host != "" {
		return e.Name + "@" + u.Host
	}
	return fmt.Sprintf("%s#%d", e.Name, i+1)
}

// providerTimeout bounds provider HTTP calls without an explicit timeout.
const providerTimeout = 20 * time.Second

func timeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return providerTimeout
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
