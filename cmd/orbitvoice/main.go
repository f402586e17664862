// Command orbitvoice teaches Orbit lessons by voice from a terminal. It
// speaks lesson content, listens for spoken commands and answers, and keeps
// preferences and progress in the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/accessibility"
	"github.com/orbitlearn/orbitvoice/internal/analytics"
	"github.com/orbitlearn/orbitvoice/internal/backend"
	"github.com/orbitlearn/orbitvoice/internal/command"
	"github.com/orbitlearn/orbitvoice/internal/config"
	"github.com/orbitlearn/orbitvoice/internal/convert"
	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/health"
	"github.com/orbitlearn/orbitvoice/internal/identity"
	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/internal/progress"
	"github.com/orbitlearn/orbitvoice/internal/resilience"
	"github.com/orbitlearn/orbitvoice/internal/transcript/phonetic"
	"github.com/orbitlearn/orbitvoice/internal/tutor"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
	"github.com/orbitlearn/orbitvoice/pkg/audio/speaker"
	speechconsole "github.com/orbitlearn/orbitvoice/pkg/speech/console"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "orbitvoice.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	subtopic := flag.String("subtopic", "", "subtopic to teach (default: the next available lesson)")
	userFlag := flag.String("user", "", "learner id (default: the stored identity, created on first run)")
	fresh := flag.Bool("fresh", false, "ignore saved progress and start lessons from the beginning")
	flag.Parse()

	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orbitvoice: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "orbitvoice", ServiceVersion: version})
	if err != nil {
		slog.Error("orbitvoice: telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("orbitvoice: telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	keys := accessibility.NewDispatcher()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Backend.URL, splitInput(os.Stdin, keys))

	store, releaseStore, err := reg.CreateStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("orbitvoice: opening storage failed", "backend", cfg.Storage.Backend, "err", err)
		return 1
	}
	defer releaseStore()

	client, err := backend.New(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout), backend.WithMetrics(metrics))
	if err != nil {
		slog.Error("orbitvoice: backend client", "err", err)
		return 1
	}

	userID := *userFlag
	if userID == "" {
		u, err := identity.Ensure(ctx, store, client)
		if err != nil {
			slog.Error("orbitvoice: resolving learner identity failed", "err", err)
			return 1
		}
		userID = u.ID
	}

	prefStore := prefs.NewStore(store, prefs.WithUser(userID), prefs.WithDefaults(cfg.Voice.Preferences()))
	initial, err := prefStore.Load(ctx)
	if err != nil {
		slog.Warn("orbitvoice: loading preferences failed, using defaults", "err", err)
	}

	ttsChain, err := buildTTS(reg, cfg.TTS, metrics)
	if err != nil {
		slog.Error("orbitvoice: building tts chain failed", "err", err)
		return 1
	}
	recognizer, err := reg.CreateSTT(cfg.STT)
	if err != nil {
		slog.Warn("orbitvoice: speech recognition unavailable", "stt", cfg.STT.Name, "err", err)
		recognizer = nil
	}

	var player audio.Player
	if cfg.Engine.Mode != engine.ModeNative {
		spk, err := speaker.New()
		if err != nil {
			slog.Warn("orbitvoice: audio output unavailable, falling back to text speech", "err", err)
		} else {
			defer spk.Close()
			player = spk
		}
	}

	listen, err := tutor.ParseListenMode(string(cfg.Engine.Listen))
	if err != nil {
		slog.Error("orbitvoice: engine.listen", "err", err)
		return 1
	}

	relay := &callbackRelay{}
	engCfg := engine.Config{
		Mode:        cfg.Engine.Mode,
		Synthesizer: speechconsole.New(os.Stdout, speechconsole.WithPacing(true)),
		TTS:         ttsChain,
		Player:      player,
		Recognizer:  recognizer,
		Preferences: initial,
	}
	eng, compat, err := engine.New(engCfg,
		engine.WithCallbacks(relay.callbacks()),
		engine.WithContinuous(cfg.Engine.Continuous || listen == tutor.ListenContinuous),
		engine.WithListenTimeout(cfg.Engine.ListenTimeout),
		engine.WithRestartDelay(cfg.Engine.RestartDelay),
		engine.WithAudioCacheSize(cfg.Engine.CacheSize),
		engine.WithPrefetchConcurrency(cfg.Engine.PrefetchConcurrency),
		engine.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("orbitvoice: no usable voice engine", "err", err)
		return 1
	}
	defer eng.Destroy()
	slog.Info("orbitvoice: voice engine ready", "kind", eng.Kind(), "tts", ttsChain.Providers(), "stt", cfg.STT.Name, "user", userID)

	a11y := accessibility.New(prefStore, keys,
		accessibility.WithAnnouncer(eng),
		accessibility.WithPushToTalk(eng),
		accessibility.WithHoldDelay(cfg.Engine.PushToTalkHold),
		accessibility.WithOnToggle(func(on bool) {
			slog.Info("orbitvoice: accessibility mode", "on", on)
		}),
	)
	if err := a11y.Mount(ctx); err != nil {
		slog.Warn("orbitvoice: accessibility shortcuts unavailable", "err", err)
	} else {
		defer a11y.Unmount()
	}

	if cfg.Server.StatusAddr != "" {
		srv := statusServer(cfg.Server.StatusAddr, metrics, userID, store, client, ttsChain)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("orbitvoice: status server", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	current := func() *config.Config { return cfg }
	if watchable {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
			}
			if d.VoiceChanged {
				prefStore.SetDefaults(next.Voice.Preferences())
				if p, err := prefStore.Load(ctx); err == nil {
					eng.UpdatePreferences(fullPatch(p))
				}
			}
		})
		if err != nil {
			slog.Warn("orbitvoice: config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			current = w.Current
		}
	}

	s := &session{
		userID:    userID,
		fresh:     *fresh,
		listen:    listen,
		warning:   compat.SpokenWarning(),
		client:    client,
		eng:       eng,
		relay:     relay,
		progress:  progress.NewStore(store),
		prefs:     prefStore,
		analytics: analytics.New(analytics.WithMetrics(metrics)),
		metrics:   metrics,
		config:    current,
	}
	if err := s.run(ctx, *subtopic); err != nil {
		slog.Error("orbitvoice: session ended with error", "err", err)
		return 1
	}
	slog.Info("orbitvoice: goodbye")
	return 0
}

// loadConfig loads path. A missing file at the default path yields the
// built-in defaults and is not watched.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, false, config.Validate(cfg)
	}
	return nil, false, err
}

func statusServer(addr string, m *observe.Metrics, userID string, store kv.Store, client *backend.Client, chain *resilience.TTSFallback) *http.Server {
	h := health.New(
		health.Checker{Name: "tts", Check: chain.Check},
		health.Checker{Name: "storage", Check: func(ctx context.Context) error { return kv.Ping(ctx, store) }},
		health.Checker{Name: "backend", Check: func(ctx context.Context) error {
			_, err := client.Curriculum(ctx, userID)
			return err
		}},
	)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// fullPatch turns p into a patch that overwrites every voice setting.
func fullPatch(p prefs.Preferences) prefs.Patch {
	return prefs.Patch{
		Rate:        &p.Rate,
		Pitch:       &p.Pitch,
		Volume:      &p.Volume,
		Language:    &p.Language,
		VoiceName:   &p.VoiceName,
		VoiceGender: &p.VoiceGender,
		Verbosity:   &p.Verbosity,
	}
}

func newRouter(c config.CommandsConfig) *command.Router {
	opts := []command.Option{command.WithMaxContainmentWords(c.MaxContainmentWords)}
	if c.Phonetic {
		var popts []phonetic.Option
		if c.PhoneticThreshold > 0 {
			popts = append(popts, phonetic.WithPhoneticThreshold(c.PhoneticThreshold))
		}
		if c.FuzzyThreshold > 0 {
			popts = append(popts, phonetic.WithFuzzyThreshold(c.FuzzyThreshold))
		}
		opts = append(opts, command.WithCorrector(phonetic.New(popts...)))
	}
	return command.NewRouter(opts...)
}

func newConverter(p prefs.Preferences) *convert.Converter {
	return convert.New(p.Verbosity)
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger writes to stderr so spoken text on stdout stays readable.
func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
