package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":     {"orbit", "coqui", "openai"},
	"stt":     {"console", "orbit"},
	"storage": {string(StorageMemory), string(StorageFile), string(StoragePostgres), string(StorageRedis)},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultBackendURL          = "http://localhost:8000"
	DefaultBackendTimeout      = 30 * time.Second
	DefaultCacheSize           = 100
	DefaultListenTimeout       = 5 * time.Second
	DefaultRestartDelay        = 100 * time.Millisecond
	DefaultPrefetchConcurrency = 3
	DefaultPushToTalkHold      = 300 * time.Millisecond
	DefaultMaxFailures         = 3
	DefaultResetTimeout        = 30 * time.Second
	DefaultStoragePath         = "orbitvoice-state.json"
	DefaultContainmentWords    = 6
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogText
	}

	if cfg.Backend.URL == "" {
		cfg.Backend.URL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}

	e := &cfg.Engine
	if e.Mode == "" {
		e.Mode = engine.ModeAuto
	}
	if e.Listen == "" {
		e.Listen = ListenAuto
	}
	if e.CacheSize == 0 {
		e.CacheSize = DefaultCacheSize
	}
	if e.ListenTimeout == 0 {
		e.ListenTimeout = DefaultListenTimeout
	}
	if e.RestartDelay == 0 {
		e.RestartDelay = DefaultRestartDelay
	}
	if e.PrefetchConcurrency == 0 {
		e.PrefetchConcurrency = DefaultPrefetchConcurrency
	}
	if e.PushToTalkHold == 0 {
		e.PushToTalkHold = DefaultPushToTalkHold
	}

	if cfg.TTS.Primary.Name == "" {
		cfg.TTS.Primary.Name = "orbit"
	}
	if cfg.TTS.MaxFailures == 0 {
		cfg.TTS.MaxFailures = DefaultMaxFailures
	}
	if cfg.TTS.ResetTimeout == 0 {
		cfg.TTS.ResetTimeout = DefaultResetTimeout
	}
	if cfg.STT.Name == "" {
		cfg.STT.Name = "console"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Backend == StorageFile && cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}

	if cfg.Commands.MaxContainmentWords == 0 {
		cfg.Commands.MaxContainmentWords = DefaultContainmentWords
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	if cfg.Backend.URL != "" {
		if u, err := url.Parse(cfg.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.url %q must be an absolute http(s) URL", cfg.Backend.URL))
		}
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must not be negative", cfg.Backend.Timeout))
	}

	e := cfg.Engine
	switch e.Mode {
	case "", engine.ModeAuto, engine.ModeNative, engine.ModeServer:
	default:
		errs = append(errs, fmt.Errorf("engine.mode %q is invalid; valid values: auto, native, server", e.Mode))
	}
	if e.Listen != "" && !e.Listen.IsValid() {
		errs = append(errs, fmt.Errorf("engine.listen %q is invalid; valid values: manual, continuous, auto", e.Listen))
	}
	if e.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("engine.cache_size %d must not be negative", e.CacheSize))
	}
	if e.PrefetchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("engine.prefetch_concurrency %d must not be negative", e.PrefetchConcurrency))
	}
	if e.Mode == engine.ModeNative && e.Listen == ListenAuto && e.Continuous {
		slog.Warn("engine.listen auto has no effect while engine.continuous is on")
	}

	validateProviderName("tts", cfg.TTS.Primary.Name)
	for i, fb := range cfg.TTS.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("tts.fallbacks[%d].name is required", i))
			continue
		}
		if fb.Name == cfg.TTS.Primary.Name && fb.BaseURL == cfg.TTS.Primary.BaseURL {
			slog.Warn("tts fallback duplicates the primary provider", "index", i, "name", fb.Name)
		}
		validateProviderName("tts", fb.Name)
	}
	for _, p := range append([]ProviderEntry{cfg.TTS.Primary}, cfg.TTS.Fallbacks...) {
		if p.Name == "openai" && p.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			errs = append(errs, errors.New("tts: openai requires api_key or OPENAI_API_KEY"))
		}
		if p.Name == "coqui" && p.BaseURL == "" {
			errs = append(errs, errors.New("tts: coqui requires base_url"))
		}
	}
	validateProviderName("stt", cfg.STT.Name)

	st := cfg.Storage
	validateProviderName("storage", string(st.Backend))
	switch st.Backend {
	case StorageFile:
		if st.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the file backend"))
		}
	case StoragePostgres:
		if st.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
		}
	case StorageRedis:
		if st.Addr == "" {
			errs = append(errs, errors.New("storage.addr is required for the redis backend"))
		}
	}

	v := cfg.Voice
	if v.Rate != 0 && (v.Rate < prefs.MinRate || v.Rate > prefs.MaxRate) {
		errs = append(errs, fmt.Errorf("voice.rate %.2f is out of range [%.1f, %.1f]", v.Rate, prefs.MinRate, prefs.MaxRate))
	}
	if v.Pitch != 0 && (v.Pitch < prefs.MinPitch || v.Pitch > prefs.MaxPitch) {
		errs = append(errs, fmt.Errorf("voice.pitch %.2f is out of range [%.1f, %.1f]", v.Pitch, prefs.MinPitch, prefs.MaxPitch))
	}
	if v.Volume < prefs.MinVolume || v.Volume > prefs.MaxVolume {
		errs = append(errs, fmt.Errorf("voice.volume %.2f is out of range [%.1f, %.1f]", v.Volume, prefs.MinVolume, prefs.MaxVolume))
	}
	if v.Gender != "" && !v.Gender.IsValid() {
		errs = append(errs, fmt.Errorf("voice.gender %q is invalid; valid values: male, female, neutral", v.Gender))
	}
	if v.Verbosity != "" && !v.Verbosity.IsValid() {
		errs = append(errs, fmt.Errorf("voice.verbosity %q is invalid; valid values: short, normal, detailed", v.Verbosity))
	}

	c := cfg.Commands
	if c.PhoneticThreshold < 0 || c.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("commands.phonetic_threshold %.2f is out of range [0, 1]", c.PhoneticThreshold))
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("commands.fuzzy_threshold %.2f is out of range [0, 1]", c.FuzzyThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
