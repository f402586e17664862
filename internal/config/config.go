// Package config provides the configuration schema, loader, and provider
// registry for orbitvoice.
package config

import (
	"time"

	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool { return f == LogText || f == LogJSON }

// ListenMode decides who opens the microphone during a lesson.
type ListenMode string

const (
	ListenManual     ListenMode = "manual"
	ListenContinuous ListenMode = "continuous"
	ListenAuto       ListenMode = "auto"
)

// IsValid reports whether m is a recognised listen mode.
func (m ListenMode) IsValid() bool {
	return m == ListenManual || m == ListenContinuous || m == ListenAuto
}

// StorageBackend names a [Registry] storage factory.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StoragePostgres StorageBackend = "postgres"
	StorageRedis    StorageBackend = "redis"
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Engine   EngineConfig   `yaml:"engine"`
	TTS      TTSConfig      `yaml:"tts"`
	STT      ProviderEntry  `yaml:"stt"`
	Storage  StorageConfig  `yaml:"storage"`
	Voice    VoiceConfig    `yaml:"voice"`
	Commands CommandsConfig `yaml:"commands"`
}

// ServerConfig holds logging and status server settings.
type ServerConfig struct {
	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// StatusAddr serves /healthz, /readyz and /metrics. Empty disables the
	// status server.
	StatusAddr string `yaml:"status_addr"`
}

// BackendConfig points at the Orbit learning API.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the voice engine.
type EngineConfig struct {
	Mode   engine.Mode `yaml:"mode"`
	Listen ListenMode  `yaml:"listen"`

	// Continuous keeps native recognition running between utterances.
	Continuous bool `yaml:"continuous"`

	CacheSize           int           `yaml:"cache_size"`
	ListenTimeout       time.Duration `yaml:"listen_timeout"`
	RestartDelay        time.Duration `yaml:"restart_delay"`
	PrefetchConcurrency int           `yaml:"prefetch_concurrency"`

	// PushToTalkHold is how long Ctrl must be held before the microphone
	// opens.
	PushToTalkHold time.Duration `yaml:"push_to_talk_hold"`
}

// TTSConfig lists synthesis backends in failover order.
type TTSConfig struct {
	Primary   ProviderEntry   `yaml:"primary"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// MaxFailures and ResetTimeout configure each backend's circuit breaker.
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the common configuration block shared by TTS and STT
// providers. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's endpoint. Orbit providers default to
	// backend.url.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`
	Voice string `yaml:"voice"`

	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string value of a provider option, or "".
func (e ProviderEntry) Option(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// StorageConfig selects where preferences, progress and the user id live.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Path is the JSON file of the file backend.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Redis settings.
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// VoiceConfig holds the default voice preferences used until the learner
// changes them. Zero fields take the built-in defaults.
type VoiceConfig struct {
	Rate      float64         `yaml:"rate"`
	Pitch     float64         `yaml:"pitch"`
	Volume    float64         `yaml:"volume"`
	Language  string          `yaml:"language"`
	VoiceName string          `yaml:"voice_name"`
	Gender    prefs.Gender    `yaml:"gender"`
	Verbosity prefs.Verbosity `yaml:"verbosity"`
}

// Preferences converts v to clamped preferences.
func (v VoiceConfig) Preferences() prefs.Preferences {
	p := prefs.Defaults()
	if v.Rate != 0 {
		p.Rate = v.Rate
	}
	if v.Pitch != 0 {
		p.Pitch = v.Pitch
	}
	if v.Volume != 0 {
		p.Volume = v.Volume
	}
	if v.Language != "" {
		p.Language = v.Language
	}
	p.VoiceName = v.VoiceName
	if v.Gender != "" {
		p.VoiceGender = v.Gender
	}
	if v.Verbosity != "" {
		p.Verbosity = v.Verbosity
	}
	return p.Clamp()
}

// CommandsConfig tunes command recognition.
type CommandsConfig struct {
	// Phonetic enables correction of misheard command words.
	Phonetic bool `yaml:"phonetic"`

	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`

	// MaxContainmentWords limits phrase-containment matching to short
	// utterances.
	MaxContainmentWords int `yaml:"max_containment_words"`
}
