package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs. Voice defaults,
// command tuning and the log level apply to a running session; every other
// section needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     VoiceConfig

	CommandsChanged bool

	// RestartRequired names changed sections that only take effect on the
	// next start, e.g. "storage".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && !d.CommandsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Voice != new.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Voice
	}
	d.CommandsChanged = old.Commands != new.Commands

	if old.Server.LogFormat != new.Server.LogFormat || old.Server.StatusAddr != new.Server.StatusAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Backend != new.Backend {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}
	if old.Engine != new.Engine {
		d.RestartRequired = append(d.RestartRequired, "engine")
	}
	if !ttsEqual(old.TTS, new.TTS) {
		d.RestartRequired = append(d.RestartRequired, "tts")
	}
	if !entryEqual(old.STT, new.STT) {
		d.RestartRequired = append(d.RestartRequired, "stt")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}

func ttsEqual(a, b TTSConfig) bool {
	return a.MaxFailures == b.MaxFailures &&
		a.ResetTimeout == b.ResetTimeout &&
		entryEqual(a.Primary, b.Primary) &&
		slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}

// entryEqual compares provider entries. Options are compared by their
// string values only.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Voice != b.Voice || a.Timeout != b.Timeout ||
		len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}
