// Package prefs persists the learner's voice settings.
//
// Values are clamped to their documented ranges both when written and when
// read, so a hand-edited or corrupted store can never push an out-of-range
// rate into the synthesizer.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/kv"
)

// KeyPrefix is the storage key for anonymous learners. Per-user keys append
// "_<userID>".
const KeyPrefix = "orbit_voice_preferences"

// Bounds for the numeric fields.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// Gender selects a synthesis voice family.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// IsValid reports whether g is a known gender.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderNeutral
}

// Verbosity controls how much introductory speech surrounds lesson content.
type Verbosity string

const (
	VerbosityShort    Verbosity = "short"
	VerbosityNormal   Verbosity = "normal"
	VerbosityDetailed Verbosity = "detailed"
)

// IsValid reports whether v is a known level.
func (v Verbosity) IsValid() bool {
	return v == VerbosityShort || v == VerbosityNormal || v == VerbosityDetailed
}

// Preferences are the persisted voice settings.
type Preferences struct {
	Rate                float64   `json:"rate" yaml:"rate"`
	Pitch               float64   `json:"pitch" yaml:"pitch"`
	Volume              float64   `json:"volume" yaml:"volume"`
	Language            string    `json:"language" yaml:"language"`
	VoiceName           string    `json:"voiceName,omitempty" yaml:"voice_name"`
	VoiceGender         Gender    `json:"voiceGender" yaml:"voice_gender"`
	Verbosity           Verbosity `json:"verbosity" yaml:"verbosity"`
	AccessibilityModeOn bool      `json:"accessibilityModeOn" yaml:"accessibility_mode_on"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Preferences {
	return Preferences{
		Rate:        1,
		Pitch:       1,
		Volume:      1,
		Language:    "en-US",
		VoiceGender: GenderNeutral,
		Verbosity:   VerbosityNormal,
	}
}

// Clamp returns p with every numeric field forced into range and unknown
// enum values replaced by their defaults.
func (p Preferences) Clamp() Preferences {
	d := Defaults()
	p.Rate = clamp(p.Rate, MinRate, MaxRate)
	p.Pitch = clamp(p.Pitch, MinPitch, MaxPitch)
	p.Volume = clamp(p.Volume, MinVolume, MaxVolume)
	if p.Language == "" {
		p.Language = d.Language
	}
	if !p.VoiceGender.IsValid() {
		p.VoiceGender = d.VoiceGender
	}
	if !p.Verbosity.IsValid() {
		p.Verbosity = d.Verbosity
	}
	return p
}

// ClampRate forces r into the supported speaking-rate range.
func ClampRate(r float64) float64 { return clamp(r, MinRate, MaxRate) }

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return max(lo, min(hi, v))
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Rate                *float64
	Pitch               *float64
	Volume              *float64
	Language            *string
	VoiceName           *string
	VoiceGender         *Gender
	Verbosity           *Verbosity
	AccessibilityModeOn *bool
}

// Apply returns p with the non-nil fields of patch applied and clamped.
func (patch Patch) Apply(p Preferences) Preferences {
	if patch.Rate != nil {
		p.Rate = *patch.Rate
	}
	if patch.Pitch != nil {
		p.Pitch = *patch.Pitch
	}
	if patch.Volume != nil {
		p.Volume = *patch.Volume
	}
	if patch.Language != nil {
		p.Language = *patch.Language
	}
	if patch.VoiceName != nil {
		p.VoiceName = *patch.VoiceName
	}
	if patch.VoiceGender != nil {
		p.VoiceGender = *patch.VoiceGender
	}
	if patch.Verbosity != nil {
		p.Verbosity = *patch.Verbosity
	}
	if patch.AccessibilityModeOn != nil {
		p.AccessibilityModeOn = *patch.AccessibilityModeOn
	}
	return p.Clamp()
}

// Store loads and saves [Preferences] for one learner.
type Store struct {
	kv  kv.Store
	key string

	mu       sync.RWMutex
	defaults Preferences
}

// Option configures a [Store].
type Option func(*Store)

// WithUser namespaces the storage key by user id.
func WithUser(userID string) Option {
	return func(s *Store) {
		if userID != "" {
			s.key = KeyPrefix + "_" + userID
		}
	}
}

// WithDefaults overrides the values returned when nothing is stored. They are
// clamped.
func WithDefaults(p Preferences) Option {
	return func(s *Store) { s.defaults = p.Clamp() }
}

// NewStore returns a Store over backend.
func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{kv: backend, key: KeyPrefix, defaults: Defaults()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the storage key in use.
func (s *Store) Key() string { return s.key }

// SetDefaults replaces the values returned when nothing is stored. Saved
// preferences are unaffected.
func (s *Store) SetDefaults(p Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = p.Clamp()
}

// Defaults returns the values used when nothing is stored.
func (s *Store) Defaults() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Load returns the stored preferences merged over the defaults. Missing or
// corrupt data yields the defaults; only backend failures are returned.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	defaults := s.Defaults()
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("prefs: load: %w", err)
	}
	p := defaults
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("prefs: discarding corrupt preferences", "key", s.key, "err", err)
		return defaults, nil
	}
	return p.Clamp(), nil
}

// Save clamps p and writes it.
func (s *Store) Save(ctx context.Context, p Preferences) error {
	data, err := json.Marshal(p.Clamp())
	if err != nil {
		return fmt.Errorf("prefs: save: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("prefs: save: %w", err)
	}
	return nil
}

// Update loads, applies patch, saves and returns the result.
func (s *Store) Update(ctx context.Context, patch Patch) (Preferences, error) {
	p, err := s.Load(ctx)
	if err != nil {
		return p, err
	}
	p = patch.Apply(p)
	return p, s.Save(ctx, p)
}

// Reset deletes the stored preferences and returns the defaults.
func (s *Store) Reset(ctx context.Context) (Preferences, error) {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return s.Defaults(), fmt.Errorf("prefs: reset: %w", err)
	}
	return s.Defaults(), nil
}
