package prefs

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/orbitlearn/orbitvoice/internal/kv"
)

func ptr[T any](v T) *T { return &v }

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Preferences
		want Preferences
	}{
		{
			name: "in range untouched",
			in:   Preferences{Rate: 1.5, Pitch: 0.8, Volume: 0.3, Language: "fr-FR", VoiceGender: GenderFemale, Verbosity: VerbosityDetailed},
			want: Preferences{Rate: 1.5, Pitch: 0.8, Volume: 0.3, Language: "fr-FR", VoiceGender: GenderFemale, Verbosity: VerbosityDetailed},
		},
		{
			name: "too high",
			in:   Preferences{Rate: 9, Pitch: 3, Volume: 4, Language: "en-US", VoiceGender: GenderMale, Verbosity: VerbosityShort},
			want: Preferences{Rate: 2, Pitch: 2, Volume: 1, Language: "en-US", VoiceGender: GenderMale, Verbosity: VerbosityShort},
		},
		{
			name: "too low and invalid enums",
			in:   Preferences{Rate: 0.1, Pitch: -1, Volume: -0.5, VoiceGender: "robot", Verbosity: "chatty"},
			want: Preferences{Rate: 0.5, Pitch: 0.5, Volume: 0, Language: "en-US", VoiceGender: GenderNeutral, Verbosity: VerbosityNormal},
		},
		{
			name: "NaN",
			in:   Preferences{Rate: math.NaN(), Pitch: 1, Volume: 1},
			want: Preferences{Rate: 0.5, Pitch: 1, Volume: 1, Language: "en-US", VoiceGender: GenderNeutral, Verbosity: VerbosityNormal},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.in.Clamp(); got != tt.want {
				t.Errorf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStore_LoadDefaults(t *testing.T) {
	t.Parallel()
	s := NewStore(kv.NewMemoryStore())
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != Defaults() {
		t.Errorf("Load() = %+v, want defaults", got)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore(), WithUser("u-1"))
	if s.Key() != "orbit_voice_preferences_u-1" {
		t.Fatalf("Key() = %q", s.Key())
	}
	p := Preferences{Rate: 1.4, Pitch: 0.9, Volume: 0.6, Language: "en-GB", VoiceGender: GenderFemale, Verbosity: VerbosityShort, AccessibilityModeOn: true}
	if err := s.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Errorf("Load() = %+v, want %+v", got, p)
	}
}

func TestStore_ClampsOnWriteAndRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := NewStore(backend)

	if err := s.Save(ctx, Preferences{Rate: 5, Pitch: 0, Volume: 2}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Load(ctx)
	if got.Rate != MaxRate || got.Pitch != MinPitch || got.Volume != MaxVolume {
		t.Errorf("after write clamp: %+v", got)
	}

	// Out-of-range values written behind the store's back.
	_ = backend.Set(ctx, KeyPrefix, []byte(`{"rate":0.01,"volume":-3}`))
	got, _ = s.Load(ctx)
	if got.Rate != MinRate || got.Volume != MinVolume {
		t.Errorf("after read clamp: %+v", got)
	}
	if got.Pitch != 1 {
		t.Errorf("missing pitch should merge default, got %v", got.Pitch)
	}
}

func TestStore_CorruptDataYieldsDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	_ = backend.Set(ctx, KeyPrefix, []byte("{not json"))
	got, err := NewStore(backend).Load(ctx)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got != Defaults() {
		t.Errorf("Load() = %+v, want defaults", got)
	}
}

func TestStore_UpdateAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	got, err := s.Update(ctx, Patch{Rate: ptr(3.0), Verbosity: ptr(VerbosityDetailed)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Rate != MaxRate || got.Verbosity != VerbosityDetailed || got.Pitch != 1 {
		t.Errorf("Update() = %+v", got)
	}
	loaded, _ := s.Load(ctx)
	if loaded != got {
		t.Errorf("Load after Update = %+v, want %+v", loaded, got)
	}

	reset, err := s.Reset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reset != Defaults() {
		t.Errorf("Reset() = %+v", reset)
	}
	if loaded, _ := s.Load(ctx); loaded != Defaults() {
		t.Errorf("Load after Reset = %+v", loaded)
	}
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }

func TestStore_BackendError(t *testing.T) {
	t.Parallel()
	got, err := NewStore(failingStore{kv.NewMemoryStore()}).Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got != Defaults() {
		t.Errorf("Load() on error = %+v, want defaults", got)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	d := Defaults()
	d.Rate = 7
	d.Verbosity = VerbosityShort
	got, _ := NewStore(kv.NewMemoryStore(), WithDefaults(d)).Load(context.Background())
	if got.Rate != MaxRate || got.Verbosity != VerbosityShort {
		t.Errorf("Load() = %+v", got)
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())
	d := Defaults()
	d.Rate = 1.5
	s.SetDefaults(d)
	if got, _ := s.Load(ctx); got.Rate != 1.5 {
		t.Errorf("unsaved learner rate = %v, want 1.5", got.Rate)
	}

	saved := Defaults()
	saved.Rate = 0.8
	if err := s.Save(ctx, saved); err != nil {
		t.Fatal(err)
	}
	d.Rate = 1.9
	s.SetDefaults(d)
	if got, _ := s.Load(ctx); got.Rate != 0.8 {
		t.Errorf("saved rate = %v, want 0.8", got.Rate)
	}
}
