package progress

import (
	"context"
	"testing"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore() (*Store, *kv.MemoryStore, *clock) {
	backend := kv.NewMemoryStore()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(backend, WithClock(c.now)), backend, c
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()
	s, _, _ := newStore()
	p, err := s.Load(context.Background(), "photosynthesis")
	if err != nil || p != nil {
		t.Errorf("Load() = %v, %v; want nil, nil", p, err)
	}
	if s.HasResumable(context.Background(), "photosynthesis") {
		t.Error("HasResumable on empty store")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, backend, c := newStore()

	in := &Progress{
		SubtopicID:        "photosynthesis",
		CurrentBlockIndex: 3,
		State:             types.StateQuestion,
		QuestionAnswered:  map[int]bool{2: true},
		QuestionScores:    map[int]float64{2: 1},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.Get(ctx, "orbit_voice_progress_photosynthesis"); err != nil {
		t.Fatalf("expected key orbit_voice_progress_photosynthesis: %v", err)
	}

	got, err := s.Load(ctx, "photosynthesis")
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	if got.CurrentBlockIndex != 3 || got.State != types.StateQuestion || !got.QuestionAnswered[2] || got.QuestionScores[2] != 1 {
		t.Errorf("Load() = %+v", got)
	}
	if !got.LastUpdated.Equal(c.t) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, c.t)
	}
	if !s.HasResumable(ctx, "photosynthesis") {
		t.Error("HasResumable = false, want true")
	}
}

func TestStore_Stale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, backend, c := newStore()

	if err := s.Save(ctx, &Progress{SubtopicID: "cells", CurrentBlockIndex: 4}); err != nil {
		t.Fatal(err)
	}
	c.t = c.t.Add(TTL)
	if p, _ := s.Load(ctx, "cells"); p == nil {
		t.Fatal("exactly TTL old should still load")
	}
	// Load does not refresh the timestamp.
	c.t = c.t.Add(time.Millisecond)
	if s.HasResumable(ctx, "cells") {
		t.Error("HasResumable = true past TTL")
	}
	if p, err := s.Load(ctx, "cells"); p != nil || err != nil {
		t.Errorf("Load() past TTL = %v, %v", p, err)
	}
	if len(backend.Keys()) != 0 {
		t.Errorf("stale checkpoint not deleted: %v", backend.Keys())
	}
}

func TestStore_Corrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, backend, _ := newStore()
	_ = backend.Set(ctx, Key("cells"), []byte("{oops"))
	if p, err := s.Load(ctx, "cells"); p != nil || err != nil {
		t.Errorf("Load(corrupt) = %v, %v", p, err)
	}
	if len(backend.Keys()) != 0 {
		t.Error("corrupt checkpoint not deleted")
	}
}

func TestStore_FirstBlockNotResumable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _ := newStore()
	if _, err := s.Initialize(ctx, "cells"); err != nil {
		t.Fatal(err)
	}
	if s.HasResumable(ctx, "cells") {
		t.Error("block 0 checkpoint must not be resumable")
	}
	p, _ := s.Load(ctx, "cells")
	if p == nil || p.State != types.StateIdle || p.QuestionAnswered == nil || p.QuestionScores == nil {
		t.Errorf("Initialize stored %+v", p)
	}
}

func TestStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, c := newStore()

	idx := 2
	p, err := s.Update(ctx, "cells", Update{CurrentBlockIndex: &idx})
	if err != nil {
		t.Fatal(err)
	}
	if p.CurrentBlockIndex != 2 || p.State != types.StateIdle {
		t.Errorf("Update (create) = %+v", p)
	}

	c.t = c.t.Add(time.Hour)
	st := types.StateTeaching
	p, err = s.Update(ctx, "cells", Update{State: &st, QuestionScores: map[int]float64{1: 0.25}})
	if err != nil {
		t.Fatal(err)
	}
	if p.CurrentBlockIndex != 2 || p.State != types.StateTeaching || p.QuestionScores[1] != 0.25 {
		t.Errorf("Update (merge) = %+v", p)
	}
	if !p.LastUpdated.Equal(c.t) {
		t.Errorf("LastUpdated not refreshed: %v", p.LastUpdated)
	}
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _ := newStore()
	_ = s.Save(ctx, &Progress{SubtopicID: "cells", CurrentBlockIndex: 5})
	if err := s.Clear(ctx, "cells"); err != nil {
		t.Fatal(err)
	}
	if s.HasResumable(ctx, "cells") {
		t.Error("HasResumable after Clear")
	}
}

func TestStore_SaveRequiresSubtopic(t *testing.T) {
	t.Parallel()
	s, _, _ := newStore()
	if err := s.Save(context.Background(), &Progress{}); err == nil {
		t.Error("expected error for empty subtopic id")
	}
}

func TestProgress_Score(t *testing.T) {
	t.Parallel()
	p := &Progress{QuestionScores: map[int]float64{1: 1, 4: 0.25}}
	if got := p.Score(); got != 62.5 {
		t.Errorf("Score() = %v, want 62.5", got)
	}
	if got := (&Progress{}).Score(); got != 0 {
		t.Errorf("empty Score() = %v", got)
	}
}
