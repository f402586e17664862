// Package progress checkpoints a learner's position in a voice lesson so it
// can be resumed.
//
// One record is kept per subtopic. Records older than [TTL] are stale: they
// are deleted on read and reported as absent.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// KeyPrefix precedes the subtopic id in storage keys.
const KeyPrefix = "orbit_voice_progress_"

// TTL is how long a checkpoint stays resumable.
const TTL = 24 * time.Hour

// Progress is the checkpoint of one subtopic.
type Progress struct {
	SubtopicID        string          `json:"subtopicId"`
	CurrentBlockIndex int             `json:"currentBlockIndex"`
	State             types.State     `json:"state"`
	QuestionAnswered  map[int]bool    `json:"questionAnswered"`
	QuestionScores    map[int]float64 `json:"questionScores"`
	LastUpdated       time.Time       `json:"-"`
	LastUpdatedMillis int64           `json:"lastUpdated"`
}

// Score returns the mean question score scaled to 0..100, or 0 when no
// question has been answered.
func (p *Progress) Score() float64 {
	if len(p.QuestionScores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range p.QuestionScores {
		sum += s
	}
	return sum / float64(len(p.QuestionScores)) * 100
}

func (p *Progress) normalize() {
	if p.CurrentBlockIndex < 0 {
		p.CurrentBlockIndex = 0
	}
	if !p.State.IsValid() {
		p.State = types.StateIdle
	}
	if p.QuestionAnswered == nil {
		p.QuestionAnswered = make(map[int]bool)
	}
	if p.QuestionScores == nil {
		p.QuestionScores = make(map[int]float64)
	}
}

// Update is a partial change. Nil fields keep their stored value.
type Update struct {
	CurrentBlockIndex *int
	State             *types.State
	QuestionAnswered  map[int]bool
	QuestionScores    map[int]float64
}

// Store persists [Progress] records.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store over backend.
func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{kv: backend, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the storage key of subtopicID.
func Key(subtopicID string) string { return KeyPrefix + subtopicID }

// Load returns the checkpoint of subtopicID, or nil when there is none or it
// is stale or corrupt.
func (s *Store) Load(ctx context.Context, subtopicID string) (*Progress, error) {
	data, err := s.kv.Get(ctx, Key(subtopicID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: load %s: %w", subtopicID, err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("progress: discarding corrupt checkpoint", "subtopic", subtopicID, "err", err)
		return nil, s.Clear(ctx, subtopicID)
	}
	p.LastUpdated = time.UnixMilli(p.LastUpdatedMillis)
	if s.now().Sub(p.LastUpdated) > TTL {
		slog.Debug("progress: discarding stale checkpoint", "subtopic", subtopicID, "last_updated", p.LastUpdated)
		return nil, s.Clear(ctx, subtopicID)
	}
	p.SubtopicID = subtopicID
	p.normalize()
	return &p, nil
}

// Save stamps p with the current time and writes it.
func (s *Store) Save(ctx context.Context, p *Progress) error {
	if p.SubtopicID == "" {
		return errors.New("progress: save: empty subtopic id")
	}
	p.normalize()
	p.LastUpdated = s.now()
	p.LastUpdatedMillis = p.LastUpdated.UnixMilli()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("progress: save %s: %w", p.SubtopicID, err)
	}
	if err := s.kv.Set(ctx, Key(p.SubtopicID), data); err != nil {
		return fmt.Errorf("progress: save %s: %w", p.SubtopicID, err)
	}
	return nil
}

// Update merges u into the stored checkpoint, creating one if needed.
func (s *Store) Update(ctx context.Context, subtopicID string, u Update) (*Progress, error) {
	p, err := s.Load(ctx, subtopicID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Progress{SubtopicID: subtopicID, State: types.StateIdle}
	}
	if u.CurrentBlockIndex != nil {
		p.CurrentBlockIndex = *u.CurrentBlockIndex
	}
	if u.State != nil {
		p.State = *u.State
	}
	if u.QuestionAnswered != nil {
		p.QuestionAnswered = u.QuestionAnswered
	}
	if u.QuestionScores != nil {
		p.QuestionScores = u.QuestionScores
	}
	return p, s.Save(ctx, p)
}

// Clear deletes the checkpoint of subtopicID.
func (s *Store) Clear(ctx context.Context, subtopicID string) error {
	if err := s.kv.Delete(ctx, Key(subtopicID)); err != nil {
		return fmt.Errorf("progress: clear %s: %w", subtopicID, err)
	}
	return nil
}

// HasResumable reports whether a fresh checkpoint past the first block
// exists.
func (s *Store) HasResumable(ctx context.Context, subtopicID string) bool {
	p, err := s.Load(ctx, subtopicID)
	if err != nil {
		slog.Warn("progress: resumable check failed", "subtopic", subtopicID, "err", err)
		return false
	}
	return p != nil && p.CurrentBlockIndex > 0
}

// Initialize writes and returns a fresh checkpoint at block 0.
func (s *Store) Initialize(ctx context.Context, subtopicID string) (*Progress, error) {
	p := &Progress{SubtopicID: subtopicID, State: types.StateIdle}
	return p, s.Save(ctx, p)
}
