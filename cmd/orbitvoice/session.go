package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/analytics"
	"github.com/orbitlearn/orbitvoice/internal/backend"
	"github.com/orbitlearn/orbitvoice/internal/config"
	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/internal/progress"
	"github.com/orbitlearn/orbitvoice/internal/tutor"
)

const (
	msgLoadFailed   = "Sorry, I couldn't load this lesson. Please try again later."
	msgAllCompleted = "You have completed every available lesson. Well done!"
	quietTimeout    = 15 * time.Second
)

// session walks the learner through consecutive lessons, one tutor per
// lesson, on a single voice engine.
type session struct {
	userID  string
	fresh   bool
	listen  tutor.ListenMode
	warning string

	client    *backend.Client
	eng       engine.Engine
	relay     *callbackRelay
	progress  *progress.Store
	prefs     *prefs.Store
	analytics *analytics.Tracker
	metrics   *observe.Metrics
	config    func() *config.Config
}

func (s *session) run(ctx context.Context, subtopicID string) error {
	lessons, idx, err := s.plan(ctx, subtopicID)
	if err != nil {
		return err
	}
	if idx < 0 {
		s.say(ctx, msgAllCompleted, true)
		return nil
	}

	for {
		res, err := s.teach(ctx, lessons, idx)
		if err != nil {
			return err
		}
		slog.Info("orbitvoice: lesson ended", "subtopic", lessons[idx].ID, "result", res)

		switch res {
		case tutor.ResultNextLesson, tutor.ResultPreviousLesson:
			lessons = s.refresh(ctx, lessons)
			if res == tutor.ResultNextLesson {
				idx++
			} else {
				idx--
			}
			// The first lesson only honours the flag.
			s.fresh = false
			s.warning = ""
		case tutor.ResultCurriculum:
			s.farewell(ctx, lessons)
			return nil
		default:
			return nil
		}
	}
}

// plan returns the lesson list and the index to start at, or -1 when
// nothing is left to teach.
func (s *session) plan(ctx context.Context, subtopicID string) ([]backend.Subtopic, int, error) {
	cur, err := s.client.Curriculum(ctx, s.userID)
	if err != nil {
		if subtopicID == "" {
			return nil, 0, fmt.Errorf("fetch curriculum: %w", err)
		}
		slog.Warn("orbitvoice: curriculum unavailable, teaching the requested lesson only", "err", err)
		return []backend.Subtopic{{ID: subtopicID, Status: backend.StatusAvailable}}, 0, nil
	}
	lessons := cur.Lessons()

	if subtopicID == "" {
		next, ok := cur.NextAvailable()
		if !ok {
			return lessons, -1, nil
		}
		subtopicID = next.ID
	}
	for i, l := range lessons {
		if l.ID == subtopicID {
			return lessons, i, nil
		}
	}
	slog.Warn("orbitvoice: subtopic not in curriculum", "subtopic", subtopicID)
	return []backend.Subtopic{{ID: subtopicID, Status: backend.StatusAvailable}}, 0, nil
}

// refresh re-reads the curriculum so a just-completed lesson unlocks the
// next one. The old list is kept when the fetch fails or changes shape.
func (s *session) refresh(ctx context.Context, lessons []backend.Subtopic) []backend.Subtopic {
	cur, err := s.client.Curriculum(ctx, s.userID)
	if err != nil {
		slog.Warn("orbitvoice: refreshing curriculum failed", "err", err)
		return lessons
	}
	fresh := cur.Lessons()
	if len(fresh) != len(lessons) {
		return lessons
	}
	return fresh
}

func (s *session) teach(ctx context.Context, lessons []backend.Subtopic, idx int) (tutor.Result, error) {
	l := lessons[idx]
	content, err := s.client.TeachingContent(ctx, l.ID, s.userID)
	if err != nil {
		slog.Error("orbitvoice: loading lesson failed", "subtopic", l.ID, "err", err)
		s.say(ctx, msgLoadFailed, true)
		return tutor.ResultQuit, fmt.Errorf("load lesson %s: %w", l.ID, err)
	}

	p, err := s.prefs.Load(ctx)
	if err != nil {
		p = s.prefs.Defaults()
	}

	tu, err := tutor.New(tutor.Config{
		UserID:      s.userID,
		SubtopicID:  l.ID,
		Blocks:      content.Blocks,
		Router:      newRouter(s.config().Commands),
		Converter:   newConverter(p),
		Progress:    s.progress,
		Preferences: s.prefs,
		Backend:     s.client,
		Analytics:   s.analytics,
		Listen:      s.listen,
		Fresh:       s.fresh,
		HasNext:     idx+1 < len(lessons) && lessons[idx+1].Status != backend.StatusLocked,
		HasPrevious: idx > 0,
		Warning:     s.warning,
	}, tutor.WithMetrics(s.metrics))
	if err != nil {
		return tutor.ResultQuit, err
	}

	s.relay.set(tu.Callbacks())
	defer s.relay.set(engine.Callbacks{})
	return tu.Run(ctx, s.eng)
}

// farewell queues the curriculum summary behind the tutor's own
// announcement.
func (s *session) farewell(ctx context.Context, lessons []backend.Subtopic) {
	s.say(ctx, summary(s.refresh(ctx, lessons)), false)
}

// say speaks text and waits for the engine to fall silent.
func (s *session) say(ctx context.Context, text string, interrupt bool) {
	s.eng.Speak(text, interrupt)
	waitQuiet(ctx, s.eng, quietTimeout)
}

func waitQuiet(ctx context.Context, eng engine.Engine, limit time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for eng.Speaking() {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func summary(lessons []backend.Subtopic) string {
	var done int
	for _, l := range lessons {
		if l.Status == backend.StatusCompleted {
			done++
		}
	}
	return fmt.Sprintf("You have completed %d of %d lessons. Goodbye for now.", done, len(lessons))
}
