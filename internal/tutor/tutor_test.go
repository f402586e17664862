package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/analytics"
	"github.com/orbitlearn/orbitvoice/internal/backend"
	"github.com/orbitlearn/orbitvoice/internal/command"
	"github.com/orbitlearn/orbitvoice/internal/engine/mock"
	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/internal/lesson"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/internal/progress"
	"github.com/orbitlearn/orbitvoice/internal/teaching"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

type fakeBackend struct {
	mu       sync.Mutex
	scores   []backend.Score
	scoreErr error

	answer   string
	chatErr  error
	messages []string
	contexts []string
}

func (b *fakeBackend) SubmitScore(_ context.Context, s backend.Score) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores = append(b.scores, s)
	return b.scoreErr
}

func (b *fakeBackend) Chat(_ context.Context, message, lessonContext string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	b.contexts = append(b.contexts, lessonContext)
	return b.answer, b.chatErr
}

func intPtr(i int) *int { return &i }

func testBlocks() []lesson.Block {
	return []lesson.Block{
		{Type: lesson.BlockParagraph, Content: "Plants make food from light."},
		{
			Type:         lesson.BlockQuestion,
			QuestionType: lesson.QuestionMCQ,
			Question:     "What do plants need?",
			Options:      []string{"Darkness", "Light"},
			CorrectIndex: intPtr(1),
			Explanations: lesson.Explanations{Correct: "Light drives photosynthesis."},
		},
		{Type: lesson.BlockParagraph, Content: "Chlorophyll is green."},
	}
}

type fixture struct {
	tutor    *Tutor
	eng      *mock.Engine
	progress *progress.Store
	prefs    *prefs.Store
	backend  *fakeBackend
	tracker  *analytics.Tracker
	ctx      context.Context
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	store := kv.NewMemoryStore()
	f := &fixture{
		eng:      mock.New(),
		progress: progress.NewStore(store),
		prefs:    prefs.NewStore(store, prefs.WithUser("u1")),
		backend:  &fakeBackend{answer: "**Light** powers the reaction."},
		tracker:  analytics.New(),
		ctx:      context.Background(),
	}
	cfg := Config{
		UserID:      "u1",
		SubtopicID:  "sub-1",
		Blocks:      testBlocks(),
		Progress:    f.progress,
		Preferences: f.prefs,
		Backend:     f.backend,
		Analytics:   f.tracker,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	tu, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.tutor = tu
	return f
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	if err := f.tutor.begin(f.ctx, f.eng); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func (f *fixture) say(text string) {
	f.tutor.dispatch(event{kind: evTranscript, transcript: types.Transcript{Text: text, Confidence: 0.9}})
}

// lastSpoken reads the mock directly; dispatch runs on the test goroutine.
func (f *fixture) lastSpoken(t *testing.T) mock.Utterance {
	t.Helper()
	if len(f.eng.Spoken) == 0 {
		t.Fatal("nothing spoken")
	}
	return f.eng.Spoken[len(f.eng.Spoken)-1]
}

func (f *fixture) spokeSince(mark int, want string) bool {
	texts := f.eng.Texts()
	for _, s := range texts[mark:] {
		if strings.Contains(s, want) {
			return true
		}
	}
	return false
}

func (f *fixture) mark() int { return len(f.eng.Texts()) }

func TestNew_Validates(t *testing.T) {
	t.Parallel()
	store := progress.NewStore(kv.NewMemoryStore())
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no subtopic", Config{Blocks: testBlocks(), Progress: store}},
		{"no blocks", Config{SubtopicID: "s", Progress: store}},
		{"no progress store", Config{SubtopicID: "s", Blocks: testBlocks()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLessonWalkthrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)

	if got := f.lastSpoken(t).Text; got != teaching.Prompt(types.StateIdle) {
		t.Fatalf("first prompt = %q", got)
	}

	m := f.mark()
	f.say("start")
	snap := f.tutor.Snapshot()
	if snap.State != types.StateTeaching || snap.Index != 0 {
		t.Fatalf("after start: %+v", snap)
	}
	if !f.spokeSince(m, "Plants make food from light.") {
		t.Error("first block not spoken")
	}

	f.say("next")
	snap = f.tutor.Snapshot()
	if snap.State != types.StateQuestion || snap.Index != 1 {
		t.Fatalf("after next: %+v", snap)
	}

	m = f.mark()
	f.say("option b")
	texts := f.eng.Texts()[m:]
	if len(texts) == 0 || texts[0] != "Correct! Great job!" {
		t.Fatalf("feedback = %q", texts)
	}
	snap = f.tutor.Snapshot()
	if snap.State != types.StateTeaching || !snap.Answered[1] || snap.Scores[1] != ScoreCorrect {
		t.Fatalf("after answer: %+v", snap)
	}

	f.say("next")
	if snap = f.tutor.Snapshot(); snap.Index != 2 {
		t.Fatalf("index = %d, want 2", snap.Index)
	}

	m = f.mark()
	f.say("next")
	if snap = f.tutor.Snapshot(); snap.State != types.StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", snap.State)
	}
	if !f.spokeSince(m, teaching.Prompt(types.StateCompleted)) {
		t.Error("completion prompt not spoken")
	}
	want := []backend.Score{{UserID: "u1", SubtopicID: "sub-1", FinalScore: 100}}
	if !slices.Equal(f.backend.scores, want) {
		t.Errorf("scores = %+v, want %+v", f.backend.scores, want)
	}

	p, err := f.progress.Load(f.ctx, "sub-1")
	if err != nil || p == nil {
		t.Fatalf("Load = %v, %v", p, err)
	}
	if p.State != types.StateCompleted || p.CurrentBlockIndex != 2 {
		t.Errorf("saved progress = %+v", p)
	}
}

func TestWrongAnswer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)
	f.say("start")
	f.say("next")

	m := f.mark()
	f.say("option a")
	texts := f.eng.Texts()[m:]
	wantPrefix := []string{"Not quite right.", "The correct answer is option B, Light.", "Try again next time."}
	if len(texts) < len(wantPrefix) || !slices.Equal(texts[:len(wantPrefix)], wantPrefix) {
		t.Fatalf("feedback = %q", texts)
	}
	if got := f.tutor.Snapshot().Scores[1]; got != ScoreIncorrect {
		t.Errorf("score = %v, want %v", got, ScoreIncorrect)
	}

	f.say("next")
	f.say("next")
	if len(f.backend.scores) != 1 || f.backend.scores[0].FinalScore != 25 {
		t.Errorf("submitted = %+v, want final score 25", f.backend.scores)
	}
}

func TestFinalScore(t *testing.T) {
	t.Parallel()
	q := lesson.Block{Type: lesson.BlockQuestion}
	p := lesson.Block{Type: lesson.BlockParagraph}
	tests := []struct {
		name   string
		blocks []lesson.Block
		scores map[int]float64
		want   int
	}{
		{"no questions", []lesson.Block{p, p}, nil, 100},
		{"all correct", []lesson.Block{p, q, q}, map[int]float64{1: 1, 2: 1}, 100},
		{"unanswered counts zero", []lesson.Block{q, q}, map[int]float64{0: 1}, 50},
		{"mixed", []lesson.Block{q, q}, map[int]float64{0: 1, 1: 0.25}, 63},
		{"none answered", []lesson.Block{q}, nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FinalScore(tc.blocks, tc.scores); got != tc.want {
				t.Errorf("FinalScore = %d, want %d", got, tc.want)
			}
		})
	}
}

func saveAt(t *testing.T, f *fixture, index int) {
	t.Helper()
	saveIn(t, f, index, types.StateTeaching)
}

func saveIn(t *testing.T, f *fixture, index int, state types.State) {
	t.Helper()
	err := f.progress.Save(f.ctx, &progress.Progress{
		SubtopicID:        "sub-1",
		CurrentBlockIndex: index,
		State:             state,
		QuestionAnswered:  map[int]bool{1: true},
		QuestionScores:    map[int]float64{1: ScoreCorrect},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestResumeOffer(t *testing.T) {
	t.Parallel()

	t.Run("resume", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		saveAt(t, f, 2)
		f.begin(t)
		if got := f.lastSpoken(t).Text; got != MsgResumeOffer {
			t.Fatalf("spoken = %q, want resume offer", got)
		}
		if !f.tutor.Snapshot().AwaitingResume {
			t.Fatal("not awaiting resume")
		}

		m := f.mark()
		f.say("resume")
		snap := f.tutor.Snapshot()
		if snap.AwaitingResume || snap.State != types.StateTeaching || snap.Index != 2 || snap.Scores[1] != ScoreCorrect {
			t.Fatalf("after resume: %+v", snap)
		}
		if !f.spokeSince(m, "Chlorophyll is green.") {
			t.Error("saved block not spoken")
		}
	})

	t.Run("resume into question", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		saveIn(t, f, 1, types.StateQuestion)
		f.begin(t)
		m := f.mark()
		f.say("continue")
		if got := f.tutor.Snapshot().State; got != types.StateQuestion {
			t.Fatalf("state = %s, want QUESTION", got)
		}
		if !f.spokeSince(m, "What do plants need?") {
			t.Error("question not repeated")
		}
		f.say("option B")
		if got := f.tutor.Snapshot().State; got != types.StateTeaching {
			t.Errorf("after answer state = %s, want TEACHING", got)
		}
	})

	t.Run("saved pause is lifted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		saveIn(t, f, 0, types.StatePaused)
		f.begin(t)
		f.say("resume")
		snap := f.tutor.Snapshot()
		if snap.State != types.StateTeaching || snap.Index != 0 {
			t.Fatalf("after resume: %+v", snap)
		}
		p, err := f.progress.Load(f.ctx, "sub-1")
		if err != nil || p == nil || p.State != types.StateTeaching {
			t.Errorf("saved progress = %+v, %v; want TEACHING", p, err)
		}
	})

	t.Run("start fresh", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		saveAt(t, f, 2)
		f.begin(t)
		f.say("start fresh")
		snap := f.tutor.Snapshot()
		if snap.State != types.StateTeaching || snap.Index != 0 || len(snap.Answered) != 0 {
			t.Fatalf("after start fresh: %+v", snap)
		}
		if f.progress.HasResumable(f.ctx, "sub-1") {
			t.Error("saved progress should be reset")
		}
	})

	t.Run("unclear choice", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		saveAt(t, f, 2)
		f.begin(t)
		f.say("purple elephants")
		if got := f.lastSpoken(t).Text; got != MsgResumeRetry {
			t.Errorf("spoken = %q, want retry", got)
		}
		if !f.tutor.Snapshot().AwaitingResume {
			t.Error("should still await a choice")
		}
	})

	t.Run("fresh flag skips offer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.Fresh = true })
		saveAt(t, f, 2)
		f.begin(t)
		if got := f.lastSpoken(t).Text; got != teaching.Prompt(types.StateIdle) {
			t.Errorf("spoken = %q, want idle prompt", got)
		}
		if f.progress.HasResumable(f.ctx, "sub-1") {
			t.Error("fresh start should discard saved progress")
		}
	})
}

func TestFallbacks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)

	f.say("purple elephants")
	if got := f.lastSpoken(t); got.Text != MsgNotUnderstood || !got.Interrupt {
		t.Errorf("unknown utterance spoke %+v", got)
	}

	// Routed, but IDLE only accepts start.
	f.say("resume")
	if got := f.lastSpoken(t).Text; got != MsgNotAvailable {
		t.Errorf("rejected command spoke %q", got)
	}
	if f.tutor.Snapshot().State != types.StateIdle {
		t.Error("rejected command changed state")
	}

	f.say("   ")
	if got := f.lastSpoken(t).Text; got != MsgNotAvailable {
		t.Errorf("blank utterance should be ignored, spoke %q", got)
	}

	f.say("help")
	if got := f.lastSpoken(t).Text; got != command.HelpText(types.StateIdle) {
		t.Errorf("help spoke %q", got)
	}

	var kinds []analytics.EventType
	for _, e := range f.tracker.Events() {
		kinds = append(kinds, e.Type)
	}
	want := []analytics.EventType{
		analytics.EventMisrecognition,
		analytics.EventCommandRecognized, analytics.EventCommandFailed,
		analytics.EventCommandRecognized,
	}
	if !slices.Equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestSubmitWithoutAnswer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)
	f.say("start")
	f.say("next")
	f.say("submit")
	if got := f.lastSpoken(t).Text; got != MsgAnswerFirst {
		t.Errorf("spoken = %q", got)
	}
	if f.tutor.Snapshot().State != types.StateQuestion {
		t.Error("should stay in QUESTION")
	}
}

func TestNavigation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)
	f.say("start")

	f.say("back")
	if got := f.lastSpoken(t).Text; got != MsgFirstSection {
		t.Errorf("back at first block spoke %q", got)
	}

	m := f.mark()
	f.say("repeat")
	if !f.spokeSince(m, "Plants make food from light.") {
		t.Error("repeat did not re-speak the block")
	}

	f.say("where am i")
	if got := f.lastSpoken(t).Text; !strings.HasPrefix(got, "You're on section 1 of 3.") {
		t.Errorf("position spoke %q", got)
	}

	f.say("next lesson")
	if got := f.lastSpoken(t).Text; got != MsgLastLesson {
		t.Errorf("next lesson without one spoke %q", got)
	}
	if f.tutor.result != nil {
		t.Errorf("result = %v, want none", *f.tutor.result)
	}

	f.say("return to curriculum")
	if f.tutor.result == nil || *f.tutor.result != ResultCurriculum {
		t.Errorf("result = %v, want curriculum", f.tutor.result)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)
	f.say("start")

	m := f.mark()
	f.say("pause")
	if f.tutor.Snapshot().State != types.StatePaused || f.eng.PauseCalls != 1 {
		t.Fatalf("pause: state %s, pause calls %d", f.tutor.Snapshot().State, f.eng.PauseCalls)
	}
	if f.spokeSince(m, teaching.Prompt(types.StatePaused)) {
		t.Error("pause must stay silent")
	}

	m = f.mark()
	f.say("continue")
	if f.tutor.Snapshot().State != types.StateTeaching || f.eng.ResumeCalls != 1 {
		t.Fatalf("resume: state %s, resume calls %d", f.tutor.Snapshot().State, f.eng.ResumeCalls)
	}
	// The mock is not speaking, so the block starts over.
	if !f.spokeSince(m, "Plants make food from light.") {
		t.Error("block not re-spoken after resume")
	}
}

func TestSpeedAndVerbosity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.begin(t)
	f.say("start")

	f.say("faster")
	if got := f.eng.Preferences().Rate; got != 1.2 {
		t.Errorf("rate = %v, want 1.2", got)
	}
	if got := f.lastSpoken(t).Text; got != MsgSpeakingFaster {
		t.Errorf("spoken = %q", got)
	}
	saved, err := f.prefs.Load(f.ctx)
	if err != nil || saved.Rate != 1.2 {
		t.Errorf("persisted rate = %v, %v", saved.Rate, err)
	}

	f.eng.UpdatePreferences(prefs.Patch{Rate: func() *float64 { r := prefs.MaxRate; return &r }()})
	f.say("faster")
	if got := f.lastSpoken(t).Text; got != MsgFastest {
		t.Errorf("at max rate spoke %q", got)
	}

	f.say("keep it short")
	if got := f.eng.Preferences().Verbosity; got != prefs.VerbosityShort {
		t.Errorf("verbosity = %q", got)
	}
	if got := f.lastSpoken(t).Text; got != "Verbosity set to short." {
		t.Errorf("spoken = %q", got)
	}
	if saved, _ := f.prefs.Load(f.ctx); saved.Verbosity != prefs.VerbosityShort {
		t.Errorf("persisted verbosity = %q", saved.Verbosity)
	}
}

func TestAskAI(t *testing.T) {
	t.Parallel()

	t.Run("answers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.begin(t)
		f.say("start")
		f.say("ask doubt")
		if got := f.lastSpoken(t).Text; got != MsgAskAI || !f.tutor.Snapshot().AskingAI {
			t.Fatalf("ask ai spoke %q", got)
		}

		m := f.mark()
		f.say("why is light needed")
		want := []string{MsgAskAIThinking, "Light powers the reaction.", MsgAskAIFollowUp}
		if got := f.eng.Texts()[m:]; !slices.Equal(got, want) {
			t.Errorf("spoken = %q, want %q", got, want)
		}
		if len(f.backend.messages) != 1 || f.backend.messages[0] != "why is light needed" {
			t.Errorf("messages = %q", f.backend.messages)
		}
		if !strings.Contains(f.backend.contexts[0], "Plants make food from light.") {
			t.Errorf("context = %q", f.backend.contexts[0])
		}
		if f.tutor.Snapshot().AskingAI {
			t.Error("question mode should end after one answer")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.backend.chatErr = errors.New("boom")
		f.begin(t)
		f.say("start")
		f.say("ask question")
		f.say("what is chlorophyll")
		if got := f.lastSpoken(t).Text; got != MsgAskAIFailed {
			t.Errorf("spoken = %q", got)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.begin(t)
		f.say("start")
		f.say("ask doubt")
		f.say("never mind")
		if len(f.backend.messages) != 0 {
			t.Errorf("cancel reached the backend: %q", f.backend.messages)
		}
	})

	t.Run("no backend", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.Backend = nil })
		f.begin(t)
		f.say("start")
		f.say("ask doubt")
		if got := f.lastSpoken(t).Text; got != MsgAskAIOff {
			t.Errorf("spoken = %q", got)
		}
	})
}

func TestAutoListen(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Listen = ListenAuto })
	f.begin(t)
	if f.eng.StartListeningCalls != 1 {
		t.Fatalf("start listening calls = %d, want 1", f.eng.StartListeningCalls)
	}

	// Still listening: speech end must not open a second window.
	f.tutor.dispatch(event{kind: evSpeechEnd})
	if f.eng.StartListeningCalls != 1 {
		t.Fatalf("start listening calls = %d, want 1", f.eng.StartListeningCalls)
	}

	f.eng.StopListening()
	f.tutor.dispatch(event{kind: evListening, on: false})
	if f.eng.StartListeningCalls != 2 {
		t.Fatalf("start listening calls = %d, want 2", f.eng.StartListeningCalls)
	}

	f.tutor.dispatch(event{kind: evError, err: stt.ErrNotAllowed})
	if f.tutor.Snapshot().State != types.StateError {
		t.Errorf("state = %s, want ERROR", f.tutor.Snapshot().State)
	}
	f.eng.StopListening()
	f.tutor.dispatch(event{kind: evListening, on: false})
	if f.eng.StartListeningCalls != 2 {
		t.Errorf("listening reopened after a fatal error")
	}

	// ERROR -> "start" -> IDLE -> "start" -> TEACHING lifts the block.
	f.say("start")
	f.say("start")
	if got := f.tutor.Snapshot().State; got != types.StateTeaching {
		t.Fatalf("state after recovery = %s, want TEACHING", got)
	}
	f.tutor.dispatch(event{kind: evSpeechEnd})
	if f.eng.StartListeningCalls != 3 {
		t.Errorf("start listening calls after recovery = %d, want 3", f.eng.StartListeningCalls)
	}
}

func TestContinuousMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Listen = ListenContinuous })
	f.begin(t)
	if !f.eng.Continuous {
		t.Error("engine not switched to continuous")
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("next lesson", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) {
			c.Fresh = true
			c.HasNext = true
			c.Blocks = testBlocks()[:1]
		})
		f.tutor.Hear("start")
		f.tutor.Hear("next")
		f.tutor.Hear("next")
		res, err := f.tutor.Run(f.ctx, f.eng)
		if err != nil || res != ResultNextLesson {
			t.Fatalf("Run = %v, %v; want next_lesson", res, err)
		}
		if got := f.lastSpoken(t).Text; got != MsgNextLesson {
			t.Errorf("spoken = %q", got)
		}
		if _, ok := f.tracker.Stats(); ok {
			t.Error("analytics session should end with Run")
		}
	})

	t.Run("input closed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		cb := f.tutor.Callbacks()
		done := make(chan Result, 1)
		go func() {
			res, _ := f.tutor.Run(f.ctx, f.eng)
			done <- res
		}()
		cb.OnError(fmt.Errorf("stt: console: %w", io.EOF))
		select {
		case res := <-done:
			if res != ResultInputClosed {
				t.Errorf("Run = %v, want input_closed", res)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan Result, 1)
		go func() {
			res, _ := f.tutor.Run(ctx, f.eng)
			done <- res
		}()
		cancel()
		select {
		case res := <-done:
			if res != ResultQuit {
				t.Errorf("Run = %v, want quit", res)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
	})
}

func TestParseListenMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]ListenMode{"": ListenManual, "push_to_talk": ListenManual, "Continuous": ListenContinuous, "auto": ListenAuto} {
		got, err := ParseListenMode(in)
		if err != nil || got != want {
			t.Errorf("ParseListenMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseListenMode("always"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
