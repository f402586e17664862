// Package tutor runs one voice lesson: it routes what the learner says,
// feeds commands to the teaching state machine and performs the actions the
// machine emits against the lesson content and the voice engine.
//
// All lesson state is owned by the goroutine running [Tutor.Run]. Engine
// callbacks only enqueue events, so an engine may call back synchronously
// from inside Speak or StartListening without deadlocking.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/analytics"
	"github.com/orbitlearn/orbitvoice/internal/backend"
	"github.com/orbitlearn/orbitvoice/internal/command"
	"github.com/orbitlearn/orbitvoice/internal/convert"
	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/lesson"
	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/internal/progress"
	"github.com/orbitlearn/orbitvoice/internal/teaching"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Spoken fallbacks.
const (
	MsgNotUnderstood   = "I didn't understand that. Say help for available commands."
	MsgNotAvailable    = "Command not recognized. Say help for available commands."
	MsgResumeOffer     = "You have saved progress in this lesson. Say resume to continue where you left off, or say start fresh to begin again."
	MsgResumeRetry     = "Say resume to continue, or say start fresh to begin again."
	MsgAskAI           = "What is your question? Ask it now."
	MsgAskAIThinking   = "Let me think about that."
	MsgAskAIFailed     = "Sorry, I couldn't get an answer right now. Say next to continue."
	MsgAskAIFollowUp   = "Say next to continue, or say ask doubt to ask another question."
	MsgAskAIOff        = "Ask AI is not available right now."
	MsgAnswerFirst     = "Say your answer first, for example option A."
	MsgFirstSection    = "This is the first section."
	MsgLastLesson      = "This is the last lesson."
	MsgFirstLesson     = "This is the first lesson."
	MsgNextLesson      = "Moving to next lesson."
	MsgPreviousLesson  = "Moving to previous lesson."
	MsgCurriculum      = "Returning to the curriculum."
	MsgSettingsClosed  = "Settings closed."
	MsgCameraOff       = "Camera feedback is not available in voice mode."
	MsgFastest         = "This is already the fastest speed."
	MsgSlowest         = "This is already the slowest speed."
	MsgSpeakingFaster  = "Speaking faster."
	MsgSpeakingSlower  = "Speaking slower."
	msgVerbosityPrefix = "Verbosity set to "
)

// Scores recorded per question.
const (
	ScoreCorrect   = 1.0
	ScoreIncorrect = 0.25
)

// prefetchBlocks is how many upcoming blocks are warmed after each block.
const prefetchBlocks = 2

// Result tells the host what to do after [Tutor.Run] returns.
type Result int

const (
	// ResultQuit means the context was cancelled.
	ResultQuit Result = iota
	ResultNextLesson
	ResultPreviousLesson
	ResultCurriculum
	// ResultInputClosed means the recognizer reached end of input.
	ResultInputClosed
)

func (r Result) String() string {
	switch r {
	case ResultNextLesson:
		return "next_lesson"
	case ResultPreviousLesson:
		return "previous_lesson"
	case ResultCurriculum:
		return "curriculum"
	case ResultInputClosed:
		return "input_closed"
	}
	return "quit"
}

// ListenMode decides who opens the microphone.
type ListenMode int

const (
	// ListenManual leaves listening to the host, e.g. push-to-talk.
	ListenManual ListenMode = iota
	// ListenContinuous switches the engine to continuous recognition.
	ListenContinuous
	// ListenAuto opens a listening window whenever the tutor falls silent.
	ListenAuto
)

// ParseListenMode converts a config string.
func ParseListenMode(s string) (ListenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual", "push_to_talk":
		return ListenManual, nil
	case "continuous":
		return ListenContinuous, nil
	case "auto":
		return ListenAuto, nil
	}
	return ListenManual, fmt.Errorf("tutor: unknown listen mode %q", s)
}

// Backend is the subset of the Orbit API the tutor calls.
type Backend interface {
	SubmitScore(ctx context.Context, s backend.Score) error
	Chat(ctx context.Context, message, lessonContext string) (string, error)
}

// PreferenceStore persists changes the learner makes by voice.
type PreferenceStore interface {
	Update(ctx context.Context, patch prefs.Patch) (prefs.Preferences, error)
}

// Config describes one lesson.
type Config struct {
	UserID     string
	SubtopicID string
	Blocks     []lesson.Block

	Router    *command.Router
	Converter *convert.Converter
	Progress  *progress.Store

	// Optional collaborators.
	Preferences PreferenceStore
	Backend     Backend
	Analytics   *analytics.Tracker

	Listen ListenMode

	// Fresh skips the resume offer and discards saved progress.
	Fresh bool

	HasNext     bool
	HasPrevious bool

	// Warning is spoken once before the lesson, e.g. a compatibility notice.
	Warning string
}

// Option configures a [Tutor].
type Option func(*Tutor)

// WithMetrics overrides the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tutor) { t.metrics = m }
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(t *Tutor) { t.callTimeout = d }
}

// Snapshot is a copy of the lesson position.
type Snapshot struct {
	State          types.State
	Index          int
	Total          int
	Answered       map[int]bool
	Scores         map[int]float64
	AwaitingResume bool
	AskingAI       bool
	Listening      bool
}

type eventKind int

const (
	evTranscript eventKind = iota
	evSpeechEnd
	evListening
	evError
)

type event struct {
	kind       eventKind
	transcript types.Transcript
	on         bool
	err        error
}

// Tutor drives one lesson. Create it with [New], pass [Tutor.Callbacks] to
// the engine and call [Tutor.Run].
type Tutor struct {
	cfg         Config
	metrics     *observe.Metrics
	callTimeout time.Duration
	machine     *teaching.Machine

	inMu  sync.Mutex
	inbox []event
	wake  chan struct{}

	// Owned by the Run goroutine.
	ctx            context.Context
	eng            engine.Engine
	index          int
	answered       map[int]bool
	scores         map[int]float64
	awaitingResume bool
	askingAI       bool
	listening      bool
	listenBlocked  bool
	scoreSent      bool
	result         *Result

	snapMu sync.Mutex
	snap   Snapshot
}

// New validates cfg and returns an idle tutor.
func New(cfg Config, opts ...Option) (*Tutor, error) {
	if cfg.SubtopicID == "" {
		return nil, errors.New("tutor: subtopic id must not be empty")
	}
	if len(cfg.Blocks) == 0 {
		return nil, errors.New("tutor: lesson has no blocks")
	}
	if cfg.Progress == nil {
		return nil, errors.New("tutor: progress store is required")
	}
	if cfg.Router == nil {
		cfg.Router = command.NewRouter()
	}
	if cfg.Converter == nil {
		cfg.Converter = convert.New(prefs.VerbosityNormal)
	}
	t := &Tutor{
		cfg:         cfg,
		callTimeout: 20 * time.Second,
		wake:        make(chan struct{}, 1),
		answered:    make(map[int]bool),
		scores:      make(map[int]float64),
	}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	t.machine = teaching.New(teaching.Config{
		OnStateChange:  t.stateChanged,
		OnPromptNeeded: t.promptNeeded,
		OnAction:       t.action,
	})
	t.publish()
	return t, nil
}

// Callbacks returns engine callbacks that feed this tutor.
func (t *Tutor) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnSpeechEnd:         func() { t.enqueue(event{kind: evSpeechEnd}) },
		OnRecognitionResult: func(tr types.Transcript) { t.enqueue(event{kind: evTranscript, transcript: tr}) },
		OnListeningChange:   func(on bool) { t.enqueue(event{kind: evListening, on: on}) },
		OnError:             func(err error) { t.enqueue(event{kind: evError, err: err}) },
	}
}

// Hear injects an utterance as if it had been recognized.
func (t *Tutor) Hear(text string) {
	t.enqueue(event{kind: evTranscript, transcript: types.Transcript{Text: text, Confidence: 1}})
}

func (t *Tutor) enqueue(ev event) {
	t.inMu.Lock()
	t.inbox = append(t.inbox, ev)
	t.inMu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tutor) drain() []event {
	t.inMu.Lock()
	defer t.inMu.Unlock()
	evs := t.inbox
	t.inbox = nil
	return evs
}

// Snapshot returns the lesson position as of the last processed event.
func (t *Tutor) Snapshot() Snapshot {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	s := t.snap
	s.Answered = cloneMap(s.Answered)
	s.Scores = cloneMap(s.Scores)
	return s
}

func (t *Tutor) publish() {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	t.snap = Snapshot{
		State:          t.machine.State(),
		Index:          t.index,
		Total:          len(t.cfg.Blocks),
		Answered:       cloneMap(t.answered),
		Scores:         cloneMap(t.scores),
		AwaitingResume: t.awaitingResume,
		AskingAI:       t.askingAI,
		Listening:      t.listening,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Run drives the lesson on eng until the learner navigates away, input
// ends or ctx is cancelled. It does not destroy eng.
func (t *Tutor) Run(ctx context.Context, eng engine.Engine) (Result, error) {
	if err := t.begin(ctx, eng); err != nil {
		return ResultQuit, err
	}
	defer t.end()
	for {
		for _, ev := range t.drain() {
			t.dispatch(ev)
			if t.result != nil {
				return *t.result, nil
			}
		}
		select {
		case <-ctx.Done():
			return ResultQuit, nil
		case <-t.wake:
		}
	}
}

func (t *Tutor) begin(ctx context.Context, eng engine.Engine) error {
	if eng == nil {
		return errors.New("tutor: engine is required")
	}
	t.ctx, t.eng = ctx, eng
	t.cfg.Converter.SetVerbosity(eng.Preferences().Verbosity)
	if t.cfg.Analytics != nil {
		t.cfg.Analytics.StartSession(t.cfg.UserID, t.cfg.SubtopicID)
	}
	slog.Info("tutor: lesson starting", "subtopic", t.cfg.SubtopicID, "blocks", len(t.cfg.Blocks), "engine", eng.Kind())

	if t.cfg.Warning != "" {
		eng.Speak(t.cfg.Warning, false)
	}

	switch {
	case t.cfg.Fresh:
		t.startFresh(false)
	case t.cfg.Progress.HasResumable(ctx, t.cfg.SubtopicID):
		t.awaitingResume = true
		eng.Speak(MsgResumeOffer, false)
	default:
		t.startFresh(false)
	}
	eng.Prefetch(t.cfg.Converter.TextsForPrefetch(t.cfg.Blocks, t.index, prefetchBlocks))

	switch t.cfg.Listen {
	case ListenContinuous:
		eng.SetContinuous(true)
	case ListenAuto:
		t.maybeListen()
	}
	t.publish()
	return nil
}

func (t *Tutor) end() {
	t.saveProgress()
	if t.cfg.Analytics != nil {
		if s, ok := t.cfg.Analytics.Stats(); ok {
			slog.Info("tutor: voice session stats",
				"commands", s.TotalCommands,
				"success_rate", s.SuccessRate,
				"misrecognition_rate", s.MisrecognitionRate,
				"avg_confidence", s.AverageConfidence,
				"duration", s.Duration)
		}
		t.cfg.Analytics.EndSession()
	}
}

func (t *Tutor) dispatch(ev event) {
	defer t.publish()
	switch ev.kind {
	case evTranscript:
		t.handleTranscript(ev.transcript)
	case evSpeechEnd:
		t.maybeListen()
	case evListening:
		t.listening = ev.on
		if !ev.on {
			t.maybeListen()
		}
	case evError:
		t.handleError(ev.err)
	}
}

// maybeListen opens a listening window in auto mode once the tutor is
// silent.
func (t *Tutor) maybeListen() {
	if t.cfg.Listen != ListenAuto || t.listenBlocked || t.result != nil {
		return
	}
	if t.eng.Speaking() || t.eng.Listening() {
		return
	}
	if err := t.eng.StartListening(); err != nil {
		slog.Debug("tutor: auto listen failed", "err", err)
	}
}

func (t *Tutor) handleError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		slog.Info("tutor: input closed")
		r := ResultInputClosed
		t.result = &r
	case stt.IsFatal(err):
		t.listenBlocked = true
		t.eng.Speak(stt.Message(err), true)
		t.machine.Fail(err)
	default:
		slog.Warn("tutor: engine error", "err", err)
	}
}

func (t *Tutor) handleTranscript(tr types.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}
	slog.Debug("tutor: heard", "text", text, "confidence", tr.Confidence)

	switch {
	case t.awaitingResume:
		t.resumeChoice(text)
		return
	case t.askingAI:
		t.askAI(text)
		return
	}

	rc := command.Context{State: t.machine.State()}
	if b, ok := t.currentBlock(); ok && b.Type == lesson.BlockQuestion {
		rc.QuestionType = b.QuestionType
	}
	cmd := t.cfg.Router.Route(text, rc)
	if cmd == nil {
		conf := tr.Confidence
		if conf == 0 {
			conf = -1
		}
		t.track(func(a *analytics.Tracker) { a.Misrecognition(t.ctx, text, conf) })
		t.eng.Speak(MsgNotUnderstood, true)
		return
	}
	t.track(func(a *analytics.Tracker) { a.CommandRecognized(t.ctx, cmd.Action, text, tr.Confidence) })
	if t.machine.ProcessCommand(*cmd) || t.global(*cmd) {
		return
	}
	t.track(func(a *analytics.Tracker) { a.CommandFailed(t.ctx, text) })
	t.eng.Speak(MsgNotAvailable, true)
}

func (t *Tutor) track(fn func(*analytics.Tracker)) {
	if t.cfg.Analytics != nil {
		fn(t.cfg.Analytics)
	}
}

// global handles router commands that are valid regardless of the teaching
// state.
func (t *Tutor) global(cmd types.Command) bool {
	state := t.machine.State()
	switch cmd.Action {
	case command.ActionHelp:
		t.eng.Speak(command.HelpText(state), true)
	case command.ActionCurrentPosition, command.ActionShowProgress:
		p := t.cfg.Converter.ProgressAnnouncement(t.index+1, len(t.cfg.Blocks))
		t.eng.Speak(p.Text, true)
	case command.ActionReturnToCurriculum:
		t.eng.Stop()
		t.eng.Speak(MsgCurriculum, true)
		t.finish(ResultCurriculum)
	case command.ActionCloseSettings:
		t.eng.Speak(MsgSettingsClosed, true)
	case command.ActionSubmitAnswer:
		if state != types.StateQuestion {
			return false
		}
		t.eng.Speak(MsgAnswerFirst, true)
	default:
		return false
	}
	return true
}

func (t *Tutor) finish(r Result) {
	t.result = &r
}

func (t *Tutor) resumeChoice(text string) {
	norm := command.Normalize(text)
	for _, w := range []string{"fresh", "over", "restart", "beginning", "scratch"} {
		if strings.Contains(norm, w) {
			t.awaitingResume = false
			t.startFresh(true)
			return
		}
	}
	cmd := t.cfg.Router.Route(text, command.Context{State: types.StatePaused})
	if cmd == nil || (cmd.Action != command.ActionResume && cmd.Action != command.ActionNext && cmd.Action != command.ActionStart) {
		t.eng.Speak(MsgResumeRetry, true)
		return
	}
	t.awaitingResume = false
	p, err := t.cfg.Progress.Load(t.ctx, t.cfg.SubtopicID)
	if err != nil || p == nil {
		slog.Warn("tutor: saved progress vanished, starting fresh", "err", err)
		t.startFresh(true)
		return
	}
	t.index = min(p.CurrentBlockIndex, len(t.cfg.Blocks)-1)
	t.answered = cloneMap(p.QuestionAnswered)
	t.scores = cloneMap(p.QuestionScores)
	slog.Info("tutor: resuming", "subtopic", t.cfg.SubtopicID, "index", t.index, "saved_state", p.State)
	b, _ := t.currentBlock()
	t.machine.Restore(resumeState(p.State, b))
	t.saveProgress()
	t.speakCurrentBlock()
}

// resumeState is the state a saved checkpoint continues in. The learner
// just asked to resume, so a saved pause is lifted. QUESTION only survives
// on a question block.
func resumeState(saved types.State, b lesson.Block) types.State {
	switch {
	case saved == types.StatePaused:
		return types.StateTeaching
	case saved == types.StateQuestion && b.Type != lesson.BlockQuestion:
		return types.StateTeaching
	}
	return saved
}

// startFresh discards saved progress. With begin set it starts teaching at
// once; otherwise it waits in IDLE for "start".
func (t *Tutor) startFresh(begin bool) {
	if _, err := t.cfg.Progress.Initialize(t.ctx, t.cfg.SubtopicID); err != nil {
		slog.Warn("tutor: resetting progress failed", "err", err)
	}
	t.index = 0
	t.answered = make(map[int]bool)
	t.scores = make(map[int]float64)
	if begin {
		t.startLesson()
		return
	}
	t.eng.Speak(teaching.Prompt(types.StateIdle), false)
}

func (t *Tutor) startLesson() {
	if t.machine.State() == types.StateTeaching {
		t.speakCurrentBlock()
		return
	}
	// The start_lesson action speaks the block.
	if !t.machine.ProcessCommand(types.Command{Type: types.CommandNavigation, Action: command.ActionStart}) {
		t.machine.TransitionTo(types.StateTeaching)
		t.speakCurrentBlock()
	}
}

func (t *Tutor) currentBlock() (lesson.Block, bool) {
	if t.index < 0 || t.index >= len(t.cfg.Blocks) {
		return lesson.Block{}, false
	}
	return t.cfg.Blocks[t.index], true
}

func (t *Tutor) speakCurrentBlock() {
	b, ok := t.currentBlock()
	if !ok {
		return
	}
	scripts := t.cfg.Converter.ConvertBlock(b, t.index, len(t.cfg.Blocks))
	t.speakScripts(scripts)
	t.eng.Prefetch(t.cfg.Converter.TextsForPrefetch(t.cfg.Blocks, t.index+1, prefetchBlocks))
	if b.Type == lesson.BlockQuestion {
		t.machine.EnterQuestion()
	}
}

// speakScripts replaces whatever is playing with scripts.
func (t *Tutor) speakScripts(scripts []convert.Script) {
	for i, s := range scripts {
		t.eng.Speak(s.Text, i == 0)
	}
}

func (t *Tutor) stateChanged(from, to types.State) {
	if from == types.StateError {
		// "start" recovered from a fatal recognizer error; try the mic again.
		t.listenBlocked = false
	}
	if t.ctx == nil {
		return
	}
	t.metrics.RecordTransition(t.ctx, string(from), string(to))
	t.saveProgress()
}

// promptNeeded speaks the entry prompts that carry information. TEACHING
// and QUESTION are followed by block speech and PAUSED must stay silent.
func (t *Tutor) promptNeeded(p string) {
	switch p {
	case teaching.Prompt(types.StateIdle), teaching.Prompt(types.StateError), teaching.Prompt(types.StateCompleted):
		t.eng.Speak(p, false)
	}
}

func (t *Tutor) action(name string, params map[string]string) {
	switch name {
	case teaching.ActionStartLesson, teaching.ActionRepeatBlock, teaching.ActionRepeatQuestion:
		t.speakCurrentBlock()
	case teaching.ActionNextBlock:
		if t.index < len(t.cfg.Blocks)-1 {
			t.index++
			t.saveProgress()
			t.speakCurrentBlock()
			return
		}
		t.completeLesson()
	case teaching.ActionPreviousBlock:
		if t.index == 0 {
			t.eng.Speak(MsgFirstSection, true)
			return
		}
		t.index--
		t.saveProgress()
		t.speakCurrentBlock()
	case teaching.ActionPauseSpeech:
		t.eng.Pause()
	case teaching.ActionResumeSpeech:
		t.eng.Resume()
		if !t.eng.Speaking() {
			t.speakCurrentBlock()
		}
	case teaching.ActionAdjustSpeed:
		t.adjustSpeed(params[teaching.ParamDelta])
	case teaching.ActionSetVerbosity:
		t.setVerbosity(prefs.Verbosity(params[teaching.ParamLevel]))
	case teaching.ActionNextLesson:
		t.navigate(t.cfg.HasNext, MsgNextLesson, MsgLastLesson, ResultNextLesson)
	case teaching.ActionPreviousLesson:
		t.navigate(t.cfg.HasPrevious, MsgPreviousLesson, MsgFirstLesson, ResultPreviousLesson)
	case teaching.ActionShowHelp:
		t.eng.Speak(command.HelpText(t.machine.State()), true)
	case teaching.ActionOpenSettings:
		t.eng.Speak(t.settingsSummary(), true)
	case teaching.ActionToggleCamera:
		t.eng.Speak(MsgCameraOff, true)
	case teaching.ActionAskAI:
		if t.cfg.Backend == nil {
			t.eng.Speak(MsgAskAIOff, true)
			return
		}
		t.askingAI = true
		t.eng.Speak(MsgAskAI, true)
	case teaching.ActionSubmitAnswer:
		t.handleAnswer(params)
	default:
		slog.Warn("tutor: unhandled action", "action", name)
	}
}

func (t *Tutor) navigate(ok bool, moving, edge string, r Result) {
	if !ok {
		t.eng.Speak(edge, true)
		return
	}
	t.eng.Stop()
	t.eng.Speak(moving, true)
	t.finish(r)
}

func (t *Tutor) adjustSpeed(delta string) {
	d, err := strconv.ParseFloat(delta, 64)
	if err != nil {
		slog.Warn("tutor: bad speed delta", "delta", delta)
		return
	}
	cur := t.eng.Preferences().Rate
	rate := prefs.ClampRate(cur + d)
	if rate == cur {
		if d > 0 {
			t.eng.Speak(MsgFastest, true)
		} else {
			t.eng.Speak(MsgSlowest, true)
		}
		return
	}
	rate = math.Round(rate*100) / 100
	t.updatePreferences(prefs.Patch{Rate: &rate})
	if d > 0 {
		t.eng.Speak(MsgSpeakingFaster, true)
	} else {
		t.eng.Speak(MsgSpeakingSlower, true)
	}
}

func (t *Tutor) setVerbosity(v prefs.Verbosity) {
	if !v.IsValid() {
		return
	}
	t.cfg.Converter.SetVerbosity(v)
	t.updatePreferences(prefs.Patch{Verbosity: &v})
	t.eng.Speak(msgVerbosityPrefix+string(v)+".", true)
}

func (t *Tutor) updatePreferences(patch prefs.Patch) {
	t.eng.UpdatePreferences(patch)
	if t.cfg.Preferences == nil {
		return
	}
	if _, err := t.cfg.Preferences.Update(t.ctx, patch); err != nil {
		slog.Warn("tutor: saving preferences failed", "err", err)
	}
}

func (t *Tutor) settingsSummary() string {
	p := t.eng.Preferences()
	return fmt.Sprintf("Speed %s, verbosity %s. Say faster or slower to change the speed, or say detailed, brief or normal to change the verbosity.",
		strconv.FormatFloat(p.Rate, 'f', -1, 64), p.Verbosity)
}

func (t *Tutor) handleAnswer(params map[string]string) {
	b, ok := t.currentBlock()
	if !ok || b.Type != lesson.BlockQuestion {
		return
	}
	answer := params[command.ParamOption]
	if b.QuestionType == lesson.QuestionFillInBlank {
		answer = params[command.ParamAnswer]
	}
	correct := b.IsCorrect(answer)
	t.answered[t.index] = true
	if correct {
		t.scores[t.index] = ScoreCorrect
	} else {
		t.scores[t.index] = ScoreIncorrect
	}
	t.metrics.RecordAnswer(t.ctx, correct)
	slog.Info("tutor: answer checked", "index", t.index, "answer", answer, "correct", correct)

	var correctText string
	if !correct {
		correctText = b.CorrectAnswerText()
	}
	t.speakScripts(t.cfg.Converter.ConvertFeedback(correct, b.Feedback(correct), correctText))
	t.saveProgress()
}

func (t *Tutor) completeLesson() {
	if !t.machine.Complete() {
		return
	}
	t.submitScore()
}

// FinalScore is the lesson score in 0..100: the mean question score with
// unanswered questions counting zero, or 100 for a lesson without
// questions.
func FinalScore(blocks []lesson.Block, scores map[int]float64) int {
	var questions int
	var sum float64
	for i, b := range blocks {
		if b.Type != lesson.BlockQuestion {
			continue
		}
		questions++
		sum += scores[i]
	}
	if questions == 0 {
		return 100
	}
	return int(math.Round(sum / float64(questions) * 100))
}

func (t *Tutor) submitScore() {
	if t.scoreSent || t.cfg.Backend == nil {
		return
	}
	t.scoreSent = true
	score := FinalScore(t.cfg.Blocks, t.scores)
	ctx, cancel := context.WithTimeout(t.ctx, t.callTimeout)
	defer cancel()
	err := t.cfg.Backend.SubmitScore(ctx, backend.Score{
		UserID:     t.cfg.UserID,
		SubtopicID: t.cfg.SubtopicID,
		FinalScore: score,
	})
	if err != nil {
		slog.Warn("tutor: score submission failed", "subtopic", t.cfg.SubtopicID, "score", score, "err", err)
		return
	}
	slog.Info("tutor: score submitted", "subtopic", t.cfg.SubtopicID, "score", score)
}

func (t *Tutor) askAI(question string) {
	t.askingAI = false
	norm := command.Normalize(question)
	if norm == "cancel" || norm == "never mind" || norm == "nevermind" {
		t.eng.Speak(MsgAskAIFollowUp, true)
		return
	}
	t.eng.Speak(MsgAskAIThinking, true)
	ctx, cancel := context.WithTimeout(t.ctx, t.callTimeout)
	defer cancel()
	answer, err := t.cfg.Backend.Chat(ctx, question, t.blockContext())
	if err != nil {
		slog.Warn("tutor: ask ai failed", "err", err)
		t.eng.Speak(MsgAskAIFailed, false)
		return
	}
	t.eng.Speak(convert.StripMarkdown(answer), false)
	t.eng.Speak(MsgAskAIFollowUp, false)
}

// blockContext is the text of the current block sent with AI questions.
func (t *Tutor) blockContext() string {
	b, ok := t.currentBlock()
	if !ok {
		return ""
	}
	scripts := t.cfg.Converter.ConvertBlock(b, t.index, len(t.cfg.Blocks))
	if len(scripts) > 0 {
		// Drop the navigation hint.
		scripts = scripts[:len(scripts)-1]
	}
	return strings.Join(convert.Texts(scripts), " ")
}

func (t *Tutor) saveProgress() {
	if t.ctx == nil {
		return
	}
	p := &progress.Progress{
		SubtopicID:        t.cfg.SubtopicID,
		CurrentBlockIndex: t.index,
		State:             t.machine.State(),
		QuestionAnswered:  cloneMap(t.answered),
		QuestionScores:    cloneMap(t.scores),
	}
	if err := t.cfg.Progress.Save(t.ctx, p); err != nil {
		slog.Warn("tutor: saving progress failed", "err", err)
	}
}
