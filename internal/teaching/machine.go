// Package teaching implements the finite-state controller of a voice lesson.
//
// The [Machine] owns the current [types.State] and nothing else: it holds no
// lesson data. Routed commands are validated against the current state and
// turned into named side-effect actions delivered through [Config.OnAction].
// The host performs them (advance the block, score an answer, navigate) and
// drives the content-dependent transitions with [Machine.EnterQuestion] and
// [Machine.Complete].
package teaching

import (
	"log/slog"
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/command"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Side-effect actions emitted through [Config.OnAction].
const (
	ActionStartLesson    = "start_lesson"
	ActionNextBlock      = "next_block"
	ActionNextLesson     = "next_lesson"
	ActionPreviousLesson = "previous_lesson"
	ActionRepeatBlock    = "repeat_block"
	ActionPreviousBlock  = "previous_block"
	ActionPauseSpeech    = "pause_speech"
	ActionResumeSpeech   = "resume_speech"
	ActionAdjustSpeed    = "adjust_speed"
	ActionSetVerbosity   = "set_verbosity"
	ActionShowHelp       = "show_help"
	ActionOpenSettings   = "open_settings"
	ActionToggleCamera   = "toggle_camera"
	ActionAskAI          = "ask_ai"
	ActionSubmitAnswer   = "submit_answer"
	ActionRepeatQuestion = "repeat_question"
)

// Parameter keys of emitted actions.
const (
	ParamDelta  = "delta"
	ParamLevel  = "level"
	ParamCamera = "camera"
)

// SpeedStep is the rate change requested by speed_up and slow_down.
const SpeedStep = 0.2

// Prompts spoken on entry to each state.
var prompts = map[types.State]string{
	types.StateIdle:      "Voice mode ready. Say start to begin the lesson.",
	types.StateTeaching:  "Continuing lesson. Say next to continue or pause to stop.",
	types.StateQuestion:  "Please answer the question. Say repeat to hear it again.",
	types.StatePaused:    "Lesson paused. Say resume to continue.",
	types.StateCompleted: "Lesson completed! Say next for the next lesson.",
	types.StateError:     "An error occurred. Say start to restart or help for assistance.",
}

// Prompt returns the entry prompt of s.
func Prompt(s types.State) string { return prompts[s] }

// Config carries the machine's callbacks. All are optional. Callbacks run
// synchronously on the calling goroutine after the state has been updated
// and the lock released, so they may call back into the Machine.
type Config struct {
	OnStateChange  func(from, to types.State)
	OnPromptNeeded func(prompt string)
	OnAction       func(action string, params map[string]string)
}

// Machine is safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   types.State
	cfg     Config
	pending []func() // callbacks queued under mu, run after unlock
}

// New returns a Machine in [types.StateIdle].
func New(cfg Config) *Machine {
	return &Machine{state: types.StateIdle, cfg: cfg}
}

// State returns the current state.
func (m *Machine) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TransitionTo moves to s. It is a no-op when already in s; otherwise it
// notifies OnStateChange and then emits the entry prompt.
func (m *Machine) TransitionTo(s types.State) {
	m.mu.Lock()
	m.transition(s)
	m.unlock()
}

// unlock releases mu and then runs the callbacks queued while it was held.
func (m *Machine) unlock() {
	fns := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Machine) transition(to types.State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	slog.Debug("teaching: state change", "from", from, "to", to)
	if fn := m.cfg.OnStateChange; fn != nil {
		m.pending = append(m.pending, func() { fn(from, to) })
	}
	if p, fn := prompts[to], m.cfg.OnPromptNeeded; p != "" && fn != nil {
		m.pending = append(m.pending, func() { fn(p) })
	}
}

func (m *Machine) emit(action string, params map[string]string) {
	if fn := m.cfg.OnAction; fn != nil {
		m.pending = append(m.pending, func() { fn(action, params) })
	}
}

// ProcessCommand applies cmd to the current state. It returns false when the
// state does not accept the command; the caller then speaks a "not
// recognized" fallback and the state is unchanged.
func (m *Machine) ProcessCommand(cmd types.Command) bool {
	m.mu.Lock()
	defer m.unlock()

	switch m.state {
	case types.StateIdle:
		if cmd.Action == command.ActionStart {
			m.transition(types.StateTeaching)
			m.emit(ActionStartLesson, nil)
			return true
		}
	case types.StateTeaching:
		return m.teachingCommand(cmd)
	case types.StateQuestion:
		return m.questionCommand(cmd)
	case types.StatePaused:
		switch cmd.Action {
		case command.ActionResume:
			m.transition(types.StateTeaching)
			m.emit(ActionResumeSpeech, nil)
			return true
		case command.ActionHelp:
			m.emit(ActionShowHelp, nil)
			return true
		}
	case types.StateCompleted:
		if cmd.Action == command.ActionNext {
			m.emit(ActionNextLesson, nil)
			return true
		}
	case types.StateError:
		switch cmd.Action {
		case command.ActionStart:
			m.transition(types.StateIdle)
			return true
		case command.ActionHelp:
			m.emit(ActionShowHelp, nil)
			return true
		}
	}
	return false
}

func (m *Machine) teachingCommand(cmd types.Command) bool {
	switch cmd.Action {
	case command.ActionNext:
		m.emit(ActionNextBlock, nil)
	case command.ActionNextLesson:
		m.emit(ActionNextLesson, nil)
	case command.ActionPreviousLesson:
		m.emit(ActionPreviousLesson, nil)
	case command.ActionRepeat:
		m.emit(ActionRepeatBlock, nil)
	case command.ActionPause:
		m.transition(types.StatePaused)
		m.emit(ActionPauseSpeech, nil)
	case command.ActionBack:
		m.emit(ActionPreviousBlock, nil)
	case command.ActionSpeedUp, command.ActionSlowDown:
		m.adjustSpeed(cmd.Action)
	case command.ActionVerbosityDetailed:
		m.emit(ActionSetVerbosity, map[string]string{ParamLevel: "detailed"})
	case command.ActionVerbosityShort:
		m.emit(ActionSetVerbosity, map[string]string{ParamLevel: "short"})
	case command.ActionVerbosityNormal:
		m.emit(ActionSetVerbosity, map[string]string{ParamLevel: "normal"})
	case command.ActionHelp:
		m.emit(ActionShowHelp, nil)
	case command.ActionOpenSettings:
		m.emit(ActionOpenSettings, nil)
	case command.ActionCameraOn:
		m.emit(ActionToggleCamera, map[string]string{ParamCamera: "on"})
	case command.ActionCameraOff:
		m.emit(ActionToggleCamera, map[string]string{ParamCamera: "off"})
	case command.ActionAskAI:
		m.emit(ActionAskAI, nil)
	default:
		return false
	}
	return true
}

func (m *Machine) questionCommand(cmd types.Command) bool {
	switch cmd.Action {
	case command.ActionSelectOption, command.ActionFillIn:
		m.emit(ActionSubmitAnswer, cmd.Parameters)
		m.transition(types.StateTeaching)
	case command.ActionRepeat:
		m.emit(ActionRepeatQuestion, nil)
	case command.ActionHelp:
		m.emit(ActionShowHelp, nil)
	case command.ActionSpeedUp, command.ActionSlowDown:
		m.adjustSpeed(cmd.Action)
	default:
		return false
	}
	return true
}

func (m *Machine) adjustSpeed(action string) {
	delta := "0.2"
	if action == command.ActionSlowDown {
		delta = "-0.2"
	}
	m.emit(ActionAdjustSpeed, map[string]string{ParamDelta: delta})
}

// EnterQuestion moves from TEACHING to QUESTION once a question block has
// been presented. It reports whether the transition happened.
func (m *Machine) EnterQuestion() bool {
	m.mu.Lock()
	defer m.unlock()
	if m.state != types.StateTeaching {
		return false
	}
	m.transition(types.StateQuestion)
	return true
}

// Complete moves from TEACHING to COMPLETED when no blocks remain. It
// reports whether the transition happened.
func (m *Machine) Complete() bool {
	m.mu.Lock()
	defer m.unlock()
	if m.state != types.StateTeaching {
		return false
	}
	m.transition(types.StateCompleted)
	return true
}

// Fail moves to ERROR after an unrecoverable engine failure.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	defer m.unlock()
	slog.Error("teaching: unrecoverable failure", "state", m.state, "err", err)
	m.transition(types.StateError)
}

// Restore sets the state recorded in saved progress without emitting a
// prompt. COMPLETED and ERROR restore as TEACHING so the learner can keep
// navigating.
func (m *Machine) Restore(s types.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch s {
	case types.StateTeaching, types.StateQuestion, types.StatePaused:
		m.state = s
	default:
		m.state = types.StateTeaching
	}
}

// Reset returns to IDLE.
func (m *Machine) Reset() {
	m.TransitionTo(types.StateIdle)
}

// AllowedActions lists the router actions the current state accepts.
func (m *Machine) AllowedActions() []string {
	return AllowedActions(m.State())
}

// AllowedActions lists the router actions accepted in s.
func AllowedActions(s types.State) []string {
	switch s {
	case types.StateIdle:
		return []string{command.ActionStart}
	case types.StateTeaching:
		return []string{
			command.ActionNext, command.ActionNextLesson, command.ActionPreviousLesson,
			command.ActionRepeat, command.ActionPause, command.ActionBack,
			command.ActionSpeedUp, command.ActionSlowDown,
			command.ActionVerbosityDetailed, command.ActionVerbosityShort, command.ActionVerbosityNormal,
			command.ActionHelp, command.ActionOpenSettings,
			command.ActionCameraOn, command.ActionCameraOff, command.ActionAskAI,
		}
	case types.StateQuestion:
		return []string{
			command.ActionSelectOption, command.ActionFillIn, command.ActionRepeat,
			command.ActionHelp, command.ActionSpeedUp, command.ActionSlowDown,
		}
	case types.StatePaused:
		return []string{command.ActionResume, command.ActionHelp}
	case types.StateCompleted:
		return []string{command.ActionNext}
	case types.StateError:
		return []string{command.ActionStart, command.ActionHelp}
	}
	return nil
}
