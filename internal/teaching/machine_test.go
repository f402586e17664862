package teaching

import (
	"errors"
	"slices"
	"testing"

	"github.com/orbitlearn/orbitvoice/internal/command"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

type recorder struct {
	changes [][2]types.State
	prompts []string
	actions []string
	params  []map[string]string
}

func (r *recorder) config() Config {
	return Config{
		OnStateChange:  func(from, to types.State) { r.changes = append(r.changes, [2]types.State{from, to}) },
		OnPromptNeeded: func(p string) { r.prompts = append(r.prompts, p) },
		OnAction: func(a string, p map[string]string) {
			r.actions = append(r.actions, a)
			r.params = append(r.params, p)
		},
	}
}

func cmd(action string) types.Command { return types.Command{Action: action} }

func TestMachine_StartsIdle(t *testing.T) {
	t.Parallel()
	if got := New(Config{}).State(); got != types.StateIdle {
		t.Errorf("State() = %s, want IDLE", got)
	}
}

func TestMachine_TransitionTo(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())

	m.TransitionTo(types.StateIdle)
	if len(r.changes) != 0 || len(r.prompts) != 0 {
		t.Fatalf("same-state transition should be a no-op, got %v %v", r.changes, r.prompts)
	}

	m.TransitionTo(types.StatePaused)
	if m.State() != types.StatePaused {
		t.Fatalf("State() = %s", m.State())
	}
	if len(r.changes) != 1 || r.changes[0] != [2]types.State{types.StateIdle, types.StatePaused} {
		t.Errorf("changes = %v", r.changes)
	}
	if len(r.prompts) != 1 || r.prompts[0] != Prompt(types.StatePaused) {
		t.Errorf("prompts = %v", r.prompts)
	}
}

func TestMachine_Start(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())

	if m.ProcessCommand(cmd(command.ActionNext)) {
		t.Fatal("next must be rejected in IDLE")
	}
	if !m.ProcessCommand(cmd(command.ActionStart)) {
		t.Fatal("start rejected in IDLE")
	}
	if m.State() != types.StateTeaching {
		t.Errorf("State() = %s, want TEACHING", m.State())
	}
	if !slices.Equal(r.actions, []string{ActionStartLesson}) {
		t.Errorf("actions = %v", r.actions)
	}
}

func TestMachine_RejectsOutOfContext(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())
	m.TransitionTo(types.StateTeaching)
	r.actions = nil

	if m.ProcessCommand(types.Command{Action: command.ActionSelectOption, Parameters: map[string]string{"option": "A"}}) {
		t.Error("select_option must be rejected in TEACHING")
	}
	if m.ProcessCommand(cmd(command.ActionResume)) {
		t.Error("resume must be rejected in TEACHING")
	}
	if len(r.actions) != 0 || m.State() != types.StateTeaching {
		t.Errorf("rejected commands must have no effect: actions=%v state=%s", r.actions, m.State())
	}
}

func TestMachine_TeachingActions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action string
		want   string
		param  [2]string
	}{
		{command.ActionNext, ActionNextBlock, [2]string{}},
		{command.ActionNextLesson, ActionNextLesson, [2]string{}},
		{command.ActionPreviousLesson, ActionPreviousLesson, [2]string{}},
		{command.ActionRepeat, ActionRepeatBlock, [2]string{}},
		{command.ActionBack, ActionPreviousBlock, [2]string{}},
		{command.ActionSpeedUp, ActionAdjustSpeed, [2]string{ParamDelta, "0.2"}},
		{command.ActionSlowDown, ActionAdjustSpeed, [2]string{ParamDelta, "-0.2"}},
		{command.ActionVerbosityDetailed, ActionSetVerbosity, [2]string{ParamLevel, "detailed"}},
		{command.ActionVerbosityShort, ActionSetVerbosity, [2]string{ParamLevel, "short"}},
		{command.ActionVerbosityNormal, ActionSetVerbosity, [2]string{ParamLevel, "normal"}},
		{command.ActionHelp, ActionShowHelp, [2]string{}},
		{command.ActionOpenSettings, ActionOpenSettings, [2]string{}},
		{command.ActionCameraOn, ActionToggleCamera, [2]string{ParamCamera, "on"}},
		{command.ActionCameraOff, ActionToggleCamera, [2]string{ParamCamera, "off"}},
		{command.ActionAskAI, ActionAskAI, [2]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			t.Parallel()
			r := &recorder{}
			m := New(r.config())
			m.TransitionTo(types.StateTeaching)

			if !m.ProcessCommand(cmd(tt.action)) {
				t.Fatalf("%s rejected in TEACHING", tt.action)
			}
			if len(r.actions) != 1 || r.actions[0] != tt.want {
				t.Fatalf("actions = %v, want [%s]", r.actions, tt.want)
			}
			if tt.param[0] != "" && r.params[0][tt.param[0]] != tt.param[1] {
				t.Errorf("param %s = %q, want %q", tt.param[0], r.params[0][tt.param[0]], tt.param[1])
			}
			if m.State() != types.StateTeaching {
				t.Errorf("State() = %s, want TEACHING", m.State())
			}
		})
	}
}

func TestMachine_PauseResume(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())
	m.TransitionTo(types.StateTeaching)

	if !m.ProcessCommand(cmd(command.ActionPause)) || m.State() != types.StatePaused {
		t.Fatalf("pause: state = %s", m.State())
	}
	if m.ProcessCommand(cmd(command.ActionNext)) {
		t.Error("next must be rejected while paused")
	}
	if !m.ProcessCommand(cmd(command.ActionHelp)) {
		t.Error("help rejected while paused")
	}
	if !m.ProcessCommand(cmd(command.ActionResume)) || m.State() != types.StateTeaching {
		t.Fatalf("resume: state = %s", m.State())
	}
	want := []string{ActionPauseSpeech, ActionShowHelp, ActionResumeSpeech}
	if !slices.Equal(r.actions, want) {
		t.Errorf("actions = %v, want %v", r.actions, want)
	}
}

func TestMachine_Question(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())

	if m.EnterQuestion() {
		t.Fatal("EnterQuestion must fail outside TEACHING")
	}
	m.TransitionTo(types.StateTeaching)
	if !m.EnterQuestion() || m.State() != types.StateQuestion {
		t.Fatalf("EnterQuestion: state = %s", m.State())
	}
	if m.ProcessCommand(cmd(command.ActionNext)) {
		t.Error("next must be rejected in QUESTION")
	}
	if !m.ProcessCommand(cmd(command.ActionRepeat)) {
		t.Error("repeat rejected in QUESTION")
	}
	if !m.ProcessCommand(cmd(command.ActionSlowDown)) {
		t.Error("slow_down rejected in QUESTION")
	}

	answer := types.Command{Type: types.CommandAnswer, Action: command.ActionSelectOption, Parameters: map[string]string{"option": "A"}}
	if !m.ProcessCommand(answer) {
		t.Fatal("select_option rejected in QUESTION")
	}
	if m.State() != types.StateTeaching {
		t.Errorf("after answer State() = %s, want TEACHING", m.State())
	}
	want := []string{ActionRepeatQuestion, ActionAdjustSpeed, ActionSubmitAnswer}
	if !slices.Equal(r.actions, want) {
		t.Fatalf("actions = %v, want %v", r.actions, want)
	}
	if r.params[2]["option"] != "A" {
		t.Errorf("submit_answer params = %v", r.params[2])
	}
}

func TestMachine_CompleteAndNextLesson(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())

	if m.Complete() {
		t.Fatal("Complete must fail from IDLE")
	}
	m.TransitionTo(types.StateTeaching)
	if !m.Complete() || m.State() != types.StateCompleted {
		t.Fatalf("Complete: state = %s", m.State())
	}
	if m.ProcessCommand(cmd(command.ActionRepeat)) {
		t.Error("repeat must be rejected in COMPLETED")
	}
	if !m.ProcessCommand(cmd(command.ActionNext)) {
		t.Fatal("next rejected in COMPLETED")
	}
	if r.actions[len(r.actions)-1] != ActionNextLesson {
		t.Errorf("COMPLETED next emitted %v, want next_lesson", r.actions)
	}
}

func TestMachine_ErrorRecovery(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())
	m.TransitionTo(types.StateTeaching)

	m.Fail(errors.New("microphone unplugged"))
	if m.State() != types.StateError {
		t.Fatalf("State() = %s, want ERROR", m.State())
	}
	if m.ProcessCommand(cmd(command.ActionNext)) {
		t.Error("next must be rejected in ERROR")
	}
	if !m.ProcessCommand(cmd(command.ActionHelp)) {
		t.Error("help rejected in ERROR")
	}
	if !m.ProcessCommand(cmd(command.ActionStart)) || m.State() != types.StateIdle {
		t.Fatalf("start in ERROR: state = %s, want IDLE", m.State())
	}
}

func TestMachine_CallbacksMayReenter(t *testing.T) {
	t.Parallel()
	var m *Machine
	m = New(Config{OnAction: func(action string, _ map[string]string) {
		if action == ActionNextBlock {
			m.Complete()
		}
	}})
	m.TransitionTo(types.StateTeaching)
	if !m.ProcessCommand(cmd(command.ActionNext)) {
		t.Fatal("next rejected")
	}
	if m.State() != types.StateCompleted {
		t.Errorf("State() = %s, want COMPLETED", m.State())
	}
}

func TestMachine_RestoreAndReset(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	m := New(r.config())

	m.Restore(types.StateQuestion)
	if m.State() != types.StateQuestion || len(r.prompts) != 0 {
		t.Errorf("Restore: state = %s prompts = %v", m.State(), r.prompts)
	}
	m.Restore(types.StateCompleted)
	if m.State() != types.StateTeaching {
		t.Errorf("Restore(COMPLETED) = %s, want TEACHING", m.State())
	}
	m.Reset()
	if m.State() != types.StateIdle {
		t.Errorf("Reset: state = %s", m.State())
	}
}

func TestAllowedActions(t *testing.T) {
	t.Parallel()
	for _, s := range types.States {
		allowed := AllowedActions(s)
		if len(allowed) == 0 {
			t.Errorf("AllowedActions(%s) empty", s)
		}
		for _, a := range allowed {
			m := New(Config{})
			m.Restore(types.StateTeaching)
			m.TransitionTo(s)
			if !m.ProcessCommand(types.Command{Action: a, Parameters: map[string]string{}}) {
				t.Errorf("state %s lists %s but rejects it", s, a)
			}
		}
	}
	if got := New(Config{}).AllowedActions(); !slices.Equal(got, []string{command.ActionStart}) {
		t.Errorf("AllowedActions() = %v", got)
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()
	for _, s := range types.States {
		if Prompt(s) == "" {
			t.Errorf("Prompt(%s) empty", s)
		}
	}
}
