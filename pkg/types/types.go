// Package types defines the vocabulary shared by the voice pipeline packages.
//
// The router produces [Command] values, the teaching state machine consumes
// them and guards them by [State], and recognizers deliver [Transcript]
// values. Keeping them here avoids import cycles between those packages.
package types

import "strings"

// State is the teaching state machine's current mode. It decides which
// commands are valid.
type State string

const (
	StateIdle      State = "IDLE"
	StateTeaching  State = "TEACHING"
	StateQuestion  State = "QUESTION"
	StatePaused    State = "PAUSED"
	StateCompleted State = "COMPLETED"
	StateError     State = "ERROR"
)

// States lists every state in declaration order.
var States = []State{StateIdle, StateTeaching, StateQuestion, StatePaused, StateCompleted, StateError}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// ParseState converts a case-insensitive name to a State.
func ParseState(name string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(name)))
	return s, s.IsValid()
}

// CommandType groups commands by intent.
type CommandType string

const (
	CommandNavigation    CommandType = "navigation"
	CommandAnswer        CommandType = "answer"
	CommandAccessibility CommandType = "accessibility"
)

// Command is one routed utterance. It is produced per recognition result and
// consumed once.
type Command struct {
	Type       CommandType
	Action     string
	Parameters map[string]string
}

// Param returns the named parameter or "".
func (c Command) Param(name string) string {
	return c.Parameters[name]
}

// Transcript is one final recognition result.
type Transcript struct {
	Text string

	// Confidence in [0,1]. Zero when the recognizer does not report one.
	Confidence float64
}
