package stt

import (
	"errors"
	"testing"

	"github.com/orbitlearn/orbitvoice/pkg/types"
)

func TestStreamEmitThenEnd(t *testing.T) {
	t.Parallel()
	s := NewStream(2)
	if !s.Emit(types.Transcript{Text: "next", Confidence: 0.9}) {
		t.Fatal("Emit returned false on open stream")
	}
	if !s.End(ErrNoSpeech) {
		t.Fatal("first End returned false")
	}
	if s.End(nil) {
		t.Error("second End returned true")
	}
	if s.Emit(types.Transcript{Text: "late"}) {
		t.Error("Emit after End returned true")
	}

	var got []string
	for tr := range s.Finals() {
		got = append(got, tr.Text)
	}
	if len(got) != 1 || got[0] != "next" {
		t.Errorf("finals = %v, want [next]", got)
	}
	if !errors.Is(s.Err(), ErrNoSpeech) {
		t.Errorf("Err = %v, want ErrNoSpeech", s.Err())
	}
}

func TestStreamEndUnblocksEmit(t *testing.T) {
	t.Parallel()
	s := NewStream(0)
	result := make(chan bool)
	go func() { result <- s.Emit(types.Transcript{Text: "stuck"}) }()
	s.End(nil)
	if <-result {
		t.Error("blocked Emit reported delivery after End")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed")
	}
}
