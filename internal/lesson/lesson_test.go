package lesson

import (
	"testing"
)

const sample = `{
  "cached": true,
  "blocks": [
    {"type": "paragraph", "content": "Plants make **food** from light."},
    {"type": "formula", "formula": "E = mc^2", "explanation": "Energy equals mass times c squared."},
    {"type": "list", "items": ["Roots", "Stem", "Leaves"]},
    {"type": "question", "questionType": "mcq", "question": "Where does photosynthesis happen?",
     "options": ["Roots", "Leaves", "Stem"], "correctIndex": 1,
     "explanations": {"correct": "Leaves hold chlorophyll.", "incorrect": ["Chlorophyll lives in leaves."]}},
    {"type": "question", "questionType": "fill_in_blank", "question": "Plants release ____.",
     "correctAnswer": "Oxygen", "acceptedAnswers": ["O2"], "explanations": {"correct": "Yes."}}
  ]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !c.Cached || len(c.Blocks) != 5 {
		t.Fatalf("got cached=%v blocks=%d", c.Cached, len(c.Blocks))
	}
	if c.Blocks[3].CorrectIndex == nil || *c.Blocks[3].CorrectIndex != 1 {
		t.Errorf("correctIndex not decoded: %+v", c.Blocks[3])
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bad json":        `{"blocks": [`,
		"unknown type":    `{"blocks": [{"type": "video"}]}`,
		"mcq no options":  `{"blocks": [{"type": "question", "questionType": "mcq", "question": "?"}]}`,
		"index out range": `{"blocks": [{"type": "question", "questionType": "mcq", "options": ["a"], "correctIndex": 3}]}`,
		"bad qtype":       `{"blocks": [{"type": "question", "questionType": "essay"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode([]byte(doc)); err == nil {
				t.Errorf("Decode(%s): want error", name)
			}
		})
	}
}

func TestIsCorrect(t *testing.T) {
	t.Parallel()

	c, err := Decode([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	mcq, fill := c.Blocks[3], c.Blocks[4]

	tests := []struct {
		name   string
		block  Block
		answer string
		want   bool
	}{
		{"mcq correct", mcq, "B", true},
		{"mcq lowercase", mcq, "b", true},
		{"mcq wrong", mcq, "A", false},
		{"mcq out of range", mcq, "D", false},
		{"fill exact", fill, "oxygen", true},
		{"fill accepted alt", fill, " o2 ", true},
		{"fill wrong", fill, "carbon", false},
		{"fill empty", fill, "", false},
		{"not a question", c.Blocks[0], "A", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.block.IsCorrect(tc.answer); got != tc.want {
				t.Errorf("IsCorrect(%q) = %v, want %v", tc.answer, got, tc.want)
			}
		})
	}
}

func TestMCQWithoutIndex(t *testing.T) {
	t.Parallel()
	b := Block{Type: BlockQuestion, QuestionType: QuestionMCQ, Options: []string{"Red", "Blue"}, CorrectAnswer: "blue"}
	if !b.IsCorrect("B") || b.IsCorrect("A") {
		t.Error("option text comparison failed")
	}
}

func TestAnswerTextAndFeedback(t *testing.T) {
	t.Parallel()

	c, _ := Decode([]byte(sample))
	mcq, fill := c.Blocks[3], c.Blocks[4]

	if got := mcq.CorrectAnswerText(); got != "option B, Leaves" {
		t.Errorf("mcq CorrectAnswerText = %q", got)
	}
	if got := fill.CorrectAnswerText(); got != "Oxygen" {
		t.Errorf("fill CorrectAnswerText = %q", got)
	}
	if got := mcq.Feedback(false); got != "Chlorophyll lives in leaves." {
		t.Errorf("Feedback(false) = %q", got)
	}
	if got := fill.Feedback(false); got != "Try again next time." {
		t.Errorf("Feedback(false) fallback = %q", got)
	}
}

func TestOptionLetters(t *testing.T) {
	t.Parallel()
	for i, want := range []string{"A", "B", "C", "D"} {
		if got := OptionLetter(i); got != want {
			t.Errorf("OptionLetter(%d) = %q", i, got)
		}
		if got := OptionIndex(want); got != i {
			t.Errorf("OptionIndex(%q) = %d", want, got)
		}
	}
	if OptionIndex("AB") != -1 || OptionIndex("1") != -1 {
		t.Error("OptionIndex accepted an invalid label")
	}
}
