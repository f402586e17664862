// Package lesson holds the teaching content consumed by the voice pipeline:
// the blocks of one subtopic as served by the Orbit backend.
//
// Blocks are immutable once fetched. The voice pipeline never edits them; it
// converts them to speech and checks answers against the correctness data
// each question carries.
package lesson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BlockType discriminates the [Block] union.
type BlockType string

const (
	BlockParagraph  BlockType = "paragraph"
	BlockFormula    BlockType = "formula"
	BlockInsight    BlockType = "insight"
	BlockList       BlockType = "list"
	BlockSimulation BlockType = "simulation"
	BlockQuestion   BlockType = "question"
)

// IsValid reports whether t is a known block type.
func (t BlockType) IsValid() bool {
	switch t {
	case BlockParagraph, BlockFormula, BlockInsight, BlockList, BlockSimulation, BlockQuestion:
		return true
	}
	return false
}

// QuestionType selects how a question block is answered.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionFillInBlank QuestionType = "fill_in_blank"
)

// Explanations is the feedback attached to a question.
type Explanations struct {
	Correct   string   `json:"correct"`
	Incorrect []string `json:"incorrect,omitempty"`
}

// Block is one unit of teaching content. Only the fields relevant to Type
// are populated.
type Block struct {
	Type BlockType `json:"type"`

	// paragraph, insight
	Content string `json:"content,omitempty"`

	// formula
	Formula     string `json:"formula,omitempty"`
	Explanation string `json:"explanation,omitempty"`

	// list
	Items []string `json:"items,omitempty"`

	// simulation
	HTML        string `json:"html,omitempty"`
	Description string `json:"description,omitempty"`

	// question
	QuestionType    QuestionType `json:"questionType,omitempty"`
	Question        string       `json:"question,omitempty"`
	Options         []string     `json:"options,omitempty"`
	CorrectIndex    *int         `json:"correctIndex,omitempty"`
	CorrectAnswer   string       `json:"correctAnswer,omitempty"`
	AcceptedAnswers []string     `json:"acceptedAnswers,omitempty"`
	Explanations    Explanations `json:"explanations,omitzero"`
}

// Content is the payload of GET /api/teaching/{subtopic}.
type Content struct {
	Blocks []Block `json:"blocks"`
	Cached bool    `json:"cached"`
}

// Decode parses a teaching content document and validates every block.
func Decode(data []byte) (*Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("lesson: decode: %w", err)
	}
	for i, b := range c.Blocks {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("lesson: block %d: %w", i, err)
		}
	}
	return &c, nil
}

// Validate checks that the block carries the fields its type requires.
func (b Block) Validate() error {
	if !b.Type.IsValid() {
		return fmt.Errorf("unknown block type %q", b.Type)
	}
	if b.Type != BlockQuestion {
		return nil
	}
	switch b.QuestionType {
	case QuestionMCQ:
		if len(b.Options) == 0 {
			return fmt.Errorf("mcq question has no options")
		}
		if b.CorrectIndex != nil && (*b.CorrectIndex < 0 || *b.CorrectIndex >= len(b.Options)) {
			return fmt.Errorf("correctIndex %d out of range", *b.CorrectIndex)
		}
	case QuestionFillInBlank:
	default:
		return fmt.Errorf("unknown question type %q", b.QuestionType)
	}
	return nil
}

// OptionLetter returns the spoken label of option i: A, B, C, ...
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// OptionIndex converts a letter label back to an option index, or -1.
func OptionIndex(letter string) int {
	l := strings.ToUpper(strings.TrimSpace(letter))
	if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
		return -1
	}
	return int(l[0] - 'A')
}

// IsCorrect checks answer against the question's correctness data. For
// multiple choice, answer is an option letter. For fill-in-the-blank it is
// compared case-insensitively against the accepted answers.
func (b Block) IsCorrect(answer string) bool {
	if b.Type != BlockQuestion {
		return false
	}
	switch b.QuestionType {
	case QuestionMCQ:
		idx := OptionIndex(answer)
		if idx < 0 || idx >= len(b.Options) {
			return false
		}
		if b.CorrectIndex != nil {
			return idx == *b.CorrectIndex
		}
		return normalize(b.Options[idx]) == normalize(b.CorrectAnswer)
	case QuestionFillInBlank:
		got := normalize(answer)
		if got == "" {
			return false
		}
		for _, a := range b.accepted() {
			if normalize(a) == got {
				return true
			}
		}
	}
	return false
}

// CorrectAnswerText is the spoken form of the right answer, e.g.
// "option B, photosynthesis".
func (b Block) CorrectAnswerText() string {
	switch b.QuestionType {
	case QuestionMCQ:
		if b.CorrectIndex != nil {
			i := *b.CorrectIndex
			return "option " + OptionLetter(i) + ", " + b.Options[i]
		}
		return b.CorrectAnswer
	case QuestionFillInBlank:
		if acc := b.accepted(); len(acc) > 0 {
			return acc[0]
		}
	}
	return ""
}

// Feedback returns the explanation to speak after an answer.
func (b Block) Feedback(correct bool) string {
	if correct {
		return b.Explanations.Correct
	}
	if len(b.Explanations.Incorrect) > 0 {
		return b.Explanations.Incorrect[0]
	}
	return "Try again next time."
}

func (b Block) accepted() []string {
	out := make([]string, 0, len(b.AcceptedAnswers)+1)
	if b.CorrectAnswer != "" {
		out = append(out, b.CorrectAnswer)
	}
	return append(out, b.AcceptedAnswers...)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
