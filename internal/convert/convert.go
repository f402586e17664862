// Package convert turns lesson blocks into the ordered utterances the voice
// engine speaks.
//
// Conversion is a pure function of the block, its position in the lesson and
// the verbosity level. Verbosity only decides whether the lesson intro is
// spoken before the first block. Every block's scripts end with a navigation
// hint telling the learner how to move on.
package convert

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/lesson"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
)

// Script is one utterance plus the silence to leave after it.
type Script struct {
	Text       string
	PauseAfter time.Duration
}

const (
	shortPause  = 300 * time.Millisecond
	normalPause = 500 * time.Millisecond
	itemPause   = 400 * time.Millisecond
	longPause   = 700 * time.Millisecond
)

var ordinals = []string{"First", "Second", "Third", "Fourth", "Fifth", "Sixth", "Seventh", "Eighth", "Ninth", "Tenth"}

// Ordinal returns the spoken label of the n-th list item (1-based):
// "First" through "Tenth", then "Number n".
func Ordinal(n int) string {
	if n >= 1 && n <= len(ordinals) {
		return ordinals[n-1]
	}
	return fmt.Sprintf("Number %d", n)
}

var (
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*|__(.*?)__`)
	italicRe = regexp.MustCompile(`\*([^*\s][^*]*)\*|\b_([^_\s][^_]*)_\b`)
	codeRe   = regexp.MustCompile("`([^`]*)`")
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// StripMarkdown removes emphasis, inline code and heading markers.
func StripMarkdown(s string) string {
	s = boldRe.ReplaceAllString(s, "$1$2")
	s = italicRe.ReplaceAllString(s, "$1$2")
	s = codeRe.ReplaceAllString(s, "$1")
	s = headerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Converter is safe for concurrent use.
type Converter struct {
	mu        sync.RWMutex
	verbosity prefs.Verbosity
}

// New returns a Converter at the given verbosity. An invalid level falls
// back to normal.
func New(v prefs.Verbosity) *Converter {
	c := &Converter{}
	c.SetVerbosity(v)
	return c
}

// SetVerbosity changes the level used by subsequent conversions.
func (c *Converter) SetVerbosity(v prefs.Verbosity) {
	if !v.IsValid() {
		v = prefs.VerbosityNormal
	}
	c.mu.Lock()
	c.verbosity = v
	c.mu.Unlock()
}

// Verbosity returns the current level.
func (c *Converter) Verbosity() prefs.Verbosity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verbosity
}

// ConvertBlock returns the scripts for block number index (0-based) of a
// lesson with total blocks.
func (c *Converter) ConvertBlock(b lesson.Block, index, total int) []Script {
	var scripts []Script

	if index == 0 && c.Verbosity() != prefs.VerbosityShort {
		scripts = append(scripts, Script{Text: intro(total), PauseAfter: normalPause})
	}

	switch b.Type {
	case lesson.BlockParagraph:
		if text := StripMarkdown(b.Content); text != "" {
			scripts = append(scripts, Script{Text: text, PauseAfter: normalPause})
		}
	case lesson.BlockInsight:
		scripts = append(scripts, Script{Text: "Key insight: " + StripMarkdown(b.Content), PauseAfter: longPause})
	case lesson.BlockList:
		scripts = append(scripts, convertList(b.Items)...)
	case lesson.BlockFormula:
		scripts = append(scripts, convertFormula(b.Formula, b.Explanation)...)
	case lesson.BlockSimulation:
		scripts = append(scripts, convertSimulation(b.Description)...)
	case lesson.BlockQuestion:
		scripts = append(scripts, convertQuestion(b)...)
	}

	scripts = append(scripts, navigationHint(b, index, total))
	return scripts
}

func intro(total int) string {
	if total == 1 {
		return "Let's begin. This lesson has one section."
	}
	return fmt.Sprintf("Let's begin. This lesson has %d sections.", total)
}

func convertList(items []string) []Script {
	count := fmt.Sprintf("Here are %d points.", len(items))
	if len(items) == 1 {
		count = "Here is one point."
	}
	scripts := []Script{{Text: count, PauseAfter: shortPause}}
	for i, item := range items {
		scripts = append(scripts, Script{
			Text:       Ordinal(i+1) + ": " + StripMarkdown(item),
			PauseAfter: itemPause,
		})
	}
	return scripts
}

func convertFormula(formula, explanation string) []Script {
	scripts := []Script{
		{Text: "Here is a formula:", PauseAfter: shortPause},
		{Text: MathToSpeech(formula), PauseAfter: normalPause},
	}
	if explanation = StripMarkdown(explanation); explanation != "" {
		scripts = append(scripts, Script{Text: "This means: " + explanation, PauseAfter: normalPause})
	}
	return scripts
}

func convertSimulation(description string) []Script {
	scripts := []Script{{
		Text:       "There is an interactive simulation. You can explore it on screen.",
		PauseAfter: shortPause,
	}}
	if description = StripMarkdown(description); description != "" {
		scripts = append(scripts, Script{Text: "It shows: " + description, PauseAfter: normalPause})
	}
	return scripts
}

func convertQuestion(b lesson.Block) []Script {
	scripts := []Script{
		{Text: "Question:", PauseAfter: shortPause},
		{Text: StripMarkdown(b.Question), PauseAfter: normalPause},
	}
	switch b.QuestionType {
	case lesson.QuestionMCQ:
		scripts = append(scripts, Script{Text: "Your options are:", PauseAfter: shortPause})
		for i, opt := range b.Options {
			scripts = append(scripts, Script{
				Text:       "Option " + lesson.OptionLetter(i) + ": " + StripMarkdown(opt),
				PauseAfter: itemPause,
			})
		}
		scripts = append(scripts, Script{
			Text:       `Say your answer as "option A", "option B", and so on.`,
			PauseAfter: longPause,
		})
	case lesson.QuestionFillInBlank:
		scripts = append(scripts, Script{Text: "Please speak your answer.", PauseAfter: longPause})
	}
	return scripts
}

func navigationHint(b lesson.Block, index, total int) Script {
	last := index >= total-1
	var text string
	switch {
	case b.Type == lesson.BlockQuestion && last:
		text = "After answering, say next to complete the lesson."
	case b.Type == lesson.BlockQuestion:
		text = "After answering, say next to continue."
	case last:
		text = "This is the last section. Say next to complete the lesson."
	default:
		text = "Say next to continue."
	}
	return Script{Text: text, PauseAfter: normalPause}
}

// ConvertFeedback returns the scripts spoken after an answer is checked.
// correctAnswer is announced only for wrong answers and may be empty.
func (c *Converter) ConvertFeedback(isCorrect bool, explanation, correctAnswer string) []Script {
	var scripts []Script
	if isCorrect {
		scripts = append(scripts, Script{Text: "Correct! Great job!", PauseAfter: normalPause})
	} else {
		scripts = append(scripts, Script{Text: "Not quite right.", PauseAfter: itemPause})
		if correctAnswer != "" {
			scripts = append(scripts, Script{Text: "The correct answer is " + correctAnswer + ".", PauseAfter: normalPause})
		}
	}
	if explanation = StripMarkdown(explanation); explanation != "" {
		scripts = append(scripts, Script{Text: explanation, PauseAfter: normalPause})
	}
	return append(scripts, Script{Text: "Say next to continue.", PauseAfter: normalPause})
}

// ProgressAnnouncement describes the learner's position, 1-based.
func (c *Converter) ProgressAnnouncement(current, total int) Script {
	if c.Verbosity() == prefs.VerbosityShort {
		return Script{Text: fmt.Sprintf("Section %d of %d.", current, total), PauseAfter: shortPause}
	}
	return Script{
		Text:       fmt.Sprintf("You're on section %d of %d. %s", current, total, encouragement(current, total)),
		PauseAfter: normalPause,
	}
}

func encouragement(current, total int) string {
	if total <= 0 {
		return "Let's keep going!"
	}
	p := float64(current) / float64(total)
	switch {
	case p < 0.25:
		return "Let's keep going!"
	case p < 0.5:
		return "You're making good progress!"
	case p < 0.75:
		return "More than halfway there!"
	case p < 1:
		return "Almost done!"
	default:
		return "Great work!"
	}
}

// TextsForPrefetch returns the script texts of up to count blocks starting at
// start, in speaking order, for warming the audio cache.
func (c *Converter) TextsForPrefetch(blocks []lesson.Block, start, count int) []string {
	if start < 0 {
		start = 0
	}
	end := min(start+count, len(blocks))
	var texts []string
	for i := start; i < end; i++ {
		for _, s := range c.ConvertBlock(blocks[i], i, len(blocks)) {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

// Texts flattens scripts to their text.
func Texts(scripts []Script) []string {
	out := make([]string, len(scripts))
	for i, s := range scripts {
		out[i] = s.Text
	}
	return out
}
