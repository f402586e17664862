// Package command maps recognized speech to typed voice commands.
//
// The [Router] normalizes an utterance (case, punctuation, whitespace) and
// matches it against two fixed phrase tables: navigation first, then
// accessibility. Inside a question it falls back to an answer parser. When
// nothing matches and a phonetic corrector is configured, misheard command
// words are repaired and the utterance is routed once more.
package command

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/orbitlearn/orbitvoice/internal/lesson"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Actions produced by the router.
const (
	ActionStart              = "start"
	ActionNext               = "next"
	ActionNextLesson         = "next_lesson"
	ActionPreviousLesson     = "previous_lesson"
	ActionRepeat             = "repeat"
	ActionPause              = "pause"
	ActionResume             = "resume"
	ActionBack               = "back"
	ActionSpeedUp            = "speed_up"
	ActionSlowDown           = "slow_down"
	ActionHelp               = "help"
	ActionOpenSettings       = "open_settings"
	ActionCloseSettings      = "close_settings"
	ActionReturnToCurriculum = "return_to_curriculum"
	ActionCurrentPosition    = "current_position"
	ActionShowProgress       = "show_progress"
	ActionVerbosityDetailed  = "verbosity_detailed"
	ActionVerbosityShort     = "verbosity_short"
	ActionVerbosityNormal    = "verbosity_normal"
	ActionCameraOn           = "camera_on"
	ActionCameraOff          = "camera_off"
	ActionAskAI              = "ask_ai"
	ActionSelectOption       = "select_option"
	ActionFillIn             = "fill_in"
	ActionSubmitAnswer       = "submit_answer"
)

// Parameter names.
const (
	ParamOption = "option"
	ParamAnswer = "answer"
)

// Context is the routing context supplied by the caller.
type Context struct {
	State        types.State
	QuestionType lesson.QuestionType
}

// Corrector rewrites misheard words of utterance toward vocabulary.
type Corrector interface {
	Correct(utterance string, vocabulary []string) (corrected string, changed bool)
}

type phraseGroup struct {
	patterns []string
	command  types.Command
}

func nav(action string, patterns ...string) phraseGroup {
	return phraseGroup{patterns: patterns, command: types.Command{Type: types.CommandNavigation, Action: action}}
}

func acc(action string, patterns ...string) phraseGroup {
	return phraseGroup{patterns: patterns, command: types.Command{Type: types.CommandAccessibility, Action: action}}
}

var navigationTable = []phraseGroup{
	nav(ActionStart, "start", "begin", "let's start", "let's begin", "start lesson", "begin lesson"),
	nav(ActionNextLesson, "next lesson", "go to next lesson", "next topic", "next chapter"),
	nav(ActionPreviousLesson, "previous lesson", "go to previous lesson", "last lesson", "previous topic", "previous chapter"),
	nav(ActionNext, "next", "continue", "go on", "proceed", "move on", "keep going", "next section", "next slide", "forward"),
	nav(ActionRepeat, "repeat", "say that again", "say again", "what", "pardon", "come again", "repeat that", "one more time", "again"),
	nav(ActionPause, "pause", "stop", "wait", "hold on", "hold"),
	nav(ActionResume, "resume", "go on", "continue", "keep going"),
	nav(ActionBack, "back", "go back", "previous", "last one", "previous section", "go to previous", "backwards"),
}

var accessibilityTable = []phraseGroup{
	acc(ActionSpeedUp, "faster", "speak faster", "speed up", "go faster", "quick", "quicker"),
	acc(ActionSlowDown, "slower", "speak slower", "slow down", "go slower"),
	acc(ActionHelp, "help", "what can i say", "commands", "what are the commands", "options"),
	acc(ActionOpenSettings, "settings", "open settings", "show settings", "voice settings", "preferences"),
	acc(ActionCloseSettings, "close settings", "exit settings", "hide settings"),
	{
		patterns: []string{"return to curriculum", "go to curriculum", "back to curriculum", "show curriculum", "exit lesson"},
		command:  types.Command{Type: types.CommandNavigation, Action: ActionReturnToCurriculum},
	},
	acc(ActionCurrentPosition, "where am i", "what lesson", "current lesson", "which lesson"),
	acc(ActionShowProgress, "how many left", "sections left", "how much more", "progress"),
	acc(ActionVerbosityDetailed, "explain more", "more detail", "detailed", "elaborate", "tell me more"),
	acc(ActionVerbosityShort, "keep it short", "brief", "summarize", "less detail", "shorter"),
	acc(ActionVerbosityNormal, "normal", "normal detail", "regular", "default"),
	acc(ActionCameraOn, "camera on", "enable camera", "turn on camera", "start camera"),
	acc(ActionCameraOff, "camera off", "disable camera", "turn off camera", "stop camera"),
	acc(ActionAskAI, "ask doubt", "ask question", "ask ai", "i have a doubt", "i have a question"),
}

var submitPhrases = []string{"submit", "check answer", "lock it in", "confirm"}

var (
	optionRe   = regexp.MustCompile(`\b(?:option|answer|select|choose)\s+([a-d])\b`)
	trailingRe = regexp.MustCompile(`(?:^|\s)([a-d])$`)
)

const defaultMaxContainmentWords = 6

// Option configures a [Router].
type Option func(*Router)

// WithCorrector enables phonetic repair of unmatched utterances.
func WithCorrector(c Corrector) Option {
	return func(r *Router) { r.corrector = c }
}

// WithMaxContainmentWords sets the longest utterance, in words, that may
// match a phrase appearing anywhere inside it. Longer utterances only match
// exactly or by leading phrase. Zero or negative disables the limit.
func WithMaxContainmentWords(n int) Option {
	return func(r *Router) { r.maxWords = n }
}

// Router is stateless after construction and safe for concurrent use.
type Router struct {
	corrector  Corrector
	maxWords   int
	vocabulary []string
}

// NewRouter returns a Router with the built-in phrase tables.
func NewRouter(opts ...Option) *Router {
	r := &Router{maxWords: defaultMaxContainmentWords}
	for _, o := range opts {
		o(r)
	}
	r.vocabulary = buildVocabulary()
	return r
}

// Route maps utterance to a command, or returns nil when nothing matches.
// The caller supplies the "not understood" fallback.
func (r *Router) Route(utterance string, ctx Context) *types.Command {
	norm := Normalize(utterance)
	if norm == "" {
		return nil
	}
	if cmd := r.route(norm, ctx); cmd != nil {
		return cmd
	}
	if r.corrector == nil || (ctx.State == types.StateQuestion && ctx.QuestionType == lesson.QuestionFillInBlank) {
		return nil
	}
	corrected, changed := r.corrector.Correct(norm, r.vocabulary)
	if !changed {
		return nil
	}
	cmd := r.route(Normalize(corrected), ctx)
	if cmd != nil {
		slog.Debug("command: routed after phonetic correction", "heard", norm, "corrected", corrected, "action", cmd.Action)
	}
	return cmd
}

func (r *Router) route(norm string, ctx Context) *types.Command {
	words := strings.Fields(norm)

	cmd := exactMatch(norm)
	if cmd == nil {
		cmd = r.fuzzyMatch(norm, words)
	}
	if cmd != nil {
		if ctx.State == types.StatePaused && cmd.Action == ActionNext {
			cmd = &types.Command{Type: types.CommandNavigation, Action: ActionResume}
		}
		return cmd
	}

	if ctx.State != types.StateQuestion {
		return nil
	}
	for _, p := range submitPhrases {
		if containsPhrase(words, strings.Fields(p)) {
			return &types.Command{Type: types.CommandAnswer, Action: ActionSubmitAnswer}
		}
	}
	switch ctx.QuestionType {
	case lesson.QuestionMCQ:
		return parseOption(norm)
	case lesson.QuestionFillInBlank:
		return &types.Command{
			Type:       types.CommandAnswer,
			Action:     ActionFillIn,
			Parameters: map[string]string{ParamAnswer: norm},
		}
	}
	return nil
}

func exactMatch(norm string) *types.Command {
	for _, table := range [][]phraseGroup{navigationTable, accessibilityTable} {
		for _, g := range table {
			for _, p := range g.patterns {
				if norm == p {
					return g.clone()
				}
			}
		}
	}
	return nil
}

func (r *Router) fuzzyMatch(norm string, words []string) *types.Command {
	contain := r.maxWords <= 0 || len(words) <= r.maxWords
	for _, table := range [][]phraseGroup{navigationTable, accessibilityTable} {
		for _, g := range table {
			for _, p := range g.patterns {
				if strings.HasPrefix(norm, p+" ") {
					return g.clone()
				}
				if contain && containsPhrase(words, strings.Fields(p)) {
					return g.clone()
				}
			}
		}
	}
	return nil
}

func (g phraseGroup) clone() *types.Command {
	c := g.command
	return &c
}

// containsPhrase reports whether phrase occurs as a contiguous run of whole
// words in words.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j, w := range phrase {
			if words[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

func parseOption(norm string) *types.Command {
	m := optionRe.FindStringSubmatch(norm)
	if m == nil {
		m = trailingRe.FindStringSubmatch(norm)
	}
	if m == nil {
		return nil
	}
	return &types.Command{
		Type:       types.CommandAnswer,
		Action:     ActionSelectOption,
		Parameters: map[string]string{ParamOption: strings.ToUpper(m[1])},
	}
}

// Normalize lowercases s, drops punctuation other than apostrophes and
// collapses whitespace.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			return unicode.ToLower(r)
		case r == '’':
			return '\''
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func buildVocabulary() []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, table := range [][]phraseGroup{navigationTable, accessibilityTable} {
		for _, g := range table {
			for _, p := range g.patterns {
				for _, w := range strings.Fields(p) {
					if !seen[w] {
						seen[w] = true
						vocab = append(vocab, w)
					}
				}
			}
		}
	}
	for _, w := range []string{"option", "answer", "submit", "confirm"} {
		if !seen[w] {
			vocab = append(vocab, w)
		}
	}
	return vocab
}

// HelpText returns the spoken guidance for state.
func HelpText(state types.State) string {
	switch state {
	case types.StateQuestion:
		return "You can answer by saying option A, option B, and so on. " +
			"You can also say repeat to hear the question again, or help for more options."
	case types.StatePaused:
		return "Say resume to continue learning, or say help for more options."
	case types.StateTeaching:
		return "Available commands: Say next to continue. Say repeat to hear again. Say pause to pause. " +
			"Say faster or slower to adjust speed. Say ask doubt to ask AI about the topic. " +
			"Say camera on or camera off to toggle camera. Say help anytime for assistance."
	}
	return "Say start to begin the lesson, or say help for available commands."
}

// NavigationCommands returns the primary phrase of each navigation command.
func NavigationCommands() []string { return primaryPhrases(navigationTable) }

// AccessibilityCommands returns the primary phrase of each accessibility
// command.
func AccessibilityCommands() []string { return primaryPhrases(accessibilityTable) }

func primaryPhrases(table []phraseGroup) []string {
	out := make([]string, len(table))
	for i, g := range table {
		out[i] = g.patterns[0]
	}
	return out
}
