package engine

import (
	"strings"

	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/pkg/speech"
)

var (
	femaleHints = []string{"female", "woman", "samantha", "victoria", "karen", "susan"}
	maleHints   = []string{"male", "man", "daniel", "alex", "fred", "tom"}
)

// SelectVoice picks a voice for p: the voice named p.VoiceName, else the
// first voice in the learner's language whose name suggests p.VoiceGender,
// else the first voice in that language, else the first voice. It returns
// nil for an empty list.
func SelectVoice(voices []speech.Voice, p prefs.Preferences) *speech.Voice {
	if len(voices) == 0 {
		return nil
	}
	if p.VoiceName != "" {
		for i := range voices {
			if voices[i].Name == p.VoiceName {
				return &voices[i]
			}
		}
	}
	lang := baseLanguage(p.Language)
	for i := range voices {
		if sameLanguage(voices[i], lang) && matchesGender(voices[i].Name, p.VoiceGender) {
			return &voices[i]
		}
	}
	for i := range voices {
		if sameLanguage(voices[i], lang) {
			return &voices[i]
		}
	}
	return &voices[0]
}

func baseLanguage(tag string) string {
	base, _, _ := strings.Cut(strings.ToLower(tag), "-")
	return base
}

func sameLanguage(v speech.Voice, base string) bool {
	return base != "" && strings.HasPrefix(strings.ToLower(v.Language), base)
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// matchesGender guesses from the voice name. "male" and "man" are substrings
// of the female hints, so a female-looking name never counts as male.
func matchesGender(name string, g prefs.Gender) bool {
	n := strings.ToLower(name)
	switch g {
	case prefs.GenderFemale:
		return containsAny(n, femaleHints)
	case prefs.GenderMale:
		return containsAny(n, maleHints) && !containsAny(n, femaleHints)
	}
	return true
}
