// Package phonetic repairs misheard command words in recognizer transcripts.
//
// Speech recognizers often return a homophone or near-spelling of a short
// command ("paws" for "pause", "resoom" for "resume"). The [Matcher] compares
// each unknown token of an utterance against a fixed vocabulary in two
// stages:
//
//  1. Phonetic candidates: vocabulary words whose Double Metaphone codes
//     overlap the token's codes are accepted when their Jaro-Winkler
//     similarity reaches the phonetic threshold (default 0.80).
//  2. Spelling fallback: with no phonetic candidate, a vocabulary word is
//     accepted on Jaro-Winkler similarity alone above the stricter fuzzy
//     threshold (default 0.92).
//
// Tokens shorter than the minimum length (default 4) are never rewritten.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
	defaultMinTokenLength    = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically overlapping word. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used when no word
// shares a phonetic code with the token. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinTokenLength sets the shortest token eligible for correction.
// Default: 4.
func WithMinTokenLength(n int) Option {
	return func(m *Matcher) {
		m.minLen = n
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLen            int
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLen:            defaultMinTokenLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary word closest to token. When matched is false
// corrected equals token and confidence is 0.
func (m *Matcher) Match(token string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	if len([]rune(t)) < m.minLen || len(vocabulary) == 0 {
		return token, 0, false
	}
	tp, ts := matchr.DoubleMetaphone(t)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, word := range vocabulary {
		w := strings.ToLower(word)
		if w == "" {
			continue
		}
		score := matchr.JaroWinkler(t, w, false)
		wp, ws := matchr.DoubleMetaphone(w)
		phonetic := sharesCode(tp, ts, wp, ws)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = word, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = word, score
		}
	}
	if best == "" {
		return token, 0, false
	}
	return best, bestScore, true
}

// Correct rewrites every token of utterance that is not itself in the
// vocabulary but matches a vocabulary word. changed reports whether any
// token was replaced. The result is lower-cased and single-spaced.
func (m *Matcher) Correct(utterance string, vocabulary []string) (corrected string, changed bool) {
	known := make(map[string]struct{}, len(vocabulary))
	for _, w := range vocabulary {
		known[strings.ToLower(w)] = struct{}{}
	}

	tokens := strings.Fields(strings.ToLower(utterance))
	for i, tok := range tokens {
		if _, ok := known[tok]; ok {
			continue
		}
		if fixed, _, ok := m.Match(tok, vocabulary); ok {
			tokens[i] = strings.ToLower(fixed)
			changed = true
		}
	}
	return strings.Join(tokens, " "), changed
}

func sharesCode(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
