// Package moderation provides the synchronous banned-term check applied to
// every message body before persistence or broadcast. Pure, no I/O.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher *goahocorasick.Machine
}

// NewModerator builds the Aho-Corasick automaton over a normalized version of
// the banned-term list.
func NewModerator(bannedTerms []string) (Moderator, error) {
	patterns := make([][]rune, 0, len(bannedTerms))
	for _, term := range bannedTerms {
		normalized := normalizeRunes([]rune(term))
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m}, nil
}

// ContainsBannedTerm reports whether the text matches any configured term
// after normalization (case folding, leet speak, noise removal).
func (m *Moderator) ContainsBannedTerm(text string) bool {
	return len(m.Match(text)) > 0
}

// Match returns the banned terms found in the text, normalized form.
func (m *Moderator) Match(text string) []string {
	normalized := normalizeRunes([]rune(text))
	if len(normalized) == 0 {
		return nil
	}
	spans := m.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return nil
	}
	terms := make([]string, 0, len(spans))
	for _, span := range spans {
		terms = append(terms, string(span.Word))
	}
	return terms
}

// normalizeRunes lowercases, maps leet speak back to letters and strips noise
// so obfuscated terms still match.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
