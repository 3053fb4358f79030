package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The dictionary uses specific words to avoid partial collisions
// (e.g. "he" inside "The").
func TestModerator_ContainsBannedTerm(t *testing.T) {
	req := require.New(t)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModerator(dictionary)
	req.NoError(err)

	tests := []struct {
		name    string
		input   string
		matched bool
	}{
		{
			name:    "Plain word",
			input:   "The badger is here",
			matched: true,
		},
		{
			name:    "Leet speak and internal punctuation",
			input:   "Look at B.4.d.g.€r !",
			matched: true,
		},
		{
			name:    "Uppercase and extreme noise",
			input:   "S-N-A-K-E is around",
			matched: true,
		},
		{
			name:    "Accents elsewhere in the sentence",
			input:   "Un été avec un badger",
			matched: true,
		},
		{
			name:    "Clean message",
			input:   "chat-relay is amazing",
			matched: false,
		},
		{
			name:    "Empty string",
			input:   "",
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.matched, mod.ContainsBannedTerm(tt.input), "input=%q", tt.input)
		})
	}
}

func TestModerator_Match(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator([]string{"badger", "snake"})
	req.NoError(err)

	terms := mod.Match("a badger met a SNAKE")
	req.ElementsMatch([]string{"badger", "snake"}, terms)

	req.Nil(mod.Match("nothing to see"))
}

func TestModerator_NoiseOnlyDictionaryEntries(t *testing.T) {
	req := require.New(t)

	// Entries that normalize to nothing must not end up in the automaton
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"})
	req.NoError(err)

	req.True(mod.ContainsBannedTerm("The badger is here"))
	req.False(mod.ContainsBannedTerm("Hello ..."))
}

func TestLoadBannedTerms(t *testing.T) {
	req := require.New(t)

	data, err := LoadBannedTerms()
	req.NoError(err)
	req.NotEmpty(data.Terms)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
	req.NotContains(data.Terms, "", "blank lines must be skipped")
}
