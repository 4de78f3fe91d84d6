package stringutil

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestMatchRunes(t *testing.T) {
	assert.True(t, MatchRunes("abc123", unicode.IsLower, func(r rune) bool { return true }))
	assert.False(t, MatchRunes("abcABC", unicode.IsLower))
}

func TestPrefixLines(t *testing.T) {
	assert.Equal(t, "> a\n> b", PrefixLines("a\nb", "> "))
}
