// Package stringutil carries the teacher's general-purpose string
// helpers kept by this module: rune-matching (used by the armor-label
// validator) and line-prefixing (kept, but not called by any package of
// this module). Trimmed from format/preamble's and format/eat's shared
// dependency; other functions the teacher offered (AsString,
// ToPrintString, LessLex, ...) were dropped.
package stringutil

import "strings"

// MatchRunes returns true if every rune of string s matches at least one of
// the provided functions, false otherwise.
//
// Example usage:
//	if stringutil.MatchRunes("some string", unicode.IsLetter, unicode.IsDigit) { ... }
func MatchRunes(s string, funcs ...func(r rune) bool) bool {
	for _, r := range s {
		matched := false
		for _, f := range funcs {
			if f(r) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// PrefixLines prefixes each line in the given string with the given prefix.
func PrefixLines(s, prefix string) string {
	return prefix + strings.Replace(s, "\n", "\n"+prefix, -1)
}
