package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NormalizeName folds fullwidth characters (including the ideographic
// space) to their narrow forms and removes all whitespace. It is the
// directory lookup key.
func NormalizeName(s string) string {
	s = width.Narrow.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
