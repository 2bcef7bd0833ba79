package segment

import (
	"strings"
	"unicode"
)

// Normalize lowercases s and collapses every maximal run of non-alphanumeric
// characters to a single space, trimming the result. It is a comparison aid
// only; emitted text is always the raw caption text.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
