// internal/security/sanitizer.go
package security

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxValueLength bounds an interpolated template value, in bytes
const MaxValueLength = 256

// SanitizeValue makes a value safe to interpolate into a notification or a
// command argument: control characters (newlines included) are dropped,
// surrounding space trimmed and the result cut to MaxValueLength on a rune
// boundary.
func SanitizeValue(s string) string {
	result := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))

	if len(result) <= MaxValueLength {
		return result
	}
	cut := MaxValueLength
	for cut > 0 && !utf8.RuneStart(result[cut]) {
		cut--
	}
	return result[:cut]
}
