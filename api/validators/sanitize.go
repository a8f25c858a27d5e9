package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, trims the result and caps it at
// maxLen runes. Names end up in push notification copy, so a stray newline
// or escape sequence must not survive.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input))
	if maxLen <= 0 {
		return cleaned
	}
	if runes := []rune(cleaned); len(runes) > maxLen {
		return strings.TrimSpace(string(runes[:maxLen]))
	}
	return cleaned
}
