package validators

import (
	"path"
	"strings"
	"unicode"
)

const fallbackFilename = "image"

// SanitizeString trims whitespace, drops control characters and cuts the
// result to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

// SanitizeFilename keeps only the last element of a client-supplied path,
// whichever separator the client used.
func SanitizeFilename(name string, maxLen int) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	if cleaned := SanitizeString(base, maxLen); cleaned != "" {
		return cleaned
	}
	return fallbackFilename
}
