package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeCaseName reduces a display name to its matching key: lowercase
// ASCII letters and digits only. Distinct names may collapse to the same key;
// that is how the two sources are joined.
func NormalizeCaseName(input string) string {
	if input == "" {
		return ""
	}
	s := strings.ToLower(input)
	out := strings.Builder{}
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// CleanName trims a display name and collapses inner whitespace, including
// non-breaking spaces from scraped markup.
func CleanName(input string) string {
	s := strings.ReplaceAll(input, "\u00A0", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func IsAbsoluteURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}
