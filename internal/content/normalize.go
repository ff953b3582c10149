package content

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace.
// Space ids and kind names go through it before they reach a store.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CleanText trims surrounding whitespace from user-entered text while keeping
// interior formatting (note bodies are markdown).
func CleanText(s string) string {
	return strings.TrimSpace(s)
}
