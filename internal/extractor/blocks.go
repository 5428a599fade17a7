package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	blankLines = regexp.MustCompile(`\n{2,}`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanText caps newline runs at one blank line and trims the result.
func CleanText(raw string) string {
	return strings.TrimSpace(multiNewlines.ReplaceAllString(raw, "\n\n"))
}

// Blocks splits text on blank lines into paragraph blocks. Each block has
// its whitespace collapsed to single spaces; blocks shorter than minChars
// (counted in characters, not bytes) are dropped. Source order is kept.
func Blocks(text string, minChars int) []string {
	if minChars < 1 {
		minChars = 1
	}
	var out []string
	for _, b := range blankLines.Split(text, -1) {
		b = strings.TrimSpace(whitespace.ReplaceAllString(b, " "))
		if utf8.RuneCountInString(b) >= minChars {
			out = append(out, b)
		}
	}
	return out
}
