// Package textnorm canonicalizes recognized text for display.
package textnorm

import "strings"

// Normalize trims every line, collapses runs of whitespace inside a line to a
// single space and drops lines left empty. Line order is preserved and
// surviving lines are joined with "\n". Normalize is idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	lines := strings.FieldsFunc(raw, isLineBreak)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if words := strings.Fields(line); len(words) > 0 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return strings.Join(out, "\n")
}

// WordCount returns the number of whitespace-separated tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// isLineBreak reports the boundaries recognized between lines: LF, CR, VT, FF,
// the ASCII file/group/record separators, NEL and the Unicode line and
// paragraph separators.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
