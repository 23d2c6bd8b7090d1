// internal/util/util.go
// Package util holds small text helpers for terminal output.
package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes < 0 {
		maxRunes = 0
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// OneLine collapses every whitespace run, newlines included, into one space.
func OneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// WrapToWidth wraps each line of text at word boundaries so that no line is
// longer than width runes. A line's leading indentation is repeated on its
// continuation lines, which keeps markdown list items readable. Words longer
// than the available width are split. width <= 0 returns text unchanged.
func WrapToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if trimmed == "" {
		return []string{""}
	}
	indent := line[:len(line)-len(trimmed)]
	avail := width - utf8.RuneCountInString(indent)
	if avail < 1 {
		indent, avail = "", width
	}

	var out []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			out = append(out, indent+strings.Join(cur, " "))
			cur, curLen = cur[:0], 0
		}
	}
	for _, word := range strings.Fields(trimmed) {
		wLen := utf8.RuneCountInString(word)
		switch {
		case curLen > 0 && curLen+1+wLen <= avail:
			cur = append(cur, word)
			curLen += 1 + wLen
		case wLen <= avail:
			flush()
			cur = append(cur, word)
			curLen = wLen
		default:
			flush()
			r := []rune(word)
			for len(r) > avail {
				out = append(out, indent+string(r[:avail]))
				r = r[avail:]
			}
			cur = append(cur, string(r))
			curLen = len(r)
		}
	}
	flush()
	return out
}
