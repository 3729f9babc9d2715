package extract

import (
	"regexp"
	"strings"
)

var (
	oBeforeDigit   = regexp.MustCompile(`O(\d)`)
	oAfterDigit    = regexp.MustCompile(`(\d)O`)
	oneBeforeDigit = regexp.MustCompile(`[Il](\d)`)
	whitespaceRun  = regexp.MustCompile(`\s{2,}`)
)

// Preclean fixes the usual OCR confusions before any pattern runs: nbsp,
// '|' read instead of '/', O/0 and I/l/1 next to digits, repeated whitespace.
// Newlines survive unless they are part of a whitespace run.
func Preclean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "|", "/")
	// one pass each: only letters touching a digit of the input change
	s = oBeforeDigit.ReplaceAllString(s, "0${1}")
	s = oAfterDigit.ReplaceAllString(s, "${1}0")
	s = oneBeforeDigit.ReplaceAllString(s, "1${1}")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
