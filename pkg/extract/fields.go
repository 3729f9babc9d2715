package extract

import (
	"strings"
	"unicode/utf8"
)

// FindAmount returns the numeric part of the first amount rule that matches
// the raw text. Separators are kept as found ("45,99" stays "45,99").
func FindAmount(text string) (string, bool) {
	v, _, ok := AmountRules.First(text)
	return v, ok
}

// FindVendor returns the first capitalized company-looking run.
func FindVendor(text string) (string, bool) {
	v, _, ok := VendorRules.First(text)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// FindConcept picks the first line longer than ten characters that is not a
// date, not an amount and not just digits and separators.
func FindConcept(text string) (string, bool) {
	for _, line := range splitLines(text) {
		if utf8.RuneCountInString(line) <= 10 {
			continue
		}
		if DateRules.Any(line) || AmountRules.Any(line) {
			continue
		}
		if separatorsOnly.MatchString(line) {
			continue
		}
		return line, true
	}
	return "", false
}
