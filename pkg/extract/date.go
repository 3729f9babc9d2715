package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// spanishMonths maps lower-case, accent-free month names to month numbers.
var spanishMonths = map[string]int{
	"enero":      1,
	"febrero":    2,
	"marzo":      3,
	"abril":      4,
	"mayo":       5,
	"junio":      6,
	"julio":      7,
	"agosto":     8,
	"septiembre": 9,
	"setiembre":  9,
	"octubre":    10,
	"noviembre":  11,
	"diciembre":  12,
}

var (
	textualDateRE = regexp.MustCompile(`(?i)(?:(?:fecha|emisi[oó]n|expedici[oó]n|factura|date)[:\s]*)?(\d{1,2})\s+de\s+([a-záéíóúñ]+)\s+de\s+(\d{2,4})`)
	numericDateRE = regexp.MustCompile(`(\d{2,4})[/.\s-](\d{1,2})[/.\s-](\d{1,4})`)
)

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

// DaysIn returns the number of days of month m in year y, or 0 for a bad month.
func DaysIn(y, m int) int {
	switch m {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if IsLeapYear(y) {
			return 29
		}
		return 28
	}
	return 0
}

// ValidYMD reports whether (y, m, d) is a real calendar day within 1900..2100.
func ValidYMD(y, m, d int) bool {
	if y < 1900 || y > 2100 {
		return false
	}
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= DaysIn(y, m)
}

func isoDate(y, m, d int) string {
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// expandYear turns a two-digit year into 19XX/20XX with the pivot at 50.
func expandYear(raw string) int {
	n, _ := strconv.Atoi(raw)
	if len(raw) != 2 {
		return n
	}
	if n < 50 {
		return 2000 + n
	}
	return 1900 + n
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// monthNumber looks a Spanish month name up ignoring case and accents.
// A trailing "s" is tolerated ("marzos" -> marzo).
func monthNumber(name string) int {
	key, _, err := transform.String(stripMarks, strings.ToLower(name))
	if err != nil {
		key = strings.ToLower(name)
	}
	if m, ok := spanishMonths[key]; ok {
		return m
	}
	return spanishMonths[strings.TrimSuffix(key, "s")]
}

// NormalizeDate parses a single date token into YYYY-MM-DD. It understands
// "12 de mayo de 2024", YYYY-MM-DD and DD/MM/YYYY (with a month/day swap
// fallback). Separators may be '/', '.', '-' or a space.
func NormalizeDate(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	s := strings.ToLower(Preclean(raw))

	if m := textualDateRE.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		y := expandYear(m[3])
		if mo := monthNumber(m[2]); mo != 0 && ValidYMD(y, mo, d) {
			return isoDate(y, mo, d), true
		}
	}

	m := numericDateRE.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	c, _ := strconv.Atoi(m[3])
	switch {
	case len(m[1]) == 4:
		if ValidYMD(a, b, c) {
			return isoDate(a, b, c), true
		}
	case len(m[3]) == 4:
		if ValidYMD(c, b, a) {
			return isoDate(c, b, a), true
		}
		// read as MM/DD/YYYY
		if ValidYMD(c, a, b) {
			return isoDate(c, a, b), true
		}
	}
	return "", false
}

// FindDate prefers a date next to an issue-date label ("Fecha de emisión:",
// "Date") and only then falls back to the first valid date anywhere.
func FindDate(text string) (string, bool) {
	clean := Preclean(text)
	lines := splitLines(clean)
	for i, line := range lines {
		if !dateLabel.MatchString(line) {
			continue
		}
		candidate := dateToken.FindString(line)
		if candidate == "" && i+1 < len(lines) {
			candidate = lines[i+1]
		}
		if candidate == "" {
			continue
		}
		if iso, ok := NormalizeDate(candidate); ok {
			return iso, true
		}
	}
	for _, tok := range dateToken.FindAllString(clean, -1) {
		if iso, ok := NormalizeDate(tok); ok {
			return iso, true
		}
	}
	return "", false
}
