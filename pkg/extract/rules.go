package extract

import (
	"regexp"
	"strings"
)

// Rule is one entry of an ordered pattern list. Earlier rules win.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Find returns the first capture group of the rule's first match, or the
// whole match when the pattern has no (non-empty) group.
func (r Rule) Find(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if len(m) > 1 && m[1] != "" {
		return m[1], true
	}
	return m[0], true
}

// Rules is evaluated in order; the first matching rule wins.
type Rules []Rule

// First runs the rules in priority order and reports which one matched.
func (rs Rules) First(text string) (value, rule string, ok bool) {
	for _, r := range rs {
		if v, found := r.Find(text); found {
			return v, r.Name, true
		}
	}
	return "", "", false
}

// Any reports whether at least one rule matches text.
func (rs Rules) Any(text string) bool {
	for _, r := range rs {
		if r.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Names lists rule names in priority order.
func (rs Rules) Names() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

const (
	// date token shapes shared by the labeled and global scans
	numericDMY  = `\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`
	numericYMD  = `\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}`
	textualDate = `\d{1,2}\s+de\s+[a-záéíóúñ]+\s+de\s+\d{2,4}`
)

var (
	// DateRules are the patterns that make a line "look like a date".
	DateRules = Rules{
		{Name: "label-fecha", Pattern: regexp.MustCompile(`(?i)\bfecha(?:\s+de\s+(?:emisi[oó]n|expedici[oó]n|factura))?\b[\s:,-]*([\w\s/.\-]+)?`)},
		{Name: "label-date", Pattern: regexp.MustCompile(`(?i)\bdate\b[\s:,-]*([\w\s/.\-]+)?`)},
		{Name: "numeric-dmy", Pattern: regexp.MustCompile(`(?i)(` + numericDMY + `)`)},
		{Name: "numeric-ymd", Pattern: regexp.MustCompile(`(?i)(` + numericYMD + `)`)},
		{Name: "textual", Pattern: regexp.MustCompile(`(?i)(` + textualDate + `)`)},
	}

	// AmountRules are tried against the raw OCR text.
	AmountRules = Rules{
		{Name: "label-currency", Pattern: regexp.MustCompile(`(?i)(?:total|importe|precio|amount)[\s:]*(\d+[,.]\d{2})\s*[€$]`)},
		{Name: "suffix-euro", Pattern: regexp.MustCompile(`(\d+[,.]\d{2})\s*€`)},
		{Name: "prefix-euro", Pattern: regexp.MustCompile(`€\s*(\d+[,.]\d{2})`)},
		{Name: "label-total", Pattern: regexp.MustCompile(`(?i)total[\s:]*(\d+[,.]\d{2})`)},
	}

	// VendorRules are tried against the raw OCR text. Word runs stay on one line.
	VendorRules = Rules{
		{Name: "label-company", Pattern: regexp.MustCompile(`(?i:empresa|company|raz[oó]n\s+social)[ \t:]*(\p{Lu}[\p{L} \t&.]+)`)},
		{Name: "suffix-sl", Pattern: regexp.MustCompile(`(?m)^(\p{Lu}[\p{L} \t&.]+S\.?L\.?)`)},
		{Name: "suffix-sa", Pattern: regexp.MustCompile(`(?m)^(\p{Lu}[\p{L} \t&.]+S\.?A\.?)`)},
	}

	// dateToken finds a single date-shaped token in a line.
	dateToken = regexp.MustCompile(`(?i)` + numericDMY + `|` + numericYMD + `|` + textualDate)

	// dateLabel marks a line that carries an explicit issue-date label.
	dateLabel = regexp.MustCompile(`(?i)\bfecha(?:\s+de\s+(?:emisi[oó]n|expedici[oó]n|factura))?|\bdate\b`)

	separatorsOnly = regexp.MustCompile(`^[\d\s\-/.]+$`)
)

// splitLines splits on newlines, trims each line and drops blank ones.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
