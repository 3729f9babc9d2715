package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	maxVendorLen  = 100
	maxConceptLen = 200
)

var (
	isoDateRE     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	looseYMDRE    = regexp.MustCompile(`(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})`)
	notAmountChar = regexp.MustCompile(`[^\d,.]`)
	notVendorChar = regexp.MustCompile(`[^\p{L}\p{N}_\s&.]`)
)

// Clean normalises the textual form of an assembled record. It never adds or
// removes a field: a value that would be emptied by cleaning is kept as is.
// Clean(Clean(r)) == Clean(r).
func Clean(r Record) Record {
	r.Date = keepIfEmpty(r.Date, cleanDate(r.Date))
	r.Amount = keepIfEmpty(r.Amount, notAmountChar.ReplaceAllString(r.Amount, ""))
	r.Vendor = keepIfEmpty(r.Vendor, cleanVendor(r.Vendor))
	r.Concept = keepIfEmpty(r.Concept, truncate(strings.TrimSpace(r.Concept), maxConceptLen))
	return r.withConfidence()
}

func cleanDate(s string) string {
	if s == "" || isoDateRE.MatchString(s) {
		return s
	}
	m := looseYMDRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return s
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if !ValidYMD(y, mo, d) {
		return s
	}
	return isoDate(y, mo, d)
}

func cleanVendor(s string) string {
	s = strings.TrimSpace(notVendorChar.ReplaceAllString(s, ""))
	return truncate(s, maxVendorLen)
}

// truncate cuts s to at most n runes and trims what is left so a second pass
// finds nothing to do.
func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return strings.TrimSpace(string(rs[:n]))
}

func keepIfEmpty(orig, cleaned string) string {
	if cleaned == "" {
		return orig
	}
	return cleaned
}
