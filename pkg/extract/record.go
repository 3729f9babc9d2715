// Package extract turns noisy OCR text from an invoice or receipt into a
// structured record. Every function here is pure and never fails: a field
// that cannot be found is simply left empty.
package extract

// trackedFields is the denominator of the confidence score.
const trackedFields = 4

// Record is the structured result for one document. Empty strings mean the
// field was not found.
type Record struct {
	Date       string  `json:"date,omitempty"`
	Amount     string  `json:"amount,omitempty"`
	Vendor     string  `json:"vendor,omitempty"`
	Concept    string  `json:"concept,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Found counts the populated fields among date, amount, vendor and concept.
func (r Record) Found() int {
	n := 0
	for _, v := range []string{r.Date, r.Amount, r.Vendor, r.Concept} {
		if v != "" {
			n++
		}
	}
	return n
}

// Empty reports whether no field was extracted.
func (r Record) Empty() bool { return r.Found() == 0 }

func (r Record) withConfidence() Record {
	r.Confidence = float64(r.Found()) / trackedFields
	return r
}

// Extract runs every field extractor over the same text and assembles the
// record. Date search uses the precleaned text; amount, vendor and concept
// look at the text as recognised.
func Extract(text string) Record {
	var r Record
	r.Date, _ = FindDate(text)
	r.Amount, _ = FindAmount(text)
	r.Vendor, _ = FindVendor(text)
	r.Concept, _ = FindConcept(text)
	return r.withConfidence()
}

// ExtractClean is Extract followed by Clean.
func ExtractClean(text string) Record {
	return Clean(Extract(text))
}
