package identifier

import "regexp"

var (
	// candidatePattern matches digit runs possibly broken by dots or dashes,
	// e.g. "900.123.456-7".
	candidatePattern = regexp.MustCompile(`[\d.\-]{7,20}`)

	// labeledPattern matches an explicit "NIT" label followed by a number.
	labeledPattern = regexp.MustCompile(`(?i)Nit\.?\s*[:\-]?\s*([\d.\-]+)`)
)

// Set is the lookup view of the known identifiers.
type Set interface {
	Contains(id string) bool
}

// Extract finds the recipient identifier in one page of text.
//
// Candidates are scanned in order and the first one present in known wins,
// so dates and phone numbers on the page do not produce false matches. When
// nothing is known, a labeled "NIT: ..." value is returned instead, which
// lets pages name recipients that are not in the directory yet. Returns ""
// when neither strategy finds anything.
func Extract(text string, known Set) string {
	if known != nil {
		for _, raw := range candidatePattern.FindAllString(text, -1) {
			n := Normalize(raw)
			if len(n) < MinLength || len(n) > MaxLength {
				continue
			}
			if known.Contains(n) {
				return n
			}
		}
	}

	if m := labeledPattern.FindStringSubmatch(text); m != nil {
		return Normalize(m[1])
	}
	return ""
}
