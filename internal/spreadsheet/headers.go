package spreadsheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column identifies one of the recognised seed columns
type Column int

const (
	ColumnNone Column = iota
	ColumnIdentifier
	ColumnName
	ColumnEmail
)

// headerAliases maps folded header text to its column. Keys are written in
// their folded form (lowercase, no accents, single spaces).
var headerAliases = map[string]Column{
	"nit":            ColumnIdentifier,
	"nit tercero":    ColumnIdentifier,
	"identificacion": ColumnIdentifier,
	"documento":      ColumnIdentifier,
	"tax id":         ColumnIdentifier,

	"nombre":         ColumnName,
	"nombre tercero": ColumnName,
	"razon social":   ColumnName,
	"name":           ColumnName,

	"email":              ColumnEmail,
	"e-mail":             ColumnEmail,
	"correo":             ColumnEmail,
	"correo electronico": ColumnEmail,
	"mail":               ColumnEmail,
}

// FoldHeader reduces a header cell to its comparable form: case folded,
// accents removed, underscores and repeated spaces collapsed.
func FoldHeader(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ReplaceAll(stripped, "_", " ")
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// LookupColumn returns the column a header names, or ColumnNone
func LookupColumn(header string) Column {
	return headerAliases[FoldHeader(header)]
}

// columnIndexes resolves header cells to positions. The first matching
// header wins when a sheet repeats a column.
func columnIndexes(header []string) map[Column]int {
	idx := make(map[Column]int, 3)
	for i, cell := range header {
		col := LookupColumn(cell)
		if col == ColumnNone {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}
	return idx
}
