package pdfdoc

import (
	"errors"
	"fmt"
)

// ErrExtraction is wrapped by every failure to read an uploaded document
var ErrExtraction = errors.New("no se pudo leer el PDF")

// RangeError is returned when a page index is outside the document
type RangeError struct {
	Index int // zero-based
	Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("página %d fuera de rango (el documento tiene %d)", e.Index+1, e.Count)
}
