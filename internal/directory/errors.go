package directory

import "errors"

// ErrNotFound is returned when a recipient id does not exist
var ErrNotFound = errors.New("no encontrado")

// ValidationError reports a rejected recipient field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
