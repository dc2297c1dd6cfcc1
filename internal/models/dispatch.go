package models

// DispatchStatus is the outcome of a single selection
type DispatchStatus string

const (
	StatusSent    DispatchStatus = "sent"
	StatusSkipped DispatchStatus = "skipped"
	StatusError   DispatchStatus = "error"
)

// Selection is an operator-confirmed page and recipient pair
type Selection struct {
	Page  int    `json:"page"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// DispatchResult records what happened to one selection
type DispatchResult struct {
	Page   int            `json:"page"`
	Status DispatchStatus `json:"status"`
	Email  string         `json:"email,omitempty"`
	Reason string         `json:"reason,omitempty"` // set when skipped
	Error  string         `json:"error,omitempty"`  // set on error
}
