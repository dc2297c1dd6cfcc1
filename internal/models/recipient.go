package models

import "time"

// Recipient is a directory entry ("tercero") that pages are mailed to
type Recipient struct {
	ID        int64     `json:"id"`
	Nit       string    `json:"nit"` // canonical digits, empty when unknown
	Name      string    `json:"nombre"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveOutcome tells how a directory save was applied
type SaveOutcome string

const (
	OutcomeCreated  SaveOutcome = "created"
	OutcomeUpdated  SaveOutcome = "updated"
	OutcomeUpserted SaveOutcome = "upserted"
)

// ImportResult holds the result of a spreadsheet import
type ImportResult struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Skipped   int    `json:"skipped"`
	Message   string `json:"message,omitempty"`
}
