package domain

import "strings"

// RawRow is one record as read from the source file: column name -> raw
// value, untouched. It is produced once by the source and never mutated.
type RawRow struct {
	// Line is the 1-based line number in the source file, for diagnostics.
	Line int

	// Malformed is non-empty when the source could not even split the line
	// into the expected columns; the validator rejects such rows outright.
	Malformed string

	Fields map[string]string
}

// Get returns the trimmed value for a column, or "" when the column is
// missing entirely.
func (r RawRow) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// RejectCategory classifies why a row was dropped.
type RejectCategory string

const (
	RejectMissingKey   RejectCategory = "missing_key"
	RejectDateError    RejectCategory = "date_error"
	RejectNumericError RejectCategory = "numeric_error"
	RejectOther        RejectCategory = "other"
)

// Categories lists every reject category in reporting order.
func Categories() []RejectCategory {
	return []RejectCategory{RejectMissingKey, RejectDateError, RejectNumericError, RejectOther}
}
