package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents one normalized bank transaction ready to be stored.
// This is a domain struct, not a database row; the sink adapters map it into
// their own table schema.
type Transaction struct {
	TransactionID string // natural key; the sink deduplicates on it
	CustomerID    string

	CustomerDOB time.Time // SentinelDOB when absent or unparseable
	Gender      string    // single-char code, "U" when absent
	Location    string    // "Unknown" when absent

	AccountBalance  decimal.Decimal
	TransactionDate time.Time
	TransactionTime string // raw HHMMSS encoding from the export, "000000" when absent
	Amount          decimal.Decimal
}

// Defaults substituted for optional fields that are absent or fail to normalize.
const (
	DefaultGender          = "U"
	DefaultLocation        = "Unknown"
	DefaultTransactionTime = "000000"
)

// SentinelDOB is the epoch stored when a customer birth date is absent or
// unparseable. Rows with it are still valid; downstream consumers treat it
// as "unknown age".
func SentinelDOB() time.Time {
	return time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
}
