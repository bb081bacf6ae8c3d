package ingest

import (
	"fmt"

	"github.com/dvloznov/bank-ingest/internal/config"
	"github.com/dvloznov/bank-ingest/internal/domain"
	"github.com/dvloznov/bank-ingest/internal/normalize"
)

// Rejection explains why a row was dropped. Row-level failures are values,
// not errors propagated across the row loop.
type Rejection struct {
	Category domain.RejectCategory
	Reason   string
}

// Validator turns a RawRow into a fully populated Transaction or a
// classified Rejection. Checks short-circuit: the first failure decides the
// category and the row is never counted in more than one.
type Validator struct {
	cols  config.ColumnsConfig
	dates *normalize.DateNormalizer
}

// NewValidator builds a validator over the configured column names and date
// windows.
func NewValidator(cols config.ColumnsConfig, windows normalize.Windows) *Validator {
	return &Validator{
		cols:  cols,
		dates: normalize.NewDateNormalizer(windows),
	}
}

// Validate applies the checks in order: required identifiers, transaction
// date, numeric fields, then optional fields with defaults. Optional fields
// never reject a row.
func (v *Validator) Validate(row domain.RawRow) (domain.Transaction, *Rejection) {
	if row.Malformed != "" {
		return domain.Transaction{}, &Rejection{
			Category: domain.RejectOther,
			Reason:   row.Malformed,
		}
	}

	txID := row.Get(v.cols.TransactionID)
	custID := row.Get(v.cols.CustomerID)
	if txID == "" || custID == "" {
		return domain.Transaction{}, &Rejection{
			Category: domain.RejectMissingKey,
			Reason:   "required identifier absent",
		}
	}

	txDate, err := v.dates.Parse(row.Get(v.cols.TransactionDate), normalize.RoleTransactionDate)
	if err != nil {
		return domain.Transaction{}, &Rejection{
			Category: domain.RejectDateError,
			Reason:   fmt.Sprintf("transaction date: %v", err),
		}
	}

	balance, err := normalize.ParseAmount(row.Get(v.cols.AccountBalance))
	if err != nil {
		return domain.Transaction{}, &Rejection{
			Category: domain.RejectNumericError,
			Reason:   fmt.Sprintf("account balance: %v", err),
		}
	}

	amount, err := normalize.ParseAmount(row.Get(v.cols.Amount))
	if err != nil {
		return domain.Transaction{}, &Rejection{
			Category: domain.RejectNumericError,
			Reason:   fmt.Sprintf("transaction amount: %v", err),
		}
	}

	tx := domain.Transaction{
		TransactionID:   txID,
		CustomerID:      custID,
		AccountBalance:  balance,
		TransactionDate: txDate,
		Amount:          amount,
	}

	// Optional fields: absent or unparseable values fall back to their
	// defaults, never to a rejection.
	dob, err := v.dates.Parse(row.Get(v.cols.CustomerDOB), normalize.RoleDateOfBirth)
	if err != nil {
		// Absent and unparseable birth dates both take the sentinel.
		dob = domain.SentinelDOB()
	}
	tx.CustomerDOB = dob

	tx.Gender = domain.DefaultGender
	if g := row.Get(v.cols.Gender); g != "" {
		tx.Gender = g[:1]
	}

	tx.Location = domain.DefaultLocation
	if loc := row.Get(v.cols.Location); loc != "" {
		tx.Location = loc
	}

	tx.TransactionTime = domain.DefaultTransactionTime
	if tt := row.Get(v.cols.TransactionTime); tt != "" {
		tx.TransactionTime = tt
	}

	return tx, nil
}
