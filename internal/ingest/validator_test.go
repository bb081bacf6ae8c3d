package ingest

import (
	"testing"
	"time"

	"github.com/dvloznov/bank-ingest/internal/config"
	"github.com/dvloznov/bank-ingest/internal/domain"
	"github.com/dvloznov/bank-ingest/internal/normalize"
)

func testColumns() config.ColumnsConfig {
	return config.ColumnsConfig{
		TransactionID:   "TransactionID",
		CustomerID:      "CustomerID",
		CustomerDOB:     "CustomerDOB",
		Gender:          "CustGender",
		Location:        "CustLocation",
		AccountBalance:  "CustAccountBalance",
		TransactionDate: "TransactionDate",
		TransactionTime: "TransactionTime",
		Amount:          "TransactionAmount (INR)",
	}
}

func goodRow() domain.RawRow {
	return domain.RawRow{
		Line: 2,
		Fields: map[string]string{
			"TransactionID":           "T1",
			"CustomerID":              "C5841053",
			"CustomerDOB":             "26/11/96",
			"CustGender":              "F",
			"CustLocation":            "MUMBAI",
			"CustAccountBalance":      "17819.05",
			"TransactionDate":         "2/8/16",
			"TransactionTime":         "143207",
			"TransactionAmount (INR)": "25.00",
		},
	}
}

func newTestValidator() *Validator {
	return NewValidator(testColumns(), normalize.DefaultWindows())
}

func TestValidator_Validate_Success(t *testing.T) {
	v := newTestValidator()

	tx, rej := v.Validate(goodRow())
	if rej != nil {
		t.Fatalf("Validate rejected: %+v", rej)
	}

	if tx.TransactionID != "T1" || tx.CustomerID != "C5841053" {
		t.Errorf("identifiers = %q/%q", tx.TransactionID, tx.CustomerID)
	}
	if want := time.Date(2016, time.February, 8, 0, 0, 0, 0, time.UTC); !tx.TransactionDate.Equal(want) {
		t.Errorf("TransactionDate = %v, want %v", tx.TransactionDate, want)
	}
	if want := time.Date(1996, time.November, 26, 0, 0, 0, 0, time.UTC); !tx.CustomerDOB.Equal(want) {
		t.Errorf("CustomerDOB = %v, want %v", tx.CustomerDOB, want)
	}
	if tx.Amount.String() != "25" {
		t.Errorf("Amount = %s, want 25", tx.Amount)
	}
	if tx.AccountBalance.String() != "17819.05" {
		t.Errorf("AccountBalance = %s", tx.AccountBalance)
	}
	if tx.Gender != "F" || tx.Location != "MUMBAI" || tx.TransactionTime != "143207" {
		t.Errorf("optional fields = %q/%q/%q", tx.Gender, tx.Location, tx.TransactionTime)
	}
}

func TestValidator_Validate_Rejections(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name   string
		mutate func(r *domain.RawRow)
		want   domain.RejectCategory
	}{
		{
			name:   "missing transaction id",
			mutate: func(r *domain.RawRow) { r.Fields["TransactionID"] = "" },
			want:   domain.RejectMissingKey,
		},
		{
			name:   "missing customer id",
			mutate: func(r *domain.RawRow) { delete(r.Fields, "CustomerID") },
			want:   domain.RejectMissingKey,
		},
		{
			name:   "absent transaction date",
			mutate: func(r *domain.RawRow) { r.Fields["TransactionDate"] = "" },
			want:   domain.RejectDateError,
		},
		{
			name:   "implausible transaction date",
			mutate: func(r *domain.RawRow) { r.Fields["TransactionDate"] = "2/8/1896" },
			want:   domain.RejectDateError,
		},
		{
			name:   "garbage balance",
			mutate: func(r *domain.RawRow) { r.Fields["CustAccountBalance"] = "lots" },
			want:   domain.RejectNumericError,
		},
		{
			name:   "absent amount",
			mutate: func(r *domain.RawRow) { r.Fields["TransactionAmount (INR)"] = "" },
			want:   domain.RejectNumericError,
		},
		{
			// Missing key wins over the also-broken date: first failure
			// decides the category.
			name: "missing key short-circuits date check",
			mutate: func(r *domain.RawRow) {
				r.Fields["TransactionID"] = ""
				r.Fields["TransactionDate"] = "garbage"
			},
			want: domain.RejectMissingKey,
		},
		{
			name:   "malformed source line",
			mutate: func(r *domain.RawRow) { r.Malformed = "line 2: got 4 fields, want 9" },
			want:   domain.RejectOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := goodRow()
			tt.mutate(&row)

			_, rej := v.Validate(row)
			if rej == nil {
				t.Fatal("Validate accepted, want rejection")
			}
			if rej.Category != tt.want {
				t.Errorf("category = %s, want %s", rej.Category, tt.want)
			}
		})
	}
}

func TestValidator_Validate_OptionalDefaults(t *testing.T) {
	v := newTestValidator()

	row := goodRow()
	delete(row.Fields, "CustomerDOB")
	row.Fields["CustGender"] = ""
	row.Fields["CustLocation"] = "  "
	row.Fields["TransactionTime"] = ""

	tx, rej := v.Validate(row)
	if rej != nil {
		t.Fatalf("Validate rejected: %+v", rej)
	}

	if !tx.CustomerDOB.Equal(domain.SentinelDOB()) {
		t.Errorf("CustomerDOB = %v, want sentinel %v", tx.CustomerDOB, domain.SentinelDOB())
	}
	if tx.Gender != domain.DefaultGender {
		t.Errorf("Gender = %q, want %q", tx.Gender, domain.DefaultGender)
	}
	if tx.Location != domain.DefaultLocation {
		t.Errorf("Location = %q, want %q", tx.Location, domain.DefaultLocation)
	}
	if tx.TransactionTime != domain.DefaultTransactionTime {
		t.Errorf("TransactionTime = %q, want %q", tx.TransactionTime, domain.DefaultTransactionTime)
	}
}

func TestValidator_Validate_UnparseableDOBTakesSentinel(t *testing.T) {
	v := newTestValidator()

	row := goodRow()
	row.Fields["CustomerDOB"] = "31/31/99"

	tx, rej := v.Validate(row)
	if rej != nil {
		t.Fatalf("Validate rejected on optional field: %+v", rej)
	}
	if !tx.CustomerDOB.Equal(domain.SentinelDOB()) {
		t.Errorf("CustomerDOB = %v, want sentinel", tx.CustomerDOB)
	}
}

func TestValidator_Validate_GenderTruncatedToOneChar(t *testing.T) {
	v := newTestValidator()

	row := goodRow()
	row.Fields["CustGender"] = "Male"

	tx, rej := v.Validate(row)
	if rej != nil {
		t.Fatalf("Validate rejected: %+v", rej)
	}
	if tx.Gender != "M" {
		t.Errorf("Gender = %q, want M", tx.Gender)
	}
}
