package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAbsent marks an input that carried no value at all, as opposed to one
// that carried garbage. Callers use the distinction to apply role-specific
// defaulting: a required field rejects the row, an optional one substitutes
// its default.
var ErrAbsent = errors.New("normalize: value absent")

// Null-ish tokens pandas-era exports leave behind for missing cells.
var absentTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
}

func isAbsent(trimmed string) bool {
	return absentTokens[strings.ToLower(trimmed)]
}

// ParseAmount converts a raw monetary string into a decimal, stripping
// thousands separators and interior whitespace first. Blank or null-ish
// input returns ErrAbsent.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if isAbsent(s) {
		return decimal.Decimal{}, ErrAbsent
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("normalize: amount %q: %w", raw, err)
	}
	return d, nil
}
