// Package normalize converts raw textual fields from the bank export into
// typed values. Date parsing centralizes the disambiguation policy for the
// export's mixed M/D/Y vs D/M/Y encodings and two-digit years, which the
// legacy loaders each fixed differently.
package normalize

import (
	"fmt"
	"strings"
	"time"
)

// DateRole tells the normalizer which semantic field a raw date belongs to,
// so it can pick the preferred format ordering and plausibility window.
type DateRole int

const (
	RoleGeneric DateRole = iota
	RoleTransactionDate
	RoleDateOfBirth
)

func (r DateRole) String() string {
	switch r {
	case RoleTransactionDate:
		return "transaction_date"
	case RoleDateOfBirth:
		return "date_of_birth"
	default:
		return "generic"
	}
}

// Window is the inclusive year range a parsed date must land in to be
// accepted for a given role.
type Window struct {
	MinYear int
	MaxYear int
}

// Contains reports whether year falls inside the window.
func (w Window) Contains(year int) bool {
	return year >= w.MinYear && year <= w.MaxYear
}

// Windows holds the per-role plausibility windows.
type Windows struct {
	TransactionDate Window
	DateOfBirth     Window
}

// DefaultWindows returns the windows for the bank export: transaction dates
// fall in a known recent range, birth dates in a much older one. The split is
// what resolves a two-digit year like "16" differently per field.
func DefaultWindows() Windows {
	return Windows{
		TransactionDate: Window{MinYear: 2000, MaxYear: 2020},
		DateOfBirth:     Window{MinYear: 1900, MaxYear: 2010},
	}
}

// Transaction dates are month-first in the export; day-first layouts are
// kept as a fallback because a minority of rows use them. Birth dates are
// the opposite. Two-digit-year layouts come first in both orders since
// they dominate the data.
var (
	transactionDateLayouts = []string{"1/2/06", "1/2/2006", "2/1/06", "2/1/2006"}
	dateOfBirthLayouts     = []string{"2/1/06", "2/1/2006", "1/2/06", "1/2/2006"}
)

// DateNormalizer parses raw date strings under role-specific format
// preference and plausibility windows.
type DateNormalizer struct {
	windows Windows
}

// NewDateNormalizer creates a normalizer with the given windows.
func NewDateNormalizer(w Windows) *DateNormalizer {
	return &DateNormalizer{windows: w}
}

// Parse converts a raw date string into a time.Time for the given role.
// It tries the role's candidate layouts in preference order and accepts the
// first parse whose year lands inside the role's window. For two-digit-year
// layouts, a parse that misses the window has its century assumption shifted
// by 100 years in the direction of the window and is re-checked. When no
// candidate yields a plausible date, Parse returns an error rather than a
// guessed value. Blank input returns ErrAbsent.
func (n *DateNormalizer) Parse(raw string, role DateRole) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if isAbsent(s) {
		return time.Time{}, ErrAbsent
	}

	window, layouts := n.roleRules(role)

	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if window.Contains(t.Year()) {
			return t, nil
		}
		if !twoDigitYear(layout) {
			continue
		}
		// Two-digit year landed outside the window: the stdlib's fixed
		// century pivot guessed wrong for this field. Shift by a century
		// toward the window and re-check.
		shifted := t
		if t.Year() > window.MaxYear {
			shifted = shiftYears(t, -100)
		} else if t.Year() < window.MinYear {
			shifted = shiftYears(t, 100)
		}
		if shifted != t && window.Contains(shifted.Year()) {
			return shifted, nil
		}
	}

	return time.Time{}, fmt.Errorf("normalize: date %q has no plausible %s interpretation (window %d-%d)",
		raw, role, window.MinYear, window.MaxYear)
}

func (n *DateNormalizer) roleRules(role DateRole) (Window, []string) {
	switch role {
	case RoleTransactionDate:
		return n.windows.TransactionDate, transactionDateLayouts
	case RoleDateOfBirth:
		return n.windows.DateOfBirth, dateOfBirthLayouts
	default:
		// Generic fields get the month-first ordering and a window wide
		// enough to accept any sane calendar date.
		return Window{MinYear: 1900, MaxYear: 2100}, transactionDateLayouts
	}
}

func twoDigitYear(layout string) bool {
	return !strings.Contains(layout, "2006")
}

func shiftYears(t time.Time, delta int) time.Time {
	return time.Date(t.Year()+delta, t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
