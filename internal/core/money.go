// Package core provides amount parsing utilities.
//
// Amounts are kept as arbitrary-precision decimals so that summing many
// ledger entries never drifts the way float64 would.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds on accepted amounts. Anything larger costs arbitrary CPU and
// memory to rescale when summed or serialized.
const (
	maxAmountLength   = 64
	maxAmountExponent = 20
	maxAmountDigits   = 38
)

// ParseAmount converts a decimal string to a decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. The sign is preserved as given: an expense may carry
// a positive amount and an income a negative one.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-40")   -> -40, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
//	ParseAmount("1e50")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLength {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.NumDigits() > maxAmountDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
