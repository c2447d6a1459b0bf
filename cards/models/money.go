package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balances and amounts live as int64 minor units internally; the API
// boundary speaks decimal with exactly two fractional digits.

// MinorUnits converts a decimal amount to minor units. Amounts with more
// than two fractional digits are rejected rather than rounded; amounts
// whose minor-unit value does not fit int64 are rejected rather than
// wrapped.
func MinorUnits(d decimal.Decimal) (int64, error) {
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %s has more than two decimal places", d)
	}
	minor := d.Shift(2)
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s is out of range", d)
	}
	return minor.IntPart(), nil
}

// DecimalFromMinor renders minor units as a two-decimal value.
func DecimalFromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
