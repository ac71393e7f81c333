// Package core defines the ledger domain model: accounts, categories,
// transactions, transfers, and the pure effect calculation that links them.
//
// Amounts are fixed-point decimals with two fraction digits. They are
// validated at the boundary so the cents conversion used by the storage
// layer is always exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a decimal string into a non-negative amount.
//
// It accepts both dot (12.34) and comma (12,34) separators and rounds a
// third decimal place half-up, matching how amounts are entered by hand.
// Negative values are rejected: amounts are magnitudes, the sign of their
// balance effect comes from the category type or the transfer direction.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// ValidateAmount checks that d is a non-negative amount with at most two
// fraction digits.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrInvalidAmount
	}
	return ValidateScale(d)
}

// ValidateScale checks that d has at most two fraction digits, so it maps
// to a whole number of cents. Unlike ValidateAmount it allows negatives;
// opening balances and effects are signed.
func ValidateScale(d decimal.Decimal) error {
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// Cents converts a validated two-fraction-digit decimal to integer cents.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

// FromCents converts integer cents back to a two-fraction-digit decimal.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
