package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("money: invalid amount")
	ErrNegativeAmount = errors.New("money: amount cannot be negative")
)

// CentsPlaces is the precision prices are stored with.
const CentsPlaces = 2

var half = decimal.NewFromFloat(0.5)

// Parse reads a non-negative decimal amount and rounds it to cents.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return Cents(d), nil
}

// Must parses raw and panics on failure; useful in tests and fixtures.
func Must(raw string) decimal.Decimal {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// Cents rounds an amount to two decimal places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentsPlaces)
}

// RoundHalfUp rounds to the nearest integer with ties going towards +Inf,
// so -2.5 becomes -2 and 2.5 becomes 3.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Add(half).Floor()
}

// NonNegative reports whether every amount is >= 0.
func NonNegative(amounts ...decimal.Decimal) bool {
	for _, a := range amounts {
		if a.IsNegative() {
			return false
		}
	}
	return true
}
