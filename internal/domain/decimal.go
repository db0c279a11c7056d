package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxMagnitude bounds every price, quantity, and notional the engine
// accepts. Values at or beyond it are rejected at the boundary so that
// downstream arithmetic stays well inside exact decimal range.
var MaxMagnitude = decimal.RequireFromString("1000000000000")

// CheckScale validates that d has at most the given number of decimal
// places. It returns a ValidationError naming the field otherwise.
func CheckScale(field string, d decimal.Decimal, scale int32) error {
	if !d.Equal(d.Truncate(scale)) {
		return &ValidationError{
			Message: fmt.Sprintf("%s must have at most %d decimal places", field, scale),
		}
	}
	return nil
}

// CheckRange validates that d is positive and below MaxMagnitude.
// Out-of-range magnitudes are treated as validation errors at the
// boundary where the value entered, so the core never has to handle
// overflow mid-match.
func CheckRange(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Message: fmt.Sprintf("%s must be positive", field)}
	}
	if d.GreaterThanOrEqual(MaxMagnitude) {
		return &ValidationError{Message: fmt.Sprintf("%s is out of range", field)}
	}
	return nil
}

// CheckStep validates that d is an exact multiple of step. Used for
// tick size on prices and lot size on quantities.
func CheckStep(field string, d, step decimal.Decimal) error {
	if step.IsZero() {
		return nil
	}
	if !d.Mod(step).IsZero() {
		return &ValidationError{
			Message: fmt.Sprintf("%s must be a multiple of %s", field, step.String()),
		}
	}
	return nil
}

// Notional returns price × quantity.
func Notional(price, quantity decimal.Decimal) decimal.Decimal {
	return price.Mul(quantity)
}

// MinQuantity returns the smaller of a and b.
func MinQuantity(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
