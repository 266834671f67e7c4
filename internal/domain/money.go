package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the fixed number of fractional digits carried by every monetary,
// price and percentage value in the engine. It matches typical exchange
// precision. No calculation path may fall back to binary floating point.
const Scale = 8

// Div divides a by b rounding half-up at Scale. All inexact divisions in the
// engine go through this so rounding behavior stays in one place.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, Scale)
}

// Quantize rounds d to Scale, half away from zero.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// RequirePositive validates that v is strictly greater than zero.
func RequirePositive(name string, v decimal.Decimal) error {
	if v.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be > 0, got %s", ErrInvalidInput, name, v)
	}
	return nil
}

// RequireNonNegative validates that v is zero or greater.
func RequireNonNegative(name string, v decimal.Decimal) error {
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s must be >= 0, got %s", ErrInvalidInput, name, v)
	}
	return nil
}
