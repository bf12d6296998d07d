// Package money holds the fixed-point arithmetic helpers shared by the
// funding and schedule calculations. All currency amounts are
// shopspring decimals rounded half-up to 2 places; float64 never touches
// domain money.
package money

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)

	// GSTMultiplier is the 10% GST uplift applied to pre-GST fees.
	GSTMultiplier = decimal.NewFromFloat(1.10)
)

// Round2 rounds a currency amount to 2 decimal places, half away from zero,
// which for non-negative amounts is the half-up rounding used for display.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent applies a percentage rate to a base amount and rounds to cents:
// base * rate / 100.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(rate).Div(hundred))
}

// RateFraction converts a percent figure (e.g. 5.5) to its fractional form
// (0.055) without rounding.
func RateFraction(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(hundred)
}

// WithGST applies the GST uplift to a pre-GST amount and rounds to cents.
func WithGST(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(GSTMultiplier))
}
