// Package money holds the rupee arithmetic shared by pricing, coupons and shipping.
package money

import "github.com/shopspring/decimal"

const places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds an amount to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percent returns pct percent of amount, unrounded.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ToPaise converts a rupee amount to the smallest currency unit.
func ToPaise(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

// FromPaise converts paise back into rupees.
func FromPaise(p int64) decimal.Decimal {
	return decimal.NewFromInt(p).Shift(-places)
}

// Format renders an amount for user-facing messages.
func Format(d decimal.Decimal) string {
	return "₹" + Round(d).StringFixed(places)
}

// Min returns the smallest of the given amounts.
func Min(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Min(first, rest...)
}
