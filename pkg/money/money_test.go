package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRound(t *testing.T) {
	assert.True(t, Round(d("36.005")).Equal(d("36.01")))
	assert.True(t, Round(d("19.994")).Equal(d("19.99")))
	assert.True(t, Round(d("1170")).Equal(d("1170")))
}

func TestClampZero(t *testing.T) {
	assert.True(t, ClampZero(d("-5")).IsZero())
	assert.True(t, ClampZero(d("5")).Equal(d("5")))
}

func TestPercent(t *testing.T) {
	assert.True(t, Percent(d("1800"), d("2")).Equal(d("36")))
	assert.True(t, Percent(d("999"), d("15")).Equal(d("149.85")))
}

func TestPaiseConversion(t *testing.T) {
	assert.Equal(t, int64(117000), ToPaise(d("1170")))
	assert.Equal(t, int64(183650), ToPaise(d("1836.499")))
	assert.True(t, FromPaise(183650).Equal(d("1836.5")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "₹200.00", Format(d("200")))
	assert.Equal(t, "₹36.50", Format(d("36.5")))
}

func TestMin(t *testing.T) {
	assert.True(t, Min(d("10"), d("3"), d("7")).Equal(d("3")))
}
