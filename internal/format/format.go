// Package format renders worksheet figures for people: Jordanian dinar amounts
// with three decimals and one-decimal percentages.
package format

import (
	"math"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	// exactDigits covers the longest decimal expansion of a float64 fraction.
	exactDigits = 1074

	// CurrencyCode prefixes every rendered amount.
	CurrencyCode = "JOD"
	// CurrencyDigits is the fils precision of the dinar.
	CurrencyDigits = 3
)

// Currency renders v as "JOD 1,234.500". Negative amounts keep their sign
// after the code: "JOD -2.000".
func Currency(v float64) string {
	return CurrencyCode + " " + Number(v, CurrencyDigits)
}

// Number renders v grouped by thousands with exactly digits decimals (0-9).
func Number(v float64, digits int) string {
	if digits < 0 {
		digits = 0
	}
	if digits > 9 {
		digits = 9
	}
	// humanize needs both separators present to read the comma as grouping.
	pattern := "#,###." + strings.Repeat("#", digits)
	return humanize.FormatFloat(pattern, Round(v, int32(digits)))
}

// Percent renders v as a percentage with the given decimals; one decimal is
// the default used across reports. Rounding applies to the exact binary value
// of v, so 1.005 renders as "1.00%" with two decimals.
func Percent(v float64, digits ...int) string {
	d := 1
	if len(digits) > 0 && digits[0] >= 0 {
		d = digits[0]
	}
	return exact(finite(v)).StringFixed(int32(d)) + "%"
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(finite(v)).Round(places).InexactFloat64()
}

// exact converts v without the shortest-representation step of
// decimal.NewFromFloat.
func exact(v float64) decimal.Decimal {
	return decimal.RequireFromString(new(big.Float).SetFloat64(v).Text('f', exactDigits))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
