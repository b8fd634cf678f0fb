// Package calc derives cost and variance figures for worksheet line items and
// aggregates them into daily summaries. Every function here is pure: no I/O,
// no shared state, safe to call from any goroutine.
package calc

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceNumber converts any value into a finite float64. Values that are not
// numbers, strings without a numeric prefix, nil, NaN and infinities all
// become 0.
//
// Strings are read the way a spreadsheet cell would be: leading whitespace is
// ignored and the longest leading decimal literal is used, so "12.5 kg"
// yields 12.5 while "kg" yields 0.
func CoerceNumber(value any) float64 {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		f = parseLeadingFloat(string(v))
	case decimal.Decimal:
		f = v.InexactFloat64()
	case string:
		f = parseLeadingFloat(v)
	case *float64:
		if v == nil {
			return 0
		}
		f = *v
	case *string:
		if v == nil {
			return 0
		}
		f = parseLeadingFloat(*v)
	default:
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseLeadingFloat parses the longest prefix of s that forms a decimal
// literal: [sign] digits [. digits] [e [sign] digits].
func parseLeadingFloat(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		if exp < len(s) && isDigit(s[exp]) {
			for exp < len(s) && isDigit(s[exp]) {
				exp++
			}
			end = exp
		}
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		// Out of range literals come back as ±Inf with ErrRange.
		return finite(f)
	}
	return f
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
