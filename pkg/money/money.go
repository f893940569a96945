// Package money provides the decimal helpers used for statement amounts.
// Amounts are shopspring decimals end to end; go-money is only used for display.
package money

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// THB is the only currency statements are booked in.
const THB = "THB"

// Scale is the number of fractional digits amounts are normalized to.
const Scale = 2

// SplitTolerance is the absolute difference allowed between a split total and its parent amount.
var SplitTolerance = decimal.New(1, -Scale)

// ParseAmount parses a statement amount such as "1,234.50".
// Thousands separators and surrounding whitespace are removed. Empty, "NaN" and
// unparseable inputs return nil, never zero.
func ParseAmount(raw string) *decimal.Decimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if cleaned == "" || strings.EqualFold(cleaned, "nan") {
		return nil
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// Fixed renders d with exactly two fractional digits (half away from zero).
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// NullableFixed is Fixed for an optional amount; nil stays nil.
func NullableFixed(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := Fixed(*d)
	return &s
}

// Normalize rounds d to two fractional digits.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// EqualFixed reports whether a and b are the same amount after two-digit normalization.
// Two nil amounts are equal; nil never equals a number, including zero.
func EqualFixed(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Normalize(*a).Equal(Normalize(*b))
}

// IsPositive reports whether d is present and greater than zero.
func IsPositive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Within reports whether |a-b| <= tolerance.
func Within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// Display formats an amount for humans, e.g. "฿1,234.50".
func Display(d decimal.Decimal) string {
	cents := Normalize(d).Shift(Scale).IntPart()
	return money.New(cents, THB).Display()
}

// DisplayPtr formats an optional amount; nil renders as "-".
func DisplayPtr(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return Display(*d)
}
