package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CentsFromDecimal converts a major-unit amount such as 150.25 to minor
// units. Amounts with more than two fractional digits are rejected rather
// than rounded.
func CentsFromDecimal(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has fractional cents", ErrInvalidAmount, d.String())
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return shifted.IntPart(), nil
}

// ParseCents parses a decimal string in major units.
func ParseCents(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	return CentsFromDecimal(d)
}

// FormatCents renders minor units with two fractional digits.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
