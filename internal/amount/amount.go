// Package amount implements the fixed-point Amount type from spec.md §3:
// a non-negative value with 8 fractional decimal digits of precision,
// stored as an integer count of the smallest unit (10^-8).
package amount

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional decimal digits an Amount carries.
const Precision = 8

// unit is 10^Precision, the smallest representable fraction of one coin.
const unit = 100000000

// Amount is a non-negative quantity of smallest units. All arithmetic on
// Amount is plain int64 addition/subtraction; decimal is only used at the
// JSON boundary so wire values can be written as "1.5" or 150000000.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromSmallestUnits wraps a raw integer count of smallest units.
func FromSmallestUnits(units int64) Amount { return Amount(units) }

// SmallestUnits returns the raw integer count backing the Amount.
func (a Amount) SmallestUnits() int64 { return int64(a) }

// FromDecimalString parses a decimal string like "12.34500000" into an
// Amount, rejecting more than Precision fractional digits or negative
// values.
func FromDecimalString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount: %w", err)
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount: negative amounts are not allowed")
	}
	scaled := d.Shift(Precision)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount: more than %d fractional digits", Precision)
	}
	return Amount(scaled.IntPart()), nil
}

// String renders the amount with exactly Precision fractional digits.
func (a Amount) String() string {
	return decimal.New(int64(a), -Precision).StringFixed(Precision)
}

// Add returns a+b. Overflow is not checked: total supply is bounded well
// below int64 range by the reward schedule (see internal/ledger/chain).
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// Positive reports whether the amount is strictly greater than zero.
func (a Amount) Positive() bool { return a > 0 }

// MarshalJSON emits the amount as a decimal string, matching spec.md §6's
// "decimal strings or numbers" wire format; strings avoid float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := FromDecimalString(asString)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}

	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	parsed, err := fromDecimal(d)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
