package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount on decimal.Decimal
// =============================================================================

// Money is a single-currency amount. Arithmetic is exact; rounding to cents
// happens only where a rule says so (installment share, late interest).
type Money struct {
	Value decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Zero is the zero amount.
var Zero = Money{Value: decimal.Zero}

func NewMoney(value decimal.Decimal) Money { return Money{Value: value} }
func MoneyFromInt(v int64) Money           { return Money{Value: decimal.NewFromInt(v)} }

// MoneyFromCents builds an amount from an integer number of cents.
func MoneyFromCents(cents int64) Money { return Money{Value: decimal.New(cents, -2)} }

// ParseMoney parses a decimal string such as "458.33".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{Value: d}, nil
}

// MustParseMoney panics on malformed input. Intended for literals.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money           { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money           { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(f decimal.Decimal) Money { return Money{Value: m.Value.Mul(f)} }
func (m Money) Div(f decimal.Decimal) Money { return Money{Value: m.Value.Div(f)} }
func (m Money) Abs() Money                  { return Money{Value: m.Value.Abs()} }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }

// RoundCents rounds half away from zero to two decimal places, which is
// half-up for every non-negative amount this system produces.
func (m Money) RoundCents() Money { return Money{Value: m.Value.Round(2)} }

// Cents returns the amount in whole cents after rounding.
func (m Money) Cents() int64 { return m.Value.Mul(hundred).Round(0).IntPart() }

// String renders two fixed decimals, e.g. "458.30".
func (m Money) String() string { return m.Value.StringFixed(2) }

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
