package events

import (
	"github.com/shopspring/decimal"
)

// Money is a decimal amount that keeps its scale on the wire: 2.50 is
// written as "2.50", not "2.5".
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d, keeping its exponent.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MoneyFromInt returns a whole amount.
func MoneyFromInt(v int64) Money {
	return Money{Decimal: decimal.NewFromInt(v)}
}

// ParseMoney parses a decimal string such as "19.90".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Decimal: d}, nil
}

// MustParseMoney is ParseMoney for literals; it panics on bad input.
func MustParseMoney(s string) Money {
	return Money{Decimal: decimal.RequireFromString(s)}
}

// Scale is the number of digits after the decimal point.
func (m Money) Scale() int32 {
	if exp := m.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// String renders m with exactly Scale digits after the point.
func (m Money) String() string {
	return m.StringFixed(m.Scale())
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Mul returns m times qty at m's scale.
func (m Money) Mul(qty int64) Money {
	return Money{Decimal: m.Decimal.Mul(decimal.NewFromInt(qty))}
}

// Add returns m plus o; the result keeps the larger scale.
func (m Money) Add(o Money) Money {
	return Money{Decimal: m.Decimal.Add(o.Decimal)}
}
