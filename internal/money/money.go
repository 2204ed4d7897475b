package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money is an amount of the storefront currency in minor units (paise for INR).
// All arithmetic is performed on int64 so totals stay exact across many line items.
//
// Examples:
//   - ₹499     = Money(49900)
//   - ₹998.99  = Money(99899)
type Money int64

// Decimals is the number of minor-unit digits for the storefront currency.
const Decimals = 2

var (
	// ErrOverflow occurs when an operation would exceed int64 capacity.
	ErrOverflow = errors.New("money: arithmetic overflow")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")
)

// Zero is the zero amount.
const Zero Money = 0

// Rupees builds an amount from whole major units.
func Rupees(major int64) Money {
	return Money(major * 100)
}

// FromMajor parses a major-unit decimal string such as "499.00" or "998.5".
// Fractions beyond two digits are rounded half away from zero.
func FromMajor(major string) (Money, error) {
	d, err := decimal.NewFromString(major)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return fromDecimal(d)
}

// FromFloat converts a float major amount (as returned by some endpoints) to Money.
func FromFloat(major float64) (Money, error) {
	if math.IsNaN(major) || math.IsInf(major, 0) {
		return 0, ErrInvalidFormat
	}
	return fromDecimal(decimal.NewFromFloat(major))
}

// MustFromMajor is FromMajor for constants and tests; it panics on bad input.
func MustFromMajor(major string) Money {
	m, err := FromMajor(major)
	if err != nil {
		panic(err)
	}
	return m
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(Decimals).Round(0)
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrOverflow
	}
	return Money(minor.IntPart()), nil
}

// Mul multiplies the amount by an integer quantity.
func (m Money) Mul(quantity int64) (Money, error) {
	if m == 0 || quantity == 0 {
		return 0, nil
	}
	result := int64(m) * quantity
	if result/quantity != int64(m) {
		return 0, ErrOverflow
	}
	return Money(result), nil
}

// Add sums two amounts.
func (m Money) Add(other Money) (Money, error) {
	sum := m + other
	if (other > 0 && sum < m) || (other < 0 && sum > m) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// ClampZero returns the amount, or zero when it is negative.
func (m Money) ClampZero() Money {
	if m < 0 {
		return 0
	}
	return m
}

// Major renders the amount as a fixed two-decimal string ("499.00").
func (m Money) Major() string {
	return decimal.New(int64(m), -Decimals).StringFixed(Decimals)
}

// Float returns the major amount as float64 for wire formats that require a number.
func (m Money) Float() float64 {
	f, _ := decimal.New(int64(m), -Decimals).Float64()
	return f
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return "₹" + m.Major()
}

// PercentOf returns m as a whole percentage of total, rounded half up.
// Returns 0 when total is not positive.
func (m Money) PercentOf(total Money) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(m) * 100 / float64(total)))
}
