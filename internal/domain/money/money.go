// Package money provides a fixed-point monetary value type.
//
// Amounts are stored as integer minor units (paise, cents) and all arithmetic
// happens on integers. Binary floating point never participates in a
// calculation; conversion to and from decimal representations is confined to
// boundaries such as HTTP responses and NUMERIC database columns.
package money

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimal places in a major unit.
// Both INR and USD use 2.
const minorUnitExponent = 2

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrFractionalMinorUnit is returned when a decimal value cannot be
	// represented exactly in minor units.
	ErrFractionalMinorUnit = errors.New("amount has fractional minor units")
)

// Money is an amount of a single currency in integer minor units.
// The zero value is zero units of no currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New builds a Money from an amount in minor units.
func New(minorUnits int64, currency string) Money {
	return Money{Amount: minorUnits, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// FromDecimal converts a decimal major-unit value (e.g. 303.90) into Money.
// Values with more precision than the currency's minor unit are rejected
// rather than rounded: a payment amount arriving with sub-paise precision is
// a caller bug, not something to paper over.
func FromDecimal(d decimal.Decimal, currency string) (Money, error) {
	minor := d.Shift(minorUnitExponent)
	if !minor.IsInteger() {
		return Money{}, errors.Wrapf(ErrFractionalMinorUnit, "amount %s", d)
	}
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

// Parse converts a decimal display string (e.g. "303.90") into Money.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, errors.Wrap(err, "parse amount")
	}
	return FromDecimal(d, currency)
}

// Decimal returns the major-unit decimal representation, e.g. 30390 -> 303.90.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Shift(-minorUnitExponent)
}

// String formats the amount with the currency's full minor-unit precision.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(minorUnitExponent), m.Currency)
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MulInt returns m scaled by an integer factor, e.g. a unit price times a
// line item quantity. Integer multiplication is exact.
func (m Money) MulInt(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// PercentBP applies a percentage expressed in basis points (100bp = 1%),
// rounding half away from zero on the minor unit. Tax computation uses this
// so that 18% of 10050 paise is 1809, not 1808.999....
func (m Money) PercentBP(bp int64) Money {
	product := m.Amount * bp
	q := product / 10000
	r := product % 10000
	if r >= 5000 {
		q++
	} else if r <= -5000 {
		q--
	}
	return Money{Amount: q, Currency: m.Currency}
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if
// equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount < 0
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return errors.Wrapf(ErrCurrencyMismatch, "%s vs %s", m.Currency, other.Currency)
	}
	return nil
}
