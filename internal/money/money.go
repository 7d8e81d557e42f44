// Package money implements an exact fixed-point amount tagged with its currency.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when two amounts of different currencies are combined.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrUnderflow is returned by SubChecked when the result would be negative.
	ErrUnderflow = errors.New("amount underflow")
	// ErrPrecision is returned when an amount has more fractional digits than its currency allows.
	ErrPrecision = errors.New("amount exceeds currency precision")
	// ErrUnknownCurrency is returned for currency codes other than USD and USDT.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrInvalidAmount is returned by Parse for strings that are not decimal numbers.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOutOfRange is returned when an amount does not fit the stored numeric columns.
	ErrOutOfRange = errors.New("amount out of range")
)

// Limit bounds the magnitude of every amount. Columns are numeric(20,8),
// which leaves twelve integer digits.
var Limit = decimal.New(1, 12)

// Currency is the ISO-like code of a supported currency.
type Currency string

const (
	USD  Currency = "USD"  // real products
	USDT Currency = "USDT" // virtual products
)

// Scale returns the number of fractional digits the currency carries.
func (c Currency) Scale() int32 {
	switch c {
	case USD:
		return 4
	case USDT:
		return 8
	}
	return 0
}

func (c Currency) Valid() bool { return c == USD || c == USDT }

// ParseCurrency accepts a currency code case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
	return c, nil
}

// Money is an immutable amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New validates the currency and that amount fits its precision. It never rounds.
func New(amount decimal.Decimal, c Currency) (Money, error) {
	if !c.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, c)
	}
	if !amount.Equal(amount.Truncate(c.Scale())) {
		return Money{}, fmt.Errorf("%w: %s has more than %d decimals for %s", ErrPrecision, amount, c.Scale(), c)
	}
	if err := checkRange(amount); err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: c}, nil
}

// Parse builds Money from a decimal string such as "39.98".
func Parse(s string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d, c)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string, c Currency) Money {
	m, err := Parse(s, c)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero(c Currency) Money { return Money{amount: decimal.Zero, currency: c} }

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// String renders the amount padded to the currency scale, e.g. "39.9800".
func (m Money) String() string {
	return m.amount.StringFixed(m.currency.Scale())
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

func checkRange(d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(Limit) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, d)
	}
	return nil
}

// Add fails with ErrOutOfRange when the sum reaches Limit.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	sum := m.amount.Add(o.amount)
	if err := checkRange(sum); err != nil {
		return Money{}, err
	}
	return Money{amount: sum, currency: m.currency}, nil
}

// Sub subtracts without a floor; the result may be negative.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// SubChecked subtracts and fails with ErrUnderflow instead of going below zero.
// Wallet balances are always debited through it.
func (m Money) SubChecked(o Money) (Money, error) {
	r, err := m.Sub(o)
	if err != nil {
		return Money{}, err
	}
	if r.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, m, o)
	}
	return r, nil
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

// Mul multiplies by an integer quantity; the scale is preserved exactly.
// The product is not range checked, pass it through New before storing it.
func (m Money) Mul(qty int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(qty)), currency: m.currency}
}

// Equal reports whether both currency and amount match.
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}
