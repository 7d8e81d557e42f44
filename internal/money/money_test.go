package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Precision(t *testing.T) {
	_, err := New(decimal.RequireFromString("1.2345"), USD)
	assert.NoError(t, err)

	_, err = New(decimal.RequireFromString("1.23456"), USD)
	assert.ErrorIs(t, err, ErrPrecision)

	// trailing zeros beyond the scale do not change the value
	m, err := New(decimal.RequireFromString("39.98000000"), USD)
	require.NoError(t, err)
	assert.Equal(t, "39.9800", m.String())

	_, err = New(decimal.RequireFromString("0.12345678"), USDT)
	assert.NoError(t, err)
	_, err = New(decimal.RequireFromString("0.123456789"), USDT)
	assert.ErrorIs(t, err, ErrPrecision)

	_, err = New(decimal.NewFromInt(1), Currency("EUR"))
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestArithmetic(t *testing.T) {
	a := MustParse("100.00", USD)
	b := MustParse("39.98", USD)

	diff, err := a.SubChecked(b)
	require.NoError(t, err)
	assert.Equal(t, "60.0200", diff.String())

	sum, err := diff.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equal(a))

	_, err = b.SubChecked(a)
	assert.ErrorIs(t, err, ErrUnderflow)

	neg, err := b.Sub(a)
	require.NoError(t, err)
	assert.True(t, neg.IsNegative())

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	assert.Equal(t, "39.9800", MustParse("19.99", USD).Mul(2).String())
	assert.True(t, Zero(USDT).IsZero())
}

func TestCurrencyMismatch(t *testing.T) {
	usd := MustParse("1", USD)
	usdt := MustParse("1", USDT)

	_, err := usd.Add(usdt)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd.SubChecked(usdt)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd.Cmp(usdt)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.False(t, usd.Equal(usdt))
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usdt ")
	require.NoError(t, err)
	assert.Equal(t, USDT, c)

	_, err = ParseCurrency("BTC")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestRange(t *testing.T) {
	_, err := Parse("999999999999.9999", USD)
	assert.NoError(t, err)
	_, err = Parse("1000000000000", USD)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Parse("-1000000000000", USDT)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = MustParse("999999999999", USD).Add(MustParse("1", USD))
	assert.ErrorIs(t, err, ErrOutOfRange)

	big := MustParse("500000000000", USD).Mul(3)
	_, err = New(big.Amount(), USD)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Parse("12abc", USD)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
