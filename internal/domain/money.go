package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed whenever a caller does not supply one.
const DefaultCurrency = "USD"

// Money is a decimal amount in a single currency. The zero value is 0.00 in an
// unspecified currency and combines with any currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney builds an amount from whole units and cents, e.g. NewMoney(9, 99) = 9.99.
func NewMoney(units int64, cents int64) Money {
	total := decimal.NewFromInt(units).Mul(decimal.NewFromInt(100))
	if units < 0 {
		total = total.Sub(decimal.NewFromInt(cents))
	} else {
		total = total.Add(decimal.NewFromInt(cents))
	}
	return Money{amount: total.Div(decimal.NewFromInt(100)), currency: DefaultCurrency}
}

// MoneyFromDecimal wraps an arbitrary-precision decimal without rounding it.
func MoneyFromDecimal(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: normalizeCurrency(currency)}
}

// MoneyFromString parses a decimal string such as "12.34".
func MoneyFromString(value, currency string) (Money, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", value, err)
	}
	return Money{amount: amount, currency: normalizeCurrency(currency)}, nil
}

// ZeroMoney is an explicit 0.00 in the given currency.
func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero, currency: normalizeCurrency(currency)}
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}

// Currency reports the currency code, defaulting when unset.
func (m Money) Currency() string {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

// Decimal exposes the underlying amount.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) resolveCurrency(other Money) (string, error) {
	switch {
	case m.currency == "" || m.currency == other.currency:
		return other.Currency(), nil
	case other.currency == "":
		return m.Currency(), nil
	default:
		return "", fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
}

// Add returns m + other; mixing currencies is an error.
func (m Money) Add(other Money) (Money, error) {
	currency, err := m.resolveCurrency(other)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: currency}, nil
}

// Sub returns m - other; mixing currencies is an error.
func (m Money) Sub(other Money) (Money, error) {
	currency, err := m.resolveCurrency(other)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: currency}, nil
}

// MulInt scales by a whole quantity.
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n)), currency: m.currency}
}

// MulDecimal scales by an arbitrary factor without rounding.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Neg flips the sign.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Round2 rounds half-up to two decimal places. Every amount that reaches a
// payment component or a total goes through this.
func (m Money) Round2() Money {
	return Money{amount: m.amount.Round(2), currency: m.currency}
}

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Cmp orders two amounts; currencies are not checked here.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// MinorUnits renders the amount as integer minor units (cents) for gateways.
func (m Money) MinorUnits() int64 {
	return m.amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// String renders the bare amount with two decimal places, e.g. "12.34".
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Format renders "USD 12.34".
func (m Money) Format() string {
	return m.Currency() + " " + m.String()
}

// MarshalJSON encodes the amount as a string to avoid float drift in clients.
// JSON Money is amount-only: the currency is not encoded and rides on the
// enclosing struct (CartTotals.Currency, Order.Currency).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", m.String())), nil
}

// UnmarshalJSON accepts either a quoted or bare decimal. The currency is left
// unset; callers attach it from the enclosing struct.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = Money{}
		return nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse money %q: %w", raw, err)
	}
	m.amount = amount
	return nil
}
