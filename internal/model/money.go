package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount in a single currency. Amounts are kept at full
// precision internally; rounding to the currency precision happens when a
// balance is read out, not on every operation.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney builds a Money value from an already-scaled decimal amount.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// MoneyFromInt64 is a convenience constructor for whole-unit amounts.
func MoneyFromInt64(units int64, currency Currency) Money {
	return Money{Amount: decimal.NewFromInt(units), Currency: currency}
}

// MoneyFromString parses a decimal amount string.
func MoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse money amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Rounded returns the amount rounded half-up to the currency precision.
func (m Money) Rounded() decimal.Decimal {
	return m.Amount.Round(m.Currency.Precision)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(m.Currency.Precision) + " " + m.Currency.Code
}
