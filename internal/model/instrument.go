package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument describes a tradable instrument. Instances are immutable once
// registered for a run.
type Instrument struct {
	ID             InstrumentID
	BaseCurrency   Currency // zero for non-pair instruments
	QuoteCurrency  Currency
	SettlementCcy  Currency
	PricePrecision int32
	SizePrecision  int32
	PriceIncrement decimal.Decimal
	SizeIncrement  decimal.Decimal
	Multiplier     decimal.Decimal // contract multiplier
	MarginInit     decimal.Decimal // initial margin rate
	MarginMaint    decimal.Decimal // maintenance margin rate
	MakerFee       decimal.Decimal
	TakerFee       decimal.Decimal
}

// Validate checks the instrument definition at registration time.
func (i Instrument) Validate() error {
	if i.ID.IsZero() {
		return fmt.Errorf("instrument id is empty")
	}
	if i.QuoteCurrency.IsZero() {
		return fmt.Errorf("instrument %s: quote currency is empty", i.ID)
	}
	if i.SettlementCcy.IsZero() {
		return fmt.Errorf("instrument %s: settlement currency is empty", i.ID)
	}
	if !i.PriceIncrement.IsPositive() {
		return fmt.Errorf("instrument %s: price increment must be > 0", i.ID)
	}
	if !i.SizeIncrement.IsPositive() {
		return fmt.Errorf("instrument %s: size increment must be > 0", i.ID)
	}
	if !i.Multiplier.IsPositive() {
		return fmt.Errorf("instrument %s: multiplier must be > 0", i.ID)
	}
	if i.MarginInit.IsNegative() || i.MarginMaint.IsNegative() {
		return fmt.Errorf("instrument %s: margin rates must be >= 0", i.ID)
	}
	return nil
}

// IsCurrencyPair reports whether the instrument exchanges one currency for
// another, making its prices usable as FX conversion rates.
func (i Instrument) IsCurrencyPair() bool {
	return !i.BaseCurrency.IsZero()
}

// CheckPrice verifies a price respects the instrument's increment.
func (i Instrument) CheckPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price must be > 0: %s", price)
	}
	if !price.Mod(i.PriceIncrement).IsZero() {
		return fmt.Errorf("price %s not a multiple of increment %s", price, i.PriceIncrement)
	}
	return nil
}

// CheckQuantity verifies a quantity respects the instrument's increment.
func (i Instrument) CheckQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("quantity must be > 0: %s", qty)
	}
	if !qty.Mod(i.SizeIncrement).IsZero() {
		return fmt.Errorf("quantity %s not a multiple of increment %s", qty, i.SizeIncrement)
	}
	return nil
}

// Notional returns price * qty * multiplier in the quote currency.
func (i Instrument) Notional(price, qty decimal.Decimal) Money {
	return NewMoney(price.Mul(qty).Mul(i.Multiplier), i.QuoteCurrency)
}
