// Package account maintains positions, multi-currency balances, margin, and
// PnL for simulated venue accounts.
package account

import (
	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// Position is a net holding in one instrument, scoped to a position id.
// Under a netting OMS the id is per instrument; under hedging it is per
// opening order. Mutated only by fills and mark-to-market.
type Position struct {
	ID           model.PositionID
	InstrumentID model.InstrumentID
	StrategyTag  string

	// Quantity is the signed net quantity: positive long, negative short.
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal

	// RealizedPnL accumulates in the instrument's quote currency.
	RealizedPnL decimal.Decimal
	FillCount   int
	TsOpened    int64
	TsClosed    int64
}

// NewPosition opens an empty position record.
func NewPosition(id model.PositionID, instrumentID model.InstrumentID, tag string, ts int64) *Position {
	return &Position{
		ID:           id,
		InstrumentID: instrumentID,
		StrategyTag:  tag,
		TsOpened:     ts,
	}
}

// IsClosed reports whether the net quantity has returned to zero.
func (p *Position) IsClosed() bool {
	return p.FillCount > 0 && p.Quantity.IsZero()
}

// ApplyFill updates the position with average-price accounting and returns
// the realized PnL of the closed portion in the quote currency (zero when the
// fill only extends the position).
func (p *Position) ApplyFill(fill model.Fill, multiplier decimal.Decimal) decimal.Decimal {
	signed := fill.SignedQty()
	realized := decimal.Decimal{}

	switch {
	case p.Quantity.IsZero() || p.Quantity.Sign() == signed.Sign():
		// Extending: volume-weighted average entry.
		oldAbs := p.Quantity.Abs()
		addAbs := signed.Abs()
		total := oldAbs.Add(addAbs)
		p.AvgPrice = p.AvgPrice.Mul(oldAbs).Add(fill.Price.Mul(addAbs)).Div(total)
		p.Quantity = p.Quantity.Add(signed)
	default:
		closeQty := decimal.Min(p.Quantity.Abs(), signed.Abs())
		direction := decimal.NewFromInt(int64(p.Quantity.Sign()))
		realized = fill.Price.Sub(p.AvgPrice).Mul(closeQty).Mul(multiplier).Mul(direction)
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.Quantity = p.Quantity.Add(signed)
		if p.Quantity.Sign() == signed.Sign() && !p.Quantity.IsZero() {
			// Reversed through zero: the remainder opens at the fill price.
			p.AvgPrice = fill.Price
		}
		if p.Quantity.IsZero() {
			p.AvgPrice = decimal.Decimal{}
			p.TsClosed = fill.TsEvent
		}
	}

	p.FillCount++
	return realized
}

// UnrealizedPnL marks the open quantity to the given price, in the quote
// currency.
func (p *Position) UnrealizedPnL(price, multiplier decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Decimal{}
	}
	return price.Sub(p.AvgPrice).Mul(p.Quantity).Mul(multiplier)
}

// Notional returns the absolute exposure at the given price, in the quote
// currency.
func (p *Position) Notional(price, multiplier decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Quantity.Abs()).Mul(multiplier)
}
