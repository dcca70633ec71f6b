// Package exchange implements the per-venue simulated exchange: order
// acceptance, matching against historical market data, commissions, and
// pluggable venue modules.
package exchange

import (
	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// CommissionModel computes the commission committed with each fill.
type CommissionModel interface {
	Commission(instrument model.Instrument, price, qty decimal.Decimal, liquidity model.LiquiditySide) model.Money
}

// FixedCommission charges a flat amount per fill.
type FixedCommission struct {
	Amount model.Money
}

func (m FixedCommission) Commission(model.Instrument, decimal.Decimal, decimal.Decimal, model.LiquiditySide) model.Money {
	return m.Amount
}

// RateCommission charges the instrument's maker or taker rate on notional,
// rounded to the quote currency precision.
type RateCommission struct{}

func (RateCommission) Commission(instrument model.Instrument, price, qty decimal.Decimal, liquidity model.LiquiditySide) model.Money {
	rate := instrument.TakerFee
	if liquidity == model.LiquiditySideMaker {
		rate = instrument.MakerFee
	}
	notional := instrument.Notional(price, qty)
	amount := notional.Amount.Mul(rate).Round(notional.Currency.Precision)
	return model.NewMoney(amount, notional.Currency)
}

// NoCommission charges nothing. Used by tests that isolate PnL effects.
type NoCommission struct{}

func (NoCommission) Commission(instrument model.Instrument, _, _ decimal.Decimal, _ model.LiquiditySide) model.Money {
	return model.NewMoney(decimal.Decimal{}, instrument.QuoteCurrency)
}
