// Package strategy holds the trading strategy contract, the per-strategy
// trader context, bar aggregation, and the built-in indicator strategies.
package strategy

import "github.com/shopspring/decimal"

// EMA is an exponential moving average with alpha = 2/(period+1). It reports
// initialized once it has absorbed a full period of inputs.
type EMA struct {
	period int
	alpha  decimal.Decimal
	value  decimal.Decimal
	count  int
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period) + 1)),
	}
}

func (e *EMA) Update(price decimal.Decimal) {
	e.count++
	if e.count == 1 {
		e.value = price
		return
	}
	e.value = price.Sub(e.value).Mul(e.alpha).Add(e.value)
}

func (e *EMA) Value() decimal.Decimal { return e.value }

func (e *EMA) Initialized() bool { return e.count >= e.period }

func (e *EMA) Reset() {
	e.value = decimal.Decimal{}
	e.count = 0
}
