package strategy

import (
	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// EMACross trades a fast/slow exponential moving average crossover on one
// bar type. A golden cross flattens any short exposure and goes long; a
// death cross does the opposite.
type EMACross struct {
	Nop

	barType   model.BarType
	tradeSize decimal.Decimal
	tag       string

	fast *EMA
	slow *EMA
	// -1 short, 0 flat, +1 long
	stance int
}

func NewEMACross(barType model.BarType, fastPeriod, slowPeriod int, tradeSize decimal.Decimal, tag string) *EMACross {
	return &EMACross{
		barType:   barType,
		tradeSize: tradeSize,
		tag:       tag,
		fast:      NewEMA(fastPeriod),
		slow:      NewEMA(slowPeriod),
	}
}

func (s *EMACross) Tag() string { return s.tag }

func (s *EMACross) OnStart(t *Trader) {
	t.SubscribeBars(s.barType)
}

func (s *EMACross) OnBar(t *Trader, bar model.Bar) {
	if bar.Type != s.barType {
		return
	}
	s.fast.Update(bar.Close)
	s.slow.Update(bar.Close)
	if !s.slow.Initialized() {
		return
	}

	switch {
	case s.fast.Value().GreaterThan(s.slow.Value()) && s.stance <= 0:
		s.flatten(t)
		if _, err := t.SubmitMarket(s.barType.InstrumentID, model.OrderSideBuy, s.tradeSize); err != nil {
			return
		}
		s.stance = 1
	case s.fast.Value().LessThan(s.slow.Value()) && s.stance >= 0:
		s.flatten(t)
		if _, err := t.SubmitMarket(s.barType.InstrumentID, model.OrderSideSell, s.tradeSize); err != nil {
			return
		}
		s.stance = -1
	}
}

func (s *EMACross) flatten(t *Trader) {
	for _, pos := range t.OpenPositionsFor(s.barType.InstrumentID) {
		if _, err := t.ClosePosition(pos); err != nil {
			return
		}
	}
}

func (s *EMACross) OnStop(t *Trader) {
	s.flatten(t)
}

func (s *EMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.stance = 0
}
