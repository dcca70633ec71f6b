package strategy

import (
	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// Aggregator builds time-aligned bars of one bar type from tick input. A bar
// closes when a tick arrives at or past the next interval boundary; the
// completed bar's event time is the boundary itself.
type Aggregator struct {
	barType  model.BarType
	interval int64

	building bool
	start    int64
	open     decimal.Decimal
	high     decimal.Decimal
	low      decimal.Decimal
	close    decimal.Decimal
	volume   decimal.Decimal
}

func NewAggregator(barType model.BarType) *Aggregator {
	return &Aggregator{
		barType:  barType,
		interval: barType.Spec.Interval().Nanoseconds(),
	}
}

func (a *Aggregator) BarType() model.BarType { return a.barType }

// ApplyQuote feeds a quote tick, extracting the price basis the bar type
// asks for. It returns the completed bar, if any.
func (a *Aggregator) ApplyQuote(tick model.QuoteTick) (model.Bar, bool) {
	if tick.InstrumentID != a.barType.InstrumentID {
		return model.Bar{}, false
	}
	return a.apply(tick.ExtractPrice(a.barType.Spec.PriceType), tick.BidSize, tick.TsEvent)
}

// ApplyTrade feeds a trade tick. Only LAST-basis bar types aggregate trades.
func (a *Aggregator) ApplyTrade(tick model.TradeTick) (model.Bar, bool) {
	if tick.InstrumentID != a.barType.InstrumentID ||
		a.barType.Spec.PriceType != model.PriceTypeLast {
		return model.Bar{}, false
	}
	return a.apply(tick.Price, tick.Size, tick.TsEvent)
}

func (a *Aggregator) apply(price, size decimal.Decimal, ts int64) (model.Bar, bool) {
	bucket := ts - ts%a.interval
	var done model.Bar
	var emitted bool
	if a.building && bucket > a.start {
		done = a.snapshot()
		emitted = true
		a.building = false
	}
	if !a.building {
		a.building = true
		a.start = bucket
		a.open = price
		a.high = price
		a.low = price
		a.volume = decimal.Decimal{}
	}
	if price.GreaterThan(a.high) {
		a.high = price
	}
	if price.LessThan(a.low) {
		a.low = price
	}
	a.close = price
	a.volume = a.volume.Add(size)
	return done, emitted
}

func (a *Aggregator) snapshot() model.Bar {
	end := a.start + a.interval
	return model.Bar{
		Type:    a.barType,
		Open:    a.open,
		High:    a.high,
		Low:     a.low,
		Close:   a.close,
		Volume:  a.volume,
		TsStart: a.start,
		TsEvent: end,
		TsInit:  end,
	}
}

// Reset drops any partially built bar.
func (a *Aggregator) Reset() {
	a.building = false
}
