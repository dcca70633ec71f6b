package engine

import (
	"fmt"

	"backtest/internal/model"
	"backtest/internal/stream"
)

// Data loading. Each call registers one time-ordered source with the merger;
// registration order is the final tie-break for simultaneous events, so load
// order is part of the run configuration.

func (e *Engine) addSource(kind string, events []model.Event) error {
	if e.state != StateIdle {
		return ErrNotIdle
	}
	e.sourceSeq++
	return e.merger.AddSource(fmt.Sprintf("%s-%03d", kind, e.sourceSeq), events)
}

// AddQuoteTicks loads a time-ordered quote tick sequence.
func (e *Engine) AddQuoteTicks(ticks []model.QuoteTick) error {
	events := make([]model.Event, len(ticks))
	for i, t := range ticks {
		events[i] = t
	}
	return e.addSource("quotes", events)
}

// AddTradeTicks loads a time-ordered trade tick sequence.
func (e *Engine) AddTradeTicks(ticks []model.TradeTick) error {
	events := make([]model.Event, len(ticks))
	for i, t := range ticks {
		events[i] = t
	}
	return e.addSource("trades", events)
}

// AddOrderBookDeltas loads a time-ordered depth update sequence.
func (e *Engine) AddOrderBookDeltas(deltas []model.OrderBookDelta) error {
	events := make([]model.Event, len(deltas))
	for i, d := range deltas {
		events[i] = d
	}
	if err := e.addSource("deltas", events); err != nil {
		return err
	}
	for _, d := range deltas {
		e.deltaVenues[d.InstrumentID.Venue] = struct{}{}
	}
	return nil
}

// AddInstrumentStatus loads a time-ordered status sequence.
func (e *Engine) AddInstrumentStatus(statuses []model.InstrumentStatus) error {
	events := make([]model.Event, len(statuses))
	for i, s := range statuses {
		events[i] = s
	}
	return e.addSource("status", events)
}

// AddBars loads externally aggregated bars, delivered to strategies
// subscribed to the bar type.
func (e *Engine) AddBars(bars []model.Bar) error {
	events := make([]model.Event, len(bars))
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		events[i] = b
	}
	return e.addSource("bars", events)
}

// AddBarsAsTicks synthesizes quote ticks from paired bid and ask bar
// streams and loads them as market data. Synthetic ticks are flagged and
// order after genuine ticks with equal timestamps.
func (e *Engine) AddBarsAsTicks(bidBars, askBars []model.Bar) error {
	ticks, err := stream.QuoteTicksFromBars(bidBars, askBars)
	if err != nil {
		return err
	}
	return e.AddQuoteTicks(ticks)
}

// AddBarsAsTradeTicks synthesizes trade ticks from a last-price bar stream.
func (e *Engine) AddBarsAsTradeTicks(bars []model.Bar) error {
	var ticks []model.TradeTick
	for _, b := range bars {
		synth, err := stream.TradeTicksFromBar(b)
		if err != nil {
			return err
		}
		ticks = append(ticks, synth...)
	}
	return e.AddTradeTicks(ticks)
}
