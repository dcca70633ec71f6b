package stream

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// ticksPerBar is the number of synthetic ticks one bar expands into: open,
// both extremes, close.
const ticksPerBar = 4

var four = decimal.NewFromInt(ticksPerBar)

// barPath returns the OHLC traversal for a bar. Down bars visit the high
// first; up and flat bars dip to the low first.
func barPath(bar model.Bar) [ticksPerBar]decimal.Decimal {
	if bar.Close.LessThan(bar.Open) {
		return [ticksPerBar]decimal.Decimal{bar.Open, bar.High, bar.Low, bar.Close}
	}
	return [ticksPerBar]decimal.Decimal{bar.Open, bar.Low, bar.High, bar.Close}
}

// tickTimes spaces the synthetic timestamps evenly and strictly inside the
// bar interval so synthetic ticks never collide with interval-boundary data.
func tickTimes(bar model.Bar) ([ticksPerBar]int64, error) {
	span := bar.TsEvent - bar.TsStart
	if span <= 0 {
		return [ticksPerBar]int64{}, fmt.Errorf("bar %s: non-positive interval (start=%d end=%d)",
			bar.Type, bar.TsStart, bar.TsEvent)
	}
	step := span / (ticksPerBar + 1)
	if step == 0 {
		return [ticksPerBar]int64{}, fmt.Errorf("bar %s: interval too short to subdivide (start=%d end=%d)",
			bar.Type, bar.TsStart, bar.TsEvent)
	}
	var out [ticksPerBar]int64
	for i := 0; i < ticksPerBar; i++ {
		out[i] = bar.TsStart + step*int64(i+1)
	}
	return out, nil
}

// TradeTicksFromBar expands a bar into four synthetic trade ticks following
// the open->extremes->close path. The volume splits evenly across the ticks.
func TradeTicksFromBar(bar model.Bar) ([]model.TradeTick, error) {
	if err := bar.Validate(); err != nil {
		return nil, err
	}
	times, err := tickTimes(bar)
	if err != nil {
		return nil, err
	}
	path := barPath(bar)
	size := bar.Volume.Div(four)
	ticks := make([]model.TradeTick, 0, ticksPerBar)
	for i := 0; i < ticksPerBar; i++ {
		ticks = append(ticks, model.TradeTick{
			InstrumentID: bar.Type.InstrumentID,
			Price:        path[i],
			Size:         size,
			Aggressor:    model.AggressorSideUnknown,
			TradeID:      "S-" + strconv.FormatInt(times[i], 10) + "-" + strconv.Itoa(i),
			Flags:        model.TickFlagSynthetic,
			TsEvent:      times[i],
			TsInit:       times[i],
		})
	}
	return ticks, nil
}

// QuoteTicksFromBars expands paired bid and ask bars into synthetic quote
// ticks. The pairs must line up one-to-one on bar close times.
func QuoteTicksFromBars(bidBars, askBars []model.Bar) ([]model.QuoteTick, error) {
	if len(bidBars) != len(askBars) {
		return nil, fmt.Errorf("bid/ask bar count mismatch: %d vs %d", len(bidBars), len(askBars))
	}
	ticks := make([]model.QuoteTick, 0, len(bidBars)*ticksPerBar)
	for i := range bidBars {
		bid, ask := bidBars[i], askBars[i]
		if bid.TsEvent != ask.TsEvent {
			return nil, fmt.Errorf("bid/ask bar timestamp mismatch at index %d: %d vs %d",
				i, bid.TsEvent, ask.TsEvent)
		}
		if bid.Type.InstrumentID != ask.Type.InstrumentID {
			return nil, fmt.Errorf("bid/ask bar instrument mismatch at index %d: %s vs %s",
				i, bid.Type.InstrumentID, ask.Type.InstrumentID)
		}
		if err := bid.Validate(); err != nil {
			return nil, err
		}
		if err := ask.Validate(); err != nil {
			return nil, err
		}
		times, err := tickTimes(bid)
		if err != nil {
			return nil, err
		}
		bidPath, askPath := barPath(bid), barPath(ask)
		bidSize := bid.Volume.Div(four)
		askSize := ask.Volume.Div(four)
		for j := 0; j < ticksPerBar; j++ {
			ticks = append(ticks, model.QuoteTick{
				InstrumentID: bid.Type.InstrumentID,
				Bid:          bidPath[j],
				Ask:          askPath[j],
				BidSize:      bidSize,
				AskSize:      askSize,
				Flags:        model.TickFlagSynthetic,
				TsEvent:      times[j],
				TsInit:       times[j],
			})
		}
	}
	return ticks, nil
}
