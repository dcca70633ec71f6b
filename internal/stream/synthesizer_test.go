package stream

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

func minuteBar(open, high, low, close string, startMin int64) model.Bar {
	start := startMin * time.Minute.Nanoseconds()
	end := start + time.Minute.Nanoseconds()
	return model.Bar{
		Type: model.BarType{
			InstrumentID: testInstrument,
			Spec: model.BarSpec{
				Step:        1,
				Aggregation: model.BarAggregationMinute,
				PriceType:   model.PriceTypeBid,
			},
		},
		Open:    decimal.RequireFromString(open),
		High:    decimal.RequireFromString(high),
		Low:     decimal.RequireFromString(low),
		Close:   decimal.RequireFromString(close),
		Volume:  decimal.NewFromInt(1000),
		TsStart: start,
		TsEvent: end,
		TsInit:  end,
	}
}

func TestTradeTicksFromBarUpBar(t *testing.T) {
	bar := minuteBar("90.0", "90.5", "89.8", "90.3", 10)
	ticks, err := TradeTicksFromBar(bar)
	require.NoError(t, err)
	require.Len(t, ticks, 4)

	// up bar dips to the low before the high
	assert.True(t, ticks[0].Price.Equal(bar.Open))
	assert.True(t, ticks[1].Price.Equal(bar.Low))
	assert.True(t, ticks[2].Price.Equal(bar.High))
	assert.True(t, ticks[3].Price.Equal(bar.Close))

	for _, tick := range ticks {
		assert.True(t, tick.IsSynthetic())
		assert.Greater(t, tick.TsEvent, bar.TsStart)
		assert.Less(t, tick.TsEvent, bar.TsEvent)
		assert.True(t, tick.Price.GreaterThanOrEqual(bar.Low))
		assert.True(t, tick.Price.LessThanOrEqual(bar.High))
		assert.True(t, tick.Size.Equal(decimal.NewFromInt(250)))
	}
	for i := 1; i < len(ticks); i++ {
		assert.Greater(t, ticks[i].TsEvent, ticks[i-1].TsEvent)
	}
}

func TestTradeTicksFromBarDownBar(t *testing.T) {
	bar := minuteBar("90.3", "90.5", "89.8", "90.0", 10)
	ticks, err := TradeTicksFromBar(bar)
	require.NoError(t, err)
	require.Len(t, ticks, 4)

	// down bar visits the high before the low
	assert.True(t, ticks[0].Price.Equal(bar.Open))
	assert.True(t, ticks[1].Price.Equal(bar.High))
	assert.True(t, ticks[2].Price.Equal(bar.Low))
	assert.True(t, ticks[3].Price.Equal(bar.Close))
}

func TestTradeTicksFromBarRejectsInvalid(t *testing.T) {
	bad := minuteBar("90.0", "89.0", "90.5", "90.0", 10) // high below low
	_, err := TradeTicksFromBar(bad)
	assert.Error(t, err)

	flat := minuteBar("90.0", "90.5", "89.8", "90.3", 10)
	flat.TsEvent = flat.TsStart
	_, err = TradeTicksFromBar(flat)
	assert.Error(t, err)

	// a span shorter than the tick count cannot keep ticks strictly
	// inside the interval
	narrow := minuteBar("90.0", "90.5", "89.8", "90.3", 10)
	narrow.TsEvent = narrow.TsStart + ticksPerBar
	_, err = TradeTicksFromBar(narrow)
	assert.Error(t, err)

	smallest := minuteBar("90.0", "90.5", "89.8", "90.3", 10)
	smallest.TsEvent = smallest.TsStart + ticksPerBar + 1
	ticks, err := TradeTicksFromBar(smallest)
	require.NoError(t, err)
	for _, tick := range ticks {
		assert.Greater(t, tick.TsEvent, smallest.TsStart)
		assert.Less(t, tick.TsEvent, smallest.TsEvent)
	}
}

func TestQuoteTicksFromBars(t *testing.T) {
	bidBars := []model.Bar{
		minuteBar("90.0", "90.5", "89.8", "90.3", 10),
		minuteBar("90.3", "90.6", "90.1", "90.2", 11),
	}
	askBars := []model.Bar{
		minuteBar("90.1", "90.6", "89.9", "90.4", 10),
		minuteBar("90.4", "90.7", "90.2", "90.3", 11),
	}

	ticks, err := QuoteTicksFromBars(bidBars, askBars)
	require.NoError(t, err)
	require.Len(t, ticks, 8)

	for i, tick := range ticks {
		assert.True(t, tick.IsSynthetic())
		assert.True(t, tick.Ask.GreaterThan(tick.Bid), "tick %d: bid %s ask %s", i, tick.Bid, tick.Ask)
		if i > 0 {
			assert.GreaterOrEqual(t, tick.TsEvent, ticks[i-1].TsEvent)
		}
	}
	assert.True(t, ticks[0].Bid.Equal(decimal.RequireFromString("90.0")))
	assert.True(t, ticks[0].Ask.Equal(decimal.RequireFromString("90.1")))
}

func TestQuoteTicksFromBarsMismatch(t *testing.T) {
	bid := minuteBar("90.0", "90.5", "89.8", "90.3", 10)

	_, err := QuoteTicksFromBars([]model.Bar{bid}, nil)
	assert.Error(t, err)

	askLate := minuteBar("90.1", "90.6", "89.9", "90.4", 11)
	_, err = QuoteTicksFromBars([]model.Bar{bid}, []model.Bar{askLate})
	assert.Error(t, err)

	askOther := minuteBar("90.1", "90.6", "89.9", "90.4", 10)
	askOther.Type.InstrumentID = model.NewInstrumentID("EUR/USD", "SIM")
	_, err = QuoteTicksFromBars([]model.Bar{bid}, []model.Bar{askOther})
	assert.Error(t, err)
}
