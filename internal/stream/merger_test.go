package stream

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

var testInstrument = model.NewInstrumentID("USD/JPY", "SIM")

func quoteEv(ts int64) model.QuoteTick {
	return model.QuoteTick{
		InstrumentID: testInstrument,
		Bid:          decimal.NewFromInt(90),
		Ask:          decimal.NewFromInt(91),
		TsEvent:      ts,
		TsInit:       ts,
	}
}

func tradeEv(ts int64) model.TradeTick {
	return model.TradeTick{
		InstrumentID: testInstrument,
		Price:        decimal.NewFromInt(90),
		Size:         decimal.NewFromInt(1),
		TsEvent:      ts,
		TsInit:       ts,
	}
}

func deltaEv(ts int64, seq uint64) model.OrderBookDelta {
	return model.OrderBookDelta{
		InstrumentID: testInstrument,
		Action:       model.BookActionUpdate,
		Side:         model.OrderSideBuy,
		Price:        decimal.NewFromInt(90),
		Size:         decimal.NewFromInt(1),
		Sequence:     seq,
		TsEvent:      ts,
		TsInit:       ts,
	}
}

func statusEv(ts int64) model.InstrumentStatus {
	return model.InstrumentStatus{InstrumentID: testInstrument, Status: "OPEN", TsEvent: ts, TsInit: ts}
}

func drainMerger(m *Merger) []model.Event {
	var out []model.Event
	for {
		ev, ok := m.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestMergeOrdersByTimestamp(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.AddSource("a", []model.Event{quoteEv(10), quoteEv(30)}))
	require.NoError(t, m.AddSource("b", []model.Event{quoteEv(20), quoteEv(40)}))

	got := drainMerger(m)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].EventTime(), got[i].EventTime())
	}
	assert.Equal(t, 4, m.Len())
}

func TestMergeTieBreaksByCategory(t *testing.T) {
	m := NewMerger()
	// register in reverse category order to prove registration does not win
	synthetic := quoteEv(100)
	synthetic.Flags = model.TickFlagSynthetic
	require.NoError(t, m.AddSource("synthetic", []model.Event{synthetic}))
	require.NoError(t, m.AddSource("trades", []model.Event{tradeEv(100)}))
	require.NoError(t, m.AddSource("quotes", []model.Event{quoteEv(100)}))
	require.NoError(t, m.AddSource("deltas", []model.Event{deltaEv(100, 1)}))
	require.NoError(t, m.AddSource("status", []model.Event{statusEv(100)}))

	got := drainMerger(m)
	require.Len(t, got, 5)
	_, ok := got[0].(model.InstrumentStatus)
	assert.True(t, ok, "status first, got %T", got[0])
	_, ok = got[1].(model.OrderBookDelta)
	assert.True(t, ok, "deltas second, got %T", got[1])
	q, ok := got[2].(model.QuoteTick)
	require.True(t, ok)
	assert.False(t, q.IsSynthetic())
	_, ok = got[3].(model.TradeTick)
	assert.True(t, ok, "trades fourth, got %T", got[3])
	q, ok = got[4].(model.QuoteTick)
	require.True(t, ok)
	assert.True(t, q.IsSynthetic(), "synthetic ticks last")
}

func TestMergeTieBreaksByRegistrationOrder(t *testing.T) {
	m := NewMerger()
	first := quoteEv(100)
	first.Bid = decimal.NewFromInt(1)
	second := quoteEv(100)
	second.Bid = decimal.NewFromInt(2)
	require.NoError(t, m.AddSource("first", []model.Event{first}))
	require.NoError(t, m.AddSource("second", []model.Event{second}))

	got := drainMerger(m)
	require.Len(t, got, 2)
	assert.True(t, got[0].(model.QuoteTick).Bid.Equal(decimal.NewFromInt(1)))
	assert.True(t, got[1].(model.QuoteTick).Bid.Equal(decimal.NewFromInt(2)))
}

func TestAddSourceRejectsNonMonotonic(t *testing.T) {
	m := NewMerger()
	err := m.AddSource("bad", []model.Event{quoteEv(20), quoteEv(10)})
	require.ErrorIs(t, err, ErrNonMonotonicSource)
	assert.Zero(t, m.Len())
}

func TestMergerResetReplaysIdentically(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.AddSource("a", []model.Event{quoteEv(10), quoteEv(30)}))
	require.NoError(t, m.AddSource("b", []model.Event{tradeEv(10), tradeEv(20)}))

	first := drainMerger(m)
	m.Reset()
	second := drainMerger(m)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestMergeEqualKeysPreferEarlierInitTime(t *testing.T) {
	m := NewMerger()
	late := quoteEv(100)
	late.TsInit = 105
	early := quoteEv(100)
	early.TsInit = 101
	require.NoError(t, m.AddSource("late", []model.Event{late}))
	require.NoError(t, m.AddSource("early", []model.Event{early}))

	got := drainMerger(m)
	require.Len(t, got, 2)
	assert.Equal(t, int64(101), got[0].InitTime())
}
