package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/exchange"
	"backtest/internal/model"
	"backtest/internal/strategy"
)

const venueSim = model.Venue("SIM")

func usdjpy() model.Instrument {
	return model.Instrument{
		ID:             model.NewInstrumentID("USD/JPY", venueSim),
		BaseCurrency:   model.USD,
		QuoteCurrency:  model.JPY,
		SettlementCcy:  model.JPY,
		PricePrecision: 3,
		SizePrecision:  0,
		PriceIncrement: decimal.RequireFromString("0.001"),
		SizeIncrement:  decimal.NewFromInt(1),
		Multiplier:     decimal.NewFromInt(1),
		MarginInit:     decimal.RequireFromString("0.03"),
		MarginMaint:    decimal.RequireFromString("0.03"),
		MakerFee:       decimal.RequireFromString("0.00002"),
		TakerFee:       decimal.RequireFromString("0.00002"),
	}
}

// waveBars builds n one-minute bars riding a slow price wave, offset so bid
// and ask streams stay consistent.
func waveBars(n int, offset float64) []model.Bar {
	barType := model.BarType{
		InstrumentID: model.NewInstrumentID("USD/JPY", venueSim),
		Spec: model.BarSpec{
			Step:        1,
			Aggregation: model.BarAggregationMinute,
			PriceType:   model.PriceTypeBid,
		},
	}
	start := time.Date(2013, 2, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	minute := time.Minute.Nanoseconds()
	price := func(i int) decimal.Decimal {
		p := 90.0 + 2.0*math.Sin(float64(i)/20.0) + offset
		return decimal.NewFromFloat(p).Round(3)
	}
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		open, close := price(i), price(i+1)
		high, low := decimal.Max(open, close), decimal.Min(open, close)
		bars[i] = model.Bar{
			Type:    barType,
			Open:    open,
			High:    high.Add(decimal.RequireFromString("0.010")),
			Low:     low.Sub(decimal.RequireFromString("0.010")),
			Close:   close,
			Volume:  decimal.NewFromInt(100_000),
			TsStart: start + int64(i)*minute,
			TsEvent: start + int64(i+1)*minute,
			TsInit:  start + int64(i+1)*minute,
		}
	}
	return bars
}

func buildEngine(t *testing.T, minutes int) *Engine {
	t.Helper()
	e := New(Config{})
	require.NoError(t, e.AddVenue(VenueConfig{
		Venue:            venueSim,
		VenueType:        model.VenueTypeECN,
		OMS:              model.OMSTypeHedging,
		AccountType:      model.AccountTypeMargin,
		BaseCurrency:     model.USD,
		StartingBalances: []model.Money{model.MoneyFromInt64(1_000_000, model.USD)},
		Commission:       exchange.RateCommission{},
	}))
	require.NoError(t, e.AddInstrument(usdjpy()))
	require.NoError(t, e.AddBarsAsTicks(waveBars(minutes, 0), waveBars(minutes, 0.004)))
	return e
}

func emaCross(tag string) *strategy.EMACross {
	barType := model.BarType{
		InstrumentID: model.NewInstrumentID("USD/JPY", venueSim),
		Spec: model.BarSpec{
			Step:        15,
			Aggregation: model.BarAggregationMinute,
			PriceType:   model.PriceTypeBid,
		},
	}
	return strategy.NewEMACross(barType, 10, 20, decimal.NewFromInt(100_000), tag)
}

func TestRunProcessesEveryEvent(t *testing.T) {
	e := buildEngine(t, 600)
	report, err := e.Run(context.Background(), emaCross("001"))
	require.NoError(t, err)

	assert.Equal(t, StateStopped, e.State())
	// 600 bid/ask bar pairs, 4 synthetic ticks each
	assert.Equal(t, uint64(600*4), report.Iterations)
	assert.Equal(t, report.Iterations, uint64(report.Metrics.Quotes))
	assert.NotZero(t, report.Metrics.Fills)
	assert.NotZero(t, report.Fingerprint)
}

func TestRunResetRunIsReproducible(t *testing.T) {
	e := buildEngine(t, 600)
	s := emaCross("001")

	first, err := e.Run(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, e.Reset())
	assert.Equal(t, StateIdle, e.State())

	second, err := e.Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, first.Iterations, second.Iterations)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Metrics.Fills, second.Metrics.Fills)
	require.Len(t, second.Balances[venueSim], len(first.Balances[venueSim]))
	for i, b := range first.Balances[venueSim] {
		assert.Equal(t, b.String(), second.Balances[venueSim][i].String())
	}
}

func TestRunRequiresIdleAndData(t *testing.T) {
	e := New(Config{})
	_, err := e.Run(context.Background(), emaCross("001"))
	assert.ErrorIs(t, err, ErrNoData)

	e = buildEngine(t, 60)
	_, err = e.Run(context.Background(), emaCross("001"))
	require.NoError(t, err)

	// a finished run must be reset before the next one
	_, err = e.Run(context.Background(), emaCross("001"))
	assert.ErrorIs(t, err, ErrNotIdle)
	require.NoError(t, e.Reset())
	_, err = e.Run(context.Background(), emaCross("001"))
	assert.NoError(t, err)
}

func TestRunRequiresDepthDataForL2Venues(t *testing.T) {
	build := func() *Engine {
		e := New(Config{})
		require.NoError(t, e.AddVenue(VenueConfig{
			Venue:            venueSim,
			VenueType:        model.VenueTypeECN,
			OMS:              model.OMSTypeNetting,
			AccountType:      model.AccountTypeMargin,
			BookLevel:        model.BookLevelL2,
			BaseCurrency:     model.USD,
			StartingBalances: []model.Money{model.MoneyFromInt64(1_000_000, model.USD)},
			Commission:       exchange.RateCommission{},
		}))
		require.NoError(t, e.AddInstrument(usdjpy()))
		return e
	}
	id := model.NewInstrumentID("USD/JPY", venueSim)

	// quotes alone cannot drive depth matching
	e := build()
	require.NoError(t, e.AddQuoteTicks([]model.QuoteTick{{
		InstrumentID: id,
		Bid:          decimal.RequireFromString("90.000"),
		Ask:          decimal.RequireFromString("90.004"),
		TsEvent:      10,
	}}))
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoDepthData)
	assert.Equal(t, StateIdle, e.State())

	// a delta source for the venue satisfies the check
	e = build()
	require.NoError(t, e.AddOrderBookDeltas([]model.OrderBookDelta{{
		InstrumentID: id,
		Action:       model.BookActionAdd,
		Side:         model.OrderSideBuy,
		Price:        decimal.RequireFromString("90.000"),
		Size:         decimal.NewFromInt(1_000_000),
		Sequence:     1,
		TsEvent:      10,
	}}))
	_, err = e.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunRejectsDuplicateStrategyTags(t *testing.T) {
	e := buildEngine(t, 60)
	_, err := e.Run(context.Background(), emaCross("001"), emaCross("001"))
	assert.ErrorIs(t, err, ErrDuplicateStrategyTag)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	e := buildEngine(t, 600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, emaCross("001"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, e.State())
	assert.Zero(t, e.Iterations())
}

// fillCounter wraps a strategy and counts its fills.
type fillCounter struct {
	strategy.Strategy
	fills int
}

func (c *fillCounter) OnEvent(t *strategy.Trader, ev any) {
	if _, ok := ev.(model.OrderFilled); ok {
		c.fills++
	}
	c.Strategy.OnEvent(t, ev)
}

func TestIdenticalStrategiesProduceIdenticalFillCounts(t *testing.T) {
	e := buildEngine(t, 600)
	a := &fillCounter{Strategy: emaCross("001")}
	b := &fillCounter{Strategy: emaCross("002")}

	_, err := e.Run(context.Background(), a, b)
	require.NoError(t, err)

	assert.NotZero(t, a.fills)
	assert.Equal(t, a.fills, b.fills)
}

func TestBalancesReconcileWithLedger(t *testing.T) {
	e := buildEngine(t, 600)
	_, err := e.Run(context.Background(), emaCross("001"))
	require.NoError(t, err)

	acct, ok := e.Portfolio().Account(venueSim)
	require.True(t, ok)
	want := acct.StartingBalance(model.USD).Add(acct.LedgerTotal(model.USD))
	assert.True(t, acct.BalanceRaw(model.USD).Equal(want))
	// every balance change references a fill or module
	for _, change := range acct.Ledger() {
		assert.NotEmpty(t, change.Ref)
	}
}

func TestAddVenueAndInstrumentValidation(t *testing.T) {
	e := New(Config{})
	err := e.AddInstrument(usdjpy())
	assert.ErrorIs(t, err, ErrUnknownVenue)

	require.NoError(t, e.AddVenue(VenueConfig{
		Venue:            venueSim,
		OMS:              model.OMSTypeNetting,
		AccountType:      model.AccountTypeMargin,
		StartingBalances: []model.Money{model.MoneyFromInt64(1_000, model.USD)},
	}))
	assert.Error(t, e.AddVenue(VenueConfig{
		Venue:            venueSim,
		OMS:              model.OMSTypeNetting,
		AccountType:      model.AccountTypeMargin,
		StartingBalances: []model.Money{model.MoneyFromInt64(1_000, model.USD)},
	}))
	require.NoError(t, e.AddInstrument(usdjpy()))
}

func TestDisposeReleasesData(t *testing.T) {
	e := buildEngine(t, 60)
	_, err := e.Run(context.Background(), emaCross("001"))
	require.NoError(t, err)

	require.NoError(t, e.Dispose())
	assert.Equal(t, StateIdle, e.State())
	_, err = e.Run(context.Background(), emaCross("001"))
	assert.ErrorIs(t, err, ErrNoData)
}
