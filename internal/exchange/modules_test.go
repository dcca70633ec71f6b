package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

func TestInterestRateTableLookup(t *testing.T) {
	table := NewInterestRateTable()
	table.Add("USD", 100, decimal.RequireFromString("1.5"))
	table.Add("USD", 200, decimal.RequireFromString("1.75"))

	_, ok := table.Rate("USD", 99)
	assert.False(t, ok)

	r, ok := table.Rate("USD", 100)
	require.True(t, ok)
	assert.True(t, r.Equal(decimal.RequireFromString("1.5")))

	r, ok = table.Rate("USD", 250)
	require.True(t, ok)
	assert.True(t, r.Equal(decimal.RequireFromString("1.75")))

	_, ok = table.Rate("JPY", 250)
	assert.False(t, ok)
}

func TestCutoversBetween(t *testing.T) {
	day := time.Date(2013, 2, 1, 0, 0, 0, 0, time.UTC)
	cut := day.Add(rolloverHourUTC * time.Hour).UnixNano()

	// span before the cutover
	assert.Empty(t, cutoversBetween(day.UnixNano(), cut-1))

	// span across one cutover
	got := cutoversBetween(day.UnixNano(), cut)
	require.Len(t, got, 1)
	assert.Equal(t, cut, got[0])

	// span across three days
	got = cutoversBetween(day.UnixNano(), day.Add(72*time.Hour).UnixNano())
	assert.Len(t, got, 3)

	// zero-width span
	assert.Empty(t, cutoversBetween(cut, cut))
}

func TestFXRolloverAppliesInterestOncePerDay(t *testing.T) {
	x, portfolio, clk := newFixture(t, model.OMSTypeNetting)

	rates := NewInterestRateTable()
	rates.Add("USD", 0, decimal.RequireFromString("1.0"))
	rates.Add("JPY", 0, decimal.RequireFromString("0.1"))
	x.AddModule(NewFXRolloverInterestModule(rates))

	start := time.Date(2013, 2, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	clk.Advance(start)
	x.AdvanceTime(start)
	require.NoError(t, x.ProcessQuote(quote("90.000", "90.000", start)))
	require.NoError(t, x.Submit(marketOrder("O-001-1", model.OrderSideBuy, 100_000)))
	x.DrainEvents()

	acct, _ := portfolio.Account(venueSim)
	before := acct.BalanceRaw(model.USD)

	// advancing past the settlement hour accrues one day of interest
	next := time.Date(2013, 2, 1, 22, 0, 0, 0, time.UTC).UnixNano()
	clk.Advance(next)
	x.AdvanceTime(next)

	// long USD/JPY earns (1.0 - 0.1)% / 365 on 9,000,000 JPY notional,
	// credited in USD at the 90.000 rate
	accrualJPY := decimal.RequireFromString("9000000").
		Mul(decimal.RequireFromString("0.009")).
		Div(decimal.NewFromInt(365)).Round(0)
	expected := before.Add(accrualJPY.Div(decimal.NewFromInt(90)))
	assert.True(t, acct.BalanceRaw(model.USD).Sub(expected).Abs().LessThan(decimal.RequireFromString("0.01")),
		"balance %s expected %s", acct.BalanceRaw(model.USD), expected)

	// the adjustment surfaces on the venue event buffer
	var adjusted []model.AccountAdjusted
	for _, ev := range x.DrainEvents() {
		if a, ok := ev.(model.AccountAdjusted); ok {
			adjusted = append(adjusted, a)
		}
	}
	require.Len(t, adjusted, 1)
	assert.Equal(t, "fx-rollover-interest", adjusted[0].Module)
	assert.Equal(t, venueSim, adjusted[0].Venue)

	// advancing within the same day applies nothing further
	after := acct.BalanceRaw(model.USD)
	x.AdvanceTime(next + int64(time.Hour))
	assert.True(t, acct.BalanceRaw(model.USD).Equal(after))
}

func TestFXRolloverOrderIndependent(t *testing.T) {
	run := func(first, second SimulationModule) decimal.Decimal {
		x, portfolio, clk := newFixture(t, model.OMSTypeNetting)
		x.AddModule(first)
		x.AddModule(second)

		start := time.Date(2013, 2, 1, 12, 0, 0, 0, time.UTC).UnixNano()
		clk.Advance(start)
		x.AdvanceTime(start)
		require.NoError(t, x.ProcessQuote(quote("90.000", "90.000", start)))
		require.NoError(t, x.Submit(marketOrder("O-001-1", model.OrderSideBuy, 100_000)))

		next := time.Date(2013, 2, 2, 12, 0, 0, 0, time.UTC).UnixNano()
		clk.Advance(next)
		x.AdvanceTime(next)

		acct, _ := portfolio.Account(venueSim)
		return acct.BalanceRaw(model.USD)
	}

	ratesA := NewInterestRateTable()
	ratesA.Add("USD", 0, decimal.RequireFromString("1.0"))
	ratesA.Add("JPY", 0, decimal.RequireFromString("0.1"))
	ratesB := NewInterestRateTable()
	ratesB.Add("USD", 0, decimal.RequireFromString("2.0"))
	ratesB.Add("JPY", 0, decimal.RequireFromString("0.5"))

	forward := run(NewFXRolloverInterestModule(ratesA), NewFXRolloverInterestModule(ratesB))
	reversed := run(NewFXRolloverInterestModule(ratesB), NewFXRolloverInterestModule(ratesA))
	assert.True(t, forward.Equal(reversed), "forward %s reversed %s", forward, reversed)
}
