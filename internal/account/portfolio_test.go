package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

func newPortfolio(t *testing.T, base model.Currency, starting []model.Money) (*Portfolio, *Account) {
	t.Helper()
	p := NewPortfolio()
	acct, err := NewAccount("SIM", model.AccountTypeMargin, model.OMSTypeNetting, base, starting)
	require.NoError(t, err)
	require.NoError(t, p.AddAccount(acct))
	instrument := pair(model.USD, model.JPY, "SIM")
	instrument.MarginInit = decimal.RequireFromString("0.03")
	instrument.MarginMaint = decimal.RequireFromString("0.03")
	p.RegisterInstrument(instrument)
	return p, acct
}

func portfolioFill(id string, side model.OrderSide, price string, qty int64, commission model.Money, ts int64) model.Fill {
	return model.Fill{
		ID:           model.FillID(id),
		OrderID:      "O-001-1",
		PositionID:   model.NettingPositionID(posInstrument),
		InstrumentID: posInstrument,
		StrategyTag:  "001",
		Side:         side,
		Price:        decimal.RequireFromString(price),
		Quantity:     decimal.NewFromInt(qty),
		Commission:   commission,
		TsEvent:      ts,
	}
}

func TestApplyFillRoundTripCreditsRealizedPnL(t *testing.T) {
	p, acct := newPortfolio(t, model.USD, []model.Money{model.MoneyFromInt64(1_000_000, model.USD)})
	noCommission := model.NewMoney(decimal.Decimal{}, model.JPY)

	events, err := p.ApplyFill(portfolioFill("F-SIM-1", model.OrderSideBuy, "90", 100_000, noCommission, 10))
	require.NoError(t, err)
	// open: position changed + account updated, no PnL
	require.Len(t, events, 2)

	events, err = p.ApplyFill(portfolioFill("F-SIM-2", model.OrderSideSell, "91", 100_000, noCommission, 20))
	require.NoError(t, err)
	require.Len(t, events, 2)

	pos, ok := p.Position(model.NettingPositionID(posInstrument))
	require.True(t, ok)
	assert.True(t, pos.IsClosed())
	// 100,000 JPY realized, converted at the last rate seen before the
	// closing fill
	want := decimal.NewFromInt(100_000).Div(decimal.RequireFromString("90"))
	diff := acct.BalanceRaw(model.USD).Sub(decimal.NewFromInt(1_000_000)).Sub(want).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.0001")),
		"balance %s", acct.BalanceRaw(model.USD))
}

func TestApplyFillDebitsCommission(t *testing.T) {
	p, acct := newPortfolio(t, model.Currency{}, []model.Money{model.MoneyFromInt64(1_000_000, model.USD)})

	commission := model.MoneyFromInt64(180, model.JPY)
	_, err := p.ApplyFill(portfolioFill("F-SIM-1", model.OrderSideBuy, "90", 100_000, commission, 10))
	require.NoError(t, err)

	// multi-currency account: the debit stays in JPY
	assert.True(t, acct.BalanceRaw(model.JPY).Equal(decimal.NewFromInt(-180)))
	assert.True(t, acct.BalanceRaw(model.USD).Equal(decimal.NewFromInt(1_000_000)))
}

func TestMissingRateDefersConversion(t *testing.T) {
	p, acct := newPortfolio(t, model.GBP, []model.Money{model.MoneyFromInt64(1_000_000, model.GBP)})
	noCommission := model.NewMoney(decimal.Decimal{}, model.JPY)

	_, err := p.ApplyFill(portfolioFill("F-SIM-1", model.OrderSideBuy, "90", 10_000, noCommission, 10))
	require.NoError(t, err)
	events, err := p.ApplyFill(portfolioFill("F-SIM-2", model.OrderSideSell, "91", 10_000, noCommission, 20))
	require.NoError(t, err)

	var skipped bool
	for _, ev := range events {
		if _, ok := ev.(model.ConversionSkipped); ok {
			skipped = true
		}
	}
	assert.True(t, skipped, "expected a conversion warning")
	assert.Equal(t, 1, acct.PendingConversions())
	assert.True(t, acct.BalanceRaw(model.GBP).Equal(decimal.NewFromInt(1_000_000)))

	// a GBP/JPY path appearing later converts the parked amount
	gbpusd := pair(model.GBP, model.USD, "SIM")
	p.RegisterInstrument(gbpusd)
	p.UpdatePrice(gbpusd.ID, decimal.RequireFromString("1.5"), 30)
	assert.Zero(t, acct.PendingConversions())
	assert.True(t, acct.BalanceRaw(model.GBP).GreaterThan(decimal.NewFromInt(1_000_000)))
}

func TestCheckMarginAgainstFreeBalance(t *testing.T) {
	p, _ := newPortfolio(t, model.JPY, []model.Money{model.MoneyFromInt64(300_000, model.JPY)})
	instrument, ok := p.Instrument(posInstrument)
	require.True(t, ok)

	// 100,000 * 90 * 3% = 270,000 JPY of margin
	err := p.CheckMargin(instrument, decimal.RequireFromString("90"), decimal.NewFromInt(100_000))
	assert.NoError(t, err)

	err = p.CheckMargin(instrument, decimal.RequireFromString("90"), decimal.NewFromInt(200_000))
	assert.ErrorIs(t, err, ErrInsufficientMargin)
}

func TestOpenPositionsAndMarginRevaluation(t *testing.T) {
	p, acct := newPortfolio(t, model.JPY, []model.Money{model.MoneyFromInt64(10_000_000, model.JPY)})
	noCommission := model.NewMoney(decimal.Decimal{}, model.JPY)

	_, err := p.ApplyFill(portfolioFill("F-SIM-1", model.OrderSideBuy, "90", 100_000, noCommission, 10))
	require.NoError(t, err)

	open := p.OpenPositions(posInstrument)
	require.Len(t, open, 1)
	assert.Len(t, p.AllOpenPositions(), 1)

	// margin locked at the mark: 100,000 * 90 * 3%
	assert.True(t, acct.MarginUsed(model.JPY).Equal(decimal.NewFromInt(270_000)),
		"margin %s", acct.MarginUsed(model.JPY))

	u, err := p.UnrealizedPnL(open[0].ID)
	require.NoError(t, err)
	assert.True(t, u.Amount.IsZero())

	p.UpdatePrice(posInstrument, decimal.RequireFromString("92"), 20)
	u, err = p.UnrealizedPnL(open[0].ID)
	require.NoError(t, err)
	assert.True(t, u.Amount.Equal(decimal.NewFromInt(200_000)), "unrealized %s", u.Amount)
}

func TestPortfolioResetKeepsInstruments(t *testing.T) {
	p, acct := newPortfolio(t, model.USD, []model.Money{model.MoneyFromInt64(1_000_000, model.USD)})
	noCommission := model.NewMoney(decimal.Decimal{}, model.JPY)
	_, err := p.ApplyFill(portfolioFill("F-SIM-1", model.OrderSideBuy, "90", 10_000, noCommission, 10))
	require.NoError(t, err)

	p.Reset()

	_, ok := p.Position(model.NettingPositionID(posInstrument))
	assert.False(t, ok)
	assert.Empty(t, p.AllOpenPositions())
	assert.True(t, acct.BalanceRaw(model.USD).Equal(decimal.NewFromInt(1_000_000)))
	_, ok = p.Instrument(posInstrument)
	assert.True(t, ok, "instrument registrations survive reset")
}

func TestApplyAdjustmentEmitsEvents(t *testing.T) {
	p, acct := newPortfolio(t, model.Currency{}, []model.Money{model.MoneyFromInt64(1_000, model.USD)})

	events, err := p.ApplyAdjustment("SIM", model.MoneyFromInt64(25, model.USD), "fx-rollover-interest", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	adjusted, ok := events[0].(model.AccountAdjusted)
	require.True(t, ok)
	assert.Equal(t, model.Venue("SIM"), adjusted.Venue)
	assert.Equal(t, "fx-rollover-interest", adjusted.Module)
	assert.Equal(t, "25", adjusted.Amount)
	_, ok = events[1].(model.AccountUpdated)
	require.True(t, ok)

	assert.True(t, acct.BalanceRaw(model.USD).Equal(decimal.NewFromInt(1_025)))

	_, err = p.ApplyAdjustment("OTHER", model.MoneyFromInt64(25, model.USD), "fx-rollover-interest", 10)
	assert.Error(t, err)
}

func TestApplyAdjustmentMissingRateWarns(t *testing.T) {
	p, acct := newPortfolio(t, model.USD, []model.Money{model.MoneyFromInt64(1_000, model.USD)})

	// no USD/JPY rate seen yet: the credit defers and the warning is
	// returned to the caller, not swallowed
	events, err := p.ApplyAdjustment("SIM", model.MoneyFromInt64(500, model.JPY), "fx-rollover-interest", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	skipped, ok := events[0].(model.ConversionSkipped)
	require.True(t, ok)
	assert.Equal(t, model.JPY, skipped.From)
	assert.Equal(t, model.USD, skipped.To)
	assert.Equal(t, 1, acct.PendingConversions())
	assert.True(t, acct.BalanceRaw(model.USD).Equal(decimal.NewFromInt(1_000)))

	// a rate arriving later resolves the deferred credit
	p.UpdatePrice(posInstrument, decimal.RequireFromString("100"), 20)
	assert.Equal(t, 0, acct.PendingConversions())
	assert.True(t, acct.BalanceRaw(model.USD).Equal(decimal.NewFromInt(1_005)))
}
