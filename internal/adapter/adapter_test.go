package adapter

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/account"
	"backtest/internal/clock"
	"backtest/internal/exchange"
	"backtest/internal/model"
)

func simInstrument() model.Instrument {
	return model.Instrument{
		ID:             model.NewInstrumentID("USD/JPY", "SIM"),
		BaseCurrency:   model.USD,
		QuoteCurrency:  model.JPY,
		SettlementCcy:  model.JPY,
		PricePrecision: 3,
		SizePrecision:  0,
		PriceIncrement: decimal.RequireFromString("0.001"),
		SizeIncrement:  decimal.NewFromInt(1000),
		Multiplier:     decimal.NewFromInt(1),
	}
}

func newClient(t *testing.T) *SimClient {
	t.Helper()
	portfolio := account.NewPortfolio()
	acct, err := account.NewAccount("SIM", model.AccountTypeMargin, model.OMSTypeNetting,
		model.USD, []model.Money{model.MoneyFromInt64(1_000_000, model.USD)})
	require.NoError(t, err)
	require.NoError(t, portfolio.AddAccount(acct))

	x := exchange.New(exchange.Config{
		Venue:     "SIM",
		VenueType: model.VenueTypeECN,
		OMS:       model.OMSTypeNetting,
	}, clock.NewTestClock(0), portfolio)
	require.NoError(t, x.RegisterInstrument(simInstrument()))
	return NewSimClient(x)
}

func TestConnectionLifecycle(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	assert.False(t, c.IsConnected())
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	assert.Error(t, c.Connect(ctx), "double connect")

	require.NoError(t, c.Disconnect(ctx))
	assert.Error(t, c.Disconnect(ctx), "double disconnect")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, c.Connect(canceled), context.Canceled)
}

func TestSubscriptionBookkeeping(t *testing.T) {
	c := newClient(t)
	id := simInstrument().ID

	require.NoError(t, c.SubscribeQuoteTicks(id))
	require.NoError(t, c.SubscribeTradeTicks(id))
	require.NoError(t, c.SubscribeOrderBookDeltas(id))
	require.NoError(t, c.SubscribeInstrumentStatus(id))
	assert.Len(t, c.Subscriptions(), 4)

	// unknown instrument
	assert.Error(t, c.SubscribeQuoteTicks(model.NewInstrumentID("EUR/USD", "SIM")))
	// unsubscribe without a subscription
	require.NoError(t, c.UnsubscribeQuoteTicks(id))
	assert.Error(t, c.UnsubscribeQuoteTicks(id))
	assert.Len(t, c.Subscriptions(), 3)

	require.NoError(t, c.Reset())
	assert.Empty(t, c.Subscriptions())
}

func TestBarSubscriptionIsUnsupported(t *testing.T) {
	c := newClient(t)
	bt := model.BarType{
		InstrumentID: simInstrument().ID,
		Spec:         model.BarSpec{Step: 1, Aggregation: model.BarAggregationMinute, PriceType: model.PriceTypeBid},
	}
	assert.ErrorIs(t, c.SubscribeBars(bt), ErrUnsupported)
	assert.ErrorIs(t, c.UnsubscribeBars(bt), ErrUnsupported)
}

func TestInstrumentRequests(t *testing.T) {
	c := newClient(t)
	id := simInstrument().ID

	resp, err := c.RequestInstrument(id)
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, [16]byte(resp.CorrelationID))
	assert.Equal(t, id, resp.Instrument.ID)

	_, err = c.RequestInstrument(model.NewInstrumentID("EUR/USD", "SIM"))
	assert.Error(t, err)

	list, err := c.RequestInstruments("SIM")
	require.NoError(t, err)
	require.Len(t, list.Instruments, 1)

	_, err = c.RequestInstruments("OTHER")
	assert.Error(t, err)
}

func TestDisposedClientRejectsUse(t *testing.T) {
	c := newClient(t)
	require.NoError(t, c.Dispose())

	assert.Error(t, c.SubscribeQuoteTicks(simInstrument().ID))
	_, err := c.RequestInstrument(simInstrument().ID)
	assert.Error(t, err)
	_, err = c.RequestInstruments("SIM")
	assert.Error(t, err)
}
