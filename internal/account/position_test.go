package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

var (
	posInstrument = model.NewInstrumentID("USD/JPY", "SIM")
	one           = decimal.NewFromInt(1)
)

func fillAt(side model.OrderSide, price string, qty int64, ts int64) model.Fill {
	return model.Fill{
		ID:           "F-SIM-1",
		OrderID:      "O-001-1",
		PositionID:   model.NettingPositionID(posInstrument),
		InstrumentID: posInstrument,
		StrategyTag:  "001",
		Side:         side,
		Price:        decimal.RequireFromString(price),
		Quantity:     decimal.NewFromInt(qty),
		TsEvent:      ts,
	}
}

func TestExtendingAveragesEntryPrice(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)

	realized := p.ApplyFill(fillAt(model.OrderSideBuy, "100", 100, 1), one)
	assert.True(t, realized.IsZero())
	realized = p.ApplyFill(fillAt(model.OrderSideBuy, "110", 100, 2), one)
	assert.True(t, realized.IsZero())

	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(200)))
	assert.True(t, p.AvgPrice.Equal(decimal.NewFromInt(105)))
	assert.True(t, p.RealizedPnL.IsZero())
}

func TestReducingRealizesAgainstAverage(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)
	p.ApplyFill(fillAt(model.OrderSideBuy, "100", 200, 1), one)

	realized := p.ApplyFill(fillAt(model.OrderSideSell, "110", 50, 2), one)
	assert.True(t, realized.Equal(decimal.NewFromInt(500)), "realized %s", realized)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(150)))
	// the entry average is untouched by a partial close
	assert.True(t, p.AvgPrice.Equal(decimal.NewFromInt(100)))
}

func TestShortSideRealization(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)
	p.ApplyFill(fillAt(model.OrderSideSell, "100", 100, 1), one)

	// shorts profit when buying back below the average
	realized := p.ApplyFill(fillAt(model.OrderSideBuy, "90", 100, 2), one)
	assert.True(t, realized.Equal(decimal.NewFromInt(1000)), "realized %s", realized)
	assert.True(t, p.IsClosed())
	assert.Equal(t, int64(2), p.TsClosed)
	assert.True(t, p.AvgPrice.IsZero())
}

func TestReversalOpensAtFillPrice(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)
	p.ApplyFill(fillAt(model.OrderSideBuy, "100", 100, 1), one)

	realized := p.ApplyFill(fillAt(model.OrderSideSell, "110", 250, 2), one)
	// only the first 100 close; the leftover 150 open short at 110
	assert.True(t, realized.Equal(decimal.NewFromInt(1000)))
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(-150)))
	assert.True(t, p.AvgPrice.Equal(decimal.NewFromInt(110)))
}

func TestMultiplierScalesRealized(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)
	mult := decimal.NewFromInt(1000)
	p.ApplyFill(fillAt(model.OrderSideBuy, "100", 10, 1), mult)

	realized := p.ApplyFill(fillAt(model.OrderSideSell, "101", 10, 2), mult)
	assert.True(t, realized.Equal(decimal.NewFromInt(10_000)), "realized %s", realized)
}

func TestUnrealizedPnL(t *testing.T) {
	p := NewPosition(model.NettingPositionID(posInstrument), posInstrument, "001", 1)
	p.ApplyFill(fillAt(model.OrderSideBuy, "100", 100, 1), one)

	u := p.UnrealizedPnL(decimal.RequireFromString("102"), one)
	assert.True(t, u.Equal(decimal.NewFromInt(200)))

	p.ApplyFill(fillAt(model.OrderSideSell, "100", 100, 2), one)
	require.True(t, p.IsClosed())
	assert.True(t, p.UnrealizedPnL(decimal.RequireFromString("102"), one).IsZero())
}
