package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"backtest/internal/account"
	"backtest/internal/clock"
	"backtest/internal/model"
)

// Router is the engine surface a trader submits through.
type Router interface {
	SubmitOrder(order *model.Order) error
	CancelOrder(id model.OrderID, strategyTag string) error
	SubscribeBars(barType model.BarType, strategyTag string)
	VenueOMS(venue model.Venue) model.OMSType
}

// Trader is the per-strategy execution context. It owns the strategy's order
// id sequence, so two strategies with distinct tags never collide even when
// they trade the same instrument.
type Trader struct {
	tag       string
	clk       clock.Clock
	router    Router
	portfolio *account.Portfolio
	orderSeq  uint64
}

func NewTrader(tag string, clk clock.Clock, router Router, portfolio *account.Portfolio) *Trader {
	return &Trader{tag: tag, clk: clk, router: router, portfolio: portfolio}
}

// Tag returns the owning strategy's id tag.
func (t *Trader) Tag() string { return t.tag }

// Portfolio exposes read access to positions and accounts.
func (t *Trader) Portfolio() *account.Portfolio { return t.portfolio }

// TimeNanos returns current simulation time.
func (t *Trader) TimeNanos() int64 { return t.clk.TimeNanos() }

// SubscribeBars asks the engine to aggregate and deliver bars of the given
// type to this strategy.
func (t *Trader) SubscribeBars(barType model.BarType) {
	t.router.SubscribeBars(barType, t.tag)
}

func (t *Trader) nextOrderID() model.OrderID {
	t.orderSeq++
	return model.NewOrderID(t.tag, t.orderSeq)
}

// SubmitMarket submits a market order and returns it for tracking.
func (t *Trader) SubmitMarket(instrumentID model.InstrumentID, side model.OrderSide, qty decimal.Decimal) (*model.Order, error) {
	o := &model.Order{
		ID:           t.nextOrderID(),
		InstrumentID: instrumentID,
		StrategyTag:  t.tag,
		Side:         side,
		Type:         model.OrderTypeMarket,
		TimeInForce:  model.TimeInForceGTC,
		Quantity:     qty,
		Status:       model.OrderStatusInitialized,
		TsInit:       t.clk.TimeNanos(),
	}
	return o, t.router.SubmitOrder(o)
}

// SubmitLimit submits a limit order and returns it for tracking.
func (t *Trader) SubmitLimit(instrumentID model.InstrumentID, side model.OrderSide, price, qty decimal.Decimal, tif model.TimeInForce) (*model.Order, error) {
	o := &model.Order{
		ID:           t.nextOrderID(),
		InstrumentID: instrumentID,
		StrategyTag:  t.tag,
		Side:         side,
		Type:         model.OrderTypeLimit,
		TimeInForce:  tif,
		Price:        price,
		Quantity:     qty,
		Status:       model.OrderStatusInitialized,
		TsInit:       t.clk.TimeNanos(),
	}
	return o, t.router.SubmitOrder(o)
}

// Cancel withdraws a working order.
func (t *Trader) Cancel(id model.OrderID) error {
	return t.router.CancelOrder(id, t.tag)
}

// ClosePosition flattens one open position with an opposite market order
// targeted at that position.
func (t *Trader) ClosePosition(pos *account.Position) (*model.Order, error) {
	if pos.Quantity.IsZero() {
		return nil, fmt.Errorf("position %s already flat", pos.ID)
	}
	side := model.OrderSideSell
	if pos.Quantity.IsNegative() {
		side = model.OrderSideBuy
	}
	o := &model.Order{
		ID:           t.nextOrderID(),
		InstrumentID: pos.InstrumentID,
		StrategyTag:  t.tag,
		Side:         side,
		Type:         model.OrderTypeMarket,
		TimeInForce:  model.TimeInForceGTC,
		PositionID:   pos.ID,
		Quantity:     pos.Quantity.Abs(),
		Status:       model.OrderStatusInitialized,
		TsInit:       t.clk.TimeNanos(),
	}
	return o, t.router.SubmitOrder(o)
}

// OpenPositionsFor returns this strategy's open positions on an instrument.
func (t *Trader) OpenPositionsFor(instrumentID model.InstrumentID) []*account.Position {
	var out []*account.Position
	for _, pos := range t.portfolio.OpenPositions(instrumentID) {
		if pos.StrategyTag == t.tag {
			out = append(out, pos)
		}
	}
	return out
}

// NetQuantity sums this strategy's signed open quantity on an instrument.
func (t *Trader) NetQuantity(instrumentID model.InstrumentID) decimal.Decimal {
	net := decimal.Decimal{}
	for _, pos := range t.OpenPositionsFor(instrumentID) {
		net = net.Add(pos.Quantity)
	}
	return net
}

// Reset rewinds the order id sequence for a fresh run.
func (t *Trader) Reset() {
	t.orderSeq = 0
}

// LogFill is a convenience for strategies that want execution logging.
func (t *Trader) LogFill(f model.Fill) {
	logs.Infof("[%s] fill %s %s %s @ %s", t.tag, f.InstrumentID, f.Side, f.Quantity, f.Price)
}
