package exchange

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"backtest/internal/account"
	"backtest/internal/book"
	"backtest/internal/clock"
	"backtest/internal/model"
)

// Config describes one simulated venue.
type Config struct {
	Venue      model.Venue
	VenueType  model.VenueType
	OMS        model.OMSType
	BookLevel  model.BookLevel
	Commission CommissionModel
}

// Exchange simulates a single venue against replayed market data. Orders are
// validated on submission, matched against the venue's books, and every fill
// is applied to the portfolio before the next event is processed. Rejections
// are emitted as events, not errors; errors mean the simulation itself is
// broken.
type Exchange struct {
	cfg       Config
	clk       clock.Clock
	portfolio *account.Portfolio

	instruments map[model.InstrumentID]model.Instrument
	books       map[model.InstrumentID]*book.Book
	orders      map[model.OrderID]*model.Order
	// resting order ids per instrument in acceptance order
	resting map[model.InstrumentID][]model.OrderID
	modules []SimulationModule

	fillSeq  uint64
	events   []any
	lastTime int64
	started  bool
}

// New creates a simulated exchange bound to a portfolio.
func New(cfg Config, clk clock.Clock, portfolio *account.Portfolio) *Exchange {
	if cfg.Commission == nil {
		cfg.Commission = RateCommission{}
	}
	if cfg.BookLevel == model.BookLevelNone {
		cfg.BookLevel = model.BookLevelL1
	}
	return &Exchange{
		cfg:         cfg,
		clk:         clk,
		portfolio:   portfolio,
		instruments: make(map[model.InstrumentID]model.Instrument),
		books:       make(map[model.InstrumentID]*book.Book),
		orders:      make(map[model.OrderID]*model.Order),
		resting:     make(map[model.InstrumentID][]model.OrderID),
	}
}

// Venue returns the venue identifier.
func (x *Exchange) Venue() model.Venue { return x.cfg.Venue }

// OMS returns the venue's order management convention.
func (x *Exchange) OMS() model.OMSType { return x.cfg.OMS }

// BookLevel returns the depth this venue matches against.
func (x *Exchange) BookLevel() model.BookLevel { return x.cfg.BookLevel }

// RegisterInstrument makes an instrument tradable on this venue.
func (x *Exchange) RegisterInstrument(instrument model.Instrument) error {
	if err := instrument.Validate(); err != nil {
		return fmt.Errorf("register instrument %s: %w", instrument.ID, err)
	}
	if instrument.ID.Venue != x.cfg.Venue {
		return fmt.Errorf("instrument %s does not belong to venue %s", instrument.ID, x.cfg.Venue)
	}
	if _, ok := x.instruments[instrument.ID]; ok {
		return fmt.Errorf("instrument %s already registered", instrument.ID)
	}
	x.instruments[instrument.ID] = instrument
	x.books[instrument.ID] = book.New(instrument.ID, x.cfg.BookLevel)
	x.portfolio.RegisterInstrument(instrument)
	return nil
}

// Instrument returns a registered instrument definition.
func (x *Exchange) Instrument(id model.InstrumentID) (model.Instrument, bool) {
	instrument, ok := x.instruments[id]
	return instrument, ok
}

// Instruments returns all registered instruments sorted by id.
func (x *Exchange) Instruments() []model.Instrument {
	ids := make([]string, 0, len(x.instruments))
	byID := make(map[string]model.Instrument, len(x.instruments))
	for id, instrument := range x.instruments {
		ids = append(ids, id.String())
		byID[id.String()] = instrument
	}
	sort.Strings(ids)
	out := make([]model.Instrument, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// AddModule attaches a simulation module. Module effects are independent of
// registration order.
func (x *Exchange) AddModule(m SimulationModule) {
	x.modules = append(x.modules, m)
}

// AdvanceTime moves venue time forward and runs module hooks over the
// crossed span. The first call only anchors time.
func (x *Exchange) AdvanceTime(to int64) {
	if !x.started {
		x.started = true
		x.lastTime = to
		return
	}
	if to <= x.lastTime {
		return
	}
	ctx := ModuleContext{Venue: x.cfg.Venue, Portfolio: x.portfolio, Emit: x.emit}
	for _, m := range x.modules {
		m.Advance(ctx, x.lastTime, to)
	}
	x.lastTime = to
}

// Order returns an order previously submitted to this venue.
func (x *Exchange) Order(id model.OrderID) (*model.Order, bool) {
	o, ok := x.orders[id]
	return o, ok
}

// OpenOrders returns the resting orders for an instrument in acceptance
// order.
func (x *Exchange) OpenOrders(instrumentID model.InstrumentID) []*model.Order {
	var out []*model.Order
	for _, id := range x.resting[instrumentID] {
		if o := x.orders[id]; o != nil && o.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}

// Submit validates and executes an order. Validation failures emit a typed
// OrderRejected event and leave the run healthy; a non-nil error means the
// caller violated the exchange contract (duplicate submission of the same
// pointer, order not in the initialized state).
func (x *Exchange) Submit(o *model.Order) error {
	ts := x.clk.TimeNanos()
	if err := o.Submit(ts); err != nil {
		return err
	}
	if reason, detail := x.validate(o); reason != model.RejectReasonNone {
		if err := o.Reject(ts); err != nil {
			return err
		}
		if reason != model.RejectReasonDuplicateOrderID {
			x.orders[o.ID] = o
		}
		x.emit(model.OrderRejected{
			OrderID:     o.ID,
			StrategyTag: o.StrategyTag,
			Reason:      reason,
			Detail:      detail,
			TsEvent:     ts,
		})
		return nil
	}
	if err := o.Accept(ts); err != nil {
		return err
	}
	x.orders[o.ID] = o
	x.emit(model.OrderAccepted{OrderID: o.ID, StrategyTag: o.StrategyTag, TsEvent: ts})

	if o.TimeInForce == model.TimeInForceFOK && x.availableQty(o).LessThan(o.Quantity) {
		return x.expire(o)
	}
	if err := x.matchTaker(o); err != nil {
		return err
	}
	if !o.IsOpen() {
		return nil
	}
	switch o.TimeInForce {
	case model.TimeInForceIOC, model.TimeInForceFOK:
		return x.expire(o)
	default:
		x.resting[o.InstrumentID] = append(x.resting[o.InstrumentID], o.ID)
		return nil
	}
}

// Cancel removes a resting order. Unknown or already terminal orders emit
// OrderCancelRejected and return ErrUnknownOrder for the caller's benefit.
func (x *Exchange) Cancel(id model.OrderID, strategyTag string) error {
	ts := x.clk.TimeNanos()
	o, ok := x.orders[id]
	if !ok || !o.IsOpen() {
		detail := "order not found"
		if ok {
			detail = fmt.Sprintf("order in terminal state %s", o.Status)
		}
		x.emit(model.OrderCancelRejected{
			OrderID:     id,
			StrategyTag: strategyTag,
			Detail:      detail,
			TsEvent:     ts,
		})
		return fmt.Errorf("cancel %s: %w", id, model.ErrUnknownOrder)
	}
	if err := o.Cancel(ts); err != nil {
		return err
	}
	x.removeResting(o)
	x.emit(model.OrderCanceled{OrderID: o.ID, StrategyTag: o.StrategyTag, TsEvent: ts})
	return nil
}

// ProcessQuote applies a top-of-book update and fills any crossed orders.
func (x *Exchange) ProcessQuote(tick model.QuoteTick) error {
	b, ok := x.books[tick.InstrumentID]
	if !ok {
		return nil
	}
	b.ApplyQuote(tick)
	x.portfolio.UpdatePrice(tick.InstrumentID, tick.Mid(), tick.TsEvent)
	return x.matchResting(tick.InstrumentID)
}

// ProcessTrade applies an executed trade print and fills any crossed orders.
func (x *Exchange) ProcessTrade(tick model.TradeTick) error {
	b, ok := x.books[tick.InstrumentID]
	if !ok {
		return nil
	}
	b.ApplyTrade(tick)
	x.portfolio.UpdatePrice(tick.InstrumentID, tick.Price, tick.TsEvent)
	return x.matchResting(tick.InstrumentID)
}

// ProcessDelta applies a depth update. Sequence violations are fatal to the
// run.
func (x *Exchange) ProcessDelta(delta model.OrderBookDelta) error {
	b, ok := x.books[delta.InstrumentID]
	if !ok {
		return nil
	}
	if err := b.ApplyDelta(delta); err != nil {
		return err
	}
	if bid, okBid := b.BestBid(); okBid {
		if ask, okAsk := b.BestAsk(); okAsk {
			mid := bid.Add(ask).Div(decimal.NewFromInt(2))
			x.portfolio.UpdatePrice(delta.InstrumentID, mid, delta.TsEvent)
		}
	}
	return x.matchResting(delta.InstrumentID)
}

// DrainEvents returns and clears the pending event buffer in emission order.
func (x *Exchange) DrainEvents() []any {
	out := x.events
	x.events = nil
	return out
}

// Reset clears orders, books, and module state for a fresh run. Instrument
// registrations survive.
func (x *Exchange) Reset() {
	x.orders = make(map[model.OrderID]*model.Order)
	x.resting = make(map[model.InstrumentID][]model.OrderID)
	x.fillSeq = 0
	x.events = nil
	x.lastTime = 0
	x.started = false
	for _, b := range x.books {
		b.Reset()
	}
	for _, m := range x.modules {
		m.Reset()
	}
}

func (x *Exchange) emit(ev any) {
	x.events = append(x.events, ev)
}

func (x *Exchange) validate(o *model.Order) (model.RejectReason, string) {
	if _, ok := x.orders[o.ID]; ok {
		return model.RejectReasonDuplicateOrderID, fmt.Sprintf("order id %s already used", o.ID)
	}
	instrument, ok := x.instruments[o.InstrumentID]
	if !ok {
		return model.RejectReasonUnknownInstrument, fmt.Sprintf("instrument %s not registered", o.InstrumentID)
	}
	if o.Type == model.OrderTypeLimit {
		if err := instrument.CheckPrice(o.Price); err != nil {
			return model.RejectReasonInvalidPrice, err.Error()
		}
	}
	if err := instrument.CheckQuantity(o.Quantity); err != nil {
		return model.RejectReasonInvalidQuantity, err.Error()
	}
	switch o.TimeInForce {
	case model.TimeInForceGTC, model.TimeInForceIOC, model.TimeInForceFOK:
	default:
		return model.RejectReasonUnsupportedTimeInForce, fmt.Sprintf("time in force %s", o.TimeInForce)
	}
	if price, ok := x.marginPrice(o); ok {
		if err := x.portfolio.CheckMargin(instrument, price, o.Quantity); err != nil {
			return model.RejectReasonInsufficientMargin, err.Error()
		}
	}
	return model.RejectReasonNone, ""
}

// marginPrice picks the price used for the pre-trade margin check.
func (x *Exchange) marginPrice(o *model.Order) (decimal.Decimal, bool) {
	if o.Type == model.OrderTypeLimit {
		return o.Price, true
	}
	return x.marketPrice(x.books[o.InstrumentID], o.Side)
}

// marketPrice is the taker price for a side: the opposite top of book, or
// the last trade when the venue only publishes trades.
func (x *Exchange) marketPrice(b *book.Book, side model.OrderSide) (decimal.Decimal, bool) {
	if side == model.OrderSideBuy {
		if ask, ok := b.BestAsk(); ok {
			return ask, true
		}
	} else {
		if bid, ok := b.BestBid(); ok {
			return bid, true
		}
	}
	return b.LastTrade()
}

func crosses(side model.OrderSide, limit, market decimal.Decimal) bool {
	if side == model.OrderSideBuy {
		return market.LessThanOrEqual(limit)
	}
	return market.GreaterThanOrEqual(limit)
}

// availableQty estimates the immediately fillable quantity for FOK checks.
func (x *Exchange) availableQty(o *model.Order) decimal.Decimal {
	b := x.books[o.InstrumentID]
	if b.HasDepth() {
		total := decimal.Decimal{}
		b.Levels(o.Side, func(lv book.Level) bool {
			if o.Type == model.OrderTypeLimit && !crosses(o.Side, o.Price, lv.Price) {
				return false
			}
			total = total.Add(lv.Size)
			return total.LessThan(o.Quantity)
		})
		return total
	}
	px, ok := x.marketPrice(b, o.Side)
	if !ok {
		return decimal.Decimal{}
	}
	if o.Type == model.OrderTypeLimit && !crosses(o.Side, o.Price, px) {
		return decimal.Decimal{}
	}
	return o.Quantity
}

// matchTaker executes an incoming order against current liquidity.
func (x *Exchange) matchTaker(o *model.Order) error {
	b := x.books[o.InstrumentID]
	if b.HasDepth() {
		return x.matchAgainstDepth(o, model.LiquiditySideTaker)
	}
	px, ok := x.marketPrice(b, o.Side)
	if !ok {
		return nil
	}
	if o.Type == model.OrderTypeLimit && !crosses(o.Side, o.Price, px) {
		return nil
	}
	return x.fill(o, px, o.LeavesQty(), model.LiquiditySideTaker)
}

// matchAgainstDepth sweeps depth levels in price order, filling at each
// level's price until the order is done or liquidity runs out.
func (x *Exchange) matchAgainstDepth(o *model.Order, liquidity model.LiquiditySide) error {
	b := x.books[o.InstrumentID]
	type slice struct {
		price decimal.Decimal
		qty   decimal.Decimal
	}
	var plan []slice
	remaining := o.LeavesQty()
	b.Levels(o.Side, func(lv book.Level) bool {
		if o.Type == model.OrderTypeLimit && !crosses(o.Side, o.Price, lv.Price) {
			return false
		}
		qty := decimal.Min(remaining, lv.Size)
		if qty.IsPositive() {
			plan = append(plan, slice{price: lv.Price, qty: qty})
			remaining = remaining.Sub(qty)
		}
		return remaining.IsPositive()
	})
	for _, s := range plan {
		b.ConsumeDepth(o.Side, s.price, s.qty)
		if err := x.fill(o, s.price, s.qty, liquidity); err != nil {
			return err
		}
	}
	return nil
}

// matchResting re-checks working orders after a market update. Resting
// limits fill at their own price as makers.
func (x *Exchange) matchResting(instrumentID model.InstrumentID) error {
	ids := x.resting[instrumentID]
	if len(ids) == 0 {
		return nil
	}
	b := x.books[instrumentID]
	for _, id := range append([]model.OrderID(nil), ids...) {
		o := x.orders[id]
		if o == nil || !o.IsOpen() {
			continue
		}
		if o.Type == model.OrderTypeMarket {
			if err := x.matchTaker(o); err != nil {
				return err
			}
			continue
		}
		if b.HasDepth() {
			if err := x.matchRestingAgainstDepth(o); err != nil {
				return err
			}
			continue
		}
		px, ok := x.marketPrice(b, o.Side)
		if !ok || !crosses(o.Side, o.Price, px) {
			continue
		}
		if err := x.fill(o, o.Price, o.LeavesQty(), model.LiquiditySideMaker); err != nil {
			return err
		}
	}
	x.compactResting(instrumentID)
	return nil
}

func (x *Exchange) matchRestingAgainstDepth(o *model.Order) error {
	b := x.books[o.InstrumentID]
	type slice struct {
		price decimal.Decimal
		qty   decimal.Decimal
	}
	var plan []slice
	remaining := o.LeavesQty()
	b.Levels(o.Side, func(lv book.Level) bool {
		if !crosses(o.Side, o.Price, lv.Price) {
			return false
		}
		qty := decimal.Min(remaining, lv.Size)
		if qty.IsPositive() {
			plan = append(plan, slice{price: lv.Price, qty: qty})
			remaining = remaining.Sub(qty)
		}
		return remaining.IsPositive()
	})
	for _, s := range plan {
		b.ConsumeDepth(o.Side, s.price, s.qty)
		if err := x.fill(o, o.Price, s.qty, model.LiquiditySideMaker); err != nil {
			return err
		}
	}
	return nil
}

// fill books an execution and applies it to the portfolio in one step.
func (x *Exchange) fill(o *model.Order, price, qty decimal.Decimal, liquidity model.LiquiditySide) error {
	instrument := x.instruments[o.InstrumentID]
	ts := x.clk.TimeNanos()
	x.fillSeq++
	f := model.Fill{
		ID:           model.FillID(fmt.Sprintf("F-%s-%d", x.cfg.Venue, x.fillSeq)),
		OrderID:      o.ID,
		PositionID:   x.positionIDFor(o),
		InstrumentID: o.InstrumentID,
		StrategyTag:  o.StrategyTag,
		Side:         o.Side,
		Price:        price,
		Quantity:     qty,
		Commission:   x.cfg.Commission.Commission(instrument, price, qty, liquidity),
		Liquidity:    liquidity,
		TsEvent:      ts,
	}
	if err := o.ApplyFill(qty, ts); err != nil {
		return err
	}
	if !o.IsOpen() {
		x.removeResting(o)
	}
	x.emit(model.OrderFilled{Fill: f})
	events, err := x.portfolio.ApplyFill(f)
	if err != nil {
		return err
	}
	for _, ev := range events {
		x.emit(ev)
	}
	return nil
}

// positionIDFor resolves the position an execution belongs to. An explicit
// target on the order wins; otherwise netting venues keep one position per
// instrument and hedging venues open one per order.
func (x *Exchange) positionIDFor(o *model.Order) model.PositionID {
	if o.PositionID != "" {
		return o.PositionID
	}
	if x.cfg.OMS == model.OMSTypeHedging {
		return model.HedgingPositionID(o.InstrumentID, o.ID)
	}
	return model.NettingPositionID(o.InstrumentID)
}

func (x *Exchange) expire(o *model.Order) error {
	ts := x.clk.TimeNanos()
	if err := o.Expire(ts); err != nil {
		return err
	}
	x.removeResting(o)
	x.emit(model.OrderExpired{OrderID: o.ID, StrategyTag: o.StrategyTag, TsEvent: ts})
	return nil
}

func (x *Exchange) removeResting(o *model.Order) {
	ids := x.resting[o.InstrumentID]
	for i, id := range ids {
		if id == o.ID {
			x.resting[o.InstrumentID] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (x *Exchange) compactResting(instrumentID model.InstrumentID) {
	ids := x.resting[instrumentID]
	kept := ids[:0]
	for _, id := range ids {
		if o := x.orders[id]; o != nil && o.IsOpen() {
			kept = append(kept, id)
		}
	}
	x.resting[instrumentID] = kept
}
