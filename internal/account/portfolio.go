package account

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// ErrInsufficientMargin rejects orders whose initial margin would exceed the
// account's free balance.
var ErrInsufficientMargin = errors.New("insufficient margin")

// Portfolio tracks every venue account and open position for a run, values
// positions on market updates, and applies fills atomically with their
// balance effects.
type Portfolio struct {
	accounts    map[model.Venue]*Account
	instruments map[model.InstrumentID]model.Instrument
	positions   map[model.PositionID]*Position
	// ordered ids per instrument keep margin sweeps deterministic
	openIDs map[model.InstrumentID][]model.PositionID
	rates   *RateCache
	marks   map[model.InstrumentID]decimal.Decimal
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		accounts:    make(map[model.Venue]*Account),
		instruments: make(map[model.InstrumentID]model.Instrument),
		positions:   make(map[model.PositionID]*Position),
		openIDs:     make(map[model.InstrumentID][]model.PositionID),
		rates:       NewRateCache(),
		marks:       make(map[model.InstrumentID]decimal.Decimal),
	}
}

// AddAccount registers a venue account. One account per venue.
func (p *Portfolio) AddAccount(a *Account) error {
	if _, ok := p.accounts[a.Venue]; ok {
		return fmt.Errorf("account already exists for venue %s", a.Venue)
	}
	p.accounts[a.Venue] = a
	return nil
}

// Account returns the account for a venue.
func (p *Portfolio) Account(venue model.Venue) (*Account, bool) {
	a, ok := p.accounts[venue]
	return a, ok
}

// RegisterInstrument makes an instrument definition available for valuation.
func (p *Portfolio) RegisterInstrument(instrument model.Instrument) {
	p.instruments[instrument.ID] = instrument
}

// Rates exposes the FX rate cache.
func (p *Portfolio) Rates() *RateCache {
	return p.rates
}

// Instrument returns a registered instrument definition.
func (p *Portfolio) Instrument(id model.InstrumentID) (model.Instrument, bool) {
	instrument, ok := p.instruments[id]
	return instrument, ok
}

// Mark returns the last mark price recorded for an instrument.
func (p *Portfolio) Mark(id model.InstrumentID) (decimal.Decimal, bool) {
	mark, ok := p.marks[id]
	return mark, ok
}

// Position returns a position record by id.
func (p *Portfolio) Position(id model.PositionID) (*Position, bool) {
	pos, ok := p.positions[id]
	return pos, ok
}

// OpenPositions returns the open positions for an instrument in id order.
func (p *Portfolio) OpenPositions(instrumentID model.InstrumentID) []*Position {
	var out []*Position
	for _, id := range p.openIDs[instrumentID] {
		if pos := p.positions[id]; pos != nil && !pos.Quantity.IsZero() {
			out = append(out, pos)
		}
	}
	return out
}

// AllOpenPositions returns every open position across instruments, ordered
// by instrument id then opening order.
func (p *Portfolio) AllOpenPositions() []*Position {
	keys := make([]model.InstrumentID, 0, len(p.openIDs))
	for id := range p.openIDs {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	var out []*Position
	for _, id := range keys {
		out = append(out, p.OpenPositions(id)...)
	}
	return out
}

// UpdatePrice records the latest mark price for an instrument, feeds the FX
// rate cache, retries deferred conversions, and revalues margin for the
// owning account.
func (p *Portfolio) UpdatePrice(instrumentID model.InstrumentID, price decimal.Decimal, ts int64) {
	instrument, ok := p.instruments[instrumentID]
	if !ok {
		return
	}
	p.marks[instrumentID] = price
	p.rates.UpdatePrice(instrument, price)
	if acct, ok := p.accounts[instrumentID.Venue]; ok {
		acct.RetryPending(p.rates, ts)
		p.revalueMargin(acct)
	}
}

// ApplyFill applies a fill to its position and account in one step. The
// returned events carry position/account notifications plus any conversion
// warnings; they are delivered on the same channel as market data.
func (p *Portfolio) ApplyFill(fill model.Fill) ([]any, error) {
	instrument, ok := p.instruments[fill.InstrumentID]
	if !ok {
		return nil, fmt.Errorf("fill for unregistered instrument %s", fill.InstrumentID)
	}
	acct, ok := p.accounts[fill.InstrumentID.Venue]
	if !ok {
		return nil, fmt.Errorf("fill for venue without account: %s", fill.InstrumentID.Venue)
	}

	pos, ok := p.positions[fill.PositionID]
	if !ok {
		pos = NewPosition(fill.PositionID, fill.InstrumentID, fill.StrategyTag, fill.TsEvent)
		p.positions[fill.PositionID] = pos
		p.openIDs[fill.InstrumentID] = append(p.openIDs[fill.InstrumentID], fill.PositionID)
	}

	var events []any
	realized := pos.ApplyFill(fill, instrument.Multiplier)

	if !realized.IsZero() {
		events = append(events, p.credit(acct,
			model.NewMoney(realized, instrument.QuoteCurrency),
			ChangeReasonPnL, string(fill.ID), fill.TsEvent, fill.PositionID)...)
	}
	if !fill.Commission.IsZero() {
		events = append(events, p.credit(acct,
			fill.Commission.Neg(),
			ChangeReasonCommission, string(fill.ID), fill.TsEvent, fill.PositionID)...)
	}

	p.marks[fill.InstrumentID] = fill.Price
	p.rates.UpdatePrice(instrument, fill.Price)
	p.revalueMargin(acct)

	events = append(events, model.PositionChanged{
		PositionID:   pos.ID,
		InstrumentID: pos.InstrumentID,
		StrategyTag:  pos.StrategyTag,
		NetQty:       pos.Quantity.String(),
		Closed:       pos.IsClosed(),
		TsEvent:      fill.TsEvent,
	})
	events = append(events, model.AccountUpdated{Venue: acct.Venue, TsEvent: fill.TsEvent})
	return events, nil
}

// credit applies an amount to the account, converting into the base currency
// when one is set. A missing rate defers the amount and emits a warning.
func (p *Portfolio) credit(acct *Account, amount model.Money, reason ChangeReason, ref string, ts int64, positionID model.PositionID) []any {
	if acct.BaseCurrency.IsZero() || amount.Currency.Code == acct.BaseCurrency.Code {
		acct.Apply(BalanceChange{Amount: amount, Reason: reason, Ref: ref, TsEvent: ts})
		return nil
	}
	rate, err := p.rates.Rate(amount.Currency, acct.BaseCurrency)
	if err != nil {
		acct.Defer(amount, ref, ts)
		return []any{model.ConversionSkipped{
			PositionID: positionID,
			From:       amount.Currency,
			To:         acct.BaseCurrency,
			TsEvent:    ts,
		}}
	}
	acct.Apply(BalanceChange{
		Amount:  model.NewMoney(amount.Amount.Mul(rate), acct.BaseCurrency),
		Reason:  reason,
		Ref:     ref,
		TsEvent: ts,
	})
	return nil
}

// ApplyAdjustment applies a venue-module balance adjustment. It carries no
// order or fill reference but otherwise follows the fill-driven path: the
// returned events include any conversion warnings and are delivered on the
// same channel as market data.
func (p *Portfolio) ApplyAdjustment(venue model.Venue, amount model.Money, moduleName string, ts int64) ([]any, error) {
	acct, ok := p.accounts[venue]
	if !ok {
		return nil, fmt.Errorf("adjustment for venue without account: %s", venue)
	}
	events := p.credit(acct, amount, ChangeReasonModule, moduleName, ts, "")
	events = append(events, model.AccountAdjusted{
		Venue:    venue,
		Module:   moduleName,
		Amount:   amount.Amount.String(),
		Currency: amount.Currency,
		TsEvent:  ts,
	})
	events = append(events, model.AccountUpdated{Venue: venue, TsEvent: ts})
	return events, nil
}

// CheckMargin verifies an order's margin requirement against the free
// balance. Cash accounts require the full notional; margin accounts require
// notional times the initial margin rate.
func (p *Portfolio) CheckMargin(instrument model.Instrument, price, qty decimal.Decimal) error {
	acct, ok := p.accounts[instrument.ID.Venue]
	if !ok {
		return fmt.Errorf("no account for venue %s", instrument.ID.Venue)
	}
	notional := instrument.Notional(price, qty)
	required := notional.Amount
	if acct.Type == model.AccountTypeMargin {
		required = required.Mul(instrument.MarginInit)
	}

	marginCcy := notional.Currency
	if !acct.BaseCurrency.IsZero() {
		rate, err := p.rates.Rate(notional.Currency, acct.BaseCurrency)
		if err != nil {
			// No rate yet: check in the native currency so data-poor
			// starts do not spuriously reject.
			rate = decimal.NewFromInt(1)
		} else {
			marginCcy = acct.BaseCurrency
		}
		required = required.Mul(rate)
	}
	if required.GreaterThan(acct.FreeBalance(marginCcy)) {
		return fmt.Errorf("%w: required %s %s, free %s", ErrInsufficientMargin,
			required.Round(marginCcy.Precision), marginCcy.Code, acct.FreeBalance(marginCcy).Round(marginCcy.Precision))
	}
	return nil
}

// revalueMargin recomputes locked margin for every open position on the
// account's venue at current mark prices.
func (p *Portfolio) revalueMargin(acct *Account) {
	totals := make(map[string]decimal.Decimal)
	ids := make([]model.PositionID, 0)
	for id, pos := range p.positions {
		if pos.InstrumentID.Venue == acct.Venue && !pos.Quantity.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		pos := p.positions[id]
		instrument := p.instruments[pos.InstrumentID]
		mark, ok := p.marks[pos.InstrumentID]
		if !ok {
			mark = pos.AvgPrice
		}
		required := pos.Notional(mark, instrument.Multiplier)
		if acct.Type == model.AccountTypeMargin {
			required = required.Mul(instrument.MarginInit)
		}
		ccy := instrument.QuoteCurrency
		if !acct.BaseCurrency.IsZero() {
			if rate, err := p.rates.Rate(ccy, acct.BaseCurrency); err == nil {
				required = required.Mul(rate)
				ccy = acct.BaseCurrency
			}
		}
		totals[ccy.Code] = totals[ccy.Code].Add(required)
	}
	for code := range acct.marginUsed {
		if _, ok := totals[code]; !ok {
			totals[code] = decimal.Decimal{}
		}
	}
	for code, amount := range totals {
		ccy, ok := acct.currencies[code]
		if !ok {
			ccy = model.Currency{Code: code, Precision: 8}
		}
		acct.SetMarginUsed(ccy, amount)
	}
}

// UnrealizedPnL marks an open position to the latest price, in the quote
// currency.
func (p *Portfolio) UnrealizedPnL(id model.PositionID) (model.Money, error) {
	pos, ok := p.positions[id]
	if !ok {
		return model.Money{}, fmt.Errorf("position not found: %s", id)
	}
	instrument := p.instruments[pos.InstrumentID]
	mark, ok := p.marks[pos.InstrumentID]
	if !ok {
		return model.Money{}, fmt.Errorf("no mark price for %s", pos.InstrumentID)
	}
	return model.NewMoney(pos.UnrealizedPnL(mark, instrument.Multiplier), instrument.QuoteCurrency), nil
}

// Reset clears positions, rates, and marks and restores account starting
// balances. Instrument registrations survive, matching the engine's
// keep-loaded-data reset semantics.
func (p *Portfolio) Reset() {
	p.positions = make(map[model.PositionID]*Position)
	p.openIDs = make(map[model.InstrumentID][]model.PositionID)
	p.marks = make(map[model.InstrumentID]decimal.Decimal)
	p.rates.Reset()
	for _, acct := range p.accounts {
		acct.Reset()
	}
}
