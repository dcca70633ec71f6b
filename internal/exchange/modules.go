package exchange

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backtest/internal/account"
	"backtest/internal/model"
)

// SimulationModule hooks into the exchange time stream. Modules observe
// portfolio state but mutate balances only through ApplyAdjustment, so the
// result is independent of the order modules were registered in.
type SimulationModule interface {
	Name() string

	// Advance is invoked whenever exchange time moves forward. from is
	// exclusive, to inclusive, both Unix nanoseconds.
	Advance(ctx ModuleContext, from, to int64)

	// Reset clears accumulated module state for a fresh run.
	Reset()
}

// ModuleContext is the read/adjust surface handed to modules. Emit delivers
// adjustment events onto the venue's event buffer.
type ModuleContext struct {
	Venue     model.Venue
	Portfolio *account.Portfolio
	Emit      func(ev any)
}

func (ctx ModuleContext) emit(events []any) {
	if ctx.Emit == nil {
		return
	}
	for _, ev := range events {
		ctx.Emit(ev)
	}
}

// rolloverHourUTC approximates the 5pm New York FX settlement cutover
// without a timezone database dependency.
const rolloverHourUTC = 21

const daysPerYear = 365

// InterestRatePoint is an annualized short-term rate, in percent, effective
// from TsEvent onward.
type InterestRatePoint struct {
	TsEvent int64
	RatePct decimal.Decimal
}

// InterestRateTable holds per-currency rate histories.
type InterestRateTable struct {
	points map[string][]InterestRatePoint
}

func NewInterestRateTable() *InterestRateTable {
	return &InterestRateTable{points: make(map[string][]InterestRatePoint)}
}

// Add appends a rate point for a currency. Points must be added in
// ascending time order per currency.
func (t *InterestRateTable) Add(code string, ts int64, ratePct decimal.Decimal) {
	t.points[code] = append(t.points[code], InterestRatePoint{TsEvent: ts, RatePct: ratePct})
}

// Rate returns the last rate at or before ts.
func (t *InterestRateTable) Rate(code string, ts int64) (decimal.Decimal, bool) {
	pts := t.points[code]
	i := sort.Search(len(pts), func(i int) bool { return pts[i].TsEvent > ts })
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return pts[i-1].RatePct, true
}

// FXRolloverInterestModule accrues daily rollover interest on open currency
// pair positions at each settlement cutover crossed by the time stream.
// The accrual is the interest rate differential of the pair applied to the
// position notional at the last mark price.
type FXRolloverInterestModule struct {
	rates   *InterestRateTable
	applied map[int64]struct{}
}

func NewFXRolloverInterestModule(rates *InterestRateTable) *FXRolloverInterestModule {
	return &FXRolloverInterestModule{
		rates:   rates,
		applied: make(map[int64]struct{}),
	}
}

func (m *FXRolloverInterestModule) Name() string { return "fx-rollover-interest" }

func (m *FXRolloverInterestModule) Reset() {
	m.applied = make(map[int64]struct{})
}

func (m *FXRolloverInterestModule) Advance(ctx ModuleContext, from, to int64) {
	for _, cutover := range cutoversBetween(from, to) {
		if _, done := m.applied[cutover]; done {
			continue
		}
		m.applied[cutover] = struct{}{}
		m.applyRollover(ctx, cutover)
	}
}

func (m *FXRolloverInterestModule) applyRollover(ctx ModuleContext, ts int64) {
	for _, pos := range ctx.Portfolio.AllOpenPositions() {
		if pos.InstrumentID.Venue != ctx.Venue {
			continue
		}
		instrument, ok := ctx.Portfolio.Instrument(pos.InstrumentID)
		if !ok || !instrument.IsCurrencyPair() {
			continue
		}
		mark, ok := ctx.Portfolio.Mark(pos.InstrumentID)
		if !ok {
			continue
		}
		baseRate, okBase := m.rates.Rate(instrument.BaseCurrency.Code, ts)
		quoteRate, okQuote := m.rates.Rate(instrument.QuoteCurrency.Code, ts)
		if !okBase || !okQuote {
			continue
		}
		// Long the pair earns the base rate and pays the quote rate.
		diff := baseRate.Sub(quoteRate).Div(decimal.NewFromInt(100))
		notional := pos.Quantity.Mul(instrument.Multiplier).Mul(mark)
		accrual := notional.Mul(diff).Div(decimal.NewFromInt(daysPerYear)).
			Round(instrument.QuoteCurrency.Precision)
		if accrual.IsZero() {
			continue
		}
		events, err := ctx.Portfolio.ApplyAdjustment(ctx.Venue, model.NewMoney(accrual, instrument.QuoteCurrency), m.Name(), ts)
		if err != nil {
			continue
		}
		ctx.emit(events)
	}
}

// cutoversBetween lists the settlement timestamps in (from, to], ascending.
func cutoversBetween(from, to int64) []int64 {
	if to <= from {
		return nil
	}
	var out []int64
	day := time.Unix(0, from).UTC().Truncate(24 * time.Hour)
	for {
		cutover := day.Add(rolloverHourUTC * time.Hour).UnixNano()
		if cutover > to {
			return out
		}
		if cutover > from {
			out = append(out, cutover)
		}
		day = day.Add(24 * time.Hour)
	}
}
