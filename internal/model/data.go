package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event is any timestamped market-data record the merger can order. TsEvent is
// when the event occurred at the source; TsInit is when it was ingested. Both
// are UTC nanoseconds.
type Event interface {
	Instrument() InstrumentID
	EventTime() int64
	InitTime() int64
}

// Tick flags.
const (
	// TickFlagSynthetic marks ticks synthesized from bars. The flag carries no
	// ordering weight beyond the merger's category tie-break.
	TickFlagSynthetic uint16 = 1 << 0
)

// QuoteTick is a top-of-book update.
type QuoteTick struct {
	InstrumentID InstrumentID
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	BidSize      decimal.Decimal
	AskSize      decimal.Decimal
	Flags        uint16
	TsEvent      int64
	TsInit       int64
}

func (t QuoteTick) Instrument() InstrumentID { return t.InstrumentID }
func (t QuoteTick) EventTime() int64         { return t.TsEvent }
func (t QuoteTick) InitTime() int64          { return t.TsInit }

// IsSynthetic reports whether the tick was synthesized from a bar.
func (t QuoteTick) IsSynthetic() bool { return t.Flags&TickFlagSynthetic != 0 }

// Mid returns the midpoint of bid and ask.
func (t QuoteTick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// ExtractPrice returns the tick price at the given basis.
func (t QuoteTick) ExtractPrice(priceType PriceType) decimal.Decimal {
	switch priceType {
	case PriceTypeBid:
		return t.Bid
	case PriceTypeAsk:
		return t.Ask
	default:
		return t.Mid()
	}
}

// TradeTick is a single executed trade.
type TradeTick struct {
	InstrumentID InstrumentID
	Price        decimal.Decimal
	Size         decimal.Decimal
	Aggressor    AggressorSide
	TradeID      string
	Flags        uint16
	TsEvent      int64
	TsInit       int64
}

func (t TradeTick) Instrument() InstrumentID { return t.InstrumentID }
func (t TradeTick) EventTime() int64         { return t.TsEvent }
func (t TradeTick) InitTime() int64          { return t.TsInit }

// IsSynthetic reports whether the tick was synthesized from a bar.
func (t TradeTick) IsSynthetic() bool { return t.Flags&TickFlagSynthetic != 0 }

// BarSpec is the aggregation spec of a bar type: step of a unit at a price
// basis, e.g. 15-MINUTE-BID.
type BarSpec struct {
	Step        int
	Aggregation BarAggregation
	PriceType   PriceType
}

// Interval returns the wall duration of one bar for time aggregations, or zero
// for tick aggregation.
func (s BarSpec) Interval() time.Duration {
	switch s.Aggregation {
	case BarAggregationSecond:
		return time.Duration(s.Step) * time.Second
	case BarAggregationMinute:
		return time.Duration(s.Step) * time.Minute
	case BarAggregationHour:
		return time.Duration(s.Step) * time.Hour
	case BarAggregationDay:
		return time.Duration(s.Step) * 24 * time.Hour
	default:
		return 0
	}
}

// BarType binds an instrument to a bar spec.
type BarType struct {
	InstrumentID InstrumentID
	Spec         BarSpec
}

func (t BarType) String() string {
	return t.InstrumentID.String() + "-" + t.Spec.String()
}

func (s BarSpec) String() string {
	return strconv.Itoa(s.Step) + "-" + s.Aggregation.String() + "-" + s.PriceType.String()
}

// Bar is an aggregated OHLCV summary over one interval.
type Bar struct {
	Type    BarType
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
	TsStart int64
	TsEvent int64 // bar close time
	TsInit  int64
}

func (b Bar) Instrument() InstrumentID { return b.Type.InstrumentID }
func (b Bar) EventTime() int64         { return b.TsEvent }
func (b Bar) InitTime() int64          { return b.TsInit }

// Validate checks OHLC consistency.
func (b Bar) Validate() error {
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("bar %s: high %s below low %s", b.Type, b.High, b.Low)
	}
	if b.Open.GreaterThan(b.High) || b.Open.LessThan(b.Low) ||
		b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low) {
		return fmt.Errorf("bar %s: open/close outside [low, high]", b.Type)
	}
	return nil
}

// OrderBookDelta is a single price-level operation. Deltas apply in strict
// per-instrument sequence order.
type OrderBookDelta struct {
	InstrumentID InstrumentID
	Action       BookAction
	Side         OrderSide
	Price        decimal.Decimal
	Size         decimal.Decimal
	Sequence     uint64
	TsEvent      int64
	TsInit       int64
}

func (d OrderBookDelta) Instrument() InstrumentID { return d.InstrumentID }
func (d OrderBookDelta) EventTime() int64         { return d.TsEvent }
func (d OrderBookDelta) InitTime() int64          { return d.TsInit }

// InstrumentStatus signals a venue-side instrument state change, e.g. a halt
// or session close price.
type InstrumentStatus struct {
	InstrumentID InstrumentID
	Status       string
	ClosePrice   decimal.Decimal
	TsEvent      int64
	TsInit       int64
}

func (s InstrumentStatus) Instrument() InstrumentID { return s.InstrumentID }
func (s InstrumentStatus) EventTime() int64         { return s.TsEvent }
func (s InstrumentStatus) InitTime() int64          { return s.TsInit }
