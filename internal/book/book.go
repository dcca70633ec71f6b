// Package book maintains per-instrument market state: top-of-book quotes,
// last trade price, and aggregated depth built from order-book deltas.
package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"backtest/internal/model"
)

// ErrOutOfSequence is returned when an order-book delta arrives with a
// sequence number at or below the last applied one. State past this point is
// unreliable, so the error is fatal to the run.
var ErrOutOfSequence = errors.New("order book delta out of sequence")

// Level is one aggregated price level.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book tracks market state for a single instrument at a configured depth.
type Book struct {
	instrumentID model.InstrumentID
	depth        model.BookLevel

	bids *btree.BTreeG[Level] // descending by price
	asks *btree.BTreeG[Level] // ascending by price

	lastSequence uint64
	hasQuote     bool
	bestBid      decimal.Decimal
	bestAsk      decimal.Decimal
	hasTrade     bool
	lastTrade    decimal.Decimal
}

// New creates an empty book for an instrument.
func New(instrumentID model.InstrumentID, depth model.BookLevel) *Book {
	return &Book{
		instrumentID: instrumentID,
		depth:        depth,
		bids: btree.NewBTreeG[Level](func(a, b Level) bool {
			return a.Price.GreaterThan(b.Price)
		}),
		asks: btree.NewBTreeG[Level](func(a, b Level) bool {
			return a.Price.LessThan(b.Price)
		}),
	}
}

// InstrumentID returns the instrument this book tracks.
func (b *Book) InstrumentID() model.InstrumentID { return b.instrumentID }

// Depth returns the configured book level.
func (b *Book) Depth() model.BookLevel { return b.depth }

// ApplyDelta applies one price-level operation in strict sequence order.
func (b *Book) ApplyDelta(delta model.OrderBookDelta) error {
	if delta.Sequence <= b.lastSequence {
		return fmt.Errorf("%w: instrument=%s sequence=%d last=%d ts=%d",
			ErrOutOfSequence, b.instrumentID, delta.Sequence, b.lastSequence, delta.TsEvent)
	}
	b.lastSequence = delta.Sequence

	tree := b.asks
	if delta.Side == model.OrderSideBuy {
		tree = b.bids
	}
	switch delta.Action {
	case model.BookActionAdd, model.BookActionUpdate:
		tree.Set(Level{Price: delta.Price, Size: delta.Size})
	case model.BookActionDelete:
		tree.Delete(Level{Price: delta.Price})
	default:
		return fmt.Errorf("unknown book action %d: instrument=%s sequence=%d",
			delta.Action, b.instrumentID, delta.Sequence)
	}
	return nil
}

// ApplyQuote updates top-of-book state from a quote tick.
func (b *Book) ApplyQuote(tick model.QuoteTick) {
	b.hasQuote = true
	b.bestBid = tick.Bid
	b.bestAsk = tick.Ask
}

// ApplyTrade updates the last traded price.
func (b *Book) ApplyTrade(tick model.TradeTick) {
	b.hasTrade = true
	b.lastTrade = tick.Price
}

// BestBid returns the current best bid. Depth data wins over quote data when
// the book carries levels.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if lvl, ok := b.bids.Min(); ok {
		return lvl.Price, true
	}
	if b.hasQuote {
		return b.bestBid, true
	}
	return decimal.Decimal{}, false
}

// BestAsk returns the current best ask.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if lvl, ok := b.asks.Min(); ok {
		return lvl.Price, true
	}
	if b.hasQuote {
		return b.bestAsk, true
	}
	return decimal.Decimal{}, false
}

// LastTrade returns the last traded price.
func (b *Book) LastTrade() (decimal.Decimal, bool) {
	if !b.hasTrade {
		return decimal.Decimal{}, false
	}
	return b.lastTrade, true
}

// HasDepth reports whether the book carries any delta-built levels.
func (b *Book) HasDepth() bool {
	return b.bids.Len() > 0 || b.asks.Len() > 0
}

// Levels walks the levels a taker on the given side would consume, best
// first: asks for a buyer, bids for a seller. The walk stops when fn returns
// false.
func (b *Book) Levels(takerSide model.OrderSide, fn func(Level) bool) {
	tree := b.asks
	if takerSide == model.OrderSideSell {
		tree = b.bids
	}
	tree.Scan(fn)
}

// ConsumeDepth reduces resting size at a price level after a simulated fill,
// deleting the level when it empties.
func (b *Book) ConsumeDepth(takerSide model.OrderSide, price, qty decimal.Decimal) {
	tree := b.asks
	if takerSide == model.OrderSideSell {
		tree = b.bids
	}
	lvl, ok := tree.Get(Level{Price: price})
	if !ok {
		return
	}
	remaining := lvl.Size.Sub(qty)
	if remaining.IsPositive() {
		tree.Set(Level{Price: price, Size: remaining})
		return
	}
	tree.Delete(lvl)
}

// Reset clears all accumulated state, keeping the configuration.
func (b *Book) Reset() {
	b.bids.Clear()
	b.asks.Clear()
	b.lastSequence = 0
	b.hasQuote = false
	b.hasTrade = false
	b.bestBid, b.bestAsk = decimal.Decimal{}, decimal.Decimal{}
	b.lastTrade = decimal.Decimal{}
}
