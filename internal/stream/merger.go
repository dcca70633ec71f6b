// Package stream merges independently time-ordered market-data sequences into
// one globally ordered event stream, and synthesizes tick sequences from bars
// when tick-level data is unavailable.
package stream

import (
	"errors"
	"fmt"

	"backtest/internal/model"
)

// ErrNonMonotonicSource is returned when an input sequence is not internally
// time-ordered. Downstream state would silently diverge, so this is fatal.
var ErrNonMonotonicSource = errors.New("source sequence not time-ordered")

// Category precedence for equal timestamps. Lower merges first.
const (
	priorityStatus = iota
	priorityBookDelta
	priorityQuote
	priorityTrade
	prioritySyntheticQuote
	prioritySyntheticTrade
)

func eventPriority(ev model.Event) int {
	switch e := ev.(type) {
	case model.InstrumentStatus:
		return priorityStatus
	case model.OrderBookDelta:
		return priorityBookDelta
	case model.QuoteTick:
		if e.IsSynthetic() {
			return prioritySyntheticQuote
		}
		return priorityQuote
	case model.TradeTick:
		if e.IsSynthetic() {
			return prioritySyntheticTrade
		}
		return priorityTrade
	default:
		return prioritySyntheticTrade + 1
	}
}

type source struct {
	name   string
	events []model.Event
	pos    int
}

// Merger performs a K-way merge over registered sources. Registration order is
// the final tie-break, so a fixed configuration always yields the same
// sequence.
type Merger struct {
	sources []*source
	total   int
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{}
}

// AddSource registers a time-ordered event sequence. The sequence is validated
// up front; a non-monotonic source is rejected with the offending position.
func (m *Merger) AddSource(name string, events []model.Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].EventTime() < events[i-1].EventTime() {
			return fmt.Errorf("%w: source=%s index=%d ts=%d prev=%d (instrument %s)",
				ErrNonMonotonicSource, name, i, events[i].EventTime(), events[i-1].EventTime(),
				events[i].Instrument())
		}
	}
	m.sources = append(m.sources, &source{name: name, events: events})
	m.total += len(events)
	return nil
}

// Len returns the total number of events across all sources.
func (m *Merger) Len() int {
	return m.total
}

// Reset rewinds every source so the stream can be replayed from the start.
func (m *Merger) Reset() {
	for _, s := range m.sources {
		s.pos = 0
	}
}

// Next returns the globally next event. Ordering key: event timestamp, then
// category precedence (status, book deltas, quotes, trades, synthetic ticks),
// then ingestion timestamp, then source registration order.
func (m *Merger) Next() (model.Event, bool) {
	best := -1
	var bestEv model.Event
	var bestPrio int
	for i, s := range m.sources {
		if s.pos >= len(s.events) {
			continue
		}
		ev := s.events[s.pos]
		if best < 0 {
			best, bestEv, bestPrio = i, ev, eventPriority(ev)
			continue
		}
		if less(ev, eventPriority(ev), bestEv, bestPrio) {
			best, bestEv, bestPrio = i, ev, eventPriority(ev)
		}
	}
	if best < 0 {
		return nil, false
	}
	m.sources[best].pos++
	return bestEv, true
}

func less(a model.Event, aPrio int, b model.Event, bPrio int) bool {
	if a.EventTime() != b.EventTime() {
		return a.EventTime() < b.EventTime()
	}
	if aPrio != bPrio {
		return aPrio < bPrio
	}
	// Equal keys fall through to source registration order: the earlier
	// registered source already holds the slot, so strictly-less only.
	return a.InitTime() < b.InitTime()
}
