// Package obs collects lightweight run counters. Counters are atomic so a
// progress reporter may read them while a run is in flight.
package obs

import "sync/atomic"

// Metrics counts processed data and order flow for one run.
type Metrics struct {
	quotes   uint64
	trades   uint64
	deltas   uint64
	statuses uint64
	bars     uint64

	ordersSubmitted uint64
	ordersRejected  uint64
	ordersCanceled  uint64
	ordersExpired   uint64
	fills           uint64

	conversionsSkipped uint64
	moduleAdjustments  uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Quotes   uint64
	Trades   uint64
	Deltas   uint64
	Statuses uint64
	Bars     uint64

	OrdersSubmitted uint64
	OrdersRejected  uint64
	OrdersCanceled  uint64
	OrdersExpired   uint64
	Fills           uint64

	ConversionsSkipped uint64
	ModuleAdjustments  uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncQuote() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.quotes, 1)
}

func (m *Metrics) IncTrade() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
}

func (m *Metrics) IncDelta() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deltas, 1)
}

func (m *Metrics) IncStatus() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.statuses, 1)
}

func (m *Metrics) IncBar() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.bars, 1)
}

func (m *Metrics) IncOrderSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

func (m *Metrics) IncOrderRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersRejected, 1)
}

func (m *Metrics) IncOrderCanceled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersCanceled, 1)
}

func (m *Metrics) IncOrderExpired() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersExpired, 1)
}

func (m *Metrics) IncFill() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fills, 1)
}

func (m *Metrics) IncConversionSkipped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.conversionsSkipped, 1)
}

func (m *Metrics) IncModuleAdjustment() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.moduleAdjustments, 1)
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Quotes:             atomic.LoadUint64(&m.quotes),
		Trades:             atomic.LoadUint64(&m.trades),
		Deltas:             atomic.LoadUint64(&m.deltas),
		Statuses:           atomic.LoadUint64(&m.statuses),
		Bars:               atomic.LoadUint64(&m.bars),
		OrdersSubmitted:    atomic.LoadUint64(&m.ordersSubmitted),
		OrdersRejected:     atomic.LoadUint64(&m.ordersRejected),
		OrdersCanceled:     atomic.LoadUint64(&m.ordersCanceled),
		OrdersExpired:      atomic.LoadUint64(&m.ordersExpired),
		Fills:              atomic.LoadUint64(&m.fills),
		ConversionsSkipped: atomic.LoadUint64(&m.conversionsSkipped),
		ModuleAdjustments:  atomic.LoadUint64(&m.moduleAdjustments),
	}
}

// Reset zeroes every counter for a fresh run.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	*m = Metrics{}
}
