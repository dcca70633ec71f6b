package model

import "fmt"

// Venue names a trading venue, e.g. "SIM" or "BINANCE".
type Venue string

// InstrumentID uniquely identifies an instrument as symbol@venue.
type InstrumentID struct {
	Symbol string
	Venue  Venue
}

// NewInstrumentID builds an instrument identifier.
func NewInstrumentID(symbol string, venue Venue) InstrumentID {
	return InstrumentID{Symbol: symbol, Venue: venue}
}

func (id InstrumentID) String() string {
	return id.Symbol + "." + string(id.Venue)
}

// IsZero reports whether the identifier is unset.
func (id InstrumentID) IsZero() bool {
	return id.Symbol == "" && id.Venue == ""
}

// OrderID is a client order identifier. Strategies prefix their ids with an
// order-id tag so concurrent strategies never collide.
type OrderID string

// NewOrderID composes an order id from a strategy tag and a per-strategy
// counter. The format is stable so reruns generate identical ids.
func NewOrderID(tag string, n uint64) OrderID {
	return OrderID(fmt.Sprintf("O-%s-%d", tag, n))
}

// PositionID identifies an open position. Under a netting OMS there is one per
// instrument per account; under hedging there is one per opened position.
type PositionID string

// NettingPositionID is the single position id used per instrument under a
// netting OMS.
func NettingPositionID(instrumentID InstrumentID) PositionID {
	return PositionID("P-" + instrumentID.String())
}

// HedgingPositionID derives a distinct position id per opening order.
func HedgingPositionID(instrumentID InstrumentID, orderID OrderID) PositionID {
	return PositionID("P-" + instrumentID.String() + "-" + string(orderID))
}

// FillID identifies an execution.
type FillID string
