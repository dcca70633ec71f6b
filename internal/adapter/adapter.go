package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"backtest/internal/model"
)

// ErrUnsupported is returned by capability methods an adapter does not
// implement. Callers must treat it as a hard configuration error, never as a
// silent no-op.
var ErrUnsupported = errors.New("operation not supported by adapter")

// DataClient is the capability surface every venue data adapter exposes.
// Subscriptions deliver through the adapter's own channel; request methods
// answer one-shot queries correlated by request id.
type DataClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Reset() error
	Dispose() error

	SubscribeQuoteTicks(instrumentID model.InstrumentID) error
	UnsubscribeQuoteTicks(instrumentID model.InstrumentID) error
	SubscribeTradeTicks(instrumentID model.InstrumentID) error
	UnsubscribeTradeTicks(instrumentID model.InstrumentID) error
	SubscribeOrderBookDeltas(instrumentID model.InstrumentID) error
	UnsubscribeOrderBookDeltas(instrumentID model.InstrumentID) error
	SubscribeBars(barType model.BarType) error
	UnsubscribeBars(barType model.BarType) error
	SubscribeInstrumentStatus(instrumentID model.InstrumentID) error
	UnsubscribeInstrumentStatus(instrumentID model.InstrumentID) error

	RequestInstrument(instrumentID model.InstrumentID) (InstrumentResponse, error)
	RequestInstruments(venue model.Venue) (InstrumentsResponse, error)
}

// InstrumentResponse answers a single-instrument query.
type InstrumentResponse struct {
	CorrelationID uuid.UUID
	Instrument    model.Instrument
}

// InstrumentsResponse answers a venue instrument-list query.
type InstrumentsResponse struct {
	CorrelationID uuid.UUID
	Instruments   []model.Instrument
}

// Unimplemented returns ErrUnsupported from every capability method. Embed it
// so partial adapters fail loudly on the operations they leave out.
type Unimplemented struct{}

var _ DataClient = Unimplemented{}

func unsupported(op string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, op)
}

func (Unimplemented) Connect(context.Context) error    { return unsupported("Connect") }
func (Unimplemented) Disconnect(context.Context) error { return unsupported("Disconnect") }
func (Unimplemented) Reset() error                     { return unsupported("Reset") }
func (Unimplemented) Dispose() error                   { return unsupported("Dispose") }

func (Unimplemented) SubscribeQuoteTicks(model.InstrumentID) error {
	return unsupported("SubscribeQuoteTicks")
}

func (Unimplemented) UnsubscribeQuoteTicks(model.InstrumentID) error {
	return unsupported("UnsubscribeQuoteTicks")
}

func (Unimplemented) SubscribeTradeTicks(model.InstrumentID) error {
	return unsupported("SubscribeTradeTicks")
}

func (Unimplemented) UnsubscribeTradeTicks(model.InstrumentID) error {
	return unsupported("UnsubscribeTradeTicks")
}

func (Unimplemented) SubscribeOrderBookDeltas(model.InstrumentID) error {
	return unsupported("SubscribeOrderBookDeltas")
}

func (Unimplemented) UnsubscribeOrderBookDeltas(model.InstrumentID) error {
	return unsupported("UnsubscribeOrderBookDeltas")
}

func (Unimplemented) SubscribeBars(model.BarType) error {
	return unsupported("SubscribeBars")
}

func (Unimplemented) UnsubscribeBars(model.BarType) error {
	return unsupported("UnsubscribeBars")
}

func (Unimplemented) SubscribeInstrumentStatus(model.InstrumentID) error {
	return unsupported("SubscribeInstrumentStatus")
}

func (Unimplemented) UnsubscribeInstrumentStatus(model.InstrumentID) error {
	return unsupported("UnsubscribeInstrumentStatus")
}

func (Unimplemented) RequestInstrument(model.InstrumentID) (InstrumentResponse, error) {
	return InstrumentResponse{}, unsupported("RequestInstrument")
}

func (Unimplemented) RequestInstruments(model.Venue) (InstrumentsResponse, error) {
	return InstrumentsResponse{}, unsupported("RequestInstruments")
}
