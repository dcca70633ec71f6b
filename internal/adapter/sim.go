package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"backtest/internal/exchange"
	"backtest/internal/model"
)

// SimClient answers the data-client surface from a simulated exchange.
// Subscriptions are bookkeeping only; the replay loop already routes every
// event, so subscribing merely records interest the way a live adapter would.
type SimClient struct {
	Unimplemented

	venue     model.Venue
	exchange  *exchange.Exchange
	connected bool
	subs      map[string]struct{}
}

var _ DataClient = (*SimClient)(nil)

// NewSimClient binds the capability surface to a simulated exchange.
func NewSimClient(x *exchange.Exchange) *SimClient {
	return &SimClient{
		venue:    x.Venue(),
		exchange: x,
		subs:     make(map[string]struct{}),
	}
}

// Venue returns the venue this client serves.
func (c *SimClient) Venue() model.Venue { return c.venue }

// IsConnected reports the connection state.
func (c *SimClient) IsConnected() bool { return c.connected }

func (c *SimClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.connected {
		return fmt.Errorf("adapter %s: already connected", c.venue)
	}
	c.connected = true
	return nil
}

func (c *SimClient) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connected {
		return fmt.Errorf("adapter %s: not connected", c.venue)
	}
	c.connected = false
	return nil
}

// Reset drops all subscriptions and the connection state.
func (c *SimClient) Reset() error {
	c.connected = false
	c.subs = make(map[string]struct{})
	return nil
}

// Dispose releases the client. A disposed client cannot reconnect.
func (c *SimClient) Dispose() error {
	if err := c.Reset(); err != nil {
		return err
	}
	c.exchange = nil
	return nil
}

// Subscriptions returns the active subscription keys sorted.
func (c *SimClient) Subscriptions() []string {
	out := make([]string, 0, len(c.subs))
	for key := range c.subs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (c *SimClient) subscribe(kind string, id model.InstrumentID) error {
	if c.exchange == nil {
		return fmt.Errorf("adapter %s: disposed", c.venue)
	}
	if _, ok := c.exchange.Instrument(id); !ok {
		return fmt.Errorf("adapter %s: unknown instrument %s", c.venue, id)
	}
	c.subs[kind+":"+id.String()] = struct{}{}
	return nil
}

func (c *SimClient) unsubscribe(kind string, id model.InstrumentID) error {
	key := kind + ":" + id.String()
	if _, ok := c.subs[key]; !ok {
		return fmt.Errorf("adapter %s: no %s subscription for %s", c.venue, kind, id)
	}
	delete(c.subs, key)
	return nil
}

func (c *SimClient) SubscribeQuoteTicks(id model.InstrumentID) error {
	return c.subscribe("quotes", id)
}

func (c *SimClient) UnsubscribeQuoteTicks(id model.InstrumentID) error {
	return c.unsubscribe("quotes", id)
}

func (c *SimClient) SubscribeTradeTicks(id model.InstrumentID) error {
	return c.subscribe("trades", id)
}

func (c *SimClient) UnsubscribeTradeTicks(id model.InstrumentID) error {
	return c.unsubscribe("trades", id)
}

func (c *SimClient) SubscribeOrderBookDeltas(id model.InstrumentID) error {
	return c.subscribe("deltas", id)
}

func (c *SimClient) UnsubscribeOrderBookDeltas(id model.InstrumentID) error {
	return c.unsubscribe("deltas", id)
}

func (c *SimClient) SubscribeInstrumentStatus(id model.InstrumentID) error {
	return c.subscribe("status", id)
}

func (c *SimClient) UnsubscribeInstrumentStatus(id model.InstrumentID) error {
	return c.unsubscribe("status", id)
}

func (c *SimClient) RequestInstrument(id model.InstrumentID) (InstrumentResponse, error) {
	if c.exchange == nil {
		return InstrumentResponse{}, fmt.Errorf("adapter %s: disposed", c.venue)
	}
	instrument, ok := c.exchange.Instrument(id)
	if !ok {
		return InstrumentResponse{}, fmt.Errorf("adapter %s: unknown instrument %s", c.venue, id)
	}
	return InstrumentResponse{
		CorrelationID: uuid.New(),
		Instrument:    instrument,
	}, nil
}

func (c *SimClient) RequestInstruments(venue model.Venue) (InstrumentsResponse, error) {
	if c.exchange == nil {
		return InstrumentsResponse{}, fmt.Errorf("adapter %s: disposed", c.venue)
	}
	if venue != c.venue {
		return InstrumentsResponse{}, fmt.Errorf("adapter %s: wrong venue %s", c.venue, venue)
	}
	return InstrumentsResponse{
		CorrelationID: uuid.New(),
		Instruments:   c.exchange.Instruments(),
	}, nil
}
