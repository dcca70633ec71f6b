// Package engine orchestrates a backtest run: it owns the merged data
// stream, the simulated venues, the portfolio, and the strategy callbacks,
// and drives them from a single deterministic event loop.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"backtest/internal/account"
	"backtest/internal/clock"
	"backtest/internal/exchange"
	"backtest/internal/journal"
	"backtest/internal/model"
	"backtest/internal/obs"
	"backtest/internal/strategy"
	"backtest/internal/stream"
)

// State is the engine lifecycle state.
type State uint16

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNotIdle              = errors.New("engine not idle")
	ErrRunning              = errors.New("engine still running")
	ErrUnknownVenue         = errors.New("venue not configured")
	ErrNoData               = errors.New("no data loaded")
	ErrNoDepthData          = errors.New("depth matching configured without order book deltas")
	ErrDuplicateStrategyTag = errors.New("duplicate strategy tag")
)

// VenueConfig describes one simulated venue and its account.
type VenueConfig struct {
	Venue            model.Venue
	VenueType        model.VenueType
	OMS              model.OMSType
	AccountType      model.AccountType
	BookLevel        model.BookLevel
	// BaseCurrency zero-valued keeps the account multi-currency.
	BaseCurrency     model.Currency
	StartingBalances []model.Money
	Commission       exchange.CommissionModel
	Modules          []exchange.SimulationModule
}

// Config carries engine-level options.
type Config struct {
	// JournalPath enables persisted event journaling when non-empty. The
	// in-memory fingerprint is computed either way.
	JournalPath string
}

type barSub struct {
	agg  *strategy.Aggregator
	tags []string
}

// Engine is the backtest orchestrator. It is not safe for concurrent use;
// all data loading and runs happen on one goroutine.
type Engine struct {
	cfg       Config
	clk       *clock.TestClock
	portfolio *account.Portfolio
	merger    *stream.Merger
	exchanges map[model.Venue]*exchange.Exchange
	// venueOrder fixes the iteration order over venues
	venueOrder []model.Venue
	// deltaVenues tracks which venues have a depth source loaded
	deltaVenues map[model.Venue]struct{}
	metrics     *obs.Metrics

	state      State
	iterations uint64
	firstTs    int64
	lastTs     int64
	digest     journal.Digest
	jw         *journal.Writer
	sourceSeq  int

	strategies []strategy.Strategy
	byTag      map[string]strategy.Strategy
	traders    map[string]*strategy.Trader
	barSubs    []*barSub
}

// New creates an idle engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		clk:         clock.NewTestClock(0),
		portfolio:   account.NewPortfolio(),
		merger:      stream.NewMerger(),
		exchanges:   make(map[model.Venue]*exchange.Exchange),
		deltaVenues: make(map[model.Venue]struct{}),
		metrics:     obs.NewMetrics(),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Iterations returns the number of events processed by the last run.
func (e *Engine) Iterations() uint64 { return e.iterations }

// Portfolio exposes accounts and positions.
func (e *Engine) Portfolio() *account.Portfolio { return e.portfolio }

// Clock exposes the simulation clock.
func (e *Engine) Clock() clock.Clock { return e.clk }

// AddVenue configures a simulated venue with its account and modules.
func (e *Engine) AddVenue(vc VenueConfig) error {
	if e.state != StateIdle {
		return ErrNotIdle
	}
	if _, ok := e.exchanges[vc.Venue]; ok {
		return fmt.Errorf("venue %s already configured", vc.Venue)
	}
	acct, err := account.NewAccount(vc.Venue, vc.AccountType, vc.OMS, vc.BaseCurrency, vc.StartingBalances)
	if err != nil {
		return fmt.Errorf("venue %s: %w", vc.Venue, err)
	}
	if err := e.portfolio.AddAccount(acct); err != nil {
		return err
	}
	x := exchange.New(exchange.Config{
		Venue:      vc.Venue,
		VenueType:  vc.VenueType,
		OMS:        vc.OMS,
		BookLevel:  vc.BookLevel,
		Commission: vc.Commission,
	}, e.clk, e.portfolio)
	for _, m := range vc.Modules {
		x.AddModule(m)
	}
	e.exchanges[vc.Venue] = x
	e.venueOrder = append(e.venueOrder, vc.Venue)
	return nil
}

// AddInstrument registers an instrument on its venue.
func (e *Engine) AddInstrument(instrument model.Instrument) error {
	if e.state != StateIdle {
		return ErrNotIdle
	}
	x, ok := e.exchanges[instrument.ID.Venue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVenue, instrument.ID.Venue)
	}
	return x.RegisterInstrument(instrument)
}

// Run replays the full stream through the given strategies. The engine must
// be idle; a finished run needs Reset before the next one.
func (e *Engine) Run(ctx context.Context, strategies ...strategy.Strategy) (Report, error) {
	if e.state != StateIdle {
		return Report{}, ErrNotIdle
	}
	if e.merger.Len() == 0 {
		return Report{}, ErrNoData
	}
	for _, v := range e.venueOrder {
		if e.exchanges[v].BookLevel() < model.BookLevelL2 {
			continue
		}
		if _, ok := e.deltaVenues[v]; !ok {
			return Report{}, fmt.Errorf("%w: venue %s", ErrNoDepthData, v)
		}
	}
	if err := e.bindStrategies(strategies); err != nil {
		return Report{}, err
	}
	runID := uuid.NewString()
	if e.cfg.JournalPath != "" {
		jw, err := journal.NewWriter(e.cfg.JournalPath)
		if err != nil {
			return Report{}, err
		}
		e.jw = jw
	}
	e.state = StateRunning
	logs.Infof("run %s started: %d events, %d strategies", runID, e.merger.Len(), len(strategies))

	for _, s := range e.strategies {
		s.OnStart(e.traders[s.Tag()])
	}

	runErr := e.loop(ctx)

	if runErr == nil {
		for _, s := range e.strategies {
			s.OnStop(e.traders[s.Tag()])
		}
		runErr = e.drainAll()
	}
	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		e.state = StateStopped
	default:
		e.state = StateFaulted
	}
	if e.jw != nil {
		e.record(journal.RecordRunMark, e.lastTs, []byte(runID))
		if err := e.jw.Close(); err != nil && runErr == nil {
			runErr = err
		}
		e.jw = nil
	}

	report := e.buildReport(runID)
	logs.Infof("run %s finished: state=%s iterations=%d fingerprint=%08x",
		runID, e.state, e.iterations, report.Fingerprint)
	return report, runErr
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := e.merger.Next()
		if !ok {
			return nil
		}
		e.iterations++
		ts := ev.EventTime()
		if e.iterations == 1 {
			e.firstTs = ts
		}
		e.lastTs = ts
		e.clk.Advance(ts)
		for _, v := range e.venueOrder {
			e.exchanges[v].AdvanceTime(ts)
		}
		if err := e.dispatch(ev); err != nil {
			return err
		}
	}
}

func (e *Engine) dispatch(ev model.Event) error {
	switch v := ev.(type) {
	case model.InstrumentStatus:
		e.metrics.IncStatus()
		e.record(journal.RecordStatus, v.TsEvent, marshalEvent(v))
		e.broadcastEvent(v)
	case model.OrderBookDelta:
		e.metrics.IncDelta()
		e.record(journal.RecordDelta, v.TsEvent, marshalEvent(v))
		if x, ok := e.exchanges[v.InstrumentID.Venue]; ok {
			if err := x.ProcessDelta(v); err != nil {
				return err
			}
			if err := e.drain(x); err != nil {
				return err
			}
		}
		e.broadcastEvent(v)
	case model.QuoteTick:
		e.metrics.IncQuote()
		e.record(journal.RecordQuote, v.TsEvent, marshalEvent(v))
		if x, ok := e.exchanges[v.InstrumentID.Venue]; ok {
			if err := x.ProcessQuote(v); err != nil {
				return err
			}
			if err := e.drain(x); err != nil {
				return err
			}
		}
		if err := e.feedAggregatorsQuote(v); err != nil {
			return err
		}
		for _, s := range e.strategies {
			s.OnQuoteTick(e.traders[s.Tag()], v)
		}
	case model.TradeTick:
		e.metrics.IncTrade()
		e.record(journal.RecordTrade, v.TsEvent, marshalEvent(v))
		if x, ok := e.exchanges[v.InstrumentID.Venue]; ok {
			if err := x.ProcessTrade(v); err != nil {
				return err
			}
			if err := e.drain(x); err != nil {
				return err
			}
		}
		if err := e.feedAggregatorsTrade(v); err != nil {
			return err
		}
		for _, s := range e.strategies {
			s.OnTradeTick(e.traders[s.Tag()], v)
		}
	case model.Bar:
		if err := v.Validate(); err != nil {
			return err
		}
		return e.deliverBar(v, e.subscribersFor(v.Type))
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
	return nil
}

func (e *Engine) feedAggregatorsQuote(tick model.QuoteTick) error {
	for _, sub := range e.barSubs {
		if bar, done := sub.agg.ApplyQuote(tick); done {
			if err := e.deliverBar(bar, sub.tags); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) feedAggregatorsTrade(tick model.TradeTick) error {
	for _, sub := range e.barSubs {
		if bar, done := sub.agg.ApplyTrade(tick); done {
			if err := e.deliverBar(bar, sub.tags); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) deliverBar(bar model.Bar, tags []string) error {
	e.metrics.IncBar()
	e.record(journal.RecordBar, bar.TsEvent, marshalEvent(bar))
	for _, tag := range tags {
		s, ok := e.byTag[tag]
		if !ok {
			continue
		}
		s.OnBar(e.traders[tag], bar)
		if err := e.drainAll(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) subscribersFor(barType model.BarType) []string {
	for _, sub := range e.barSubs {
		if sub.agg.BarType() == barType {
			return sub.tags
		}
	}
	return nil
}

// drain journals and routes pending exchange events. Events tagged with a
// strategy go to that strategy alone; account-level events broadcast.
func (e *Engine) drain(x *exchange.Exchange) error {
	for _, ev := range x.DrainEvents() {
		e.observeExecEvent(ev)
		e.record(recordTypeFor(ev), e.lastTs, marshalEvent(ev))
		if tag := eventTag(ev); tag != "" {
			if s, ok := e.byTag[tag]; ok {
				s.OnEvent(e.traders[tag], ev)
			}
			continue
		}
		e.broadcastEvent(ev)
	}
	return nil
}

func (e *Engine) drainAll() error {
	for _, v := range e.venueOrder {
		if err := e.drain(e.exchanges[v]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) broadcastEvent(ev any) {
	for _, s := range e.strategies {
		s.OnEvent(e.traders[s.Tag()], ev)
	}
}

func (e *Engine) observeExecEvent(ev any) {
	switch ev.(type) {
	case model.OrderRejected:
		e.metrics.IncOrderRejected()
	case model.OrderCanceled:
		e.metrics.IncOrderCanceled()
	case model.OrderExpired:
		e.metrics.IncOrderExpired()
	case model.OrderFilled:
		e.metrics.IncFill()
	case model.ConversionSkipped:
		e.metrics.IncConversionSkipped()
	case model.AccountAdjusted:
		e.metrics.IncModuleAdjustment()
	}
}

func (e *Engine) bindStrategies(strategies []strategy.Strategy) error {
	e.strategies = strategies
	e.byTag = make(map[string]strategy.Strategy, len(strategies))
	e.traders = make(map[string]*strategy.Trader, len(strategies))
	e.barSubs = nil
	for _, s := range strategies {
		if _, ok := e.byTag[s.Tag()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStrategyTag, s.Tag())
		}
		e.byTag[s.Tag()] = s
		e.traders[s.Tag()] = strategy.NewTrader(s.Tag(), e.clk, e, e.portfolio)
	}
	return nil
}

// Reset returns a finished engine to idle with pristine state. Loaded data
// and venue configuration survive, so the next run replays identically.
func (e *Engine) Reset() error {
	if e.state == StateRunning {
		return ErrRunning
	}
	e.merger.Reset()
	e.clk.Reset(0)
	e.portfolio.Reset()
	for _, x := range e.exchanges {
		x.Reset()
	}
	for _, s := range e.strategies {
		s.Reset()
	}
	e.barSubs = nil
	e.iterations = 0
	e.firstTs = 0
	e.lastTs = 0
	e.digest.Reset()
	e.metrics.Reset()
	e.state = StateIdle
	return nil
}

// Dispose releases loaded data and strategy bindings. The engine returns to
// idle but must be reconfigured before further use.
func (e *Engine) Dispose() error {
	if e.state == StateRunning {
		return ErrRunning
	}
	if err := e.Reset(); err != nil {
		return err
	}
	e.merger = stream.NewMerger()
	e.deltaVenues = make(map[model.Venue]struct{})
	e.strategies = nil
	e.byTag = nil
	e.traders = nil
	e.sourceSeq = 0
	return nil
}

func (e *Engine) record(recordType journal.RecordType, ts int64, payload []byte) {
	e.digest.Add(recordType, ts, payload)
	if e.jw != nil {
		if err := e.jw.Append(recordType, ts, payload); err != nil {
			logs.Errorf("journal append failed: %+v", err)
			e.jw = nil
		}
	}
}

// SubmitOrder implements strategy.Router.
func (e *Engine) SubmitOrder(o *model.Order) error {
	x, ok := e.exchanges[o.InstrumentID.Venue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVenue, o.InstrumentID.Venue)
	}
	e.metrics.IncOrderSubmitted()
	if err := x.Submit(o); err != nil {
		return err
	}
	return e.drain(x)
}

// CancelOrder implements strategy.Router.
func (e *Engine) CancelOrder(id model.OrderID, strategyTag string) error {
	for _, v := range e.venueOrder {
		x := e.exchanges[v]
		if _, ok := x.Order(id); ok {
			err := x.Cancel(id, strategyTag)
			if derr := e.drain(x); derr != nil {
				return derr
			}
			return err
		}
	}
	return fmt.Errorf("cancel %s: %w", id, model.ErrUnknownOrder)
}

// SubscribeBars implements strategy.Router.
func (e *Engine) SubscribeBars(barType model.BarType, strategyTag string) {
	for _, sub := range e.barSubs {
		if sub.agg.BarType() == barType {
			for _, tag := range sub.tags {
				if tag == strategyTag {
					return
				}
			}
			sub.tags = append(sub.tags, strategyTag)
			return
		}
	}
	e.barSubs = append(e.barSubs, &barSub{
		agg:  strategy.NewAggregator(barType),
		tags: []string{strategyTag},
	})
}

// VenueOMS implements strategy.Router.
func (e *Engine) VenueOMS(venue model.Venue) model.OMSType {
	if x, ok := e.exchanges[venue]; ok {
		return x.OMS()
	}
	return model.OMSTypeUnknown
}
