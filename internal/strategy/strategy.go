package strategy

import "backtest/internal/model"

// Strategy is the user-facing trading contract. Callbacks run on the single
// engine thread in event order; implementations never need locking.
type Strategy interface {
	// Tag is the strategy's order id tag. Tags must be unique within a run.
	Tag() string

	// OnStart runs once when the engine enters the running state.
	OnStart(t *Trader)

	// OnStop runs once when the data stream is exhausted or the run stops.
	OnStop(t *Trader)

	// Reset restores pristine indicator and working state between runs.
	Reset()

	OnQuoteTick(t *Trader, tick model.QuoteTick)
	OnTradeTick(t *Trader, tick model.TradeTick)
	OnBar(t *Trader, bar model.Bar)
	OnEvent(t *Trader, ev any)
}

// Nop is an embeddable no-op implementation of the optional callbacks.
type Nop struct{}

func (Nop) OnStart(*Trader)                       {}
func (Nop) OnStop(*Trader)                        {}
func (Nop) Reset()                                {}
func (Nop) OnQuoteTick(*Trader, model.QuoteTick)  {}
func (Nop) OnTradeTick(*Trader, model.TradeTick)  {}
func (Nop) OnBar(*Trader, model.Bar)              {}
func (Nop) OnEvent(*Trader, any)                  {}
