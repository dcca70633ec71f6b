package engine

import (
	"encoding/json"

	"backtest/internal/journal"
	"backtest/internal/model"
	"backtest/internal/obs"
)

// Report summarizes one finished run. Two runs over the same configuration
// produce identical iterations, fingerprints, and balances.
type Report struct {
	RunID           string
	State           State
	Iterations      uint64
	FirstEventNanos int64
	LastEventNanos  int64
	Fingerprint     uint32
	Metrics         obs.Snapshot
	Balances        map[model.Venue][]model.Money
}

func (e *Engine) buildReport(runID string) Report {
	balances := make(map[model.Venue][]model.Money, len(e.venueOrder))
	for _, v := range e.venueOrder {
		if acct, ok := e.portfolio.Account(v); ok {
			balances[v] = acct.Balances()
		}
	}
	return Report{
		RunID:           runID,
		State:           e.state,
		Iterations:      e.iterations,
		FirstEventNanos: e.firstTs,
		LastEventNanos:  e.lastTs,
		Fingerprint:     e.digest.Sum(),
		Metrics:         e.metrics.Snapshot(),
		Balances:        balances,
	}
}

// marshalEvent produces the canonical journal payload for an event. Struct
// field order is fixed, so equal events always encode identically.
func marshalEvent(ev any) []byte {
	payload, err := json.Marshal(ev)
	if err != nil {
		return []byte(`{}`)
	}
	return payload
}

func recordTypeFor(ev any) journal.RecordType {
	switch ev.(type) {
	case model.OrderAccepted, model.OrderRejected, model.OrderFilled,
		model.OrderCanceled, model.OrderCancelRejected, model.OrderExpired:
		return journal.RecordOrderEvent
	case model.PositionChanged, model.AccountUpdated, model.AccountAdjusted,
		model.ConversionSkipped:
		return journal.RecordAccountEvent
	default:
		return journal.RecordUnknown
	}
}

// eventTag extracts the owning strategy tag from an execution event. An
// empty tag means the event is account-level and broadcasts.
func eventTag(ev any) string {
	switch v := ev.(type) {
	case model.OrderAccepted:
		return v.StrategyTag
	case model.OrderRejected:
		return v.StrategyTag
	case model.OrderFilled:
		return v.Fill.StrategyTag
	case model.OrderCanceled:
		return v.StrategyTag
	case model.OrderCancelRejected:
		return v.StrategyTag
	case model.OrderExpired:
		return v.StrategyTag
	case model.PositionChanged:
		return v.StrategyTag
	default:
		return ""
	}
}
