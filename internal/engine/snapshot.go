package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot captures final balances and open positions for cross-run
// comparison. Two runs over the same configuration produce snapshots that
// compare equal.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	RunID       string          `json:"runId"`
	Iterations  uint64          `json:"iterations"`
	Fingerprint uint32          `json:"fingerprint"`
	Balances    []BalanceEntry  `json:"balances"`
	Positions   []PositionEntry `json:"positions"`
}

// BalanceEntry is one currency balance on one venue.
type BalanceEntry struct {
	Venue    string `json:"venue"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// PositionEntry is one open position.
type PositionEntry struct {
	PositionID  string `json:"positionId"`
	Instrument  string `json:"instrument"`
	StrategyTag string `json:"strategyTag"`
	Qty         string `json:"qty"`
	AvgPrice    string `json:"avgPrice"`
}

// Snapshot builds a snapshot from the engine's current state. Meaningful
// after a run has finished; balances and positions reflect whatever the last
// processed event left behind.
func (e *Engine) Snapshot(report Report) Snapshot {
	var balances []BalanceEntry
	for _, v := range e.venueOrder {
		for _, m := range report.Balances[v] {
			balances = append(balances, BalanceEntry{
				Venue:    string(v),
				Currency: m.Currency.Code,
				Amount:   m.Rounded().String(),
			})
		}
	}
	var positions []PositionEntry
	for _, pos := range e.portfolio.AllOpenPositions() {
		positions = append(positions, PositionEntry{
			PositionID:  string(pos.ID),
			Instrument:  pos.InstrumentID.String(),
			StrategyTag: pos.StrategyTag,
			Qty:         pos.Quantity.String(),
			AvgPrice:    pos.AvgPrice.String(),
		})
	}
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		RunID:       report.RunID,
		Iterations:  report.Iterations,
		Fingerprint: report.Fingerprint,
		Balances:    balances,
		Positions:   positions,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots describe the same run outcome.
// Timestamps and run ids are metadata and excluded from the comparison.
func CompareSnapshots(expected, actual Snapshot) error {
	if expected.Iterations != actual.Iterations {
		return fmt.Errorf("iteration mismatch: expected=%d actual=%d",
			expected.Iterations, actual.Iterations)
	}
	if expected.Fingerprint != actual.Fingerprint {
		return fmt.Errorf("fingerprint mismatch: expected=%08x actual=%08x",
			expected.Fingerprint, actual.Fingerprint)
	}
	if len(expected.Balances) != len(actual.Balances) {
		return fmt.Errorf("balance count mismatch: expected=%d actual=%d",
			len(expected.Balances), len(actual.Balances))
	}
	for i, want := range expected.Balances {
		if actual.Balances[i] != want {
			return fmt.Errorf("balance mismatch at %d: expected=%+v actual=%+v",
				i, want, actual.Balances[i])
		}
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("position count mismatch: expected=%d actual=%d",
			len(expected.Positions), len(actual.Positions))
	}
	for i, want := range expected.Positions {
		if actual.Positions[i] != want {
			return fmt.Errorf("position mismatch at %d: expected=%+v actual=%+v",
				i, want, actual.Positions[i])
		}
	}
	return nil
}
