package account

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// ErrMissingRate is returned when no FX cross rate is derivable from the
// rates observed so far. This is reportable, not fatal.
var ErrMissingRate = errors.New("missing exchange rate")

// RateCache derives FX conversion rates from the market data of registered
// currency-pair instruments. The policy is last-known: the most recent quote
// mid (or trade price) per pair wins.
type RateCache struct {
	// direct holds base -> quote -> rate for every observed pair.
	direct map[string]map[string]decimal.Decimal
}

// NewRateCache creates an empty cache.
func NewRateCache() *RateCache {
	return &RateCache{direct: make(map[string]map[string]decimal.Decimal)}
}

func (c *RateCache) set(base, quote string, rate decimal.Decimal) {
	if !rate.IsPositive() {
		return
	}
	m, ok := c.direct[base]
	if !ok {
		m = make(map[string]decimal.Decimal)
		c.direct[base] = m
	}
	m[quote] = rate
}

// UpdatePrice records the latest price for a currency-pair instrument.
// Non-pair instruments are ignored.
func (c *RateCache) UpdatePrice(instrument model.Instrument, price decimal.Decimal) {
	if !instrument.IsCurrencyPair() {
		return
	}
	c.set(instrument.BaseCurrency.Code, instrument.QuoteCurrency.Code, price)
}

// Rate resolves a conversion rate from one currency to another: identity,
// direct, inverse, then a single-hop cross through any shared currency.
func (c *RateCache) Rate(from, to model.Currency) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := c.lookup(from.Code, to.Code); ok {
		return r, nil
	}
	// Single hop: from -> via -> to. Candidate currencies are walked in
	// sorted order so reruns always resolve the same path.
	for _, via := range c.knownCurrencies() {
		if via == from.Code || via == to.Code {
			continue
		}
		r1, ok := c.lookup(from.Code, via)
		if !ok {
			continue
		}
		r2, ok := c.lookup(via, to.Code)
		if !ok {
			continue
		}
		return r1.Mul(r2), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrMissingRate, from.Code, to.Code)
}

func (c *RateCache) knownCurrencies() []string {
	seen := make(map[string]struct{}, len(c.direct)*2)
	for base, quotes := range c.direct {
		seen[base] = struct{}{}
		for quote := range quotes {
			seen[quote] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func (c *RateCache) lookup(from, to string) (decimal.Decimal, bool) {
	if m, ok := c.direct[from]; ok {
		if r, ok := m[to]; ok {
			return r, true
		}
	}
	if m, ok := c.direct[to]; ok {
		if r, ok := m[from]; ok && r.IsPositive() {
			return decimal.NewFromInt(1).Div(r), true
		}
	}
	return decimal.Decimal{}, false
}

// Reset clears all observed rates.
func (c *RateCache) Reset() {
	c.direct = make(map[string]map[string]decimal.Decimal)
}
