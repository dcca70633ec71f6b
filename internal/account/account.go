package account

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"backtest/internal/model"
)

// ChangeReason classifies a balance change for the conservation ledger.
type ChangeReason uint16

const (
	ChangeReasonUnknown ChangeReason = iota
	ChangeReasonPnL
	ChangeReasonCommission
	ChangeReasonModule
)

func (r ChangeReason) String() string {
	switch r {
	case ChangeReasonPnL:
		return "PNL"
	case ChangeReasonCommission:
		return "COMMISSION"
	case ChangeReasonModule:
		return "MODULE"
	default:
		return "UNKNOWN"
	}
}

// BalanceChange is one applied debit or credit. The ledger is append-only:
// the sum of all changes per currency must equal final minus starting
// balance.
type BalanceChange struct {
	Amount  model.Money
	Reason  ChangeReason
	Ref     string // fill id or module name
	TsEvent int64
}

type pendingConversion struct {
	amount model.Money
	ref    string
	ts     int64
}

// Account is a venue-scoped account. With a base currency every PnL and
// commission converts into it; without one, balances accumulate per currency
// with no implicit conversion.
type Account struct {
	Venue        model.Venue
	Type         model.AccountType
	OMS          model.OMSType
	BaseCurrency model.Currency // zero => multi-currency

	balances   map[string]decimal.Decimal
	starting   map[string]model.Money
	currencies map[string]model.Currency
	marginUsed map[string]decimal.Decimal
	ledger     []BalanceChange
	pending    []pendingConversion
}

// NewAccount creates an account seeded with starting balances.
func NewAccount(venue model.Venue, accountType model.AccountType, oms model.OMSType, base model.Currency, starting []model.Money) (*Account, error) {
	a := &Account{
		Venue:        venue,
		Type:         accountType,
		OMS:          oms,
		BaseCurrency: base,
		balances:     make(map[string]decimal.Decimal, len(starting)),
		starting:     make(map[string]model.Money, len(starting)),
		currencies:   make(map[string]model.Currency, len(starting)),
		marginUsed:   make(map[string]decimal.Decimal),
	}
	for _, m := range starting {
		if _, ok := a.balances[m.Currency.Code]; ok {
			return nil, fmt.Errorf("duplicate starting balance currency: %s", m.Currency.Code)
		}
		if m.Amount.IsNegative() {
			return nil, fmt.Errorf("negative starting balance: %s", m)
		}
		a.balances[m.Currency.Code] = m.Amount
		a.starting[m.Currency.Code] = m
		a.currencies[m.Currency.Code] = m.Currency
	}
	if !base.IsZero() {
		if _, ok := a.balances[base.Code]; !ok {
			return nil, fmt.Errorf("no starting balance in base currency %s", base.Code)
		}
	}
	return a, nil
}

// Apply records a balance change in the ledger and updates the balance.
func (a *Account) Apply(change BalanceChange) {
	code := change.Amount.Currency.Code
	a.currencies[code] = change.Amount.Currency
	a.balances[code] = a.balances[code].Add(change.Amount.Amount)
	a.ledger = append(a.ledger, change)
}

// Balance returns the current balance in a currency, rounded to the currency
// precision.
func (a *Account) Balance(currency model.Currency) model.Money {
	return model.NewMoney(a.balances[currency.Code].Round(currency.Precision), currency)
}

// BalanceRaw returns the unrounded balance amount.
func (a *Account) BalanceRaw(currency model.Currency) decimal.Decimal {
	return a.balances[currency.Code]
}

// Balances returns all balances sorted by currency code.
func (a *Account) Balances() []model.Money {
	codes := make([]string, 0, len(a.balances))
	for code := range a.balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]model.Money, 0, len(codes))
	for _, code := range codes {
		out = append(out, a.Balance(a.currencies[code]))
	}
	return out
}

// StartingBalance returns the configured starting balance for a currency.
func (a *Account) StartingBalance(currency model.Currency) decimal.Decimal {
	return a.starting[currency.Code].Amount
}

// LedgerTotal sums all ledger changes in a currency.
func (a *Account) LedgerTotal(currency model.Currency) decimal.Decimal {
	total := decimal.Decimal{}
	for _, c := range a.ledger {
		if c.Amount.Currency.Code == currency.Code {
			total = total.Add(c.Amount.Amount)
		}
	}
	return total
}

// Ledger returns the append-only change history.
func (a *Account) Ledger() []BalanceChange {
	return a.ledger
}

// SetMarginUsed replaces the margin locked in a currency.
func (a *Account) SetMarginUsed(currency model.Currency, amount decimal.Decimal) {
	a.marginUsed[currency.Code] = amount
}

// MarginUsed returns the margin locked in a currency.
func (a *Account) MarginUsed(currency model.Currency) decimal.Decimal {
	return a.marginUsed[currency.Code]
}

// FreeBalance returns balance minus locked margin for a currency.
func (a *Account) FreeBalance(currency model.Currency) decimal.Decimal {
	return a.balances[currency.Code].Sub(a.marginUsed[currency.Code])
}

// Defer parks an amount that could not be converted to the base currency.
// Deferred amounts are excluded from balances until a rate appears.
func (a *Account) Defer(amount model.Money, ref string, ts int64) {
	a.pending = append(a.pending, pendingConversion{amount: amount, ref: ref, ts: ts})
}

// PendingConversions reports how many entries await an FX rate.
func (a *Account) PendingConversions() int {
	return len(a.pending)
}

// RetryPending attempts conversion of deferred entries with current rates.
// Entries that convert are applied to the ledger; the rest stay parked.
func (a *Account) RetryPending(rates *RateCache, ts int64) {
	if len(a.pending) == 0 || a.BaseCurrency.IsZero() {
		return
	}
	remaining := a.pending[:0]
	for _, p := range a.pending {
		rate, err := rates.Rate(p.amount.Currency, a.BaseCurrency)
		if err != nil {
			remaining = append(remaining, p)
			continue
		}
		a.Apply(BalanceChange{
			Amount:  model.NewMoney(p.amount.Amount.Mul(rate), a.BaseCurrency),
			Reason:  ChangeReasonPnL,
			Ref:     p.ref,
			TsEvent: ts,
		})
	}
	a.pending = remaining
}

// Reset restores starting balances and clears the ledger and margin state.
func (a *Account) Reset() {
	a.balances = make(map[string]decimal.Decimal, len(a.starting))
	a.currencies = make(map[string]model.Currency, len(a.starting))
	for code, m := range a.starting {
		a.balances[code] = m.Amount
		a.currencies[code] = m.Currency
	}
	a.marginUsed = make(map[string]decimal.Decimal)
	a.ledger = nil
	a.pending = nil
}
