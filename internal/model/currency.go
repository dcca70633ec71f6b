package model

import "fmt"

// Currency identifies a currency and the precision its balances are kept at.
type Currency struct {
	Code      string
	Precision int32
}

// Common currencies used by fixtures and tests. Precision follows the
// venue-settlement convention, not the display convention.
var (
	AUD  = Currency{Code: "AUD", Precision: 2}
	BTC  = Currency{Code: "BTC", Precision: 8}
	ETH  = Currency{Code: "ETH", Precision: 8}
	EUR  = Currency{Code: "EUR", Precision: 2}
	GBP  = Currency{Code: "GBP", Precision: 2}
	JPY  = Currency{Code: "JPY", Precision: 0}
	USD  = Currency{Code: "USD", Precision: 2}
	USDT = Currency{Code: "USDT", Precision: 8}
)

var currencyByCode = map[string]Currency{
	AUD.Code:  AUD,
	BTC.Code:  BTC,
	ETH.Code:  ETH,
	EUR.Code:  EUR,
	GBP.Code:  GBP,
	JPY.Code:  JPY,
	USD.Code:  USD,
	USDT.Code: USDT,
}

// CurrencyFromCode resolves a known currency by its ISO-style code.
func CurrencyFromCode(code string) (Currency, error) {
	c, ok := currencyByCode[code]
	if !ok {
		return Currency{}, fmt.Errorf("unknown currency: %s", code)
	}
	return c, nil
}

// RegisterCurrency adds a currency so config files can reference it by code.
// Re-registering an existing code with a different precision is an error.
func RegisterCurrency(c Currency) error {
	if c.Code == "" {
		return fmt.Errorf("currency code is empty")
	}
	if c.Precision < 0 {
		return fmt.Errorf("currency precision must be >= 0: %s", c.Code)
	}
	if existing, ok := currencyByCode[c.Code]; ok && existing.Precision != c.Precision {
		return fmt.Errorf("currency already registered with precision %d: %s", existing.Precision, c.Code)
	}
	currencyByCode[c.Code] = c
	return nil
}

func (c Currency) String() string {
	return c.Code
}

// IsZero reports whether the currency is the zero value (no base currency).
func (c Currency) IsZero() bool {
	return c.Code == ""
}
