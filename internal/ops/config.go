package ops

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"backtest/internal/model"
)

// FileConfig mirrors the run configuration file. Viper accepts YAML, JSON,
// and TOML; field names below are the config keys.
type FileConfig struct {
	Journal     string             `mapstructure:"journal"`
	Snapshot    string             `mapstructure:"snapshot"`
	Venues      []VenueConfig      `mapstructure:"venues"`
	Currencies  []CurrencyConfig   `mapstructure:"currencies"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Data        []DataConfig       `mapstructure:"data"`
	Strategies  []StrategyConfig   `mapstructure:"strategies"`
}

// VenueConfig describes one simulated venue and its account.
type VenueConfig struct {
	Name          string          `mapstructure:"name"`
	OMS           string          `mapstructure:"oms"`
	Account       string          `mapstructure:"account"`
	BookLevel     string          `mapstructure:"bookLevel"`
	BaseCurrency  string          `mapstructure:"baseCurrency"`
	Balances      []BalanceConfig `mapstructure:"balances"`
	// Commission selects the commission model: rate (instrument fees,
	// default) or none.
	Commission    string       `mapstructure:"commission"`
	RolloverRates []RateConfig `mapstructure:"rolloverRates"`
}

// BalanceConfig is one starting balance.
type BalanceConfig struct {
	Currency string `mapstructure:"currency"`
	Amount   string `mapstructure:"amount"`
}

// CurrencyConfig registers a currency not in the built-in set.
type CurrencyConfig struct {
	Code      string `mapstructure:"code"`
	Precision int32  `mapstructure:"precision"`
}

// RateConfig is a flat annual interest rate in percent for one currency.
type RateConfig struct {
	Currency string `mapstructure:"currency"`
	RatePct  string `mapstructure:"ratePct"`
}

// InstrumentConfig describes one tradable instrument.
type InstrumentConfig struct {
	Symbol         string `mapstructure:"symbol"`
	Venue          string `mapstructure:"venue"`
	Base           string `mapstructure:"base"`
	Quote          string `mapstructure:"quote"`
	Settlement     string `mapstructure:"settlement"`
	PricePrecision int32  `mapstructure:"pricePrecision"`
	SizePrecision  int32  `mapstructure:"sizePrecision"`
	PriceIncrement string `mapstructure:"priceIncrement"`
	SizeIncrement  string `mapstructure:"sizeIncrement"`
	Multiplier     string `mapstructure:"multiplier"`
	MarginInit     string `mapstructure:"marginInit"`
	MarginMaint    string `mapstructure:"marginMaint"`
	MakerFee       string `mapstructure:"makerFee"`
	TakerFee       string `mapstructure:"takerFee"`
}

// DataConfig points one data source at a CSV file or a Postgres catalog.
// Kind selects the loader: quotes, trades, bars, bar-ticks (bid+ask bar
// files replayed as synthetic quotes), bar-trade-ticks (one bar file
// replayed as synthetic trades), pg-quotes and pg-bars (read from the
// catalog database at dsn, bounded by start/end).
type DataConfig struct {
	Kind    string `mapstructure:"kind"`
	Symbol  string `mapstructure:"symbol"`
	Venue   string `mapstructure:"venue"`
	Path    string `mapstructure:"path"`
	BidPath string `mapstructure:"bidPath"`
	AskPath string `mapstructure:"askPath"`
	BarSpec string `mapstructure:"barSpec"`
	Dsn     string `mapstructure:"dsn"`
	Start   string `mapstructure:"start"`
	End     string `mapstructure:"end"`
}

// StrategyConfig describes one strategy instance. Kind currently supports
// emacross only.
type StrategyConfig struct {
	Kind       string `mapstructure:"kind"`
	Tag        string `mapstructure:"tag"`
	Symbol     string `mapstructure:"symbol"`
	Venue      string `mapstructure:"venue"`
	BarSpec    string `mapstructure:"barSpec"`
	FastPeriod int    `mapstructure:"fastPeriod"`
	SlowPeriod int    `mapstructure:"slowPeriod"`
	TradeSize  string `mapstructure:"tradeSize"`
}

// Load reads a run configuration file. Relative data paths resolve against
// the config file's directory.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range cfg.Data {
		cfg.Data[i].Path = resolvePath(dir, cfg.Data[i].Path)
		cfg.Data[i].BidPath = resolvePath(dir, cfg.Data[i].BidPath)
		cfg.Data[i].AskPath = resolvePath(dir, cfg.Data[i].AskPath)
	}
	return cfg, nil
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func parseOMS(raw string) (model.OMSType, error) {
	switch strings.ToUpper(raw) {
	case "NETTING":
		return model.OMSTypeNetting, nil
	case "HEDGING":
		return model.OMSTypeHedging, nil
	default:
		return model.OMSTypeUnknown, fmt.Errorf("unknown oms: %q", raw)
	}
}

func parseAccountType(raw string) (model.AccountType, error) {
	switch strings.ToUpper(raw) {
	case "CASH":
		return model.AccountTypeCash, nil
	case "MARGIN", "":
		return model.AccountTypeMargin, nil
	default:
		return model.AccountTypeUnknown, fmt.Errorf("unknown account type: %q", raw)
	}
}

func parseBookLevel(raw string) (model.BookLevel, error) {
	switch strings.ToUpper(raw) {
	case "L1", "":
		return model.BookLevelL1, nil
	case "L2":
		return model.BookLevelL2, nil
	case "L3":
		return model.BookLevelL3, nil
	default:
		return model.BookLevelNone, fmt.Errorf("unknown book level: %q", raw)
	}
}

// parseBarSpec parses "15-MINUTE-BID" style specs.
func parseBarSpec(raw string) (model.BarSpec, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 {
		return model.BarSpec{}, fmt.Errorf("bar spec %q: want STEP-UNIT-PRICE", raw)
	}
	step, err := strconv.Atoi(parts[0])
	if err != nil || step <= 0 {
		return model.BarSpec{}, fmt.Errorf("bar spec %q: bad step", raw)
	}
	var agg model.BarAggregation
	switch strings.ToUpper(parts[1]) {
	case "SECOND":
		agg = model.BarAggregationSecond
	case "MINUTE":
		agg = model.BarAggregationMinute
	case "HOUR":
		agg = model.BarAggregationHour
	case "DAY":
		agg = model.BarAggregationDay
	case "TICK":
		agg = model.BarAggregationTick
	default:
		return model.BarSpec{}, fmt.Errorf("bar spec %q: bad unit", raw)
	}
	var priceType model.PriceType
	switch strings.ToUpper(parts[2]) {
	case "BID":
		priceType = model.PriceTypeBid
	case "ASK":
		priceType = model.PriceTypeAsk
	case "MID":
		priceType = model.PriceTypeMid
	case "LAST":
		priceType = model.PriceTypeLast
	default:
		return model.BarSpec{}, fmt.Errorf("bar spec %q: bad price type", raw)
	}
	return model.BarSpec{Step: step, Aggregation: agg, PriceType: priceType}, nil
}
