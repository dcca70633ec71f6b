package ops

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"backtest/internal/catalog"
	"backtest/internal/engine"
	"backtest/internal/exchange"
	"backtest/internal/model"
	"backtest/internal/strategy"
)

// Loaded is a resolved configuration: an engine with venues, instruments, and
// data loaded, plus the strategies to run.
type Loaded struct {
	Engine       *engine.Engine
	Strategies   []strategy.Strategy
	SnapshotPath string
}

// Build resolves a file configuration into a ready-to-run engine. Validation
// failures surface here, before any event is processed.
func Build(cfg FileConfig) (Loaded, error) {
	for _, cc := range cfg.Currencies {
		if err := model.RegisterCurrency(model.Currency{Code: cc.Code, Precision: cc.Precision}); err != nil {
			return Loaded{}, err
		}
	}

	e := engine.New(engine.Config{JournalPath: cfg.Journal})

	if len(cfg.Venues) == 0 {
		return Loaded{}, fmt.Errorf("no venues configured")
	}
	for _, vc := range cfg.Venues {
		resolved, err := resolveVenue(vc)
		if err != nil {
			return Loaded{}, fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		if err := e.AddVenue(resolved); err != nil {
			return Loaded{}, err
		}
	}
	for _, ic := range cfg.Instruments {
		instrument, err := resolveInstrument(ic)
		if err != nil {
			return Loaded{}, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
		}
		if err := e.AddInstrument(instrument); err != nil {
			return Loaded{}, err
		}
	}
	for _, dc := range cfg.Data {
		if err := loadData(e, dc); err != nil {
			return Loaded{}, fmt.Errorf("data %s %s: %w", dc.Kind, dc.Symbol, err)
		}
	}

	strategies, err := resolveStrategies(cfg.Strategies)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Engine:       e,
		Strategies:   strategies,
		SnapshotPath: cfg.Snapshot,
	}, nil
}

func resolveVenue(vc VenueConfig) (engine.VenueConfig, error) {
	if vc.Name == "" {
		return engine.VenueConfig{}, fmt.Errorf("name is empty")
	}
	oms, err := parseOMS(vc.OMS)
	if err != nil {
		return engine.VenueConfig{}, err
	}
	accountType, err := parseAccountType(vc.Account)
	if err != nil {
		return engine.VenueConfig{}, err
	}
	bookLevel, err := parseBookLevel(vc.BookLevel)
	if err != nil {
		return engine.VenueConfig{}, err
	}

	var base model.Currency
	if vc.BaseCurrency != "" {
		base, err = model.CurrencyFromCode(vc.BaseCurrency)
		if err != nil {
			return engine.VenueConfig{}, err
		}
	}
	if len(vc.Balances) == 0 {
		return engine.VenueConfig{}, fmt.Errorf("no starting balances")
	}
	balances := make([]model.Money, 0, len(vc.Balances))
	for _, bc := range vc.Balances {
		ccy, err := model.CurrencyFromCode(bc.Currency)
		if err != nil {
			return engine.VenueConfig{}, err
		}
		m, err := model.MoneyFromString(bc.Amount, ccy)
		if err != nil {
			return engine.VenueConfig{}, err
		}
		balances = append(balances, m)
	}

	commission, err := resolveCommission(vc)
	if err != nil {
		return engine.VenueConfig{}, err
	}
	modules, err := resolveModules(vc)
	if err != nil {
		return engine.VenueConfig{}, err
	}

	return engine.VenueConfig{
		Venue:            model.Venue(vc.Name),
		VenueType:        model.VenueTypeECN,
		OMS:              oms,
		AccountType:      accountType,
		BookLevel:        bookLevel,
		BaseCurrency:     base,
		StartingBalances: balances,
		Commission:       commission,
		Modules:          modules,
	}, nil
}

func resolveCommission(vc VenueConfig) (exchange.CommissionModel, error) {
	switch vc.Commission {
	case "", "rate":
		return exchange.RateCommission{}, nil
	case "none":
		return exchange.NoCommission{}, nil
	default:
		return nil, fmt.Errorf("unknown commission model: %q", vc.Commission)
	}
}

func resolveModules(vc VenueConfig) ([]exchange.SimulationModule, error) {
	if len(vc.RolloverRates) == 0 {
		return nil, nil
	}
	table := exchange.NewInterestRateTable()
	for _, rc := range vc.RolloverRates {
		rate, err := parseDecimal(rc.RatePct, "ratePct")
		if err != nil {
			return nil, err
		}
		table.Add(rc.Currency, 0, rate)
	}
	return []exchange.SimulationModule{exchange.NewFXRolloverInterestModule(table)}, nil
}

func resolveInstrument(ic InstrumentConfig) (model.Instrument, error) {
	quote, err := model.CurrencyFromCode(ic.Quote)
	if err != nil {
		return model.Instrument{}, err
	}
	settlement := quote
	if ic.Settlement != "" {
		settlement, err = model.CurrencyFromCode(ic.Settlement)
		if err != nil {
			return model.Instrument{}, err
		}
	}
	var base model.Currency
	if ic.Base != "" {
		base, err = model.CurrencyFromCode(ic.Base)
		if err != nil {
			return model.Instrument{}, err
		}
	}

	priceIncrement, err := parseDecimal(ic.PriceIncrement, "priceIncrement")
	if err != nil {
		return model.Instrument{}, err
	}
	sizeIncrement, err := parseDecimal(ic.SizeIncrement, "sizeIncrement")
	if err != nil {
		return model.Instrument{}, err
	}
	multiplier := decimal.NewFromInt(1)
	if ic.Multiplier != "" {
		multiplier, err = parseDecimal(ic.Multiplier, "multiplier")
		if err != nil {
			return model.Instrument{}, err
		}
	}
	marginInit, err := parseOptionalDecimal(ic.MarginInit, "marginInit")
	if err != nil {
		return model.Instrument{}, err
	}
	marginMaint, err := parseOptionalDecimal(ic.MarginMaint, "marginMaint")
	if err != nil {
		return model.Instrument{}, err
	}
	makerFee, err := parseOptionalDecimal(ic.MakerFee, "makerFee")
	if err != nil {
		return model.Instrument{}, err
	}
	takerFee, err := parseOptionalDecimal(ic.TakerFee, "takerFee")
	if err != nil {
		return model.Instrument{}, err
	}

	instrument := model.Instrument{
		ID:             model.NewInstrumentID(ic.Symbol, model.Venue(ic.Venue)),
		BaseCurrency:   base,
		QuoteCurrency:  quote,
		SettlementCcy:  settlement,
		PricePrecision: ic.PricePrecision,
		SizePrecision:  ic.SizePrecision,
		PriceIncrement: priceIncrement,
		SizeIncrement:  sizeIncrement,
		Multiplier:     multiplier,
		MarginInit:     marginInit,
		MarginMaint:    marginMaint,
		MakerFee:       makerFee,
		TakerFee:       takerFee,
	}
	return instrument, instrument.Validate()
}

func loadData(e *engine.Engine, dc DataConfig) error {
	instrumentID := model.NewInstrumentID(dc.Symbol, model.Venue(dc.Venue))
	switch dc.Kind {
	case "quotes":
		ticks, err := catalog.ReadQuoteTicksCSV(dc.Path, instrumentID)
		if err != nil {
			return err
		}
		return e.AddQuoteTicks(ticks)
	case "trades":
		ticks, err := catalog.ReadTradeTicksCSV(dc.Path, instrumentID)
		if err != nil {
			return err
		}
		return e.AddTradeTicks(ticks)
	case "bars":
		barType, err := resolveBarType(instrumentID, dc.BarSpec)
		if err != nil {
			return err
		}
		bars, err := catalog.ReadBarsCSV(dc.Path, barType)
		if err != nil {
			return err
		}
		return e.AddBars(bars)
	case "bar-ticks":
		spec, err := parseBarSpec(dc.BarSpec)
		if err != nil {
			return err
		}
		bidBars, err := catalog.ReadBarsCSV(dc.BidPath, model.BarType{
			InstrumentID: instrumentID,
			Spec:         model.BarSpec{Step: spec.Step, Aggregation: spec.Aggregation, PriceType: model.PriceTypeBid},
		})
		if err != nil {
			return err
		}
		askBars, err := catalog.ReadBarsCSV(dc.AskPath, model.BarType{
			InstrumentID: instrumentID,
			Spec:         model.BarSpec{Step: spec.Step, Aggregation: spec.Aggregation, PriceType: model.PriceTypeAsk},
		})
		if err != nil {
			return err
		}
		return e.AddBarsAsTicks(bidBars, askBars)
	case "bar-trade-ticks":
		barType, err := resolveBarType(instrumentID, dc.BarSpec)
		if err != nil {
			return err
		}
		bars, err := catalog.ReadBarsCSV(dc.Path, barType)
		if err != nil {
			return err
		}
		return e.AddBarsAsTradeTicks(bars)
	case "pg-bars":
		barType, err := resolveBarType(instrumentID, dc.BarSpec)
		if err != nil {
			return err
		}
		store, start, end, err := openCatalog(dc)
		if err != nil {
			return err
		}
		defer store.Close()
		bars, err := store.Bars(barType, start, end)
		if err != nil {
			return err
		}
		return e.AddBars(bars)
	case "pg-quotes":
		store, start, end, err := openCatalog(dc)
		if err != nil {
			return err
		}
		defer store.Close()
		ticks, err := store.QuoteTicks(instrumentID, start, end)
		if err != nil {
			return err
		}
		return e.AddQuoteTicks(ticks)
	default:
		return fmt.Errorf("unknown data kind: %q", dc.Kind)
	}
}

// openCatalog connects a pg-backed data source and resolves its time window.
// An empty start or end leaves that bound open.
func openCatalog(dc DataConfig) (*catalog.PGStore, int64, int64, error) {
	if dc.Dsn == "" {
		return nil, 0, 0, fmt.Errorf("data %s: dsn is empty", dc.Kind)
	}
	start := int64(0)
	if dc.Start != "" {
		ts, err := catalog.ParseTimestamp(dc.Start)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("data %s: start: %w", dc.Kind, err)
		}
		start = ts
	}
	end := int64(math.MaxInt64)
	if dc.End != "" {
		ts, err := catalog.ParseTimestamp(dc.End)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("data %s: end: %w", dc.Kind, err)
		}
		end = ts
	}
	if end < start {
		return nil, 0, 0, fmt.Errorf("data %s: end before start", dc.Kind)
	}
	store, err := catalog.OpenPG(catalog.PGOption{ConnString: dc.Dsn})
	if err != nil {
		return nil, 0, 0, err
	}
	return store, start, end, nil
}

func resolveBarType(instrumentID model.InstrumentID, rawSpec string) (model.BarType, error) {
	spec, err := parseBarSpec(rawSpec)
	if err != nil {
		return model.BarType{}, err
	}
	return model.BarType{InstrumentID: instrumentID, Spec: spec}, nil
}

func resolveStrategies(configs []StrategyConfig) ([]strategy.Strategy, error) {
	strategies := make([]strategy.Strategy, 0, len(configs))
	for _, sc := range configs {
		switch sc.Kind {
		case "emacross":
			if sc.Tag == "" {
				return nil, fmt.Errorf("strategy %s: tag is empty", sc.Kind)
			}
			if sc.FastPeriod <= 0 || sc.SlowPeriod <= sc.FastPeriod {
				return nil, fmt.Errorf("strategy %s: want 0 < fastPeriod < slowPeriod", sc.Tag)
			}
			barType, err := resolveBarType(model.NewInstrumentID(sc.Symbol, model.Venue(sc.Venue)), sc.BarSpec)
			if err != nil {
				return nil, fmt.Errorf("strategy %s: %w", sc.Tag, err)
			}
			size, err := parseDecimal(sc.TradeSize, "tradeSize")
			if err != nil {
				return nil, fmt.Errorf("strategy %s: %w", sc.Tag, err)
			}
			strategies = append(strategies,
				strategy.NewEMACross(barType, sc.FastPeriod, sc.SlowPeriod, size, sc.Tag))
		default:
			return nil, fmt.Errorf("unknown strategy kind: %q", sc.Kind)
		}
	}
	return strategies, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is empty", field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func parseOptionalDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, nil
	}
	return parseDecimal(raw, field)
}
