package catalog

import (
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"backtest/internal/model"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PGOption defines connection options for a Postgres-backed catalog.
type PGOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// BarRow is the persisted form of a bar. Timestamps are UTC nanoseconds and
// prices are stored as text to keep decimal exactness through the driver.
type BarRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Instrument string `gorm:"index:idx_bars_lookup,priority:1"`
	BarSpec    string `gorm:"index:idx_bars_lookup,priority:2"`
	TsEvent    int64  `gorm:"index:idx_bars_lookup,priority:3"`
	Open       string
	High       string
	Low        string
	Close      string
	Volume     string
}

func (BarRow) TableName() string { return "bars" }

// QuoteRow is the persisted form of a top-of-book quote.
type QuoteRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Instrument string `gorm:"index:idx_quotes_lookup,priority:1"`
	TsEvent    int64  `gorm:"index:idx_quotes_lookup,priority:2"`
	Bid        string
	Ask        string
	BidSize    string
	AskSize    string
}

func (QuoteRow) TableName() string { return "quotes" }

// PGStore serves historical bars and quotes from Postgres. It is a read-only
// data source; runs never write back.
type PGStore struct {
	opt PGOption
	db  *gorm.DB
}

// OpenPG connects to Postgres and prepares the catalog schema.
func OpenPG(option PGOption) (*PGStore, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}
	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&BarRow{}, &QuoteRow{}); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return &PGStore{opt: option, db: db}, nil
}

// DB returns the underlying gorm handle.
func (s *PGStore) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close closes the underlying connection pool.
func (s *PGStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Bars loads bars of one type within [start, end] in ascending event-time
// order.
func (s *PGStore) Bars(barType model.BarType, start, end int64) ([]model.Bar, error) {
	var rows []BarRow
	err := s.db.
		Where("instrument = ? AND bar_spec = ? AND ts_event BETWEEN ? AND ?",
			barType.InstrumentID.String(), barType.Spec.String(), start, end).
		Order("ts_event asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", barType, err)
	}
	interval := barType.Spec.Interval().Nanoseconds()
	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := row.toBar(barType, interval)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// QuoteTicks loads quotes for an instrument within [start, end] in ascending
// event-time order.
func (s *PGStore) QuoteTicks(instrumentID model.InstrumentID, start, end int64) ([]model.QuoteTick, error) {
	var rows []QuoteRow
	err := s.db.
		Where("instrument = ? AND ts_event BETWEEN ? AND ?",
			instrumentID.String(), start, end).
		Order("ts_event asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query quotes %s: %w", instrumentID, err)
	}
	ticks := make([]model.QuoteTick, 0, len(rows))
	for _, row := range rows {
		tick, err := row.toTick(instrumentID)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (row BarRow) toBar(barType model.BarType, interval int64) (model.Bar, error) {
	var fields [5]decimal.Decimal
	for i, raw := range []string{row.Open, row.High, row.Low, row.Close, row.Volume} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Bar{}, fmt.Errorf("bar row %d: %w", row.ID, err)
		}
		fields[i] = d
	}
	bar := model.Bar{
		Type:    barType,
		Open:    fields[0],
		High:    fields[1],
		Low:     fields[2],
		Close:   fields[3],
		Volume:  fields[4],
		TsStart: row.TsEvent - interval,
		TsEvent: row.TsEvent,
		TsInit:  row.TsEvent,
	}
	if err := bar.Validate(); err != nil {
		return model.Bar{}, fmt.Errorf("bar row %d: %w", row.ID, err)
	}
	return bar, nil
}

func (row QuoteRow) toTick(instrumentID model.InstrumentID) (model.QuoteTick, error) {
	var fields [4]decimal.Decimal
	for i, raw := range []string{row.Bid, row.Ask, row.BidSize, row.AskSize} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.QuoteTick{}, fmt.Errorf("quote row %d: %w", row.ID, err)
		}
		fields[i] = d
	}
	return model.QuoteTick{
		InstrumentID: instrumentID,
		Bid:          fields[0],
		Ask:          fields[1],
		BidSize:      fields[2],
		AskSize:      fields[3],
		TsEvent:      row.TsEvent,
		TsInit:       row.TsEvent,
	}, nil
}

func (opt PGOption) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
