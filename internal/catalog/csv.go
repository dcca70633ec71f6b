package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"backtest/internal/model"
)

// CSV layouts. Timestamps are RFC3339 or integer UTC nanoseconds; one record
// per line, header row required.
//
//	bars:   timestamp,open,high,low,close,volume
//	quotes: timestamp,bid,ask,bid_size,ask_size
//	trades: timestamp,price,size,aggressor,trade_id
const (
	barColumns   = 6
	quoteColumns = 5
	tradeColumns = 5
)

var (
	ErrNotTimeAggregated = errors.New("bar type is not time aggregated")
	ErrUnknownAggressor  = errors.New("unknown aggressor side")
)

// ReadBarsCSV loads bars of one type from a CSV file. Records must be in
// ascending timestamp order; the merger rejects regressions downstream.
func ReadBarsCSV(path string, barType model.BarType) ([]model.Bar, error) {
	interval := barType.Spec.Interval()
	if interval <= 0 {
		return nil, errors.Wrapf(ErrNotTimeAggregated, "%s", barType)
	}
	var bars []model.Bar
	err := readRows(path, barColumns, func(row []string) error {
		ts, err := ParseTimestamp(row[0])
		if err != nil {
			return err
		}
		var fields [5]decimal.Decimal
		for i, raw := range row[1:] {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrapf(err, "column %d", i+1)
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
			TsStart: ts - interval.Nanoseconds(),
			TsEvent: ts,
			TsInit:  ts,
		}
		if err := bar.Validate(); err != nil {
			return err
		}
		bars = append(bars, bar)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read bars %s", path)
	}
	return bars, nil
}

// ReadQuoteTicksCSV loads top-of-book quotes from a CSV file.
func ReadQuoteTicksCSV(path string, instrumentID model.InstrumentID) ([]model.QuoteTick, error) {
	var ticks []model.QuoteTick
	err := readRows(path, quoteColumns, func(row []string) error {
		ts, err := ParseTimestamp(row[0])
		if err != nil {
			return err
		}
		var fields [4]decimal.Decimal
		for i, raw := range row[1:] {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrapf(err, "column %d", i+1)
			}
			fields[i] = d
		}
		ticks = append(ticks, model.QuoteTick{
			InstrumentID: instrumentID,
			Bid:          fields[0],
			Ask:          fields[1],
			BidSize:      fields[2],
			AskSize:      fields[3],
			TsEvent:      ts,
			TsInit:       ts,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read quotes %s", path)
	}
	return ticks, nil
}

// ReadTradeTicksCSV loads executed trades from a CSV file.
func ReadTradeTicksCSV(path string, instrumentID model.InstrumentID) ([]model.TradeTick, error) {
	var ticks []model.TradeTick
	err := readRows(path, tradeColumns, func(row []string) error {
		ts, err := ParseTimestamp(row[0])
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(row[1])
		if err != nil {
			return errors.Wrap(err, "price")
		}
		size, err := decimal.NewFromString(row[2])
		if err != nil {
			return errors.Wrap(err, "size")
		}
		aggressor, err := parseAggressor(row[3])
		if err != nil {
			return err
		}
		ticks = append(ticks, model.TradeTick{
			InstrumentID: instrumentID,
			Price:        price,
			Size:         size,
			Aggressor:    aggressor,
			TradeID:      row[4],
			TsEvent:      ts,
			TsInit:       ts,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read trades %s", path)
	}
	return ticks, nil
}

func readRows(path string, columns int, apply func(row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = columns
	r.ReuseRecord = true

	// header
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return errors.New("empty file")
		}
		return err
	}
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		if err := apply(row); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
	}
}

// ParseTimestamp accepts Unix nanoseconds or RFC3339.
func ParseTimestamp(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, errors.Wrapf(err, "timestamp %q", raw)
	}
	return t.UnixNano(), nil
}

func parseAggressor(raw string) (model.AggressorSide, error) {
	switch raw {
	case "BUYER", "buyer", "B", "b":
		return model.AggressorSideBuyer, nil
	case "SELLER", "seller", "S", "s":
		return model.AggressorSideSeller, nil
	case "", "NONE", "none":
		return model.AggressorSideUnknown, nil
	default:
		return model.AggressorSideUnknown, errors.Wrapf(ErrUnknownAggressor, "%q", raw)
	}
}
