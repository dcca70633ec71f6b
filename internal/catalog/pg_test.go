package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest/internal/model"
)

func TestPGOptionDSN(t *testing.T) {
	tests := []struct {
		name string
		opt  PGOption
		want string
	}{
		{
			name: "conn string wins",
			opt:  PGOption{ConnString: "postgres://elsewhere:5432/x", Host: "ignored"},
			want: "postgres://elsewhere:5432/x",
		},
		{
			name: "defaults",
			opt:  PGOption{},
			want: "postgres://localhost:5432?sslmode=disable",
		},
		{
			name: "full",
			opt: PGOption{
				Host: "db", Port: 5433,
				User: "bt", Password: "secret",
				Database: "catalog", SSLMode: "require",
			},
			want: "postgres://bt:secret@db:5433/catalog?sslmode=require",
		},
		{
			name: "user without password",
			opt:  PGOption{User: "bt", Database: "catalog"},
			want: "postgres://bt@localhost:5432/catalog?sslmode=disable",
		},
		{
			name: "extra params",
			opt:  PGOption{Database: "catalog", Params: map[string]string{"timezone": "UTC"}},
			want: "postgres://localhost:5432/catalog?sslmode=disable&timezone=UTC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opt.dsn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBarRowConversion(t *testing.T) {
	barType := model.BarType{
		InstrumentID: model.NewInstrumentID("USD/JPY", "SIM"),
		Spec:         model.BarSpec{Step: 1, Aggregation: model.BarAggregationMinute, PriceType: model.PriceTypeBid},
	}
	interval := barType.Spec.Interval().Nanoseconds()

	row := BarRow{
		ID: 1, Instrument: "USD/JPY.SIM", BarSpec: barType.Spec.String(),
		TsEvent: 120_000_000_000,
		Open:    "90.100", High: "90.300", Low: "90.000", Close: "90.250", Volume: "1000",
	}
	bar, err := row.toBar(barType, interval)
	require.NoError(t, err)
	assert.Equal(t, barType, bar.Type)
	assert.Equal(t, row.TsEvent-interval, bar.TsStart)
	assert.Equal(t, row.TsEvent, bar.TsEvent)
	assert.Equal(t, "90.25", bar.Close.String())

	bad := row
	bad.High = "not-a-price"
	_, err = bad.toBar(barType, interval)
	assert.Error(t, err)

	// high below low fails bar validation
	inconsistent := row
	inconsistent.High = "89.000"
	_, err = inconsistent.toBar(barType, interval)
	assert.Error(t, err)
}

func TestQuoteRowConversion(t *testing.T) {
	id := model.NewInstrumentID("USD/JPY", "SIM")

	row := QuoteRow{
		ID: 7, Instrument: "USD/JPY.SIM", TsEvent: 42,
		Bid: "90.001", Ask: "90.004", BidSize: "1000000", AskSize: "500000",
	}
	tick, err := row.toTick(id)
	require.NoError(t, err)
	assert.Equal(t, id, tick.InstrumentID)
	assert.Equal(t, int64(42), tick.TsEvent)
	assert.Equal(t, "90.001", tick.Bid.String())
	assert.Equal(t, "500000", tick.AskSize.String())

	bad := row
	bad.Bid = ""
	_, err = bad.toTick(id)
	assert.Error(t, err)
}
