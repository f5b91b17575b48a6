// Package data loads historical price series from local files. Parsing
// is strict: a malformed row fails the load instead of being silently
// skipped, so a backtest never runs on partially corrupted data.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/quantforge/backtest-engine/pkg/types"
)

// Provider loads a price series from a named source.
type Provider interface {
	Name() string
	Load(source, symbol string, timeframe types.Timeframe) (*types.PriceSeries, error)
}

// ColumnMapping describes where each OHLCV field lives in a CSV row.
type ColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	DateFormat   string // empty means unix milliseconds
	HasHeader    bool
}

// DefaultCSVFormat matches exchange kline exports:
// timestamp,open,high,low,close,volume with a unix-ms timestamp.
var DefaultCSVFormat = ColumnMapping{
	TimestampCol: 0,
	OpenCol:      1,
	HighCol:      2,
	LowCol:       3,
	CloseCol:     4,
	VolumeCol:    5,
	HasHeader:    true,
}

func (m ColumnMapping) minColumns() int {
	min := m.TimestampCol
	for _, c := range []int{m.OpenCol, m.HighCol, m.LowCol, m.CloseCol, m.VolumeCol} {
		if c > min {
			min = c
		}
	}
	return min + 1
}

// CSVProvider reads bars from CSV files.
type CSVProvider struct {
	format ColumnMapping
}

// NewCSVProvider uses the default column mapping.
func NewCSVProvider() *CSVProvider {
	return &CSVProvider{format: DefaultCSVFormat}
}

// NewCSVProviderWithFormat uses a custom column mapping.
func NewCSVProviderWithFormat(format ColumnMapping) *CSVProvider {
	return &CSVProvider{format: format}
}

func (p *CSVProvider) Name() string { return "csv" }

// Load reads the file and returns a validated series.
func (p *CSVProvider) Load(source, symbol string, timeframe types.Timeframe) (*types.PriceSeries, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	bars, err := p.parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return types.NewPriceSeries(symbol, timeframe, bars)
}

func (p *CSVProvider) parse(r io.Reader) ([]types.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	line := 0
	if p.format.HasHeader {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		line = 1
	}

	var bars []types.OHLCV
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		if len(record) < p.format.minColumns() {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, p.format.minColumns(), len(record))
		}

		bar, err := p.parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (p *CSVProvider) parseRow(record []string) (types.OHLCV, error) {
	var bar types.OHLCV

	ts, err := p.parseTimestamp(record[p.format.TimestampCol])
	if err != nil {
		return bar, err
	}
	bar.Timestamp = ts

	fields := []struct {
		name string
		col  int
		dst  *float64
	}{
		{"open", p.format.OpenCol, &bar.Open},
		{"high", p.format.HighCol, &bar.High},
		{"low", p.format.LowCol, &bar.Low},
		{"close", p.format.CloseCol, &bar.Close},
		{"volume", p.format.VolumeCol, &bar.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(record[f.col], 64)
		if err != nil {
			return bar, fmt.Errorf("invalid %s %q: %w", f.name, record[f.col], err)
		}
		*f.dst = v
	}
	return bar, nil
}

func (p *CSVProvider) parseTimestamp(raw string) (time.Time, error) {
	if p.format.DateFormat != "" {
		ts, err := time.Parse(p.format.DateFormat, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
		}
		return ts, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
