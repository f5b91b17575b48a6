package data

import (
	"fmt"
	"time"

	"github.com/quantforge/backtest-engine/pkg/types"
)

// FilterByPeriod returns the trailing portion of the series covering
// the given period, measured back from the last bar. A zero period
// returns the series unchanged.
func FilterByPeriod(series *types.PriceSeries, period time.Duration) (*types.PriceSeries, error) {
	if period <= 0 {
		return series, nil
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("cannot filter an empty series")
	}
	cutoff := series.Last().Timestamp.Add(-period)
	return series.Slice(cutoff, time.Time{})
}

// FilterByRange returns the sub-series inside [from, to]. Zero times
// leave the corresponding bound open.
func FilterByRange(series *types.PriceSeries, from, to time.Time) (*types.PriceSeries, error) {
	return series.Slice(from, to)
}
