// Package validation splits price series into in-sample and
// out-of-sample portions so optimized parameters can be checked on data
// the optimizer never saw.
package validation

import (
	"fmt"

	"github.com/quantforge/backtest-engine/pkg/types"
)

// SplitByRatio splits the series into a leading train part holding
// ratio of the bars and a trailing test part with the rest. Both parts
// must end up non-empty.
func SplitByRatio(series *types.PriceSeries, ratio float64) (*types.PriceSeries, *types.PriceSeries, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("split ratio must be in (0, 1), got %.4f", ratio)
	}
	n := int(float64(series.Len()) * ratio)
	if n < 1 || n >= series.Len() {
		return nil, nil, fmt.Errorf("series too short to split %d bars at ratio %.2f", series.Len(), ratio)
	}

	cut := series.Bar(n).Timestamp
	train, err := series.Slice(series.First().Timestamp, series.Bar(n-1).Timestamp)
	if err != nil {
		return nil, nil, err
	}
	test, err := series.Slice(cut, series.Last().Timestamp)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
