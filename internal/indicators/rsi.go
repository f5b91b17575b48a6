package indicators

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a window is shorter than an
// indicator needs.
var ErrInsufficientData = errors.New("insufficient data for indicator")

// RSI computes the Relative Strength Index over closing prices.
type RSI struct {
	period int
}

// NewRSI creates an RSI indicator with the given averaging period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Period returns the configured averaging period.
func (r *RSI) Period() int { return r.period }

// Calculate returns the RSI of the last period+1 prices. At least
// period+1 prices are required to form period deltas.
func (r *RSI) Calculate(prices []float64) (float64, error) {
	if len(prices) < r.period+1 {
		return 0, ErrInsufficientData
	}

	var gainSum, lossSum float64
	for i := len(prices) - r.period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum += math.Abs(change)
		}
	}

	avgGain := gainSum / float64(r.period)
	avgLoss := lossSum / float64(r.period)
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
