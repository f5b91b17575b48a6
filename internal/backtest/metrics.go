package backtest

import "math"

// ComputeMetrics derives summary statistics from completed trades and
// the per-bar equity curve. It is a pure function: no trades and no
// equity points yield all-zero metrics, never NaN.
func ComputeMetrics(trades []Trade, equity []EquityPoint, initialBalance, barsPerYear float64) Metrics {
	var m Metrics

	m.TotalTrades = len(trades)
	for _, tr := range trades {
		m.NetProfit += tr.PnL
		if tr.PnL > 0 {
			m.WinningTrades++
			m.GrossProfit += tr.PnL
		} else if tr.PnL < 0 {
			m.LosingTrades++
			m.GrossLoss += -tr.PnL
		}
	}
	if m.TotalTrades > 0 {
		m.WinRatePct = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	default:
		// No losing trades: the gross profit itself is the factor,
		// keeping the value finite and comparable.
		m.ProfitFactor = m.GrossProfit
	}

	if len(equity) > 0 && initialBalance > 0 {
		final := equity[len(equity)-1].Equity
		m.TotalReturnPct = (final - initialBalance) / initialBalance * 100
	}

	m.SharpeRatio = sharpe(equity, barsPerYear)
	m.MaxDrawdownPct = maxDrawdown(equity)
	return m
}

// sharpe annualizes the mean/stddev ratio of per-bar equity returns.
// Fewer than two points or a flat curve give 0.
func sharpe(equity []EquityPoint, barsPerYear float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			return 0
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

// maxDrawdown is the largest peak-to-trough decline of the equity
// curve, as a percentage of the running peak.
func maxDrawdown(equity []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
