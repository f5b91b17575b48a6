// Package backtest simulates a strategy over a historical price series
// and scores the outcome. Simulations are deterministic: the same
// series, strategy and parameters always produce the same result.
package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/quantforge/backtest-engine/internal/strategy"
	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// Config describes one simulation.
type Config struct {
	StrategyID     string     `json:"strategy_id"`
	Params         params.Set `json:"params"`
	InitialBalance float64    `json:"initial_balance"`
	CommissionRate float64    `json:"commission_rate"` // fraction of notional per fill
	OrderQty       float64    `json:"order_qty"`       // units per position, defaults to 1
}

// Validate checks the config fields the simulator interprets itself.
// Strategy parameters are validated separately against their domains.
func (c Config) Validate() error {
	if c.StrategyID == "" {
		return fmt.Errorf("%w: strategy id is required", ErrInvalidConfig)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive, got %.4f", ErrInvalidConfig, c.InitialBalance)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("%w: commission rate must be in [0, 1), got %.4f", ErrInvalidConfig, c.CommissionRate)
	}
	if c.OrderQty < 0 {
		return fmt.Errorf("%w: order quantity must not be negative, got %.4f", ErrInvalidConfig, c.OrderQty)
	}
	return nil
}

// position is the simulator's open-position state.
type position struct {
	side       Side
	entryBar   int
	entryPrice float64
	qty        float64
	commission float64

	// peak tracks the best price seen since entry for trailing stops:
	// the highest high for longs, the lowest low for shorts.
	peak float64
}

func (p *position) unrealized(price float64) float64 {
	if p.side == SideShort {
		return (p.entryPrice - price) * p.qty
	}
	return (price - p.entryPrice) * p.qty
}

// Run simulates the configured strategy over the series. The context is
// checked between bars; a cancelled run returns the context error and
// no partial result.
func Run(ctx context.Context, series *types.PriceSeries, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if series == nil || series.Len() < 2 {
		return nil, ErrEmptySeries
	}

	strat, err := strategy.New(cfg.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := params.Validate(strat.Domains(), cfg.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err := strat.Bind(cfg.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	qty := cfg.OrderQty
	if qty == 0 {
		qty = 1
	}
	stopLoss := cfg.Params.Number(strategy.ParamStopLoss, 0) / 100
	takeProfit := cfg.Params.Number(strategy.ParamTakeProfit, 0) / 100
	trailing := cfg.Params.Number(strategy.ParamTrailingStop, 0) / 100

	bars := series.Bars()
	balance := cfg.InitialBalance
	var pos *position
	trades := make([]Trade, 0)
	equity := make([]EquityPoint, 0, len(bars))

	closeAt := func(bar int, price float64, reason ExitReason) {
		fee := cfg.CommissionRate * price * pos.qty
		pnl := pos.unrealized(price) - pos.commission - fee
		balance += pnl
		trades = append(trades, Trade{
			Side:       pos.side,
			EntryTime:  bars[pos.entryBar].Timestamp,
			ExitTime:   bars[bar].Timestamp,
			EntryPrice: pos.entryPrice,
			ExitPrice:  price,
			Quantity:   pos.qty,
			PnL:        pnl,
			Commission: pos.commission + fee,
			ExitReason: reason,
		})
		pos = nil
	}

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Intrabar risk checks run against the bar's extremes before the
		// strategy sees the close, so a stop inside the bar fires even if
		// the close recovered. Stop-loss wins over take-profit when both
		// levels fall inside one bar.
		if pos != nil {
			if pos.side == SideLong {
				if stopLoss > 0 {
					stop := pos.entryPrice * (1 - stopLoss)
					if bar.Low <= stop {
						closeAt(i, stop, ExitStopLoss)
					}
				}
				if pos != nil && trailing > 0 {
					pos.peak = math.Max(pos.peak, bar.High)
					stop := pos.peak * (1 - trailing)
					if bar.Low <= stop {
						closeAt(i, stop, ExitTrailingStop)
					}
				}
				if pos != nil && takeProfit > 0 {
					target := pos.entryPrice * (1 + takeProfit)
					if bar.High >= target {
						closeAt(i, target, ExitTakeProfit)
					}
				}
			} else {
				if stopLoss > 0 {
					stop := pos.entryPrice * (1 + stopLoss)
					if bar.High >= stop {
						closeAt(i, stop, ExitStopLoss)
					}
				}
				if pos != nil && trailing > 0 {
					pos.peak = math.Min(pos.peak, bar.Low)
					stop := pos.peak * (1 + trailing)
					if bar.High >= stop {
						closeAt(i, stop, ExitTrailingStop)
					}
				}
				if pos != nil && takeProfit > 0 {
					target := pos.entryPrice * (1 - takeProfit)
					if bar.Low <= target {
						closeAt(i, target, ExitTakeProfit)
					}
				}
			}
		}

		sig := strat.OnBar(series.Window(i), pos != nil)

		switch sig {
		case strategy.SignalEnterLong, strategy.SignalEnterShort:
			// The final bar force-closes everything, so nothing new
			// opens there.
			if pos == nil && i < len(bars)-1 {
				side := SideLong
				if sig == strategy.SignalEnterShort {
					side = SideShort
				}
				pos = &position{
					side:       side,
					entryBar:   i,
					entryPrice: bar.Close,
					qty:        qty,
					commission: cfg.CommissionRate * bar.Close * qty,
					peak:       bar.Close,
				}
			}
		case strategy.SignalExit:
			if pos != nil {
				closeAt(i, bar.Close, ExitSignal)
			}
		}

		if pos != nil && i == len(bars)-1 {
			closeAt(i, bar.Close, ExitEndOfData)
		}

		point := EquityPoint{Timestamp: bar.Timestamp, Equity: balance}
		if pos != nil {
			point.Equity += pos.unrealized(bar.Close) - pos.commission
		}
		equity = append(equity, point)
	}

	return &Result{
		StrategyID:     cfg.StrategyID,
		Params:         cfg.Params.Clone(),
		InitialBalance: cfg.InitialBalance,
		FinalBalance:   balance,
		Trades:         trades,
		Equity:         equity,
		Metrics:        ComputeMetrics(trades, equity, cfg.InitialBalance, series.Timeframe().BarsPerYear()),
	}, nil
}
