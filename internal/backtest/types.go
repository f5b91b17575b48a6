package backtest

import (
	"time"

	"github.com/quantforge/backtest-engine/pkg/params"
)

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExitReason records what closed a trade.
type ExitReason string

const (
	ExitSignal       ExitReason = "signal"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Trade is one completed round trip.
type Trade struct {
	Side       Side       `json:"side"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	PnL        float64    `json:"pnl"`
	Commission float64    `json:"commission"`
	ExitReason ExitReason `json:"exit_reason"`
}

// EquityPoint is the account value after one bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Metrics summarizes a completed simulation.
type Metrics struct {
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalReturnPct float64 `json:"total_return_pct"`
	NetProfit      float64 `json:"net_profit"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Result holds everything a finished simulation produced.
type Result struct {
	StrategyID     string        `json:"strategy_id"`
	Params         params.Set    `json:"params"`
	InitialBalance float64       `json:"initial_balance"`
	FinalBalance   float64       `json:"final_balance"`
	Trades         []Trade       `json:"trades"`
	Equity         []EquityPoint `json:"equity"`
	Metrics        Metrics       `json:"metrics"`
}
