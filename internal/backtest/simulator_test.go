package backtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/backtest-engine/internal/strategy"
	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// scripted replays a fixed signal per bar index, with the simulator's
// risk parameters declared so tests can exercise stops directly.
type scripted struct {
	signals []strategy.Signal
}

func (s *scripted) Name() string             { return "scripted" }
func (s *scripted) Domains() []params.Domain { return strategy.RiskDomains() }
func (s *scripted) Bind(params.Set) error    { return nil }

func (s *scripted) OnBar(window []types.OHLCV, _ bool) strategy.Signal {
	idx := len(window) - 1
	if idx < len(s.signals) {
		return s.signals[idx]
	}
	return strategy.SignalHold
}

var scriptSeq atomic.Int64

func registerScript(t *testing.T, signals ...strategy.Signal) string {
	t.Helper()
	id := fmt.Sprintf("scripted-%d", scriptSeq.Add(1))
	strategy.Register(id, func() strategy.Strategy { return &scripted{signals: signals} })
	return id
}

func noRisk() params.Set {
	return params.Set{
		strategy.ParamStopLoss:     0.0,
		strategy.ParamTakeProfit:   0.0,
		strategy.ParamTrailingStop: 0.0,
	}
}

func hourlySeries(t *testing.T, bars []types.OHLCV) *types.PriceSeries {
	t.Helper()
	series, err := types.NewPriceSeries("TESTUSDT", types.Timeframe1h, bars)
	require.NoError(t, err)
	return series
}

func flatBars(closes ...float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = types.OHLCV{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func TestRun_TwoBarLongProfit(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	series := hourlySeries(t, flatBars(100, 110))

	result, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, SideLong, trade.Side)
	assert.Equal(t, 100.0, trade.EntryPrice)
	assert.Equal(t, 110.0, trade.ExitPrice)
	assert.Equal(t, 10.0, trade.PnL)
	assert.Equal(t, ExitEndOfData, trade.ExitReason)

	assert.Equal(t, 1010.0, result.FinalBalance)
	assert.InDelta(t, 1.0, result.Metrics.TotalReturnPct, 1e-9)

	require.Len(t, result.Equity, 2)
	assert.Equal(t, 1000.0, result.Equity[0].Equity)
	assert.Equal(t, 1010.0, result.Equity[1].Equity)
}

func TestRun_Deterministic(t *testing.T) {
	id := registerScript(t,
		strategy.SignalEnterLong, strategy.SignalHold, strategy.SignalExit,
		strategy.SignalEnterShort, strategy.SignalHold)
	series := hourlySeries(t, flatBars(100, 104, 102, 101, 99, 103))
	cfg := Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 5000,
		CommissionRate: 0.001,
	}

	first, err := Run(context.Background(), series, cfg)
	require.NoError(t, err)
	second, err := Run(context.Background(), series, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_EmptySeries(t *testing.T) {
	id := registerScript(t)

	// Fewer than two bars cannot be simulated.
	for _, bars := range [][]types.OHLCV{nil, flatBars(100)} {
		_, err := Run(context.Background(), hourlySeries(t, bars), Config{
			StrategyID:     id,
			Params:         noRisk(),
			InitialBalance: 1000,
		})
		assert.ErrorIs(t, err, ErrEmptySeries)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	series := hourlySeries(t, flatBars(100, 101))

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing strategy", Config{InitialBalance: 1000}},
		{"zero balance", Config{StrategyID: "rsi", InitialBalance: 0}},
		{"negative balance", Config{StrategyID: "rsi", InitialBalance: -5}},
		{"commission out of range", Config{StrategyID: "rsi", InitialBalance: 1000, CommissionRate: 1.5}},
		{"unknown strategy", Config{StrategyID: "nope", InitialBalance: 1000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(context.Background(), series, tc.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRun_InvalidParameters(t *testing.T) {
	id := registerScript(t)
	series := hourlySeries(t, flatBars(100, 101))

	_, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         params.Set{}, // risk params missing
		InitialBalance: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	bad := noRisk()
	bad[strategy.ParamStopLoss] = 999.0
	_, err = Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         bad,
		InitialBalance: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestRun_IntrabarStopLoss(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	bars := flatBars(100, 99)
	// The second bar wicks below the stop but closes back above it.
	bars[1].Low = 93
	bars[1].High = 100

	p := noRisk()
	p[strategy.ParamStopLoss] = 5.0

	result, err := Run(context.Background(), hourlySeries(t, bars), Config{
		StrategyID:     id,
		Params:         p,
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].ExitReason)
	assert.Equal(t, 95.0, result.Trades[0].ExitPrice)
	assert.Equal(t, -5.0, result.Trades[0].PnL)
}

func TestRun_IntrabarTakeProfit(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	bars := flatBars(100, 104)
	bars[1].High = 106

	p := noRisk()
	p[strategy.ParamTakeProfit] = 5.0

	result, err := Run(context.Background(), hourlySeries(t, bars), Config{
		StrategyID:     id,
		Params:         p,
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitTakeProfit, result.Trades[0].ExitReason)
	assert.Equal(t, 105.0, result.Trades[0].ExitPrice)
	assert.Equal(t, 5.0, result.Trades[0].PnL)
}

func TestRun_StopLossWinsOverTakeProfitSameBar(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	bars := flatBars(100, 100)
	// Both levels sit inside the second bar's range.
	bars[1].Low = 94
	bars[1].High = 106

	p := noRisk()
	p[strategy.ParamStopLoss] = 5.0
	p[strategy.ParamTakeProfit] = 5.0

	result, err := Run(context.Background(), hourlySeries(t, bars), Config{
		StrategyID:     id,
		Params:         p,
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].ExitReason)
}

func TestRun_TrailingStopFollowsPeak(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	bars := flatBars(100, 118, 112)
	bars[1].High = 120
	bars[1].Low = 115
	bars[2].High = 116
	bars[2].Low = 110

	p := noRisk()
	p[strategy.ParamTrailingStop] = 5.0

	result, err := Run(context.Background(), hourlySeries(t, bars), Config{
		StrategyID:     id,
		Params:         p,
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	// Peak 120 puts the trail at 114, hit on the third bar.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitTrailingStop, result.Trades[0].ExitReason)
	assert.Equal(t, 114.0, result.Trades[0].ExitPrice)
	assert.Equal(t, 14.0, result.Trades[0].PnL)
}

func TestRun_ShortPosition(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterShort, strategy.SignalHold, strategy.SignalExit)
	series := hourlySeries(t, flatBars(100, 96, 92))

	result, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, SideShort, trade.Side)
	assert.Equal(t, ExitSignal, trade.ExitReason)
	assert.Equal(t, 8.0, trade.PnL)
	assert.Equal(t, 1008.0, result.FinalBalance)
}

func TestRun_NoEntryOnFinalBar(t *testing.T) {
	id := registerScript(t, strategy.SignalHold, strategy.SignalEnterLong)
	series := hourlySeries(t, flatBars(100, 95))

	result, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 1000.0, result.FinalBalance)
}

func TestRun_CommissionCharged(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	series := hourlySeries(t, flatBars(100, 110))

	result, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
		CommissionRate: 0.001,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	// 0.1 on the 100 entry plus 0.11 on the 110 exit.
	assert.InDelta(t, 0.21, trade.Commission, 1e-9)
	assert.InDelta(t, 9.79, trade.PnL, 1e-9)
	assert.InDelta(t, 1009.79, result.FinalBalance, 1e-9)
}

func TestRun_CancelledContext(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	series := hourlySeries(t, flatBars(100, 105, 110))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestRun_EquityTracksOpenPosition(t *testing.T) {
	id := registerScript(t, strategy.SignalEnterLong)
	series := hourlySeries(t, flatBars(100, 105, 110))

	result, err := Run(context.Background(), series, Config{
		StrategyID:     id,
		Params:         noRisk(),
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	require.Len(t, result.Equity, 3)
	assert.Equal(t, 1000.0, result.Equity[0].Equity)
	assert.Equal(t, 1005.0, result.Equity[1].Equity) // unrealized
	assert.Equal(t, 1010.0, result.Equity[2].Equity) // force-closed
}
