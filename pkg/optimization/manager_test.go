package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/internal/strategy"
)

func TestManager_CompletedLifecycle(t *testing.T) {
	series := zigzagSeries(t, 100)
	mgr, err := NewManager(gaConfig(), zerolog.Nop())
	require.NoError(t, err)

	id, err := mgr.Submit(context.Background(), series, dcaRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := mgr.Wait(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	require.NotNil(t, run.Report)
	require.NotNil(t, run.Report.Best)
	assert.Len(t, run.History, gaConfig().Generations)
	assert.Equal(t, run.Report.History, run.History)

	// The terminal report carries the final population, best first.
	require.Len(t, run.Report.Population, gaConfig().PopulationSize)
	for i := 1; i < len(run.Report.Population); i++ {
		assert.GreaterOrEqual(t,
			run.Report.Population[i-1].Fitness, run.Report.Population[i].Fitness)
	}

	// Terminal snapshots are idempotent.
	again, err := mgr.Status(id)
	require.NoError(t, err)
	assert.Equal(t, run, again)
}

func TestManager_SubmitRejectsBadInput(t *testing.T) {
	mgr, err := NewManager(gaConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = mgr.Submit(context.Background(), zigzagSeries(t, 50), Request{
		StrategyID:     "nope",
		InitialBalance: 1000,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = mgr.Submit(context.Background(), zigzagSeries(t, 1), dcaRequest())
	assert.ErrorIs(t, err, backtest.ErrEmptySeries)

	// Rejected submissions never create a run.
	assert.Empty(t, mgr.List())
}

func TestManager_UnknownID(t *testing.T) {
	mgr, err := NewManager(gaConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = mgr.Status("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, mgr.Cancel("nope"), ErrNotFound)
	_, err = mgr.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_PollWhileRunningThenCancel(t *testing.T) {
	strategy.Register("mgr-test-slow", func() strategy.Strategy { return &slowHold{} })

	series := zigzagSeries(t, 200)
	cfg := gaConfig()
	cfg.Generations = 1000
	mgr, err := NewManager(cfg, zerolog.Nop())
	require.NoError(t, err)

	id, err := mgr.Submit(context.Background(), series, Request{
		StrategyID:     "mgr-test-slow",
		InitialBalance: 1000,
	})
	require.NoError(t, err)

	// The run is observable mid-flight from another goroutine.
	assert.Eventually(t, func() bool {
		run, err := mgr.Status(id)
		return err == nil && run.Status == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, mgr.Cancel(id))
	run, err := mgr.Wait(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, run.Status)
	assert.Empty(t, run.Error)
	assert.NotNil(t, run.Report)

	// Cancelling again keeps the terminal status.
	require.NoError(t, mgr.Cancel(id))
	again, err := mgr.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)
}
