// Package runner manages the lifecycle of backtest runs: submission,
// asynchronous execution, status polling, cancellation and result
// retrieval. Every run gets a unique id and moves through
// queued -> running -> completed | failed | cancelled; terminal states
// never change afterwards.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/internal/monitoring"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// ErrNotFound is returned for run ids the runner does not know.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Run is a point-in-time snapshot of one backtest run. Result is set
// only for completed runs; Error only for failed ones. A cancelled run
// carries neither, partial results are discarded.
type Run struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Config      backtest.Config  `json:"config"`
	Result      *backtest.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	FinishedAt  time.Time        `json:"finished_at,omitempty"`
}

type runState struct {
	run    Run
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner executes backtests asynchronously and tracks their state.
type Runner struct {
	mu   sync.RWMutex
	runs map[string]*runState
	log  zerolog.Logger
}

// New creates an empty runner.
func New(log zerolog.Logger) *Runner {
	return &Runner{
		runs: make(map[string]*runState),
		log:  log.With().Str("component", "runner").Logger(),
	}
}

// Submit validates the config and starts the run in the background,
// returning its id. Validation failures are reported synchronously and
// no run is created.
func (r *Runner) Submit(ctx context.Context, series *types.PriceSeries, cfg backtest.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if series == nil || series.Len() < 2 {
		return "", backtest.ErrEmptySeries
	}

	runCtx, cancel := context.WithCancel(ctx)
	state := &runState{
		run: Run{
			ID:          uuid.NewString(),
			Status:      StatusQueued,
			Config:      cfg,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.runs[state.run.ID] = state
	r.mu.Unlock()

	r.log.Info().
		Str("run_id", state.run.ID).
		Str("strategy", cfg.StrategyID).
		Str("symbol", series.Symbol()).
		Int("bars", series.Len()).
		Msg("run submitted")

	go r.execute(runCtx, state, series)
	return state.run.ID, nil
}

func (r *Runner) execute(ctx context.Context, state *runState, series *types.PriceSeries) {
	defer state.cancel()
	defer close(state.done)

	r.transition(state, func(run *Run) {
		run.Status = StatusRunning
		run.StartedAt = time.Now()
	})

	result, err := func() (result *backtest.Result, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				result = nil
				err = &backtest.SimulationFault{Bar: -1, Err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		return backtest.Run(ctx, series, state.run.Config)
	}()

	r.transition(state, func(run *Run) {
		run.FinishedAt = time.Now()
		switch {
		case err == nil:
			run.Status = StatusCompleted
			run.Result = result
		case errors.Is(err, context.Canceled):
			run.Status = StatusCancelled
		default:
			run.Status = StatusFailed
			run.Error = err.Error()
		}
	})

	snapshot, _ := r.Status(state.run.ID)
	elapsed := snapshot.FinishedAt.Sub(snapshot.StartedAt)
	monitoring.RecordRun(snapshot.Config.StrategyID, string(snapshot.Status), elapsed)

	event := r.log.Info()
	if snapshot.Status == StatusFailed {
		event = r.log.Error().Str("error", snapshot.Error)
		monitoring.RecordError("backtest_run")
	}
	event.
		Str("run_id", snapshot.ID).
		Str("status", string(snapshot.Status)).
		Dur("elapsed", elapsed).
		Msg("run finished")
}

func (r *Runner) transition(state *runState, apply func(*Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(&state.run)
}

// Status returns a snapshot of the run.
func (r *Runner) Status(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return state.run, nil
}

// Result returns the result of a completed run. Non-terminal and
// unsuccessful runs yield an error.
func (r *Runner) Result(id string) (*backtest.Result, error) {
	run, err := r.Status(id)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case StatusCompleted:
		return run.Result, nil
	case StatusFailed:
		return nil, fmt.Errorf("run %s failed: %s", id, run.Error)
	case StatusCancelled:
		return nil, fmt.Errorf("run %s was cancelled", id)
	default:
		return nil, fmt.Errorf("run %s still %s", id, run.Status)
	}
}

// Cancel requests cooperative cancellation. Cancelling a terminal run
// is a no-op; the terminal status is kept.
func (r *Runner) Cancel(id string) error {
	r.mu.RLock()
	state, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	state.cancel()
	return nil
}

// Wait blocks until the run reaches a terminal status or the context
// expires, returning the final snapshot.
func (r *Runner) Wait(ctx context.Context, id string) (Run, error) {
	r.mu.RLock()
	state, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	select {
	case <-state.done:
		return r.Status(id)
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
}

// List returns snapshots of all known runs, newest first.
func (r *Runner) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Run, 0, len(r.runs))
	for _, state := range r.runs {
		out = append(out, state.run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}
