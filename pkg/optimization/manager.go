package optimization

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
	"github.com/quantforge/backtest-engine/pkg/types"
)

// ErrNotFound is returned for run ids the manager does not know.
var ErrNotFound = errors.New("optimization run not found")

// Status is the lifecycle state of an optimization run.
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

// Run is a point-in-time snapshot of one optimization run. History
// grows generation by generation while the run is in flight; Report is
// set once the run is terminal and, for a cancelled run, still carries
// the best individual found before the stop. Error is set only for
// failed runs.
type Run struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	StrategyID  string            `json:"strategy_id"`
	History     []GenerationStats `json:"history"`
	Report      *Report           `json:"report,omitempty"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	FinishedAt  time.Time         `json:"finished_at,omitempty"`
}

type managedRun struct {
	run    Run
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager executes optimizations asynchronously and tracks their state,
// so callers can poll progress while a search is in flight.
type Manager struct {
	mu   sync.RWMutex
	runs map[string]*managedRun
	opt  *Optimizer
	log  zerolog.Logger
}

// NewManager validates the optimizer config and creates an empty
// manager around it.
func NewManager(cfg Config, log zerolog.Logger) (*Manager, error) {
	opt, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Manager{
		runs: make(map[string]*managedRun),
		opt:  opt,
		log:  log.With().Str("component", "optimization_manager").Logger(),
	}, nil
}

// Submit validates the request and starts the search in the background,
// returning its id. Validation failures are reported synchronously and
// no run is created.
func (m *Manager) Submit(ctx context.Context, series *types.PriceSeries, req Request) (string, error) {
	if _, err := req.resolveDomains(); err != nil {
		return "", err
	}
	if _, err := req.simConfig(); err != nil {
		return "", err
	}
	if series == nil || series.Len() < 2 {
		return "", backtest.ErrEmptySeries
	}

	runCtx, cancel := context.WithCancel(ctx)
	state := &managedRun{
		run: Run{
			ID:          uuid.NewString(),
			Status:      StatusQueued,
			StrategyID:  req.StrategyID,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[state.run.ID] = state
	m.mu.Unlock()

	m.log.Info().
		Str("run_id", state.run.ID).
		Str("strategy", req.StrategyID).
		Int("bars", series.Len()).
		Msg("optimization submitted")

	go m.execute(runCtx, state, series, req)
	return state.run.ID, nil
}

func (m *Manager) execute(ctx context.Context, state *managedRun, series *types.PriceSeries, req Request) {
	defer state.cancel()
	defer close(state.done)

	m.transition(state, func(run *Run) {
		run.Status = StatusRunning
		run.StartedAt = time.Now()
	})

	next := req.Progress
	req.Progress = func(stats GenerationStats, population []*Individual) {
		m.transition(state, func(run *Run) {
			run.History = append(run.History, stats)
		})
		if next != nil {
			next(stats, population)
		}
	}

	report, err := m.opt.Run(ctx, series, req)

	m.transition(state, func(run *Run) {
		run.FinishedAt = time.Now()
		switch {
		case err == nil:
			run.Status = StatusCompleted
			run.Report = report
		case errors.Is(err, context.Canceled):
			// A stopped search keeps the best individual seen so far.
			run.Status = StatusCancelled
			run.Report = report
		default:
			run.Status = StatusFailed
			run.Error = err.Error()
		}
	})

	snapshot, _ := m.Status(state.run.ID)
	event := m.log.Info()
	if snapshot.Status == StatusFailed {
		event = m.log.Error().Str("error", snapshot.Error)
	}
	event.
		Str("run_id", snapshot.ID).
		Str("status", string(snapshot.Status)).
		Dur("elapsed", snapshot.FinishedAt.Sub(snapshot.StartedAt)).
		Msg("optimization finished")
}

func (m *Manager) transition(state *managedRun, apply func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&state.run)
}

// Status returns a snapshot of the run.
func (m *Manager) Status(id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return state.run, nil
}

// Cancel requests cooperative cancellation. Cancelling a terminal run
// is a no-op; the terminal status is kept.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	state, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	state.cancel()
	return nil
}

// Wait blocks until the run reaches a terminal status or the context
// expires, returning the final snapshot.
func (m *Manager) Wait(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	state, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	select {
	case <-state.done:
		return m.Status(id)
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
}

// List returns snapshots of all known runs, newest first.
func (m *Manager) List() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.runs))
	for _, state := range m.runs {
		out = append(out, state.run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}
