package backtest

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrInvalidConfig marks a malformed simulation config (non-positive
	// balance, bad commission rate, unknown strategy and so on).
	ErrInvalidConfig = errors.New("invalid backtest config")

	// ErrInvalidParameters marks a parameter set rejected by the
	// strategy's declared domains.
	ErrInvalidParameters = errors.New("invalid strategy parameters")

	// ErrEmptySeries is returned when a simulation is started on a
	// series too short to simulate (fewer than two bars).
	ErrEmptySeries = errors.New("empty price series")
)

// SimulationFault wraps an unexpected failure inside a run, keeping the
// bar index where it happened.
type SimulationFault struct {
	Bar int
	Err error
}

func (f *SimulationFault) Error() string {
	return fmt.Sprintf("simulation fault at bar %d: %v", f.Bar, f.Err)
}

func (f *SimulationFault) Unwrap() error { return f.Err }
