// Package strategy defines the trading strategy contract and the
// built-in strategies the engine ships with. Strategies are pure state
// machines over bar windows: given the bars seen so far they emit an
// entry or exit signal, and the simulator owns all execution concerns
// (position accounting, stops, commissions).
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// ErrUnknown is returned when a strategy id has no registered factory.
var ErrUnknown = errors.New("unknown strategy")

// Signal is a strategy's decision for the current bar.
type Signal int

const (
	SignalHold Signal = iota
	SignalEnterLong
	SignalEnterShort
	SignalExit
)

func (s Signal) String() string {
	switch s {
	case SignalHold:
		return "HOLD"
	case SignalEnterLong:
		return "ENTER_LONG"
	case SignalEnterShort:
		return "ENTER_SHORT"
	case SignalExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Strategy evaluates entry/exit rules bar by bar. Implementations may
// keep state between OnBar calls; a fresh instance is created per run,
// so state never leaks across runs.
type Strategy interface {
	// Name returns the registry id of the strategy.
	Name() string

	// Domains declares the strategy's tunable parameters.
	Domains() []params.Domain

	// Bind captures a validated parameter set before the first OnBar
	// call. It must not be called twice on the same instance.
	Bind(p params.Set) error

	// OnBar evaluates the window of bars seen so far (the last element
	// is the current bar) and returns a signal. The window is read-only.
	OnBar(window []types.OHLCV, inPosition bool) Signal
}

// Reserved parameter names the simulator interprets directly. A value
// of 0 disables the corresponding check.
const (
	ParamStopLoss     = "stop_loss_pct"
	ParamTakeProfit   = "take_profit_pct"
	ParamTrailingStop = "trailing_stop_pct"
)

// RiskDomains returns the shared stop-loss / take-profit / trailing-stop
// domains strategies append to their own.
func RiskDomains() []params.Domain {
	return []params.Domain{
		params.Number(ParamStopLoss, 0, 20, 0.1),
		params.Number(ParamTakeProfit, 0, 20, 0.1),
		params.Number(ParamTrailingStop, 0, 20, 0.1),
	}
}

// Factory creates a fresh strategy instance.
type Factory func() Strategy

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a strategy factory under the given id. Registering the
// same id twice panics; it indicates a wiring bug.
func Register(id string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[id]; dup {
		panic(fmt.Sprintf("strategy %q registered twice", id))
	}
	registry[id] = f
}

// New creates a fresh instance of the named strategy.
func New(id string) (Strategy, error) {
	registryMu.RLock()
	f, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return f(), nil
}

// Domains returns the parameter domains of the named strategy.
func Domains(id string) ([]params.Domain, error) {
	s, err := New(id)
	if err != nil {
		return nil, err
	}
	return s.Domains(), nil
}

// IDs lists the registered strategy ids in sorted order.
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func init() {
	Register("rsi", func() Strategy { return NewRSIStrategy() })
	Register("grid", func() Strategy { return NewGridStrategy() })
	Register("dca", func() Strategy { return NewDCAStrategy() })
}
