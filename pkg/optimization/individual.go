package optimization

import (
	"math"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/pkg/params"
)

// Individual is one candidate parameter set with its evaluated fitness.
// Unevaluated individuals have evaluated == false; individuals whose
// simulation failed carry a fitness of -Inf and stay in the population
// so selection pressure removes them.
type Individual struct {
	Params    params.Set       `json:"params"`
	Fitness   float64          `json:"fitness"`
	Result    *backtest.Result `json:"-"`
	evaluated bool
}

func (ind *Individual) clone() *Individual {
	return &Individual{
		Params:    ind.Params.Clone(),
		Fitness:   ind.Fitness,
		Result:    ind.Result,
		evaluated: ind.evaluated,
	}
}

// failed marks the individual as evaluated with the worst possible
// fitness.
func (ind *Individual) failed() {
	ind.Fitness = math.Inf(-1)
	ind.Result = nil
	ind.evaluated = true
}

// GenerationStats summarizes one completed generation. Average covers
// only successfully evaluated individuals so a single failed simulation
// does not drag it to -Inf.
type GenerationStats struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	AverageFitness float64 `json:"average_fitness"`
}

// Report is the outcome of an optimization: the best individual seen
// across all generations, the per-generation history, and the last
// fully evaluated population sorted by descending fitness. A cancelled
// optimization still reports everything evaluated up to that point.
type Report struct {
	StrategyID string            `json:"strategy_id"`
	Best       *Individual       `json:"best"`
	Population []*Individual     `json:"population"`
	History    []GenerationStats `json:"history"`
	Evaluated  int               `json:"evaluated"`
}

// Fitness scores a completed simulation. Higher is better.
type Fitness func(*backtest.Result) float64

// TotalReturnFitness is the default objective: the simulation's total
// return percentage.
func TotalReturnFitness(result *backtest.Result) float64 {
	return result.Metrics.TotalReturnPct
}

// NetProfitFitness maximizes absolute net profit.
func NetProfitFitness(result *backtest.Result) float64 {
	return result.Metrics.NetProfit
}

// SharpeFitness maximizes the annualized Sharpe ratio.
func SharpeFitness(result *backtest.Result) float64 {
	return result.Metrics.SharpeRatio
}

// WinRateFitness maximizes the percentage of winning trades.
func WinRateFitness(result *backtest.Result) float64 {
	return result.Metrics.WinRatePct
}
