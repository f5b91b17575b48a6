// Package optimization searches a strategy's parameter space with a
// genetic algorithm. The search is deterministic per seed: population
// initialization, selection, crossover and mutation all draw from one
// seeded source, and parallel evaluation never touches it.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/internal/monitoring"
	"github.com/quantforge/backtest-engine/internal/strategy"
	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// ErrInvalidConfig marks a malformed optimizer configuration.
var ErrInvalidConfig = errors.New("invalid optimizer config")

// Defaults applied by Config.withDefaults.
const (
	DefaultMutationRate   = 0.1
	DefaultCrossoverRate  = 0.85
	DefaultEliteCount     = 1
	DefaultTournamentSize = 2
)

// Config tunes the genetic algorithm.
type Config struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`   // per-gene resample probability
	CrossoverRate  float64 `json:"crossover_rate"`  // probability a child mixes both parents
	EliteCount     int     `json:"elite_count"`     // best individuals copied unchanged
	TournamentSize int     `json:"tournament_size"` // selection pressure
	Seed           int64   `json:"seed"`
	Workers        int     `json:"workers"` // parallel fitness evaluations, 0 = GOMAXPROCS
}

func (c Config) withDefaults() Config {
	if c.MutationRate == 0 {
		c.MutationRate = DefaultMutationRate
	}
	if c.CrossoverRate == 0 {
		c.CrossoverRate = DefaultCrossoverRate
	}
	if c.EliteCount == 0 {
		c.EliteCount = DefaultEliteCount
	}
	if c.TournamentSize == 0 {
		c.TournamentSize = DefaultTournamentSize
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Validate checks the config after defaults are applied.
func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w: population size must be at least 2, got %d", ErrInvalidConfig, c.PopulationSize)
	}
	if c.Generations < 1 {
		return fmt.Errorf("%w: generations must be at least 1, got %d", ErrInvalidConfig, c.Generations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate must be in [0, 1], got %.4f", ErrInvalidConfig, c.MutationRate)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate must be in [0, 1], got %.4f", ErrInvalidConfig, c.CrossoverRate)
	}
	if c.EliteCount < 0 || c.EliteCount >= c.PopulationSize {
		return fmt.Errorf("%w: elite count must be below the population size, got %d", ErrInvalidConfig, c.EliteCount)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament size must be at least 1, got %d", ErrInvalidConfig, c.TournamentSize)
	}
	return nil
}

// Request describes what to optimize.
type Request struct {
	StrategyID     string
	Domains        []params.Domain // optional, defaults to the strategy's own
	InitialBalance float64
	CommissionRate float64
	OrderQty       float64
	Fitness        Fitness // optional, defaults to TotalReturnFitness

	// Progress, when set, is called after each generation with its stats
	// and the evaluated population sorted by descending fitness. The
	// slice is read-only and must not be retained past the call.
	Progress func(stats GenerationStats, population []*Individual)
}

// resolveDomains returns the domains the search runs over, defaulting
// to the strategy's own declaration.
func (req Request) resolveDomains() ([]params.Domain, error) {
	domains := req.Domains
	if domains == nil {
		var err error
		domains, err = strategy.Domains(req.StrategyID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: strategy %q has no tunable parameters", ErrInvalidConfig, req.StrategyID)
	}
	for _, d := range domains {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return domains, nil
}

// simConfig builds and validates the per-evaluation simulator config.
func (req Request) simConfig() (backtest.Config, error) {
	cfg := backtest.Config{
		StrategyID:     req.StrategyID,
		InitialBalance: req.InitialBalance,
		CommissionRate: req.CommissionRate,
		OrderQty:       req.OrderQty,
	}
	if err := cfg.Validate(); err != nil {
		return backtest.Config{}, err
	}
	return cfg, nil
}

// Optimizer runs genetic searches over strategy parameters.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// New validates the config and creates an optimizer.
func New(cfg Config, log zerolog.Logger) (*Optimizer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}, nil
}

// Run evolves parameter sets for the requested strategy against the
// series. Cancellation is cooperative: a cancelled context stops the
// search at the next checkpoint and the report still carries the best
// individual and history gathered so far, alongside the context error.
func (o *Optimizer) Run(ctx context.Context, series *types.PriceSeries, req Request) (*Report, error) {
	domains, err := req.resolveDomains()
	if err != nil {
		return nil, err
	}
	simCfg, err := req.simConfig()
	if err != nil {
		return nil, err
	}

	fitness := req.Fitness
	if fitness == nil {
		fitness = TotalReturnFitness
	}

	rng := rand.New(rand.NewSource(o.cfg.Seed))
	population := make([]*Individual, o.cfg.PopulationSize)
	for i := range population {
		population[i] = &Individual{Params: params.SampleSet(domains, rng)}
	}

	report := &Report{StrategyID: req.StrategyID}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := o.evaluate(ctx, series, simCfg, fitness, population, report); err != nil {
			return report, err
		}

		sort.Slice(population, func(i, j int) bool {
			return population[i].Fitness > population[j].Fitness
		})

		if report.Best == nil || population[0].Fitness > report.Best.Fitness {
			report.Best = population[0].clone()
		}
		report.Population = population

		stats := GenerationStats{
			Generation:     gen,
			BestFitness:    population[0].Fitness,
			AverageFitness: averageFitness(population),
		}
		report.History = append(report.History, stats)
		if req.Progress != nil {
			req.Progress(stats, population)
		}

		monitoring.RecordGeneration(req.StrategyID, report.Best.Fitness)
		o.log.Debug().
			Int("generation", gen).
			Float64("best", stats.BestFitness).
			Float64("average", stats.AverageFitness).
			Msg("generation complete")

		if gen < o.cfg.Generations-1 {
			population = o.breed(population, domains, rng)
		}
	}

	o.log.Info().
		Str("strategy", req.StrategyID).
		Float64("best_fitness", report.Best.Fitness).
		Int("evaluated", report.Evaluated).
		Msg("optimization finished")
	return report, nil
}

// evaluate scores every unevaluated individual, at most Workers
// simulations at a time. Failed simulations score -Inf; only context
// cancellation aborts the generation.
func (o *Optimizer) evaluate(ctx context.Context, series *types.PriceSeries, simCfg backtest.Config, fitness Fitness, population []*Individual, report *Report) error {
	g, evalCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, ind := range population {
		if ind.evaluated {
			continue
		}
		ind := ind
		report.Evaluated++
		g.Go(func() error {
			cfg := simCfg
			cfg.Params = ind.Params
			result, err := backtest.Run(evalCtx, series, cfg)
			if err != nil {
				if evalCtx.Err() != nil {
					return evalCtx.Err()
				}
				monitoring.RecordError("optimizer_eval")
				ind.failed()
				return nil
			}
			ind.Fitness = fitness(result)
			ind.Result = result
			ind.evaluated = true
			return nil
		})
	}
	return g.Wait()
}

// breed builds the next generation: elites survive untouched, the rest
// come from tournament selection, crossover and mutation.
func (o *Optimizer) breed(population []*Individual, domains []params.Domain, rng *rand.Rand) []*Individual {
	next := make([]*Individual, len(population))
	for i := 0; i < o.cfg.EliteCount; i++ {
		next[i] = population[i].clone()
	}
	for i := o.cfg.EliteCount; i < len(population); i++ {
		p1 := tournamentSelect(population, o.cfg.TournamentSize, rng)
		p2 := tournamentSelect(population, o.cfg.TournamentSize, rng)
		child := crossover(p1, p2, domains, o.cfg.CrossoverRate, rng)
		mutate(child, domains, o.cfg.MutationRate, rng)
		next[i] = child
	}
	return next
}

func averageFitness(population []*Individual) float64 {
	var sum float64
	var n int
	for _, ind := range population {
		if math.IsInf(ind.Fitness, -1) {
			continue
		}
		sum += ind.Fitness
		n++
	}
	if n == 0 {
		return math.Inf(-1)
	}
	return sum / float64(n)
}
