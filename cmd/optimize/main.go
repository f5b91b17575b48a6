// Command optimize searches a strategy's parameter space with a
// genetic algorithm and optionally re-checks the best parameters on a
// held-out portion of the data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/pkg/data"
	"github.com/quantforge/backtest-engine/pkg/optimization"
	"github.com/quantforge/backtest-engine/pkg/reporting"
	"github.com/quantforge/backtest-engine/pkg/types"
	"github.com/quantforge/backtest-engine/pkg/validation"
)

const (
	AppName    = "optimize"
	AppVersion = "1.0.0"

	DefaultInitialBalance = 10000.0
	DefaultCommission     = 0.0005
)

type optimizeFlags struct {
	dataFile *string
	symbol   *string
	interval *string

	strategy   *string
	balance    *float64
	commission *float64
	orderQty   *float64
	fitness    *string

	population *int
	gens       *int
	mutation   *float64
	crossover  *float64
	elites     *int
	tournament *int
	seed       *int64
	workers    *int

	holdout *float64

	outputDir   *string
	consoleOnly *bool
	envFile     *string
	showVersion *bool
}

func newOptimizeFlags() *optimizeFlags {
	return &optimizeFlags{
		dataFile: flag.String("data", "", "Path to historical OHLCV CSV file (required)"),
		symbol:   flag.String("symbol", "BTCUSDT", "Instrument symbol"),
		interval: flag.String("interval", "1h", "Bar interval (1m, 5m, 15m, 1h, 4h, 1d)"),

		strategy:   flag.String("strategy", "dca", "Strategy id to optimize"),
		balance:    flag.Float64("balance", DefaultInitialBalance, "Initial balance"),
		commission: flag.Float64("commission", DefaultCommission, "Commission rate per fill"),
		orderQty:   flag.Float64("qty", 1, "Position size in units"),
		fitness:    flag.String("fitness", "return", "Objective: return, profit, sharpe or winrate"),

		population: flag.Int("population", 24, "Population size"),
		gens:       flag.Int("generations", 15, "Number of generations"),
		mutation:   flag.Float64("mutation", optimization.DefaultMutationRate, "Per-gene mutation rate"),
		crossover:  flag.Float64("crossover", optimization.DefaultCrossoverRate, "Crossover rate"),
		elites:     flag.Int("elites", optimization.DefaultEliteCount, "Elite individuals kept unchanged"),
		tournament: flag.Int("tournament", optimization.DefaultTournamentSize, "Tournament size"),
		seed:       flag.Int64("seed", time.Now().UnixNano(), "Random seed (fixed seed gives reproducible searches)"),
		workers:    flag.Int("workers", 0, "Parallel evaluations (0 = GOMAXPROCS)"),

		holdout: flag.Float64("holdout", 0, "Hold out this trailing fraction of data for out-of-sample checking (e.g. 0.3)"),

		outputDir:   flag.String("output-dir", "results", "Directory for report files"),
		consoleOnly: flag.Bool("console-only", false, "Console output only, no files"),
		envFile:     flag.String("env", ".env", "Environment file path"),
		showVersion: flag.Bool("version", false, "Show version information"),
	}
}

func main() {
	flags := newOptimizeFlags()
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *flags.showVersion {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		return
	}
	if *flags.dataFile == "" {
		log.Fatal().Msg("-data is required")
	}
	if !types.Timeframe(*flags.interval).Valid() {
		log.Fatal().Str("interval", *flags.interval).Msg("invalid interval")
	}

	if err := godotenv.Load(*flags.envFile); err != nil {
		log.Debug().Str("file", *flags.envFile).Msg("no environment file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	series, err := data.NewCSVProvider().Load(*flags.dataFile, *flags.symbol, types.Timeframe(*flags.interval))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load data")
	}

	train := series
	var test *types.PriceSeries
	if *flags.holdout > 0 {
		train, test, err = validation.SplitByRatio(series, 1-*flags.holdout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to split data")
		}
		log.Info().Int("train_bars", train.Len()).Int("test_bars", test.Len()).Msg("holdout split")
	}

	fitness, err := resolveFitness(*flags.fitness)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid fitness")
	}

	mgr, err := optimization.NewManager(optimization.Config{
		PopulationSize: *flags.population,
		Generations:    *flags.gens,
		MutationRate:   *flags.mutation,
		CrossoverRate:  *flags.crossover,
		EliteCount:     *flags.elites,
		TournamentSize: *flags.tournament,
		Seed:           *flags.seed,
		Workers:        *flags.workers,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid optimizer config")
	}

	req := optimization.Request{
		StrategyID:     *flags.strategy,
		InitialBalance: *flags.balance,
		CommissionRate: *flags.commission,
		OrderQty:       *flags.orderQty,
		Fitness:        fitness,
		Progress: func(stats optimization.GenerationStats, _ []*optimization.Individual) {
			log.Info().
				Int("generation", stats.Generation).
				Float64("best", stats.BestFitness).
				Float64("average", stats.AverageFitness).
				Msg("generation complete")
		},
	}

	// The submission context carries the interrupt signal; waiting on a
	// fresh context still yields the terminal snapshot after a cancel.
	id, err := mgr.Submit(ctx, train, req)
	if err != nil {
		log.Fatal().Err(err).Msg("optimization rejected")
	}
	run, err := mgr.Wait(context.Background(), id)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to await optimization")
	}

	switch run.Status {
	case optimization.StatusCancelled:
		log.Warn().Msg("interrupted, reporting best result so far")
	case optimization.StatusFailed:
		log.Fatal().Str("error", run.Error).Msg("optimization failed")
	}
	report := run.Report
	if report == nil || report.Best == nil {
		log.Fatal().Msg("nothing evaluated before interruption")
	}

	console := reporting.NewConsoleReporter()
	console.PrintOptimization(report)

	if test != nil {
		printHoldout(ctx, log, console, flags, test, report)
	}

	if !*flags.consoleOnly {
		dir := *flags.outputDir
		base := fmt.Sprintf("%s_ga_%s", *flags.strategy, time.Now().Format("20060102_150405"))
		if err := reporting.WriteHistoryCSV(report, filepath.Join(dir, base+"_history.csv")); err != nil {
			log.Fatal().Err(err).Msg("failed to write history")
		}
		if err := reporting.WriteJSON(report, filepath.Join(dir, base+".json")); err != nil {
			log.Fatal().Err(err).Msg("failed to write report")
		}
	}
}

// printHoldout replays the best parameters on the held-out data.
func printHoldout(ctx context.Context, log zerolog.Logger, console *reporting.ConsoleReporter, flags *optimizeFlags, test *types.PriceSeries, report *optimization.Report) {
	result, err := backtest.Run(ctx, test, backtest.Config{
		StrategyID:     *flags.strategy,
		Params:         report.Best.Params,
		InitialBalance: *flags.balance,
		CommissionRate: *flags.commission,
		OrderQty:       *flags.orderQty,
	})
	if err != nil {
		log.Error().Err(err).Msg("holdout evaluation failed")
		return
	}
	fmt.Println("\nOut-of-sample performance:")
	console.PrintResult(result)
}

func resolveFitness(name string) (optimization.Fitness, error) {
	switch name {
	case "return":
		return optimization.TotalReturnFitness, nil
	case "profit":
		return optimization.NetProfitFitness, nil
	case "sharpe":
		return optimization.SharpeFitness, nil
	case "winrate":
		return optimization.WinRateFitness, nil
	default:
		return nil, fmt.Errorf("unknown fitness %q (valid: return, profit, sharpe, winrate)", name)
	}
}
