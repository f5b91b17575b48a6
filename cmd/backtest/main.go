package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/internal/monitoring"
	"github.com/quantforge/backtest-engine/internal/runner"
	"github.com/quantforge/backtest-engine/pkg/data"
	"github.com/quantforge/backtest-engine/pkg/reporting"
	"github.com/quantforge/backtest-engine/pkg/types"
)

const (
	AppName    = "backtest"
	AppVersion = "1.0.0"

	DefaultInitialBalance = 10000.0
	DefaultCommission     = 0.0005 // 0.05%
)

func main() {
	flags := NewBacktestFlags()
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *flags.ShowVersion {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		return
	}
	if *flags.ListIDs {
		PrintStrategies()
		return
	}
	if err := flags.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	if err := godotenv.Load(*flags.EnvFile); err != nil {
		log.Debug().Str("file", *flags.EnvFile).Msg("no environment file loaded")
	}

	if *flags.MetricsAddr != "" {
		go serveMetrics(log, *flags.MetricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	series, err := loadSeries(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load data")
	}
	log.Info().
		Str("symbol", series.Symbol()).
		Str("interval", string(series.Timeframe())).
		Int("bars", series.Len()).
		Msg("data loaded")

	set, err := ResolveParams(*flags.Strategy, *flags.Params)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid parameters")
	}

	cfg := backtest.Config{
		StrategyID:     *flags.Strategy,
		Params:         set,
		InitialBalance: *flags.Balance,
		CommissionRate: *flags.Commission,
		OrderQty:       *flags.OrderQty,
	}

	runs := runner.New(log)
	runID, err := runs.Submit(ctx, series, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to submit run")
	}

	final, err := runs.Wait(ctx, runID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed waiting for run")
	}
	switch final.Status {
	case runner.StatusCancelled:
		log.Warn().Str("run_id", runID).Msg("run cancelled, discarding partial results")
		return
	case runner.StatusFailed:
		log.Fatal().Str("run_id", runID).Str("error", final.Error).Msg("run failed")
	}

	console := reporting.NewConsoleReporter()
	console.PrintResult(final.Result)
	if *flags.ShowTrades {
		console.PrintTrades(final.Result)
	}

	if !*flags.ConsoleOnly {
		if err := writeReports(flags, final.Result); err != nil {
			log.Fatal().Err(err).Msg("failed to write reports")
		}
	}
}

func loadSeries(flags *BacktestFlags) (*types.PriceSeries, error) {
	provider := data.NewCSVProvider()
	series, err := provider.Load(*flags.DataFile, *flags.Symbol, types.Timeframe(*flags.Interval))
	if err != nil {
		return nil, err
	}
	if *flags.Period != "" {
		period, err := time.ParseDuration(*flags.Period)
		if err != nil {
			period, err = parseDayPeriod(*flags.Period)
			if err != nil {
				return nil, err
			}
		}
		return data.FilterByPeriod(series, period)
	}
	return series, nil
}

// parseDayPeriod accepts day-denominated periods like 30d which
// time.ParseDuration does not understand.
func parseDayPeriod(raw string) (time.Duration, error) {
	var days int
	if _, err := fmt.Sscanf(raw, "%dd", &days); err != nil || days <= 0 {
		return 0, fmt.Errorf("invalid period %q (use 7d, 30d, 180d)", raw)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func writeReports(flags *BacktestFlags, result *backtest.Result) error {
	dir := *flags.OutputDir
	base := fmt.Sprintf("%s_%s", result.StrategyID, time.Now().Format("20060102_150405"))

	if err := reporting.WriteTradesCSV(result, filepath.Join(dir, base+"_trades.csv")); err != nil {
		return err
	}
	if err := reporting.WriteEquityCSV(result, filepath.Join(dir, base+"_equity.csv")); err != nil {
		return err
	}
	if *flags.WriteXLSX {
		if err := reporting.WriteResultXLSX(result, filepath.Join(dir, base+".xlsx")); err != nil {
			return err
		}
	}
	if *flags.WriteJSON {
		if err := reporting.WriteJSON(result, filepath.Join(dir, base+".json")); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(log zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
