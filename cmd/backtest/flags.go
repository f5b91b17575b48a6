package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantforge/backtest-engine/internal/strategy"
	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// BacktestFlags holds all command line flags for the backtest command.
type BacktestFlags struct {
	// Data
	DataFile  *string
	Symbol    *string
	Interval  *string
	Period    *string

	// Simulation
	Strategy   *string
	Params     *string
	Balance    *float64
	Commission *float64
	OrderQty   *float64

	// Output
	OutputDir   *string
	ConsoleOnly *bool
	WriteXLSX   *bool
	WriteJSON   *bool
	ShowTrades  *bool

	// Operations
	MetricsAddr *string
	EnvFile     *string

	ShowVersion *bool
	ListIDs     *bool
}

// NewBacktestFlags registers all backtest flags.
func NewBacktestFlags() *BacktestFlags {
	return &BacktestFlags{
		DataFile: flag.String("data", "", "Path to historical OHLCV CSV file (required)"),
		Symbol:   flag.String("symbol", "BTCUSDT", "Instrument symbol"),
		Interval: flag.String("interval", "1h", "Bar interval (1m, 5m, 15m, 1h, 4h, 1d)"),
		Period:   flag.String("period", "", "Limit data to trailing period (7d, 30d, 180d)"),

		Strategy:   flag.String("strategy", "dca", "Strategy id (see -list)"),
		Params:     flag.String("params", "", "Comma-separated parameter overrides (e.g. drop_pct=2.5,use_wick=true)"),
		Balance:    flag.Float64("balance", DefaultInitialBalance, "Initial balance"),
		Commission: flag.Float64("commission", DefaultCommission, "Commission rate per fill (0.0005 = 0.05%)"),
		OrderQty:   flag.Float64("qty", 1, "Position size in units"),

		OutputDir:   flag.String("output-dir", "results", "Directory for report files"),
		ConsoleOnly: flag.Bool("console-only", false, "Console output only, no files"),
		WriteXLSX:   flag.Bool("xlsx", false, "Also write an Excel workbook"),
		WriteJSON:   flag.Bool("json", false, "Also write the full result as JSON"),
		ShowTrades:  flag.Bool("trades", false, "Print the trade list"),

		MetricsAddr: flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)"),
		EnvFile:     flag.String("env", ".env", "Environment file path"),

		ShowVersion: flag.Bool("version", false, "Show version information"),
		ListIDs:     flag.Bool("list", false, "List available strategies and their parameters"),
	}
}

// Validate checks flag combinations before any work starts.
func (f *BacktestFlags) Validate() error {
	if *f.ShowVersion || *f.ListIDs {
		return nil
	}
	if *f.DataFile == "" {
		return fmt.Errorf("-data is required")
	}
	if !types.Timeframe(*f.Interval).Valid() {
		return fmt.Errorf("invalid interval %q (valid: 1m, 5m, 15m, 1h, 4h, 1d)", *f.Interval)
	}
	return nil
}

// ResolveParams builds the full parameter set: domain defaults overlaid
// with the -params overrides, typed according to each domain.
func ResolveParams(strategyID, overrides string) (params.Set, error) {
	domains, err := strategy.Domains(strategyID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]params.Domain, len(domains))
	for _, d := range domains {
		byName[d.Name] = d
	}

	set := params.DefaultSet(domains)
	if overrides == "" {
		return set, nil
	}

	for _, pair := range strings.Split(overrides, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("malformed parameter %q (want name=value)", pair)
		}
		name = strings.TrimSpace(name)
		raw = strings.TrimSpace(raw)

		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("strategy %q has no parameter %q", strategyID, name)
		}
		switch d.Kind {
		case params.KindNumber:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: invalid number %q", name, raw)
			}
			set[name] = v
		case params.KindBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: invalid bool %q", name, raw)
			}
			set[name] = v
		case params.KindEnum:
			set[name] = raw
		}
	}
	return set, nil
}

// PrintStrategies lists registered strategies with their domains.
func PrintStrategies() {
	for _, id := range strategy.IDs() {
		fmt.Printf("%s\n", id)
		domains, err := strategy.Domains(id)
		if err != nil {
			continue
		}
		for _, d := range domains {
			switch d.Kind {
			case params.KindNumber:
				fmt.Printf("  %-20s number  [%g, %g] step %g\n", d.Name, d.Min, d.Max, d.Step)
			case params.KindBool:
				fmt.Printf("  %-20s bool\n", d.Name)
			case params.KindEnum:
				fmt.Printf("  %-20s enum    %s\n", d.Name, strings.Join(d.Values, "|"))
			}
		}
	}
}
