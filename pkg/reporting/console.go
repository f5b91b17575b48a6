package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/pkg/optimization"
)

// ConsoleReporter renders results as terminal tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter writes to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo writes to the given writer, mainly for tests.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintResult renders the metrics summary of one simulation.
func (r *ConsoleReporter) PrintResult(result *backtest.Result) {
	m := result.Metrics

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("Backtest Results - %s", result.StrategyID))
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Initial Balance", fmt.Sprintf("$%.2f", result.InitialBalance)},
		{"Final Balance", fmt.Sprintf("$%.2f", result.FinalBalance)},
		{"Total Return", fmt.Sprintf("%.2f%%", m.TotalReturnPct)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdownPct)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Total Trades", m.TotalTrades},
		{"Winning Trades", fmt.Sprintf("%d (%.1f%%)", m.WinningTrades, m.WinRatePct)},
		{"Losing Trades", m.LosingTrades},
	})
	t.Render()
}

// PrintTrades renders the trade list.
func (r *ConsoleReporter) PrintTrades(result *backtest.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Trades")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Side", "Entry", "Exit", "Entry Price", "Exit Price", "PnL", "Reason"})
	for i, tr := range result.Trades {
		t.AppendRow(table.Row{
			i + 1,
			tr.Side,
			tr.EntryTime.Format(timestampLayout),
			tr.ExitTime.Format(timestampLayout),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			fmt.Sprintf("%.4f", tr.ExitPrice),
			fmt.Sprintf("%.4f", tr.PnL),
			tr.ExitReason,
		})
	}
	t.Render()
}

// PrintOptimization renders the best individual and the generation
// history of an optimization.
func (r *ConsoleReporter) PrintOptimization(report *optimization.Report) {
	best := table.NewWriter()
	best.SetOutputMirror(r.out)
	best.SetTitle(fmt.Sprintf("Best Parameters - %s", report.StrategyID))
	best.SetStyle(table.StyleRounded)
	if report.Best != nil {
		best.AppendRow(table.Row{"Fitness", fmt.Sprintf("%.4f", report.Best.Fitness)})
		for _, name := range report.Best.Params.Names() {
			best.AppendRow(table.Row{name, fmt.Sprintf("%v", report.Best.Params[name])})
		}
	}
	best.AppendFooter(table.Row{"Evaluations", report.Evaluated})
	best.Render()

	history := table.NewWriter()
	history.SetOutputMirror(r.out)
	history.SetTitle("Generation History")
	history.SetStyle(table.StyleRounded)
	history.AppendHeader(table.Row{"Gen", "Best", "Average"})
	for _, g := range report.History {
		history.AppendRow(table.Row{
			g.Generation,
			fmt.Sprintf("%.4f", g.BestFitness),
			fmt.Sprintf("%.4f", g.AverageFitness),
		})
	}
	history.Render()
}
