// Package reporting renders backtest and optimization results to the
// console and to CSV, XLSX and JSON files.
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quantforge/backtest-engine/internal/backtest"
	"github.com/quantforge/backtest-engine/pkg/optimization"
)

const timestampLayout = "2006-01-02 15:04:05"

func createWithDirs(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// WriteTradesCSV writes one row per completed trade.
func WriteTradesCSV(result *backtest.Result, path string) error {
	f, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"Side", "Entry_Time", "Exit_Time", "Entry_Price", "Exit_Price",
		"Quantity", "PnL", "Commission", "Exit_Reason",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range result.Trades {
		row := []string{
			string(t.Side),
			t.EntryTime.Format(timestampLayout),
			t.ExitTime.Format(timestampLayout),
			fmt.Sprintf("%.8f", t.EntryPrice),
			fmt.Sprintf("%.8f", t.ExitPrice),
			fmt.Sprintf("%.8f", t.Quantity),
			fmt.Sprintf("%.4f", t.PnL),
			fmt.Sprintf("%.4f", t.Commission),
			string(t.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteEquityCSV writes the per-bar equity curve.
func WriteEquityCSV(result *backtest.Result, path string) error {
	f, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Timestamp", "Equity"}); err != nil {
		return err
	}
	for _, p := range result.Equity {
		row := []string{
			p.Timestamp.Format(timestampLayout),
			fmt.Sprintf("%.4f", p.Equity),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteHistoryCSV writes the optimizer's per-generation fitness history.
func WriteHistoryCSV(report *optimization.Report, path string) error {
	f, err := createWithDirs(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Generation", "Best_Fitness", "Average_Fitness"}); err != nil {
		return err
	}
	for _, g := range report.History {
		row := []string{
			strconv.Itoa(g.Generation),
			fmt.Sprintf("%.6f", g.BestFitness),
			fmt.Sprintf("%.6f", g.AverageFitness),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
