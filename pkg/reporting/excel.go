package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/quantforge/backtest-engine/internal/backtest"
)

// WriteResultXLSX writes a full simulation workbook with Summary,
// Trades and Equity sheets.
func WriteResultXLSX(result *backtest.Result, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const tradesSheet = "Trades"
	const equitySheet = "Equity"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(equitySheet); err != nil {
		return err
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := writeSummarySheet(fx, summarySheet, result, headerStyle); err != nil {
		return err
	}
	if err := writeTradesSheet(fx, tradesSheet, result, headerStyle); err != nil {
		return err
	}
	if err := writeEquitySheet(fx, equitySheet, result, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeSummarySheet(fx *excelize.File, sheet string, result *backtest.Result, headerStyle int) error {
	m := result.Metrics
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Strategy", result.StrategyID},
		{"Initial Balance", result.InitialBalance},
		{"Final Balance", result.FinalBalance},
		{"Total Return %", m.TotalReturnPct},
		{"Max Drawdown %", m.MaxDrawdownPct},
		{"Sharpe Ratio", m.SharpeRatio},
		{"Profit Factor", m.ProfitFactor},
		{"Win Rate %", m.WinRatePct},
		{"Total Trades", m.TotalTrades},
		{"Winning Trades", m.WinningTrades},
		{"Losing Trades", m.LosingTrades},
		{"Gross Profit", m.GrossProfit},
		{"Gross Loss", m.GrossLoss},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", headerStyle); err != nil {
		return err
	}

	// Parameters below the metrics block.
	offset := len(rows) + 2
	cell, err := excelize.CoordinatesToCellName(1, offset)
	if err != nil {
		return err
	}
	paramHeader := []interface{}{"Parameter", "Value"}
	if err := fx.SetSheetRow(sheet, cell, &paramHeader); err != nil {
		return err
	}
	for i, name := range result.Params.Names() {
		cell, err := excelize.CoordinatesToCellName(1, offset+1+i)
		if err != nil {
			return err
		}
		row := []interface{}{name, fmt.Sprintf("%v", result.Params[name])}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeTradesSheet(fx *excelize.File, sheet string, result *backtest.Result, headerStyle int) error {
	header := []interface{}{
		"Side", "Entry Time", "Exit Time", "Entry Price", "Exit Price",
		"Quantity", "PnL", "Commission", "Exit Reason",
	}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "I1", headerStyle); err != nil {
		return err
	}
	for i, t := range result.Trades {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			string(t.Side),
			t.EntryTime.Format(timestampLayout),
			t.ExitTime.Format(timestampLayout),
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.PnL,
			t.Commission,
			string(t.ExitReason),
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeEquitySheet(fx *excelize.File, sheet string, result *backtest.Result, headerStyle int) error {
	header := []interface{}{"Timestamp", "Equity"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", headerStyle); err != nil {
		return err
	}
	for i, p := range result.Equity {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{p.Timestamp.Format(timestampLayout), p.Equity}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
