package service

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"tax_go/internal/domain"
)

// ExportCSV writes the detail and summary files for a report into dir,
// returning their paths. Rows are already deterministic because the report
// itself is.
func ExportCSV(report *domain.Report, dir string) (string, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	detailPath := filepath.Join(dir, fmt.Sprintf("tax_detail_%d.csv", report.Year))
	if err := writeDetail(report, detailPath); err != nil {
		return "", "", err
	}

	summaryPath := filepath.Join(dir, fmt.Sprintf("tax_summary_%d.csv", report.Year))
	if err := writeSummary(report, summaryPath); err != nil {
		return "", "", err
	}

	return detailPath, summaryPath, nil
}

func writeDetail(report *domain.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cur := report.Currency
	header := []string{
		"order_id", "symbol", "date", "quantity_closed",
		"proceeds_" + cur, "cost_" + cur, "gain_loss_" + cur,
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, sr := range report.Symbols {
		for _, ev := range sr.Events {
			row := []string{
				ev.OrderID,
				ev.Symbol,
				ev.TradeDate.Format("2006-01-02"),
				ev.Quantity.String(),
				ev.Proceeds.StringFixed(2),
				ev.Cost.StringFixed(2),
				ev.GainLoss.StringFixed(2),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

func writeSummary(report *domain.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cur := report.Currency
	header := []string{"symbol", "proceeds_" + cur, "cost_" + cur, "gain_loss_" + cur, "status"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, sr := range report.Symbols {
		row := []string{
			sr.Symbol,
			sr.Proceeds.StringFixed(2),
			sr.Cost.StringFixed(2),
			sr.GainLoss.StringFixed(2),
			"ok",
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	for _, fail := range sortedFailures(report.Failed) {
		if err := w.Write([]string{fail.symbol, "", "", "", "failed: " + fail.reason}); err != nil {
			return err
		}
	}

	total := []string{
		"TOTAL",
		"",
		"",
		report.NetGain.StringFixed(2),
		fmt.Sprintf("tax_due=%s", report.TaxDue.StringFixed(2)),
	}
	if err := w.Write(total); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

type failureRow struct {
	symbol string
	reason string
}

func sortedFailures(failed map[string]string) []failureRow {
	rows := make([]failureRow, 0, len(failed))
	for sym, reason := range failed {
		rows = append(rows, failureRow{symbol: sym, reason: reason})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].symbol < rows[j].symbol })
	return rows
}
