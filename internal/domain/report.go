package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxEvent is one realized close (full or partial) whose trade date falls
// inside the target fiscal year. GainLoss = Proceeds - Cost.
type TaxEvent struct {
	OrderID   string
	Symbol    string
	TradeDate time.Time
	Quantity  decimal.Decimal // units closed by this order
	Proceeds  decimal.Decimal // proceeds side, reporting currency
	Cost      decimal.Decimal // cost side, reporting currency
	GainLoss  decimal.Decimal
}

// SymbolReport aggregates the taxable events of one symbol.
type SymbolReport struct {
	Symbol   string
	Proceeds decimal.Decimal
	Cost     decimal.Decimal
	GainLoss decimal.Decimal
	Events   []TaxEvent
}

// Report is the final artifact of a calculate run. Symbols are sorted so a
// rerun over unchanged history produces an identical report.
type Report struct {
	Year        int
	Currency    string // reporting currency
	Symbols     []SymbolReport
	Failed      map[string]string // symbol -> failure reason
	TotalGains  decimal.Decimal
	TotalLosses decimal.Decimal
	NetGain     decimal.Decimal
	TaxDue      decimal.Decimal
}

// HasFailures reports whether any symbol's replay failed.
func (r *Report) HasFailures() bool { return len(r.Failed) > 0 }

// EventCount returns the total number of taxable events across all symbols.
func (r *Report) EventCount() int {
	n := 0
	for _, s := range r.Symbols {
		n += len(s.Events)
	}
	return n
}
