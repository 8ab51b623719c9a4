package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tax_go/internal/domain"
	"tax_go/internal/infra"

	"github.com/shopspring/decimal"
)

// CalculatorOptions carries the policy knobs of a calculation run.
type CalculatorOptions struct {
	BaseCurrency   string
	TaxRate        decimal.Decimal
	OversellPolicy domain.OversellPolicy
	Workers        int // parallel symbol replays
}

// TaxCalculator replays the full chronological trade history of each relevant
// symbol through settlement and a fresh cost pool, collects the realized
// closes dated inside the target year, and aggregates the report.
//
// Replay within a symbol is strictly sequential; symbols share no pool state,
// so distinct symbols replay on a bounded worker pool. A failed symbol is
// recorded in the report and does not halt the others.
type TaxCalculator struct {
	store      domain.OrderStore
	settlement *SettlementCalculator
	opts       CalculatorOptions
	logger     *slog.Logger
}

// NewTaxCalculator wires a calculator over its collaborators.
func NewTaxCalculator(store domain.OrderStore, settlement *SettlementCalculator, opts CalculatorOptions) *TaxCalculator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &TaxCalculator{
		store:      store,
		settlement: settlement,
		opts:       opts,
		logger:     slog.Default().With("module", "tax_calculator"),
	}
}

// Calculate produces the capital-gains report for one fiscal year. The run
// is stateless: rerunning over unchanged stored history yields an identical
// report. A cancelled context returns an error, never a partial report.
func (c *TaxCalculator) Calculate(ctx context.Context, year int) (*domain.Report, error) {
	symbols, err := c.store.SymbolsWithTaxableActivity(ctx, year)
	if err != nil {
		return nil, err
	}

	c.logger.Info("starting calculation",
		slog.Int("year", year),
		slog.Int("symbols", len(symbols)),
	)

	perSymbol := make(map[string]domain.SymbolReport, len(symbols))
	failed := make(map[string]string)

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, c.opts.Workers)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			report, err := c.replaySymbol(ctx, sym, year)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[sym] = err.Error()
				infra.GlobalMetrics.RecordSymbol(true)
				c.logger.Error("symbol replay failed",
					slog.String("symbol", sym), slog.Any("error", err))
				return
			}
			perSymbol[sym] = report
			infra.GlobalMetrics.RecordSymbol(false)
		}(symbol)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return c.assemble(year, symbols, perSymbol, failed), nil
}

// replaySymbol runs one symbol's complete history through a fresh pool and
// returns its year-scoped events.
func (c *TaxCalculator) replaySymbol(ctx context.Context, symbol string, year int) (domain.SymbolReport, error) {
	report := domain.SymbolReport{
		Symbol:   symbol,
		Proceeds: decimal.Zero,
		Cost:     decimal.Zero,
		GainLoss: decimal.Zero,
	}

	orders, err := c.store.OrdersUntil(ctx, symbol, year)
	if err != nil {
		return report, err
	}

	if len(orders) > 0 && orders[0].Side == domain.SideSell && c.opts.OversellPolicy == domain.OversellAutoShort {
		// A history that opens with a sell is either a genuine short or a
		// sign of missing early records; the average cannot tell them apart.
		c.logger.Warn("history begins with a sell, cost basis may be incomplete",
			slog.String("symbol", symbol))
	}

	pool := domain.NewCostPool(symbol, c.opts.OversellPolicy)

	var lastDate time.Time
	var lastSeq int64
	for i, o := range orders {
		if err := o.Validate(); err != nil {
			return report, err
		}
		if i > 0 {
			if o.TradeDate.Before(lastDate) ||
				(o.TradeDate.Equal(lastDate) && o.SequenceID <= lastSeq) {
				return report, &domain.InvalidOrderError{
					OrderID: o.ID,
					Reason:  "non-monotonic replay order",
				}
			}
		}
		lastDate, lastSeq = o.TradeDate, o.SequenceID

		event, err := c.applyOrder(ctx, pool, o)
		if err != nil {
			return report, err
		}
		infra.GlobalMetrics.RecordOrder()

		if event != nil && o.TradeDate.Year() == year {
			report.Events = append(report.Events, *event)
			report.Proceeds = report.Proceeds.Add(event.Proceeds)
			report.Cost = report.Cost.Add(event.Cost)
			report.GainLoss = report.GainLoss.Add(event.GainLoss)
			infra.GlobalMetrics.RecordEvent()
		}
	}

	return report, nil
}

// applyOrder settles one order and feeds it through the pool. It returns a
// taxable event when the order closed an opposite position (the caller still
// year-scopes it); only the closing share of a spanning order contributes.
func (c *TaxCalculator) applyOrder(ctx context.Context, pool *domain.CostPool, o domain.Order) (*domain.TaxEvent, error) {
	switch o.Side {
	case domain.SideBuy:
		settled, err := c.settlement.SettleBuy(ctx, o)
		if err != nil {
			return nil, err
		}
		res, err := pool.Buy(o.Quantity, settled.Amount)
		if err != nil || res == nil {
			return nil, err
		}
		// Closing a short: proceeds were locked in at open, cost is this
		// order's settled cost for the closed share.
		return newEvent(o, res.QuantityClosed,
			res.AmountAtOpen,
			prorate(settled.Amount, res.QuantityClosed, o.Quantity),
		), nil

	case domain.SideSell:
		settled, err := c.settlement.SettleSell(ctx, o)
		if err != nil {
			return nil, err
		}
		res, err := pool.Sell(o.Quantity, settled.Amount)
		if err != nil || res == nil {
			return nil, err
		}
		// Closing a long: proceeds are this order's settled share, cost is
		// the pool's average basis for the closed units.
		return newEvent(o, res.QuantityClosed,
			prorate(settled.Amount, res.QuantityClosed, o.Quantity),
			res.AmountAtOpen,
		), nil
	}

	return nil, &domain.InvalidOrderError{OrderID: o.ID, Reason: "unknown side " + o.Side}
}

func newEvent(o domain.Order, closed, proceeds, cost decimal.Decimal) *domain.TaxEvent {
	return &domain.TaxEvent{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		TradeDate: o.TradeDate,
		Quantity:  closed,
		Proceeds:  proceeds,
		Cost:      cost,
		GainLoss:  proceeds.Sub(cost),
	}
}

// prorate returns the share of amount attributable to closed units out of
// total units. Exact when the order closes in full.
func prorate(amount, closed, total decimal.Decimal) decimal.Decimal {
	if closed.Equal(total) {
		return amount
	}
	return amount.Mul(closed).Div(total)
}

// assemble builds the deterministic final report.
func (c *TaxCalculator) assemble(year int, symbols []string, perSymbol map[string]domain.SymbolReport, failed map[string]string) *domain.Report {
	sort.Strings(symbols)

	report := &domain.Report{
		Year:        year,
		Currency:    c.opts.BaseCurrency,
		Failed:      failed,
		TotalGains:  decimal.Zero,
		TotalLosses: decimal.Zero,
	}

	for _, sym := range symbols {
		sr, ok := perSymbol[sym]
		if !ok {
			continue
		}
		report.Symbols = append(report.Symbols, sr)
		for _, ev := range sr.Events {
			if ev.GainLoss.IsNegative() {
				report.TotalLosses = report.TotalLosses.Add(ev.GainLoss.Abs())
			} else {
				report.TotalGains = report.TotalGains.Add(ev.GainLoss)
			}
		}
	}

	report.NetGain = report.TotalGains.Sub(report.TotalLosses)

	// Losses offset gains within the run but are not refundable.
	taxBase := report.NetGain
	if taxBase.IsNegative() {
		taxBase = decimal.Zero
	}
	report.TaxDue = taxBase.Mul(c.opts.TaxRate)

	c.logger.Info("calculation finished",
		slog.Int("year", year),
		slog.Int("symbols", len(report.Symbols)),
		slog.Int("failed", len(failed)),
		slog.String("net_gain", report.NetGain.String()),
		slog.String("tax_due", report.TaxDue.String()),
	)

	return report
}
