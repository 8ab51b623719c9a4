package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStore supplies recorded trade history for replay.
type OrderStore interface {
	// OrdersUntil returns every order of symbol from the first record through
	// the end of year, ascending by (trade_date, sequence_id).
	OrdersUntil(ctx context.Context, symbol string, year int) ([]Order, error)

	// SymbolsWithTaxableActivity returns the symbols whose orders can realize
	// gains in year: any SELL dated in year, plus any BUY dated in year on a
	// symbol that has an earlier SELL (a potential short close).
	SymbolsWithTaxableActivity(ctx context.Context, year int) ([]string, error)
}

// RateProvider resolves the historical exchange rate from a trade's native
// currency into the reporting currency, keyed by the trade date.
type RateProvider interface {
	Rate(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error)
}
