package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a single filled trade as recorded by the broker.
// Orders are immutable once stored; the replay engine never mutates them.
type Order struct {
	ID         string
	Symbol     string
	Side       string // "BUY", "SELL"
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Currency   string // ISO code of the trade's native currency
	Fees       FeeBreakdown
	TradeDate  time.Time
	SequenceID int64 // strictly increasing, tie-break for equal trade dates
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// FeeBreakdown maps fee names to amounts in the order's native currency.
// A nil breakdown means the fee data is unknown; an empty non-nil breakdown
// means fees are known to be zero. The two states settle differently.
type FeeBreakdown map[string]decimal.Decimal

// Known reports whether the fee data has been resolved (possibly to zero).
func (f FeeBreakdown) Known() bool { return f != nil }

// Total sums all fee entries. Zero for an empty (known-zero) breakdown.
func (f FeeBreakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range f {
		total = total.Add(amount)
	}
	return total
}

// Validate checks the fields the replay engine depends on.
func (o *Order) Validate() error {
	if o.Side != SideBuy && o.Side != SideSell {
		return &InvalidOrderError{OrderID: o.ID, Reason: "unknown side " + o.Side}
	}
	if !o.Quantity.IsPositive() {
		return &InvalidOrderError{OrderID: o.ID, Reason: "quantity must be positive, got " + o.Quantity.String()}
	}
	if o.Price.IsNegative() {
		return &InvalidOrderError{OrderID: o.ID, Reason: "price cannot be negative, got " + o.Price.String()}
	}
	if o.Currency == "" {
		return &InvalidOrderError{OrderID: o.ID, Reason: "missing currency"}
	}
	return nil
}
