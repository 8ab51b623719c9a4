package domain

import (
	"github.com/shopspring/decimal"
)

// OversellPolicy controls what happens when a sell exceeds the held long
// quantity.
type OversellPolicy string

const (
	// OversellAutoShort lets the excess open a short position.
	OversellAutoShort OversellPolicy = "auto-short"
	// OversellReject fails any sell that would drive the position negative.
	// Under this policy short positions cannot exist at all.
	OversellReject OversellPolicy = "reject"
)

// CloseResult reports the portion of an order that closed an opposite-sign
// position. AmountAtOpen is the pool-side value of the closed units: the
// average cost basis when closing a long, the average locked-in proceeds
// when closing a short. The caller pairs it against the order's own settled
// amount to realize a gain or loss.
type CloseResult struct {
	QuantityClosed decimal.Decimal
	AmountAtOpen   decimal.Decimal
}

// CostPool tracks the weighted-average cost of a single symbol across an
// arbitrary sequence of buys and sells. Quantity is signed: positive = long,
// negative = short. Cost carries the same sign convention (for a short it
// holds the negated proceeds received at open).
//
// Invariant: a flat pool (Quantity == 0) always has Cost == 0. The average
// is recomputed from the pair on demand, never cached.
type CostPool struct {
	symbol   string
	policy   OversellPolicy
	quantity decimal.Decimal
	cost     decimal.Decimal
}

// NewCostPool creates an empty pool for one symbol's replay.
func NewCostPool(symbol string, policy OversellPolicy) *CostPool {
	return &CostPool{
		symbol:   symbol,
		policy:   policy,
		quantity: decimal.Zero,
		cost:     decimal.Zero,
	}
}

// Symbol returns the symbol this pool tracks.
func (p *CostPool) Symbol() string { return p.symbol }

// Quantity returns the signed held quantity.
func (p *CostPool) Quantity() decimal.Decimal { return p.quantity }

// TotalCost returns the signed accumulated cost in reporting currency.
func (p *CostPool) TotalCost() decimal.Decimal { return p.cost }

// AvgCost returns the per-unit weighted average cost (or proceeds for a
// short). Zero when the pool is flat.
func (p *CostPool) AvgCost() decimal.Decimal {
	if p.quantity.IsZero() {
		return decimal.Zero
	}
	return p.cost.Div(p.quantity.Abs()).Abs()
}

// IsLong reports a positive position.
func (p *CostPool) IsLong() bool { return p.quantity.IsPositive() }

// IsShort reports a negative position.
func (p *CostPool) IsShort() bool { return p.quantity.IsNegative() }

// IsFlat reports an empty position.
func (p *CostPool) IsFlat() bool { return p.quantity.IsZero() }

// Buy applies a buy of qty units with the given settled cost in reporting
// currency. On a flat or long pool it accumulates and returns nil. On a
// short pool it closes up to qty units and returns the locked-in proceeds
// for the closed share; any excess opens a fresh long with the proportional
// share of settledCost.
func (p *CostPool) Buy(qty, settledCost decimal.Decimal) (*CloseResult, error) {
	if !qty.IsPositive() {
		return nil, &InvalidOrderError{Reason: "buy quantity must be positive, got " + qty.String()}
	}
	if settledCost.IsNegative() {
		return nil, &InvalidOrderError{Reason: "settled cost cannot be negative, got " + settledCost.String()}
	}

	if !p.quantity.IsNegative() {
		p.quantity = p.quantity.Add(qty)
		p.cost = p.cost.Add(settledCost)
		return nil, nil
	}

	held := p.quantity.Neg()
	closed := decimal.Min(qty, held)

	var atOpen decimal.Decimal
	if closed.Equal(held) {
		// Full close: remove the exact remaining cost so the flat
		// invariant holds without decimal dust.
		atOpen = p.cost.Neg()
		p.quantity = decimal.Zero
		p.cost = decimal.Zero
	} else {
		avg := p.cost.Div(p.quantity) // negative / negative: per-unit proceeds
		atOpen = avg.Mul(closed)
		p.quantity = p.quantity.Add(closed)
		p.cost = p.cost.Add(atOpen)
	}

	if remainder := qty.Sub(closed); remainder.IsPositive() {
		openCost := settledCost.Mul(remainder).Div(qty)
		p.quantity = p.quantity.Add(remainder)
		p.cost = p.cost.Add(openCost)
	}

	return &CloseResult{QuantityClosed: closed, AmountAtOpen: atOpen}, nil
}

// Sell applies a sell of qty units with the given settled proceeds in
// reporting currency. On a flat or short pool it extends the short (subject
// to the oversell policy) and returns nil. On a long pool it closes up to
// qty units and returns the average cost basis for the closed share; any
// excess opens a fresh short with the proportional share of settledProceeds.
func (p *CostPool) Sell(qty, settledProceeds decimal.Decimal) (*CloseResult, error) {
	if !qty.IsPositive() {
		return nil, &InvalidOrderError{Reason: "sell quantity must be positive, got " + qty.String()}
	}
	if settledProceeds.IsNegative() {
		return nil, &InvalidOrderError{Reason: "settled proceeds cannot be negative, got " + settledProceeds.String()}
	}
	if p.policy == OversellReject && qty.GreaterThan(p.quantity) {
		return nil, &PositionPolicyError{Symbol: p.symbol, Requested: qty, Held: p.quantity}
	}

	if !p.quantity.IsPositive() {
		p.quantity = p.quantity.Sub(qty)
		p.cost = p.cost.Sub(settledProceeds)
		return nil, nil
	}

	closed := decimal.Min(qty, p.quantity)

	var basis decimal.Decimal
	if closed.Equal(p.quantity) {
		basis = p.cost
		p.quantity = decimal.Zero
		p.cost = decimal.Zero
	} else {
		avg := p.cost.Div(p.quantity)
		basis = avg.Mul(closed)
		p.quantity = p.quantity.Sub(closed)
		p.cost = p.cost.Sub(basis)
	}

	if remainder := qty.Sub(closed); remainder.IsPositive() {
		openProceeds := settledProceeds.Mul(remainder).Div(qty)
		p.quantity = p.quantity.Sub(remainder)
		p.cost = p.cost.Sub(openProceeds)
	}

	return &CloseResult{QuantityClosed: closed, AmountAtOpen: basis}, nil
}
