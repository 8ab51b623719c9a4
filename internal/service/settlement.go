package service

import (
	"context"
	"fmt"
	"regexp"

	"tax_go/internal/domain"

	"github.com/shopspring/decimal"
)

// optionPattern matches broker option symbols: ticker, 6-digit expiry,
// call/put flag, strike, market suffix (e.g. NVDA251219P100000.US).
var optionPattern = regexp.MustCompile(`^[A-Z]+\d{6}[CP]\d+\.[A-Z]+$`)

var multiplierOption = decimal.NewFromInt(100)

// Multiplier returns the contract-size factor for a symbol: 100 for option
// contracts, 1 otherwise. Determined purely from the symbol string.
func Multiplier(symbol string) decimal.Decimal {
	if optionPattern.MatchString(symbol) {
		return multiplierOption
	}
	return decimal.NewFromInt(1)
}

// SettlementResult is the reporting-currency view of one order.
type SettlementResult struct {
	Amount    decimal.Decimal // total cost for a buy, total proceeds for a sell
	UnitPrice decimal.Decimal // reporting-currency amount per unit
	Rate      decimal.Decimal // exchange rate applied
}

// SettlementCalculator normalizes raw orders into reporting-currency amounts.
// It owns currency conversion and fee handling; cost-basis logic lives in the
// cost pool.
type SettlementCalculator struct {
	rates       domain.RateProvider
	requireFees bool
}

// NewSettlementCalculator creates a settlement calculator. With requireFees
// set, an order whose fee breakdown is unknown fails instead of settling
// fee-free.
func NewSettlementCalculator(rates domain.RateProvider, requireFees bool) *SettlementCalculator {
	return &SettlementCalculator{rates: rates, requireFees: requireFees}
}

// SettleBuy computes the total buy cost: (gross + fees) * rate.
func (s *SettlementCalculator) SettleBuy(ctx context.Context, o domain.Order) (SettlementResult, error) {
	return s.settle(ctx, o, decimal.NewFromInt(1))
}

// SettleSell computes the total sell proceeds: (gross - fees) * rate.
func (s *SettlementCalculator) SettleSell(ctx context.Context, o domain.Order) (SettlementResult, error) {
	return s.settle(ctx, o, decimal.NewFromInt(-1))
}

func (s *SettlementCalculator) settle(ctx context.Context, o domain.Order, feeSign decimal.Decimal) (SettlementResult, error) {
	fees, err := s.totalFees(o)
	if err != nil {
		return SettlementResult{}, err
	}

	// Rate is keyed by the order's own trade date, never "current".
	rate, err := s.rates.Rate(ctx, o.TradeDate, o.Currency)
	if err != nil {
		return SettlementResult{}, err
	}

	units := o.Quantity.Mul(Multiplier(o.Symbol))
	gross := units.Mul(o.Price)
	net := gross.Add(fees.Mul(feeSign))
	if net.IsNegative() {
		// Fees exceeding gross proceeds would flip the sign of the
		// settlement; surface it instead of feeding garbage to the pool.
		return SettlementResult{}, &domain.InvalidOrderError{
			OrderID: o.ID,
			Reason:  fmt.Sprintf("fees %s exceed gross %s", fees, gross),
		}
	}

	amount := net.Mul(rate)
	return SettlementResult{
		Amount:    amount,
		UnitPrice: amount.Div(units),
		Rate:      rate,
	}, nil
}

// totalFees resolves the order's fee total in its native currency, honoring
// the unknown vs known-zero distinction.
func (s *SettlementCalculator) totalFees(o domain.Order) (decimal.Decimal, error) {
	if !o.Fees.Known() {
		if s.requireFees {
			return decimal.Zero, &domain.FeeDataError{OrderID: o.ID}
		}
		return decimal.Zero, nil
	}
	return o.Fees.Total(), nil
}
