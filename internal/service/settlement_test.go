package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tax_go/internal/domain"

	"github.com/shopspring/decimal"
)

// fixedRates returns the same rate for every (date, currency) pair.
type fixedRates struct {
	rate decimal.Decimal
}

func (f fixedRates) Rate(_ context.Context, _ time.Time, _ string) (decimal.Decimal, error) {
	return f.rate, nil
}

// failingRates always reports the rate as unavailable.
type failingRates struct{}

func (failingRates) Rate(_ context.Context, date time.Time, currency string) (decimal.Decimal, error) {
	return decimal.Zero, &domain.RateUnavailableError{
		Date:     date.Format("2006-01-02"),
		Currency: currency,
	}
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func usdOrder(symbol string, side string, qty, price string, fees domain.FeeBreakdown) domain.Order {
	return domain.Order{
		ID:        "o-1",
		Symbol:    symbol,
		Side:      side,
		Quantity:  dec(qty),
		Price:     dec(price),
		Currency:  "USD",
		Fees:      fees,
		TradeDate: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMultiplier(t *testing.T) {
	cases := []struct {
		symbol string
		want   int64
	}{
		{"AAPL.US", 1},
		{"SPY.US", 1},
		{"BRK.B.US", 1},
		{"1378.HK", 1},
		{"9988.HK", 1},
		{"AMD250718C130000.US", 100},
		{"AAPL260116C210000.US", 100},
		{"SPY250402P535000.US", 100},
		{"NVDA251219P100000.US", 100},
		// Leveraged ETFs end in C/P-free tickers and must not match.
		{"AMDL.US", 1},
		{"SOXL.US", 1},
	}

	for _, tc := range cases {
		if got := Multiplier(tc.symbol); !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Errorf("Multiplier(%s) = %s, want %d", tc.symbol, got, tc.want)
		}
	}
}

func TestSettleBuy(t *testing.T) {
	calc := NewSettlementCalculator(fixedRates{rate: dec("7.3")}, false)
	ctx := context.Background()

	t.Run("Stock Without Fees", func(t *testing.T) {
		order := usdOrder("SPY.US", domain.SideBuy, "30", "580", domain.FeeBreakdown{})
		result, err := calc.SettleBuy(ctx, order)
		if err != nil {
			t.Fatalf("SettleBuy failed: %v", err)
		}
		// (30 * 580 + 0) * 7.3 = 127020
		if !result.Amount.Equal(dec("127020")) {
			t.Errorf("expected 127020, got %s", result.Amount)
		}
		if !result.UnitPrice.Equal(dec("4234")) {
			t.Errorf("expected unit price 4234, got %s", result.UnitPrice)
		}
		if !result.Rate.Equal(dec("7.3")) {
			t.Errorf("expected rate 7.3, got %s", result.Rate)
		}
	})

	t.Run("Stock With Fees", func(t *testing.T) {
		fees := domain.FeeBreakdown{"commission": dec("5.0")}
		order := usdOrder("SPY.US", domain.SideBuy, "30", "580", fees)
		result, err := calc.SettleBuy(ctx, order)
		if err != nil {
			t.Fatalf("SettleBuy failed: %v", err)
		}
		// (30 * 580 + 5) * 7.3 = 127056.5
		if !result.Amount.Equal(dec("127056.5")) {
			t.Errorf("expected 127056.5, got %s", result.Amount)
		}
	})

	t.Run("Option Applies Multiplier", func(t *testing.T) {
		order := usdOrder("AMD250718C130000.US", domain.SideBuy, "4", "5.38", domain.FeeBreakdown{})
		result, err := calc.SettleBuy(ctx, order)
		if err != nil {
			t.Fatalf("SettleBuy failed: %v", err)
		}
		// 4 * 5.38 * 100 * 7.3 = 15709.6
		if !result.Amount.Equal(dec("15709.6")) {
			t.Errorf("expected 15709.6, got %s", result.Amount)
		}
	})
}

func TestSettleSell(t *testing.T) {
	calc := NewSettlementCalculator(fixedRates{rate: dec("7.3")}, false)
	ctx := context.Background()

	t.Run("Fees Reduce Proceeds", func(t *testing.T) {
		fees := domain.FeeBreakdown{"commission": dec("5.0")}
		order := usdOrder("SPY.US", domain.SideSell, "10", "600", fees)
		result, err := calc.SettleSell(ctx, order)
		if err != nil {
			t.Fatalf("SettleSell failed: %v", err)
		}
		// (10 * 600 - 5) * 7.3 = 43763.5
		if !result.Amount.Equal(dec("43763.5")) {
			t.Errorf("expected 43763.5, got %s", result.Amount)
		}
	})

	t.Run("Fees Exceeding Gross Fail", func(t *testing.T) {
		fees := domain.FeeBreakdown{"commission": dec("50")}
		order := usdOrder("SPY250402P535000.US", domain.SideSell, "1", "0.0001", fees)
		_, err := calc.SettleSell(ctx, order)
		if !errors.Is(err, domain.ErrInvalidOrder) {
			t.Errorf("expected invalid order, got %v", err)
		}
	})
}

func TestSettle_FeePolicy(t *testing.T) {
	ctx := context.Background()
	unknown := usdOrder("SPY.US", domain.SideBuy, "10", "100", nil)

	t.Run("Unknown Fees Rejected When Required", func(t *testing.T) {
		calc := NewSettlementCalculator(fixedRates{rate: dec("7.0")}, true)
		_, err := calc.SettleBuy(ctx, unknown)
		if !errors.Is(err, domain.ErrFeeDataUnknown) {
			t.Errorf("expected fee data unknown, got %v", err)
		}
	})

	t.Run("Unknown Fees Settle Fee-Free When Not Required", func(t *testing.T) {
		calc := NewSettlementCalculator(fixedRates{rate: dec("7.0")}, false)
		result, err := calc.SettleBuy(ctx, unknown)
		if err != nil {
			t.Fatalf("SettleBuy failed: %v", err)
		}
		if !result.Amount.Equal(dec("7000")) {
			t.Errorf("expected 7000, got %s", result.Amount)
		}
	})

	t.Run("Known Zero Fees Always Settle", func(t *testing.T) {
		calc := NewSettlementCalculator(fixedRates{rate: dec("7.0")}, true)
		order := usdOrder("SPY.US", domain.SideBuy, "10", "100", domain.FeeBreakdown{})
		result, err := calc.SettleBuy(ctx, order)
		if err != nil {
			t.Fatalf("known-zero fees must settle under require_fees: %v", err)
		}
		if !result.Amount.Equal(dec("7000")) {
			t.Errorf("expected 7000, got %s", result.Amount)
		}
	})
}

func TestSettle_RateErrorPropagates(t *testing.T) {
	calc := NewSettlementCalculator(failingRates{}, false)
	order := usdOrder("SPY.US", domain.SideBuy, "10", "100", domain.FeeBreakdown{})

	_, err := calc.SettleBuy(context.Background(), order)
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Errorf("expected rate unavailable, got %v", err)
	}
}
