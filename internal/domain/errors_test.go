package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestErrorTaxonomy_Unwrap(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"RateUnavailable", &RateUnavailableError{Date: "2024-06-03", Currency: "USD"}, ErrRateUnavailable},
		{"FeeDataUnknown", &FeeDataError{OrderID: "o-1"}, ErrFeeDataUnknown},
		{"InvalidOrder", &InvalidOrderError{OrderID: "o-2", Reason: "unknown side X"}, ErrInvalidOrder},
		{"PositionPolicy", &PositionPolicyError{Symbol: "SPY.US", Requested: decimal.NewFromInt(20), Held: decimal.NewFromInt(10)}, ErrPositionPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("%v should unwrap to %v", tc.err, tc.sentinel)
			}
			if tc.err.Error() == "" {
				t.Error("error message must not be empty")
			}
		})
	}
}

func TestOrder_Validate(t *testing.T) {
	valid := Order{
		ID:       "o-1",
		Symbol:   "SPY.US",
		Side:     SideBuy,
		Quantity: decimal.NewFromInt(10),
		Price:    decimal.NewFromInt(500),
		Currency: "USD",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	t.Run("Unknown Side", func(t *testing.T) {
		o := valid
		o.Side = "HOLD"
		if err := o.Validate(); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("expected invalid order, got %v", err)
		}
	})

	t.Run("Non-Positive Quantity", func(t *testing.T) {
		o := valid
		o.Quantity = decimal.Zero
		if err := o.Validate(); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("expected invalid order, got %v", err)
		}
	})

	t.Run("Negative Price", func(t *testing.T) {
		o := valid
		o.Price = decimal.NewFromInt(-1)
		if err := o.Validate(); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("expected invalid order, got %v", err)
		}
	})

	t.Run("Missing Currency", func(t *testing.T) {
		o := valid
		o.Currency = ""
		if err := o.Validate(); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("expected invalid order, got %v", err)
		}
	})
}

func TestFeeBreakdown_States(t *testing.T) {
	var unknown FeeBreakdown
	if unknown.Known() {
		t.Error("nil breakdown must report unknown")
	}

	knownZero := FeeBreakdown{}
	if !knownZero.Known() {
		t.Error("empty breakdown must report known")
	}
	if !knownZero.Total().IsZero() {
		t.Error("empty breakdown must total zero")
	}

	fees := FeeBreakdown{
		"commission": decimal.NewFromFloat(1.5),
		"platform":   decimal.NewFromFloat(0.5),
	}
	if !fees.Total().Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected total 2, got %s", fees.Total())
	}
}
