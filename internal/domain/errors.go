package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the per-symbol failure taxonomy. Each structured error
// type below unwraps to one of these, so callers can classify failures with
// errors.Is without depending on the concrete type.
var (
	// ErrRateUnavailable is returned when no historical exchange rate exists
	// for a required (date, currency) pair and no fallback applies.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrFeeDataUnknown is returned when settlement requires fee data but the
	// order's fee breakdown is marked unresolved.
	ErrFeeDataUnknown = errors.New("fee data unknown")

	// ErrInvalidOrder is returned for malformed orders detected during replay.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrPositionPolicy is returned when an oversell is rejected by policy.
	ErrPositionPolicy = errors.New("position policy violation")
)

// RateUnavailableError identifies the missing (date, currency) pair.
type RateUnavailableError struct {
	Date     string // YYYY-MM-DD
	Currency string
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("no exchange rate for %s on %s", e.Currency, e.Date)
}

func (e *RateUnavailableError) Unwrap() error { return ErrRateUnavailable }

// FeeDataError identifies the order whose fee breakdown is unresolved.
type FeeDataError struct {
	OrderID string
}

func (e *FeeDataError) Error() string {
	return fmt.Sprintf("order %s: fee breakdown is unknown, not known-zero", e.OrderID)
}

func (e *FeeDataError) Unwrap() error { return ErrFeeDataUnknown }

// InvalidOrderError identifies a malformed order and the reason.
type InvalidOrderError struct {
	OrderID string
	Reason  string
}

func (e *InvalidOrderError) Error() string {
	if e.OrderID == "" {
		return "invalid order: " + e.Reason
	}
	return fmt.Sprintf("invalid order %s: %s", e.OrderID, e.Reason)
}

func (e *InvalidOrderError) Unwrap() error { return ErrInvalidOrder }

// PositionPolicyError reports a sell that exceeds the held quantity while
// the reject policy is active.
type PositionPolicyError struct {
	Symbol    string
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *PositionPolicyError) Error() string {
	return fmt.Sprintf("%s: cannot sell %s, only holding %s",
		e.Symbol, e.Requested.String(), e.Held.String())
}

func (e *PositionPolicyError) Unwrap() error { return ErrPositionPolicy }
