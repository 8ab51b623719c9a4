package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tax_go/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return s
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

func testOrder(id, symbol, side string, date time.Time, seq int64, fees domain.FeeBreakdown) domain.Order {
	return domain.Order{
		ID:         id,
		Symbol:     symbol,
		Side:       side,
		Quantity:   decimal.NewFromInt(10),
		Price:      decimal.NewFromInt(100),
		Currency:   "USD",
		Fees:       fees,
		TradeDate:  date,
		SequenceID: seq,
	}
}

func TestSaveOrders_RoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	fees := domain.FeeBreakdown{"commission": dec(t, "1.05"), "platform": dec(t, "0.5")}
	orig := domain.Order{
		ID:         "rt-1",
		Symbol:     "AAPL.US",
		Side:       domain.SideBuy,
		Quantity:   dec(t, "12.5"),
		Price:      dec(t, "187.33"),
		Currency:   "USD",
		Fees:       fees,
		TradeDate:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		SequenceID: 7,
	}

	if err := s.SaveOrders(ctx, []domain.Order{orig}); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}

	orders, err := s.OrdersUntil(ctx, "AAPL.US", 2024)
	if err != nil {
		t.Fatalf("OrdersUntil failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}

	got := orders[0]
	if got.ID != orig.ID || got.Symbol != orig.Symbol || got.Side != orig.Side {
		t.Errorf("identity fields changed: %+v", got)
	}
	if !got.Quantity.Equal(orig.Quantity) || !got.Price.Equal(orig.Price) {
		t.Errorf("decimal fields changed: qty %s price %s", got.Quantity, got.Price)
	}
	if got.SequenceID != 7 {
		t.Errorf("expected sequence 7, got %d", got.SequenceID)
	}
	if !got.Fees.Total().Equal(dec(t, "1.55")) {
		t.Errorf("fees changed: %v", got.Fees)
	}
}

func TestSaveOrders_Idempotent(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	batch := []domain.Order{testOrder("dup-1", "SPY.US", domain.SideBuy, date, 1, domain.FeeBreakdown{})}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	orders, err := s.OrdersUntil(ctx, "SPY.US", 2024)
	if err != nil {
		t.Fatalf("OrdersUntil failed: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("re-import must not duplicate, got %d orders", len(orders))
	}
}

func TestFees_UnknownVsKnownZero(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	unknown := testOrder("f-unknown", "AAPL.US", domain.SideBuy, date, 1, nil)
	knownZero := testOrder("f-zero", "AAPL.US", domain.SideBuy, date, 2, domain.FeeBreakdown{})

	if err := s.SaveOrders(ctx, []domain.Order{unknown, knownZero}); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}

	orders, err := s.OrdersUntil(ctx, "AAPL.US", 2024)
	if err != nil {
		t.Fatalf("OrdersUntil failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	if orders[0].Fees.Known() {
		t.Error("unknown fees must stay unknown after a round-trip")
	}
	if !orders[1].Fees.Known() {
		t.Error("known-zero fees must stay known after a round-trip")
	}

	missing, err := s.OrdersMissingFees(ctx, 2024)
	if err != nil {
		t.Fatalf("OrdersMissingFees failed: %v", err)
	}
	if !reflect.DeepEqual(missing, []string{"f-unknown"}) {
		t.Errorf("expected only f-unknown missing fees, got %v", missing)
	}

	if err := s.UpdateOrderFees(ctx, "f-unknown", domain.FeeBreakdown{"commission": dec(t, "2")}); err != nil {
		t.Fatalf("UpdateOrderFees failed: %v", err)
	}
	missing, err = s.OrdersMissingFees(ctx, 2024)
	if err != nil {
		t.Fatalf("OrdersMissingFees failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no orders missing fees, got %v", missing)
	}
}

func TestOrdersUntil_OrderingAndCutoff(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	d1 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	// Inserted out of order, including two same-date orders.
	batch := []domain.Order{
		testOrder("c", "TSLA.US", domain.SideSell, d2, 3, nil),
		testOrder("a", "TSLA.US", domain.SideBuy, d1, 1, nil),
		testOrder("next-year", "TSLA.US", domain.SideSell, d3, 4, nil),
		testOrder("b", "TSLA.US", domain.SideBuy, d2, 2, nil),
		testOrder("other", "AAPL.US", domain.SideBuy, d2, 1, nil),
	}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}

	orders, err := s.OrdersUntil(ctx, "TSLA.US", 2024)
	if err != nil {
		t.Fatalf("OrdersUntil failed: %v", err)
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	// Full history through 2024, (trade_date, sequence_id) ascending; the
	// 2025 order is beyond the cutoff.
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", ids)
	}
}

func TestSymbolsWithTaxableActivity(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	in2023 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	in2024 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	batch := []domain.Order{
		// Sell in year: taxable.
		testOrder("s1", "SELLS.US", domain.SideSell, in2024, 1, nil),
		// Buy in year preceded by a sell: closes a short, taxable.
		testOrder("s2", "COVER.US", domain.SideSell, in2023, 1, nil),
		testOrder("b2", "COVER.US", domain.SideBuy, in2024, 2, nil),
		// Buy only: nothing realized.
		testOrder("b3", "BUYS.US", domain.SideBuy, in2024, 1, nil),
		// Sell outside the year only.
		testOrder("s4", "OLD.US", domain.SideSell, in2023, 1, nil),
		// Buy in year whose only sell comes after it: the buy cannot be
		// covering a short, so 2024 has nothing taxable.
		testOrder("b5", "LATER.US", domain.SideBuy, in2024, 1, nil),
		testOrder("s5", "LATER.US", domain.SideSell, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 2, nil),
	}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}

	symbols, err := s.SymbolsWithTaxableActivity(ctx, 2024)
	if err != nil {
		t.Fatalf("SymbolsWithTaxableActivity failed: %v", err)
	}
	if !reflect.DeepEqual(symbols, []string{"COVER.US", "SELLS.US"}) {
		t.Errorf("expected [COVER.US SELLS.US], got %v", symbols)
	}
}

func TestClearYear(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	in2023 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	in2024 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	batch := []domain.Order{
		testOrder("keep", "AAPL.US", domain.SideBuy, in2023, 1, nil),
		testOrder("drop", "AAPL.US", domain.SideSell, in2024, 2, nil),
	}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}
	if err := s.SaveExchangeRate("2023-06-01", "USD", "CNY", dec(t, "7.1")); err != nil {
		t.Fatalf("SaveExchangeRate failed: %v", err)
	}
	if err := s.SaveExchangeRate("2024-06-01", "USD", "CNY", dec(t, "7.2")); err != nil {
		t.Fatalf("SaveExchangeRate failed: %v", err)
	}

	if err := s.ClearYear(ctx, 2024); err != nil {
		t.Fatalf("ClearYear failed: %v", err)
	}

	orders, err := s.OrdersUntil(ctx, "AAPL.US", 2025)
	if err != nil {
		t.Fatalf("OrdersUntil failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "keep" {
		t.Errorf("expected only the 2023 order to survive, got %+v", orders)
	}

	if _, found, _ := s.GetExchangeRate("2024-06-01", "USD", "CNY"); found {
		t.Error("2024 rate should be cleared")
	}
	if _, found, _ := s.GetExchangeRate("2023-06-01", "USD", "CNY"); !found {
		t.Error("2023 rate should survive")
	}
}

func TestExchangeRateCache(t *testing.T) {
	s := setupTestStorage(t)

	if _, found, err := s.GetExchangeRate("2024-06-03", "USD", "CNY"); err != nil || found {
		t.Fatalf("empty cache should miss cleanly, found=%v err=%v", found, err)
	}

	if err := s.SaveExchangeRate("2024-06-03", "USD", "CNY", dec(t, "7.2345")); err != nil {
		t.Fatalf("SaveExchangeRate failed: %v", err)
	}

	rate, found, err := s.GetExchangeRate("2024-06-03", "USD", "CNY")
	if err != nil || !found {
		t.Fatalf("expected a hit, found=%v err=%v", found, err)
	}
	if !rate.Equal(dec(t, "7.2345")) {
		t.Errorf("expected 7.2345, got %s", rate)
	}

	// Upsert overwrites.
	if err := s.SaveExchangeRate("2024-06-03", "USD", "CNY", dec(t, "7.3")); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	rate, _, _ = s.GetExchangeRate("2024-06-03", "USD", "CNY")
	if !rate.Equal(dec(t, "7.3")) {
		t.Errorf("expected 7.3 after upsert, got %s", rate)
	}
}

func TestSummarize(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	in2023 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	in2024 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	batch := []domain.Order{
		testOrder("1", "AAPL.US", domain.SideBuy, in2023, 1, nil),
		testOrder("2", "AAPL.US", domain.SideSell, in2024, 2, nil),
		testOrder("3", "TSLA.US", domain.SideBuy, in2024, 1, nil),
		testOrder("4", "TSLA.US", domain.SideSell, in2024, 2, nil),
	}
	if err := s.SaveOrders(ctx, batch); err != nil {
		t.Fatalf("SaveOrders failed: %v", err)
	}

	summaries, err := s.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	want := []YearSummary{
		{Year: 2023, Buys: 1, Sells: 0},
		{Year: 2024, Buys: 1, Sells: 2},
	}
	if !reflect.DeepEqual(summaries, want) {
		t.Errorf("expected %+v, got %+v", want, summaries)
	}
}
