package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tax_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OrderRecord is the gorm model for stored broker orders. Decimal fields are
// stored as text so replay arithmetic never passes through binary floats.
// FeesJSON is NULL when the fee breakdown is unknown and "{}" when fees are
// known to be zero; the distinction must survive round-trips.
type OrderRecord struct {
	OrderID    string    `gorm:"primaryKey;column:order_id"`
	Symbol     string    `gorm:"index;not null"`
	Side       string    `gorm:"not null"`
	Quantity   string    `gorm:"not null"`
	Price      string    `gorm:"not null"`
	Currency   string    `gorm:"not null"`
	TradeDate  time.Time `gorm:"index;not null"`
	SequenceID int64     `gorm:"index;not null"`
	FeesJSON   *string   `gorm:"column:fees_json"`
	CreatedAt  time.Time
}

// ExchangeRateRecord caches one historical rate for a (date, from, to) key.
type ExchangeRateRecord struct {
	Date         string `gorm:"primaryKey;size:10"`
	FromCurrency string `gorm:"primaryKey"`
	ToCurrency   string `gorm:"primaryKey"`
	Rate         string `gorm:"not null"`
	CreatedAt    time.Time
}

// Storage persists orders and exchange rates in SQLite. It implements
// domain.OrderStore and the rate service's cache interface.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (and migrates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite driver
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&OrderRecord{}, &ExchangeRateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Order Operations
// ======================================================================================

// SaveOrders upserts a batch of orders keyed by order ID. Re-importing the
// same history is idempotent.
func (s *Storage) SaveOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	records := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		rec, err := toRecord(o)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error
}

// OrdersUntil returns every order of symbol from the first record through the
// end of year, ascending by (trade_date, sequence_id).
func (s *Storage) OrdersUntil(ctx context.Context, symbol string, year int) ([]domain.Order, error) {
	var records []OrderRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND trade_date < ?", symbol, startOfYear(year+1)).
		Order("trade_date ASC, sequence_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		o, err := toDomain(rec)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// SymbolsWithTaxableActivity returns symbols that can realize gains in year:
// any SELL dated in the year, plus any BUY dated in the year on a symbol with
// an earlier SELL (the only way the buy can be closing a short).
func (s *Storage) SymbolsWithTaxableActivity(ctx context.Context, year int) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT symbol FROM order_records o
		WHERE (o.side = 'SELL' AND o.trade_date >= ? AND o.trade_date < ?)
		   OR (o.side = 'BUY' AND o.trade_date >= ? AND o.trade_date < ?
		       AND EXISTS (
		           SELECT 1 FROM order_records prior
		           WHERE prior.symbol = o.symbol AND prior.side = 'SELL'
		             AND (prior.trade_date < o.trade_date
		                  OR (prior.trade_date = o.trade_date AND prior.sequence_id < o.sequence_id))
		       ))
		ORDER BY symbol`,
		startOfYear(year), startOfYear(year+1),
		startOfYear(year), startOfYear(year+1),
	).Scan(&symbols).Error
	return symbols, err
}

// ClearYear removes all orders and cached rates dated inside year.
func (s *Storage) ClearYear(ctx context.Context, year int) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Where("trade_date >= ? AND trade_date < ?", startOfYear(year), startOfYear(year+1)).
		Delete(&OrderRecord{}).Error; err != nil {
		return err
	}
	yearPrefix := fmt.Sprintf("%d-%%", year)
	return tx.Where("date LIKE ?", yearPrefix).Delete(&ExchangeRateRecord{}).Error
}

// OrdersMissingFees returns the IDs of orders whose fee breakdown is still
// unknown, oldest first. Year 0 means all years.
func (s *Storage) OrdersMissingFees(ctx context.Context, year int) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&OrderRecord{}).
		Where("fees_json IS NULL")
	if year != 0 {
		q = q.Where("trade_date >= ? AND trade_date < ?", startOfYear(year), startOfYear(year+1))
	}

	var ids []string
	err := q.Order("trade_date ASC, sequence_id ASC").Pluck("order_id", &ids).Error
	return ids, err
}

// UpdateOrderFees resolves the fee breakdown of an existing order. Passing a
// non-nil empty breakdown records known-zero fees.
func (s *Storage) UpdateOrderFees(ctx context.Context, orderID string, fees domain.FeeBreakdown) error {
	feesJSON, err := encodeFees(fees)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&OrderRecord{}).
		Where("order_id = ?", orderID).
		Update("fees_json", feesJSON).Error
}

// YearSummary describes stored order volume for one calendar year.
type YearSummary struct {
	Year  int
	Buys  int64
	Sells int64
}

// Summarize returns per-year order counts, ascending by year.
func (s *Storage) Summarize(ctx context.Context) ([]YearSummary, error) {
	var rows []struct {
		Year  string
		Side  string
		Count int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT strftime('%Y', trade_date) AS year, side, COUNT(*) AS count
		FROM order_records GROUP BY year, side ORDER BY year`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byYear := make(map[int]*YearSummary)
	order := make([]int, 0)
	for _, row := range rows {
		var y int
		if _, err := fmt.Sscanf(row.Year, "%d", &y); err != nil {
			continue
		}
		sum, ok := byYear[y]
		if !ok {
			sum = &YearSummary{Year: y}
			byYear[y] = sum
			order = append(order, y)
		}
		switch row.Side {
		case domain.SideBuy:
			sum.Buys += row.Count
		case domain.SideSell:
			sum.Sells += row.Count
		}
	}

	result := make([]YearSummary, 0, len(order))
	for _, y := range order {
		result = append(result, *byYear[y])
	}
	return result, nil
}

// ======================================================================================
// Exchange Rate Operations
// ======================================================================================

// GetExchangeRate returns the cached rate for (date, from, to), if any.
func (s *Storage) GetExchangeRate(date, from, to string) (decimal.Decimal, bool, error) {
	var rec ExchangeRateRecord
	err := s.db.First(&rec, "date = ? AND from_currency = ? AND to_currency = ?", date, from, to).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	rate, err := decimal.NewFromString(rec.Rate)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt rate record %s %s/%s: %w", date, from, to, err)
	}
	return rate, true, nil
}

// SaveExchangeRate caches a rate for (date, from, to).
func (s *Storage) SaveExchangeRate(date, from, to string, rate decimal.Decimal) error {
	rec := ExchangeRateRecord{
		Date:         date,
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate.String(),
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// ======================================================================================
// Conversions
// ======================================================================================

func startOfYear(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func toRecord(o domain.Order) (OrderRecord, error) {
	feesJSON, err := encodeFees(o.Fees)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return OrderRecord{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity.String(),
		Price:      o.Price.String(),
		Currency:   o.Currency,
		TradeDate:  o.TradeDate,
		SequenceID: o.SequenceID,
		FeesJSON:   feesJSON,
	}, nil
}

func toDomain(rec OrderRecord) (domain.Order, error) {
	qty, err := decimal.NewFromString(rec.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("corrupt quantity on order %s: %w", rec.OrderID, err)
	}
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("corrupt price on order %s: %w", rec.OrderID, err)
	}
	fees, err := decodeFees(rec.FeesJSON)
	if err != nil {
		return domain.Order{}, fmt.Errorf("corrupt fees on order %s: %w", rec.OrderID, err)
	}

	return domain.Order{
		ID:         rec.OrderID,
		Symbol:     rec.Symbol,
		Side:       rec.Side,
		Quantity:   qty,
		Price:      price,
		Currency:   rec.Currency,
		Fees:       fees,
		TradeDate:  rec.TradeDate,
		SequenceID: rec.SequenceID,
	}, nil
}

// encodeFees maps nil (unknown) to NULL and a known breakdown to JSON.
func encodeFees(fees domain.FeeBreakdown) (*string, error) {
	if fees == nil {
		return nil, nil
	}
	data, err := json.Marshal(fees)
	if err != nil {
		return nil, err
	}
	str := string(data)
	return &str, nil
}

func decodeFees(feesJSON *string) (domain.FeeBreakdown, error) {
	if feesJSON == nil {
		return nil, nil
	}
	fees := domain.FeeBreakdown{}
	if err := json.Unmarshal([]byte(*feesJSON), &fees); err != nil {
		return nil, err
	}
	return fees, nil
}
