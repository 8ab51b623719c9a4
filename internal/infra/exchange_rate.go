package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tax_go/internal/domain"

	"github.com/shopspring/decimal"
)

const rateDateLayout = "2006-01-02"

// RateStore is the persistence surface the rate service uses as its cache.
type RateStore interface {
	GetExchangeRate(date, from, to string) (decimal.Decimal, bool, error)
	SaveExchangeRate(date, from, to string, rate decimal.Decimal) error
}

// frankfurterResponse represents the historical rate API response.
type frankfurterResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// RateService resolves historical exchange rates into the reporting currency,
// keyed strictly by trade date. Lookup ladder: in-memory memo, persistent
// cache, rate API, nearby cached dates (±7 days), configured static fallback.
// A miss at every level is a RateUnavailableError, never a silent default.
//
// Safe for concurrent reads: results are memoized under an RWMutex so
// parallel symbol replays can share one instance.
type RateService struct {
	base       string
	apiURL     string // empty disables network lookups
	fallback   map[string]decimal.Decimal
	store      RateStore
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.RWMutex
	memo map[string]decimal.Decimal
}

// NewRateService creates a rate service backed by the given cache store.
func NewRateService(cfg *Config, store RateStore) *RateService {
	return &RateService{
		base:     cfg.Tax.BaseCurrency,
		apiURL:   cfg.Rates.APIURL,
		fallback: cfg.Rates.Fallback,
		store:    store,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default().With("module", "rate_service"),
		memo:   make(map[string]decimal.Decimal),
	}
}

// Rate returns the historical rate converting currency into the reporting
// currency on the given date.
func (s *RateService) Rate(ctx context.Context, date time.Time, currency string) (decimal.Decimal, error) {
	if currency == s.base {
		return decimal.NewFromInt(1), nil
	}

	day := date.Format(rateDateLayout)
	key := day + "/" + currency

	s.mu.RLock()
	rate, ok := s.memo[key]
	s.mu.RUnlock()
	if ok {
		GlobalMetrics.RecordRateCacheHit()
		return rate, nil
	}

	if s.store != nil {
		rate, found, err := s.store.GetExchangeRate(day, currency, s.base)
		if err != nil {
			return decimal.Zero, fmt.Errorf("rate cache lookup failed: %w", err)
		}
		if found {
			s.remember(key, rate, "", currency)
			GlobalMetrics.RecordRateCacheHit()
			return rate, nil
		}
	}

	if s.apiURL != "" {
		rate, err := s.fetchRate(ctx, day, currency)
		if err == nil {
			s.remember(key, rate, day, currency)
			GlobalMetrics.RecordRateFetch()
			return rate, nil
		}
		s.logger.Warn("rate API lookup failed",
			slog.String("date", day),
			slog.String("currency", currency),
			slog.Any("error", err),
		)
	}

	if rate, found := s.nearbyRate(day, currency); found {
		s.remember(key, rate, day, currency)
		GlobalMetrics.RecordRateCacheHit()
		return rate, nil
	}

	if rate, found := s.fallback[currency]; found {
		s.logger.Warn("using fallback exchange rate",
			slog.String("date", day),
			slog.String("currency", currency),
			slog.String("rate", rate.String()),
		)
		s.remember(key, rate, day, currency)
		GlobalMetrics.RecordRateFallback()
		return rate, nil
	}

	return decimal.Zero, &domain.RateUnavailableError{Date: day, Currency: currency}
}

// Prewarm resolves every (date, currency) pair the given orders will need so
// parallel replays only hit the memo. Failures are logged, not fatal: the
// affected symbol fails on its own during replay.
func (s *RateService) Prewarm(ctx context.Context, orders []domain.Order) {
	seen := make(map[string]bool)
	for _, o := range orders {
		if o.Currency == s.base {
			continue
		}
		key := o.TradeDate.Format(rateDateLayout) + "/" + o.Currency
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, err := s.Rate(ctx, o.TradeDate, o.Currency); err != nil {
			s.logger.Warn("prewarm miss", slog.String("pair", key), slog.Any("error", err))
		}
	}
	s.logger.Info("exchange rates prewarmed", slog.Int("pairs", len(seen)))
}

// remember memoizes a rate and, when persistDay is non-empty, writes it
// through to the cache store under that date.
func (s *RateService) remember(key string, rate decimal.Decimal, persistDay, currency string) {
	s.mu.Lock()
	s.memo[key] = rate
	s.mu.Unlock()

	if persistDay != "" && s.store != nil {
		if err := s.store.SaveExchangeRate(persistDay, currency, s.base, rate); err != nil {
			s.logger.Warn("failed to persist exchange rate", slog.String("date", persistDay), slog.Any("error", err))
		}
	}
}

// fetchRate fetches the rate from the API with retry and backoff.
func (s *RateService) fetchRate(ctx context.Context, day, currency string) (decimal.Decimal, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s
			delay := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		rate, err := s.doFetch(ctx, day, currency)
		if err == nil {
			return rate, nil
		}
		lastErr = err
	}
	return decimal.Zero, lastErr
}

func (s *RateService) doFetch(ctx context.Context, day, currency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s?from=%s&to=%s", s.apiURL, day, currency, s.base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}

	var data frankfurterResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, err
	}

	rate, ok := data.Rates[s.base]
	if !ok {
		return decimal.Zero, fmt.Errorf("response has no %s rate", s.base)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", rate)
	}

	return rate, nil
}

// nearbyRate scans the cache store for the closest date within ±7 days.
// Weekends and market holidays leave gaps in historical rate data.
func (s *RateService) nearbyRate(day, currency string) (decimal.Decimal, bool) {
	if s.store == nil {
		return decimal.Zero, false
	}

	target, err := time.Parse(rateDateLayout, day)
	if err != nil {
		return decimal.Zero, false
	}

	for offset := 1; offset <= 7; offset++ {
		for _, direction := range []int{-1, 1} {
			check := target.AddDate(0, 0, offset*direction).Format(rateDateLayout)
			rate, found, err := s.store.GetExchangeRate(check, currency, s.base)
			if err == nil && found {
				return rate, true
			}
		}
	}
	return decimal.Zero, false
}
