package longbridge

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"tax_go/internal/domain"
	"tax_go/internal/infra"

	"github.com/shopspring/decimal"
)

// Longbridge history endpoints reject windows longer than 90 days.
const maxWindowDays = 89

// Client is the Longbridge OpenAPI REST client (read-only operations).
type Client struct {
	baseURL     string
	appKey      string
	appSecret   string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a new Longbridge API client.
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		baseURL:     cfg.Longbridge.BaseURL,
		appKey:      cfg.Longbridge.AppKey,
		appSecret:   cfg.Longbridge.AppSecret,
		accessToken: cfg.Longbridge.AccessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "longbridge_client"),
	}
}

type historyOrder struct {
	OrderID          string `json:"order_id"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	ExecutedQuantity string `json:"executed_quantity"`
	ExecutedPrice    string `json:"executed_price"`
	Currency         string `json:"currency"`
	UpdatedAt        string `json:"updated_at"` // unix seconds
	ChargeDetail     *struct {
		TotalAmount string `json:"total_amount"`
		Items       []struct {
			Name   string `json:"name"`
			Amount string `json:"amount"`
		} `json:"items"`
	} `json:"charge_detail"`
}

type historyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"message"`
	Data struct {
		Orders  []historyOrder `json:"orders"`
		HasMore bool           `json:"has_more"`
	} `json:"data"`
}

// FetchOrders retrieves filled orders between start and end, chunking requests
// to honor the API's 90-day window limit. Orders are returned sorted by
// (execution time, order ID) with sequence IDs assigned in that order, so a
// re-import of the same range is deterministic.
func (c *Client) FetchOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	c.logger.Info("fetching order history",
		slog.String("start", start.Format("2006-01-02")),
		slog.String("end", end.Format("2006-01-02")),
	)

	var orders []domain.Order
	chunkStart := start

	for chunkStart.Before(end) {
		chunkEnd := chunkStart.AddDate(0, 0, maxWindowDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		chunk, err := c.fetchChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return nil, fmt.Errorf("order history %s..%s: %w",
				chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"), err)
		}
		orders = append(orders, chunk...)

		chunkStart = chunkEnd.AddDate(0, 0, 1)

		// Light pacing between chunks to stay under rate limits.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].TradeDate.Equal(orders[j].TradeDate) {
			return orders[i].TradeDate.Before(orders[j].TradeDate)
		}
		return orders[i].ID < orders[j].ID
	})
	for i := range orders {
		orders[i].SequenceID = int64(i + 1)
	}

	c.logger.Info("order history fetched", slog.Int("orders", len(orders)))
	return orders, nil
}

func (c *Client) fetchChunk(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	query := url.Values{}
	query.Set("status", "FilledStatus")
	query.Set("start_at", strconv.FormatInt(start.Unix(), 10))
	query.Set("end_at", strconv.FormatInt(end.Unix(), 10))

	body, err := c.doRequest(ctx, http.MethodGet, "/v1/trade/order/history", query)
	if err != nil {
		return nil, err
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("longbridge business error: code=%d msg=%s", resp.Code, resp.Msg)
	}

	orders := make([]domain.Order, 0, len(resp.Data.Orders))
	for _, raw := range resp.Data.Orders {
		order, ok := c.parseOrder(raw)
		if !ok {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// parseOrder converts a raw API order into a domain order. Orders without an
// executed quantity or price are skipped (unfilled remnants).
func (c *Client) parseOrder(raw historyOrder) (domain.Order, bool) {
	qty, err := decimal.NewFromString(raw.ExecutedQuantity)
	if err != nil || !qty.IsPositive() {
		return domain.Order{}, false
	}
	price, err := decimal.NewFromString(raw.ExecutedPrice)
	if err != nil || !price.IsPositive() {
		return domain.Order{}, false
	}

	var side string
	switch raw.Side {
	case "Buy", "BUY":
		side = domain.SideBuy
	case "Sell", "SELL":
		side = domain.SideSell
	default:
		c.logger.Warn("skipping order with unknown side",
			slog.String("order_id", raw.OrderID), slog.String("side", raw.Side))
		return domain.Order{}, false
	}

	ts, err := strconv.ParseInt(raw.UpdatedAt, 10, 64)
	if err != nil {
		c.logger.Warn("skipping order with bad timestamp",
			slog.String("order_id", raw.OrderID), slog.String("updated_at", raw.UpdatedAt))
		return domain.Order{}, false
	}

	currency := raw.Currency
	if currency == "" {
		currency = inferCurrency(raw.Symbol)
	}

	return domain.Order{
		ID:        raw.OrderID,
		Symbol:    raw.Symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Currency:  currency,
		Fees:      parseFees(raw),
		TradeDate: time.Unix(ts, 0).UTC(),
	}, true
}

// parseFees maps the charge detail to a fee breakdown. An absent charge
// detail means fees are unknown (nil), not zero: the fee backfill pass
// resolves them later.
func parseFees(raw historyOrder) domain.FeeBreakdown {
	if raw.ChargeDetail == nil {
		return nil
	}

	fees := domain.FeeBreakdown{}
	for _, item := range raw.ChargeDetail.Items {
		amount, err := decimal.NewFromString(item.Amount)
		if err != nil {
			continue
		}
		fees[item.Name] = amount
	}
	if len(fees) == 0 {
		if total, err := decimal.NewFromString(raw.ChargeDetail.TotalAmount); err == nil && !total.IsZero() {
			fees["total"] = total
		}
	}
	return fees
}

// inferCurrency guesses the trade currency from the market suffix.
func inferCurrency(symbol string) string {
	switch {
	case hasSuffix(symbol, ".HK"):
		return "HKD"
	case hasSuffix(symbol, ".SG"):
		return "SGD"
	default:
		return "USD"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// TestConnection verifies the credentials against the account endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/asset/account", nil)
	if err != nil {
		return err
	}

	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Code != 0 {
		return fmt.Errorf("longbridge business error: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// doRequest attaches the signed auth headers and executes the call.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	rawQuery := ""
	if len(query) > 0 {
		rawQuery = query.Encode()
		reqURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.signedHeaders(method, path, rawQuery) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("longbridge api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, nil
}

// signedHeaders builds the Longbridge auth headers. The signature covers
// timestamp + method + path (+ "?" + query), HMAC-SHA256 with the app secret.
func (c *Client) signedHeaders(method, path, query string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}
	payload := timestamp + method + fullPath

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"X-Api-Key":       c.appKey,
		"Authorization":   c.accessToken,
		"X-Timestamp":     timestamp,
		"X-Api-Signature": signature,
		"Content-Type":    "application/json",
		"User-Agent":      infra.DefaultUserAgent,
	}
}
