package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"simtrader/internal/domain"
)

const defaultRestURL = "https://api.binance.com"

// RestClient fetches historical candles for strategy warm-up.
type RestClient struct {
	baseURL string
	client  *http.Client
}

// NewRestClient creates a client. baseURL may be empty to use production.
func NewRestClient(baseURL string) *RestClient {
	if baseURL == "" {
		baseURL = defaultRestURL
	}
	return &RestClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchKlines returns up to limit historical candles for the symbol,
// oldest first. interval uses Binance notation, e.g. "1m".
func (c *RestClient) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request: unexpected status %d", resp.StatusCode)
	}

	// Each kline is a mixed-type array:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("klines decode failed: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		fields := make([]string, 5)
		ok := true
		for i := 0; i < 5; i++ {
			if err := json.Unmarshal(row[i+1], &fields[i]); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		candle, err := parseCandle(openTime, fields[0], fields[1], fields[2], fields[3], fields[4])
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
