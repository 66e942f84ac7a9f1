package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const binanceSpotRESTBase = "https://api.binance.com"

// HistoryFetcher bootstraps the volatility price history from Binance spot
// klines before live ticks take over.
type HistoryFetcher struct {
	http *resty.Client
}

// NewHistoryFetcher creates a kline fetcher against the public spot API.
func NewHistoryFetcher() *HistoryFetcher {
	return &HistoryFetcher{http: newKlineClient(binanceSpotRESTBase)}
}

func newKlineClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(4).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
}

// ClosePrices fetches the most recent `limit` closing prices at `interval`
// seconds granularity, oldest first. The venue must return exactly `limit`
// bars; anything else is an error.
func (f *HistoryFetcher) ClosePrices(ctx context.Context, symbol string, interval, limit int) ([]float64, error) {
	var raw [][]json.RawMessage
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": fmt.Sprintf("%ds", interval),
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw).
		Get("/api/v3/klines")
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch klines: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(raw) != limit {
		return nil, fmt.Errorf("fetch klines: got %d bars, want %d", len(raw), limit)
	}

	prices := make([]float64, 0, len(raw))
	for _, bar := range raw {
		// Bar layout: [openTime, open, high, low, close, volume, ...]
		if len(bar) < 5 {
			return nil, fmt.Errorf("fetch klines: short bar with %d fields", len(bar))
		}
		var closeStr string
		if err := json.Unmarshal(bar[4], &closeStr); err != nil {
			return nil, fmt.Errorf("fetch klines: decode close: %w", err)
		}
		price, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("fetch klines: parse close %q: %w", closeStr, err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}
