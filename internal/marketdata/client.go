// Package marketdata fetches OHLCV bars and pre-computed indicators from the
// market-data HTTP server. The adapter swallows upstream failures: callers
// always receive a (possibly empty) series, never an error.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/metrics"
)

// Client talks to the data server's /enhanced-data endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	cache      *Cache
	logger     zerolog.Logger
}

// NewClient creates a data-server client with its TTL cache.
func NewClient(cfg config.DataServerConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		retries:    cfg.RetryAttempts,
		cache:      NewCache(time.Duration(cfg.CacheDuration)*time.Second, logger),
		logger:     logger,
	}
}

// Cache exposes the TTL cache, e.g. to attach the Redis mirror at startup.
func (c *Client) Cache() *Cache {
	return c.cache
}

// GetIntraday returns bars for a symbol. Upstream errors yield an empty
// series; the symbol is simply skipped for the cycle.
func (c *Client) GetIntraday(ctx context.Context, symbol, interval string, lookback int) BarSeries {
	bars, _ := c.GetEnhanced(ctx, symbol, interval, lookback)
	return bars
}

// GetIndicators returns the server's pre-computed indicator values for a
// symbol. Upstream errors yield an empty set.
func (c *Client) GetIndicators(ctx context.Context, symbol, period, interval string) IndicatorSet {
	entry, ok := c.cache.Get(ctx, symbol, interval)
	if ok {
		return entry.Indicators
	}
	bars, indicators, err := c.fetch(ctx, symbol, period, interval)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("indicator fetch failed")
		metrics.DataFetchErrors.WithLabelValues(symbol).Inc()
		return IndicatorSet{}
	}
	c.cache.Put(ctx, symbol, interval, bars, indicators)
	return indicators
}

// GetEnhanced returns bars plus indicators in one call, serving both from the
// cache when fresh.
func (c *Client) GetEnhanced(ctx context.Context, symbol, interval string, lookback int) (BarSeries, IndicatorSet) {
	entry, ok := c.cache.Get(ctx, symbol, interval)
	if ok {
		return trimLookback(entry.Bars, lookback), entry.Indicators
	}

	period := periodFor(interval, lookback)
	bars, indicators, err := c.fetch(ctx, symbol, period, interval)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("symbol", symbol).
			Str("interval", interval).
			Msg("market data fetch failed, returning empty series")
		metrics.DataFetchErrors.WithLabelValues(symbol).Inc()
		return BarSeries{}, IndicatorSet{}
	}

	c.cache.Put(ctx, symbol, interval, bars, indicators)
	return trimLookback(bars, lookback), indicators
}

// fetch performs the HTTP round trip with linear-backoff retries.
func (c *Client) fetch(ctx context.Context, symbol, period, interval string) (BarSeries, IndicatorSet, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			// Linear backoff: attempt+1 seconds between tries.
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}

		bars, indicators, err := c.fetchOnce(ctx, symbol, period, interval)
		if err != nil {
			lastErr = err
			continue
		}
		return bars, indicators, nil
	}
	return nil, nil, fmt.Errorf("fetch %s after %d attempts: %w", symbol, c.retries, lastErr)
}

// enhancedResponse mirrors the data server's JSON shape. Row keys vary by
// upstream source, so rows decode loosely and normalize below.
type enhancedResponse struct {
	Error               string                   `json:"error"`
	RawData             []map[string]interface{} `json:"raw_data"`
	TechnicalIndicators map[string]float64       `json:"technical_indicators"`
}

func (c *Client) fetchOnce(ctx context.Context, symbol, period, interval string) (BarSeries, IndicatorSet, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("period", period)
	query.Set("interval", interval)

	endpoint := fmt.Sprintf("%s/enhanced-data?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("data server returned %d: %s", resp.StatusCode, string(body))
	}

	var payload enhancedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse response: %w", err)
	}
	if payload.Error != "" {
		return nil, nil, fmt.Errorf("data server error: %s", payload.Error)
	}

	bars, err := normalizeBars(payload.RawData)
	if err != nil {
		return nil, nil, err
	}

	indicators := IndicatorSet{}
	for k, v := range payload.TechnicalIndicators {
		indicators[k] = v
	}
	return bars, indicators, nil
}

// normalizeBars coerces loosely-typed rows into canonical bars. Rows missing
// any OHLC field are dropped; a non-ascending timestamp poisons the whole
// payload, since out-of-order history cannot be trusted.
func normalizeBars(rows []map[string]interface{}) (BarSeries, error) {
	bars := make(BarSeries, 0, len(rows))
	for _, row := range rows {
		ts, ok := rowTimestamp(row)
		if !ok {
			continue
		}
		open, ok1 := rowFloat(row, "open")
		high, ok2 := rowFloat(row, "high")
		low, ok3 := rowFloat(row, "low")
		cls, ok4 := rowFloat(row, "close")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		volume, _ := rowFloat(row, "volume")
		if volume < 0 {
			volume = 0
		}
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    volume,
		})
	}

	deduped := bars[:0]
	var prev time.Time
	for i, b := range bars {
		if i > 0 {
			if b.Timestamp.Equal(prev) {
				continue
			}
			if b.Timestamp.Before(prev) {
				return nil, fmt.Errorf("non-monotonic timestamps at row %d", i)
			}
		}
		deduped = append(deduped, b)
		prev = b.Timestamp
	}
	return deduped, nil
}

// rowFloat reads a numeric field, tolerating capitalized keys and numeric
// strings.
func rowFloat(row map[string]interface{}, name string) (float64, bool) {
	v, ok := row[name]
	if !ok {
		v, ok = row[strings.ToUpper(name[:1])+name[1:]]
	}
	if !ok {
		v, ok = row[strings.ToUpper(name)]
	}
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

func rowTimestamp(row map[string]interface{}) (time.Time, bool) {
	v, ok := row["timestamp"]
	if !ok {
		v, ok = row["Timestamp"]
	}
	if !ok {
		v, ok = row["date"]
	}
	if !ok {
		return time.Time{}, false
	}
	switch val := v.(type) {
	case float64:
		// Epoch millis vs seconds, split at a year-2603 boundary.
		if val > 2e10 {
			return time.UnixMilli(int64(val)), true
		}
		return time.Unix(int64(val), 0), true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func trimLookback(bars BarSeries, lookback int) BarSeries {
	if lookback <= 0 || len(bars) <= lookback {
		return bars
	}
	return bars[len(bars)-lookback:]
}

// periodFor maps (interval, lookback) onto the span the data server expects.
func periodFor(interval string, lookback int) string {
	switch interval {
	case "1m":
		if lookback > 390 {
			return "5d"
		}
		return "1d"
	case "5m":
		if lookback > 100 {
			return "10d"
		}
		return "5d"
	case "15m", "30m":
		if lookback > 100 {
			return "1mo"
		}
		return "10d"
	case "60m", "1h":
		return "1mo"
	case "1d":
		if lookback > 200 {
			return "2y"
		}
		return "1y"
	default:
		return "1mo"
	}
}
