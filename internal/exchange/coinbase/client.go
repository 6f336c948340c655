// Package coinbase implements a candle and ticker source over the
// public Coinbase Exchange REST API. No credentials are required, which
// makes it the default data path for simulations.
package coinbase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/Alias1177/cryptobot/internal/platform/http"
	"github.com/Alias1177/cryptobot/models"
)

// maxCandlesPerRequest is the hard page limit of the candles endpoint.
const maxCandlesPerRequest = 300

// Client is the Coinbase Exchange API client
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new Coinbase client
type ClientOptions struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new Coinbase Exchange API client
func NewClient(options ClientOptions) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "https://api.exchange.coinbase.com"
	}

	return &Client{
		baseURL: baseURL,
		httpClient: httpClient.NewClient(httpClient.ClientOptions{
			Timeout:         options.RequestTimeout,
			RequestsPerSec:  options.RequestsPerSec,
			MaxRetryTimeout: options.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "coinbase_client").Logger(),
	}
}

// Candles returns the most recent window for the market, newest rows
// last.
func (c *Client) Candles(ctx context.Context, market string, granularity models.Granularity) ([]models.Candle, error) {
	end := time.Now().UTC().Truncate(granularity.Duration())
	start := end.Add(-time.Duration(maxCandlesPerRequest) * granularity.Duration())
	return c.fetchPage(ctx, market, granularity, start, end)
}

// CandlesWindow returns candles covering [start, end], paging through
// the API limit one chunk at a time. Zero bounds fall back to the most
// recent window.
func (c *Client) CandlesWindow(ctx context.Context, market string, granularity models.Granularity, start, end time.Time) ([]models.Candle, error) {
	if end.IsZero() {
		end = time.Now().UTC().Truncate(granularity.Duration())
	}
	if start.IsZero() {
		start = end.Add(-time.Duration(maxCandlesPerRequest) * granularity.Duration())
	}

	chunk := time.Duration(maxCandlesPerRequest) * granularity.Duration()
	var all []models.Candle
	for cursor := start; cursor.Before(end); cursor = cursor.Add(chunk) {
		chunkEnd := cursor.Add(chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		candles, err := c.fetchPage(ctx, market, granularity, cursor, chunkEnd)
		if err != nil {
			return nil, err
		}
		all = append(all, candles...)
	}

	// Page edges can duplicate a boundary candle.
	return dedupe(all), nil
}

// Ticker returns the latest traded price for the market.
func (c *Client) Ticker(ctx context.Context, market string) (float64, time.Time, error) {
	url := fmt.Sprintf("%s/products/%s/ticker", c.baseURL, market)

	var payload struct {
		Price string `json:"price"`
		Time  string `json:"time"`
	}
	if err := c.httpClient.GetJSON(ctx, url, &payload); err != nil {
		return 0, time.Time{}, fmt.Errorf("fetching %s ticker: %w", market, err)
	}

	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parsing %s ticker price %q: %w", market, payload.Price, err)
	}
	at, err := time.Parse(time.RFC3339Nano, payload.Time)
	if err != nil {
		at = time.Now().UTC()
	}
	return price, at, nil
}

// fetchPage loads one page of candles. The API answers with rows of
// [epoch, low, high, open, close, volume], newest first.
func (c *Client) fetchPage(ctx context.Context, market string, granularity models.Granularity, start, end time.Time) ([]models.Candle, error) {
	url := fmt.Sprintf(
		"%s/products/%s/candles?granularity=%d&start=%s&end=%s",
		c.baseURL,
		market,
		int(granularity),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	c.logger.Debug().Str("url", url).Msg("Fetching candles")

	var raw [][]float64
	if err := c.httpClient.GetJSON(ctx, url, &raw); err != nil {
		return nil, fmt.Errorf("fetching %s %s candles: %w", market, granularity, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed candle row for %s: %v", market, row)
		}
		candles = append(candles, models.Candle{
			Timestamp:   time.Unix(int64(row[0]), 0).UTC(),
			Low:         row[1],
			High:        row[2],
			Open:        row[3],
			Close:       row[4],
			Volume:      row[5],
			Market:      market,
			Granularity: granularity,
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	c.logger.Debug().Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

func dedupe(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, candle := range candles {
		if n := len(out); n > 0 && candle.Timestamp.Equal(out[n-1].Timestamp) {
			continue
		}
		out = append(out, candle)
	}
	return out
}
