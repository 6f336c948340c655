// Package binance adapts the Binance spot API to the engine's candle,
// ticker and order interfaces.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Alias1177/cryptobot/models"
)

// klinesPerRequest is the page limit of the klines endpoint.
const klinesPerRequest = 1000

var intervals = map[models.Granularity]string{
	models.OneMinute:      "1m",
	models.FiveMinutes:    "5m",
	models.FifteenMinutes: "15m",
	models.OneHour:        "1h",
	models.SixHours:       "6h",
	models.OneDay:         "1d",
}

// Client wraps the Binance spot client with rate limiting.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a Binance client. Keys may be empty for the public
// market-data endpoints.
func NewClient(apiKey, secretKey string) *Client {
	return &Client{
		api: binance.NewClient(apiKey, secretKey),
		// 10 requests per second with burst of 20
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  log.With().Str("component", "binance_client").Logger(),
	}
}

// Symbol converts a dash-delimited market id to Binance notation.
func Symbol(market string) string {
	return strings.ReplaceAll(market, "-", "")
}

// Interval maps a granularity onto a Binance kline interval.
func Interval(g models.Granularity) (string, error) {
	interval, ok := intervals[g]
	if !ok {
		return "", fmt.Errorf("no binance interval for granularity %d", int(g))
	}
	return interval, nil
}

// Candles returns the most recent window for the market.
func (c *Client) Candles(ctx context.Context, market string, granularity models.Granularity) ([]models.Candle, error) {
	interval, err := Interval(granularity)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	klines, err := c.api.NewKlinesService().
		Symbol(Symbol(market)).
		Interval(interval).
		Limit(klinesPerRequest).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s klines: %w", market, granularity, err)
	}
	return c.convert(market, granularity, klines)
}

// CandlesWindow returns candles covering [start, end], split into page
// sized requests.
func (c *Client) CandlesWindow(ctx context.Context, market string, granularity models.Granularity, start, end time.Time) ([]models.Candle, error) {
	interval, err := Interval(granularity)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-time.Duration(klinesPerRequest) * granularity.Duration())
	}

	chunk := time.Duration(klinesPerRequest) * granularity.Duration()
	var all []models.Candle
	for cursor := start; cursor.Before(end); cursor = cursor.Add(chunk) {
		chunkEnd := cursor.Add(chunk)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		klines, err := c.api.NewKlinesService().
			Symbol(Symbol(market)).
			Interval(interval).
			StartTime(cursor.UnixMilli()).
			EndTime(chunkEnd.UnixMilli()).
			Limit(klinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %s window: %w", market, granularity, err)
		}

		candles, err := c.convert(market, granularity, klines)
		if err != nil {
			return nil, err
		}
		for _, candle := range candles {
			if n := len(all); n > 0 && !candle.Timestamp.After(all[n-1].Timestamp) {
				continue
			}
			all = append(all, candle)
		}
	}
	return all, nil
}

// Ticker returns the latest traded price for the market.
func (c *Client) Ticker(ctx context.Context, market string) (float64, time.Time, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, time.Time{}, err
	}
	prices, err := c.api.NewListPricesService().Symbol(Symbol(market)).Do(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("fetching %s price: %w", market, err)
	}
	if len(prices) == 0 {
		return 0, time.Time{}, fmt.Errorf("no price returned for %s", market)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parsing %s price %q: %w", market, prices[0].Price, err)
	}
	return price, time.Now().UTC(), nil
}

func (c *Client) convert(market string, granularity models.Granularity, klines []*binance.Kline) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		clos, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		for _, err := range []error{err1, err2, err3, err4, err5} {
			if err != nil {
				return nil, fmt.Errorf("parsing %s kline at %d: %w", market, k.OpenTime, err)
			}
		}
		candles = append(candles, models.Candle{
			Timestamp:   time.UnixMilli(k.OpenTime).UTC(),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       clos,
			Volume:      volume,
			Market:      market,
			Granularity: granularity,
		})
	}
	c.logger.Debug().Str("market", market).Int("count", len(candles)).Msg("Fetched klines")
	return candles, nil
}
