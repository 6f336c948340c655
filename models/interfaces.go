package models

import (
	"context"
	"time"
)

// CandleSource provides raw OHLCV candles for a market.
type CandleSource interface {
	// Candles returns the most recent candles ending at "now".
	Candles(ctx context.Context, market string, granularity Granularity) ([]Candle, error)
	// CandlesWindow returns candles covering [start, end].
	CandlesWindow(ctx context.Context, market string, granularity Granularity, start, end time.Time) ([]Candle, error)
}

// IndicatorSource produces the indicator table for a requested window.
type IndicatorSource interface {
	Fetch(ctx context.Context, market string, granularity Granularity) ([]IndicatorRow, error)
	FetchWindow(ctx context.Context, market string, granularity Granularity, start, end time.Time) ([]IndicatorRow, error)
}

// Ticker provides the latest traded price for a market.
type Ticker interface {
	Ticker(ctx context.Context, market string) (price float64, at time.Time, err error)
}

// OrderGateway places live market orders. An empty fill means no action
// was taken and session state must not change.
type OrderGateway interface {
	MarketBuy(ctx context.Context, market string, quoteAmount float64) (Fill, error)
	MarketSell(ctx context.Context, market string, baseAmount float64) (Fill, error)
	// LastBuy returns the most recent filled buy order, or nil if none.
	LastBuy(ctx context.Context, market string) (*Fill, error)
}

// NotificationSink receives one event per significant transition.
type NotificationSink interface {
	Notify(ctx context.Context, event Event)
}

// TradeStore persists per-trade ledger rows.
type TradeStore interface {
	SaveTrade(ctx context.Context, trade TradeRecord) error
}
