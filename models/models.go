package models

import (
	"time"
)

// Granularity is the candle interval in seconds.
type Granularity int

const (
	OneMinute      Granularity = 60
	FiveMinutes    Granularity = 300
	FifteenMinutes Granularity = 900
	OneHour        Granularity = 3600
	SixHours       Granularity = 21600
	OneDay         Granularity = 86400
)

// Duration returns the granularity as a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g) * time.Second
}

func (g Granularity) String() string {
	switch g {
	case OneMinute:
		return "1min"
	case FiveMinutes:
		return "5min"
	case FifteenMinutes:
		return "15min"
	case OneHour:
		return "1h"
	case SixHours:
		return "6h"
	case OneDay:
		return "1day"
	default:
		return "unknown"
	}
}

// Valid reports whether the granularity is one of the supported intervals.
func (g Granularity) Valid() bool {
	switch g {
	case OneMinute, FiveMinutes, FifteenMinutes, OneHour, SixHours, OneDay:
		return true
	}
	return false
}

// Action is a trading decision.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Candle represents a single price candle.
type Candle struct {
	Timestamp   time.Time   `json:"timestamp"`
	Open        float64     `json:"open"`
	High        float64     `json:"high"`
	Low         float64     `json:"low"`
	Close       float64     `json:"close"`
	Volume      float64     `json:"volume"`
	Market      string      `json:"market"`
	Granularity Granularity `json:"granularity"`
}

// Patterns holds candlestick pattern flags for one candle.
type Patterns struct {
	Hammer             bool `json:"hammer"`
	InvertedHammer     bool `json:"inverted_hammer"`
	HangingMan         bool `json:"hanging_man"`
	ShootingStar       bool `json:"shooting_star"`
	ThreeWhiteSoldiers bool `json:"three_white_soldiers"`
	ThreeBlackCrows    bool `json:"three_black_crows"`
	MorningStar        bool `json:"morning_star"`
	EveningStar        bool `json:"evening_star"`
	ThreeLineStrike    bool `json:"three_line_strike"`
	AbandonedBaby      bool `json:"abandoned_baby"`
	MorningDojiStar    bool `json:"morning_doji_star"`
	EveningDojiStar    bool `json:"evening_doji_star"`
	TwoBlackGapping    bool `json:"two_black_gapping"`
}

// IndicatorRow is a candle plus the computed signal columns for that
// position in the window. Rows are immutable once produced.
type IndicatorRow struct {
	Candle

	EMA12 float64 `json:"ema12"`
	EMA26 float64 `json:"ema26"`

	EMABull      bool `json:"ema_bull"`       // EMA12 above EMA26
	EMABullCross bool `json:"ema_bull_cross"` // EMA12 crossing above EMA26
	EMABear      bool `json:"ema_bear"`
	EMABearCross bool `json:"ema_bear_cross"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`

	MACDBull      bool `json:"macd_bull"` // MACD above signal line
	MACDBullCross bool `json:"macd_bull_cross"`
	MACDBear      bool `json:"macd_bear"`
	MACDBearCross bool `json:"macd_bear_cross"`

	SMA50       float64 `json:"sma50"`
	SMA200      float64 `json:"sma200"`
	GoldenCross bool    `json:"golden_cross"` // SMA50 above SMA200

	OBV          float64 `json:"obv"`
	OBVChangePct float64 `json:"obv_pc"`

	ElderBuy  bool `json:"elder_buy"`
	ElderSell bool `json:"elder_sell"`

	Patterns Patterns `json:"patterns"`

	// Rolling close extremes of the window up to and including this row.
	WindowHigh float64 `json:"window_high"`
	WindowLow  float64 `json:"window_low"`
}

// Fill is the result of an executed market order.
type Fill struct {
	Price     float64   `json:"price"`
	BaseSize  float64   `json:"base_size"`
	QuoteSize float64   `json:"quote_size"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// Empty reports whether the order did not execute.
func (f Fill) Empty() bool {
	return f.BaseSize == 0 && f.QuoteSize == 0
}

// EventType identifies a significant engine transition.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventGranularityChange EventType = "granularity_change"
	EventActionChange      EventType = "action_change"
	EventBuy               EventType = "buy"
	EventSell              EventType = "sell"
	EventPause             EventType = "pause"
	EventResume            EventType = "resume"
	EventStop              EventType = "stop"
)

// Event is a notification emitted on a significant transition. The engine
// emits these as data; sinks decide how to format them.
type Event struct {
	Type        EventType   `json:"type"`
	Market      string      `json:"market"`
	Granularity Granularity `json:"granularity"`
	Timestamp   time.Time   `json:"timestamp"`
	Price       float64     `json:"price,omitempty"`
	Action      Action      `json:"action,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Margin      float64     `json:"margin,omitempty"`
	Profit      float64     `json:"profit,omitempty"`
	Fee         float64     `json:"fee,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// TradeRecord is one row of the per-trade ledger produced by a run.
type TradeRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Market     string    `json:"market"`
	Action     Action    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	Price      float64   `json:"price"`
	QuoteSize  float64   `json:"quote_size"`
	BaseSize   float64   `json:"base_size"`
	Margin     float64   `json:"margin,omitempty"`
	Profit     float64   `json:"profit,omitempty"`
	Fee        float64   `json:"fee,omitempty"`
	WindowHigh float64   `json:"window_high"`
	WindowLow  float64   `json:"window_low"`
	OpenTrade  bool      `json:"open_trade,omitempty"`
}

// RunSummary is the structured result of a simulation run.
type RunSummary struct {
	Market             string        `json:"market"`
	BuyCount           int           `json:"buy_count"`
	SellCount          int           `json:"sell_count"`
	FirstTradeSize     float64       `json:"first_trade_size"`
	LastTradeSize      float64       `json:"last_trade_size"`
	LastTradeMarginPct float64       `json:"last_trade_margin_pct"`
	CumulativeMargin   float64       `json:"cumulative_margin_pct"`
	CumulativeProfit   float64       `json:"cumulative_profit"`
	CumulativeFees     float64       `json:"cumulative_fees"`
	OpenTradeExcluded  bool          `json:"open_trade_excluded"`
	Trades             []TradeRecord `json:"trades,omitempty"`
}
