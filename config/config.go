package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Alias1177/cryptobot/models"
)

// Config holds the full session configuration. Values are loaded from the
// environment with sensible defaults; a .env file in the working directory
// is honoured when present.
type Config struct {
	Market   string
	Exchange string // "coinbase" or "binance"

	Granularity models.Granularity
	SmartSwitch bool

	Live       bool
	Simulation bool
	SimSpeed   string // "fast" or "slow"
	SimStart   time.Time
	SimEnd     time.Time

	TakerFee float64

	// SellPercent is the share of the held base sold on a SELL. The
	// remainder is left on the exchange and the position closes in full.
	SellPercent float64

	BuyMaxSize float64

	// Buy signal toggles. A disabled sub-signal is treated as always true.
	DisableBuyEMA      bool
	DisableBuyMACD     bool
	DisableBullOnly    bool
	DisableBuyOBV      bool
	DisableBuyElderRay bool

	// Sell triggers.
	DisableFailsafeFibonacciLow bool
	DisableFailsafeLowerPcnt    bool
	DisableProfitBankUpperPcnt  bool
	DisableProfitBankFibHigh    bool
	DisableProfitBankReversal   bool
	SellAtResistance            bool

	SellAtLoss        bool
	NoBuyNearHighPcnt float64

	// Optional thresholds; nil means not configured.
	SellUpperPcnt           *float64
	SellLowerPcnt           *float64
	TrailingStopLoss        *float64
	TrailingStopLossTrigger float64

	AutoRestart     bool
	EnableWebsocket bool

	BinanceAPIKey    string
	BinanceSecretKey string

	TelegramToken  string
	TelegramChatID int64

	DatabaseDSN string

	LogLevel string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; real environment variables may be set directly
		_ = err
	}

	cfg := &Config{
		Market:   envString("MARKET", "BTC-USDT"),
		Exchange: envString("EXCHANGE", "binance"),

		Granularity: models.Granularity(envInt("GRANULARITY", int(models.OneHour))),
		SmartSwitch: envBool("SMART_SWITCH", true),

		Live:       envBool("LIVE", false),
		Simulation: envBool("SIM", false),
		SimSpeed:   envString("SIM_SPEED", "fast"),

		TakerFee:    envFloat("TAKER_FEE", 0.005),
		SellPercent: envFloat("SELL_PERCENT", 100),
		BuyMaxSize:  envFloat("BUY_MAX_SIZE", 0),

		DisableBuyEMA:      envBool("DISABLE_BUY_EMA", false),
		DisableBuyMACD:     envBool("DISABLE_BUY_MACD", false),
		DisableBullOnly:    envBool("DISABLE_BULL_ONLY", false),
		DisableBuyOBV:      envBool("DISABLE_BUY_OBV", false),
		DisableBuyElderRay: envBool("DISABLE_BUY_ELDER_RAY", false),

		DisableFailsafeFibonacciLow: envBool("DISABLE_FAILSAFE_FIBONACCI_LOW", false),
		DisableFailsafeLowerPcnt:    envBool("DISABLE_FAILSAFE_LOWER_PCNT", false),
		DisableProfitBankUpperPcnt:  envBool("DISABLE_PROFIT_BANK_UPPER_PCNT", false),
		DisableProfitBankFibHigh:    envBool("DISABLE_PROFIT_BANK_FIBONACCI_HIGH", false),
		DisableProfitBankReversal:   envBool("DISABLE_PROFIT_BANK_REVERSAL", false),
		SellAtResistance:            envBool("SELL_AT_RESISTANCE", false),

		SellAtLoss:        envBool("SELL_AT_LOSS", true),
		NoBuyNearHighPcnt: envFloat("NO_BUY_NEAR_HIGH_PCNT", 3),

		SellUpperPcnt:           envFloatPtr("SELL_UPPER_PCNT"),
		SellLowerPcnt:           envFloatPtr("SELL_LOWER_PCNT"),
		TrailingStopLoss:        envFloatPtr("TRAILING_STOP_LOSS"),
		TrailingStopLossTrigger: envFloat("TRAILING_STOP_LOSS_TRIGGER", 0),

		AutoRestart:     envBool("AUTO_RESTART", true),
		EnableWebsocket: envBool("WEBSOCKET", false),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: int64(envInt("TELEGRAM_CHAT_ID", 0)),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		LogLevel: envString("LOG_LEVEL", "info"),
	}

	if start := os.Getenv("SIM_START"); start != "" {
		t, err := parseDate(start)
		if err != nil {
			return nil, fmt.Errorf("parsing SIM_START: %w", err)
		}
		cfg.SimStart = t
	}
	if end := os.Getenv("SIM_END"); end != "" && end != "now" {
		t, err := parseDate(end)
		if err != nil {
			return nil, fmt.Errorf("parsing SIM_END: %w", err)
		}
		cfg.SimEnd = t
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Granularity.Valid() {
		return fmt.Errorf("unsupported granularity: %d", int(c.Granularity))
	}
	if c.Exchange != "coinbase" && c.Exchange != "binance" {
		return fmt.Errorf("unsupported exchange: %s", c.Exchange)
	}
	if c.Simulation && c.SimSpeed != "fast" && c.SimSpeed != "slow" {
		return fmt.Errorf("sim speed must be fast or slow, got %q", c.SimSpeed)
	}
	if c.Live && c.Simulation {
		return fmt.Errorf("live and sim modes are mutually exclusive")
	}
	if c.SellPercent <= 0 || c.SellPercent > 100 {
		return fmt.Errorf("sell percent must be within (0, 100], got %v", c.SellPercent)
	}
	if c.SellLowerPcnt != nil && *c.SellLowerPcnt >= 0 {
		return fmt.Errorf("sell lower pcnt must be negative, got %v", *c.SellLowerPcnt)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date format: %q", s)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envFloatPtr(key string) *float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}
