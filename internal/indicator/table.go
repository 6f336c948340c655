package indicator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/models"
)

// Minimum window sizes for a stable evaluation.
const (
	MinRows      = 300
	MinRowsDaily = 250
)

// MinWindow returns the minimum row count for the granularity.
func MinWindow(g models.Granularity) int {
	if g == models.OneDay {
		return MinRowsDaily
	}
	return MinRows
}

// Compute builds the full indicator table for a candle window. Candles
// must be time-ordered with unique timestamps.
func Compute(candles []models.Candle) ([]models.IndicatorRow, error) {
	if len(candles) < 26 {
		return nil, fmt.Errorf("computing indicators over %d candles: %w",
			len(candles), models.ErrShortHistory)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		if i > 0 && !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return nil, fmt.Errorf("candle %d at %v is not after %v: non-monotonic window",
				i, candles[i].Timestamp, candles[i-1].Timestamp)
		}
	}

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	macd, signal := MACD(closes)
	sma50 := SMA(closes, 50)
	sma200 := SMA(closes, 200)
	obv, obvPct := OBV(candles)
	elderBuy, elderSell := ElderRay(candles)

	emaAbove, emaAboveCo, emaBelow, emaBelowCo := crossovers(ema12, ema26)
	macdAbove, macdAboveCo, macdBelow, macdBelowCo := crossovers(macd, signal)

	rows := make([]models.IndicatorRow, len(candles))
	high := candles[0].Close
	low := candles[0].Close
	for i, c := range candles {
		if c.Close > high {
			high = c.Close
		}
		if c.Close < low {
			low = c.Close
		}

		rows[i] = models.IndicatorRow{
			Candle: c,

			EMA12:        ema12[i],
			EMA26:        ema26[i],
			EMABull:      emaAbove[i],
			EMABullCross: emaAboveCo[i],
			EMABear:      emaBelow[i],
			EMABearCross: emaBelowCo[i],

			MACD:          macd[i],
			MACDSignal:    signal[i],
			MACDBull:      macdAbove[i],
			MACDBullCross: macdAboveCo[i],
			MACDBear:      macdBelow[i],
			MACDBearCross: macdBelowCo[i],

			SMA50:       sma50[i],
			SMA200:      sma200[i],
			GoldenCross: sma50[i] > sma200[i],

			OBV:          obv[i],
			OBVChangePct: obvPct[i],

			ElderBuy:  elderBuy[i],
			ElderSell: elderSell[i],

			Patterns: detectPatterns(candles, i),

			WindowHigh: high,
			WindowLow:  low,
		}
	}
	return rows, nil
}

// Source computes indicator tables over candles from any CandleSource.
type Source struct {
	candles models.CandleSource
	logger  zerolog.Logger
}

// NewSource wraps a candle source into an IndicatorSource.
func NewSource(candles models.CandleSource) *Source {
	return &Source{
		candles: candles,
		logger:  log.With().Str("component", "indicator_source").Logger(),
	}
}

// Fetch returns the indicator table for the most recent window.
func (s *Source) Fetch(ctx context.Context, market string, granularity models.Granularity) ([]models.IndicatorRow, error) {
	candles, err := s.candles.Candles(ctx, market, granularity)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s candles: %w", market, granularity, err)
	}
	if len(candles) < MinWindow(granularity) {
		s.logger.Warn().
			Str("market", market).
			Stringer("granularity", granularity).
			Int("rows", len(candles)).
			Msg("Candle window below evaluation minimum")
		return nil, fmt.Errorf("%s %s window has %d rows: %w",
			market, granularity, len(candles), models.ErrShortHistory)
	}
	return Compute(candles)
}

// FetchWindow returns the indicator table covering [start, end]. Unlike
// Fetch it does not enforce a minimum size; callers validating simulation
// warm-up apply their own bound.
func (s *Source) FetchWindow(ctx context.Context, market string, granularity models.Granularity, start, end time.Time) ([]models.IndicatorRow, error) {
	candles, err := s.candles.CandlesWindow(ctx, market, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s window: %w", market, granularity, err)
	}
	return Compute(candles)
}

// EMABullAt reports whether EMA12 is above EMA26 on the latest row at or
// before the given time. Used by the granularity switch filter.
func EMABullAt(rows []models.IndicatorRow, at time.Time) bool {
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Timestamp.After(at) {
			return rows[i].EMABull
		}
	}
	return false
}
