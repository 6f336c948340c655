// Package indicator computes the signal columns the strategy evaluator
// consumes. Formulas operate on full candle windows; one IndicatorRow is
// produced per candle.
package indicator

import (
	"math"

	"github.com/Alias1177/cryptobot/models"
)

// EMA returns the exponential moving average of values with the given
// period, seeded from the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA returns the simple moving average of values over period, using the
// available prefix while the window is still filling.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		n := period
		if i+1 < period {
			n = i + 1
		} else if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// MACD returns the MACD line (EMA12-EMA26) and its 9-period signal line.
func MACD(closes []float64) (macd, signal []float64) {
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)

	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = ema12[i] - ema26[i]
	}
	signal = EMA(macd, 9)
	return macd, signal
}

// OBV returns the on-balance volume series and its percentage change,
// rounded to two places with the first entry zeroed.
func OBV(candles []models.Candle) (obv, changePct []float64) {
	obv = make([]float64, len(candles))
	changePct = make([]float64, len(candles))

	var running float64
	for i, c := range candles {
		switch {
		case i == 0:
			running += c.Volume
		case c.Close > candles[i-1].Close:
			running += c.Volume
		case c.Close < candles[i-1].Close:
			running -= c.Volume
		}
		obv[i] = running

		if i > 0 && obv[i-1] != 0 {
			changePct[i] = math.Round((obv[i]/obv[i-1]-1)*100*100) / 100
		}
	}
	return obv, changePct
}

// ElderRay returns the elder-ray buy and sell flags from bull power
// (high-EMA13) and bear power (low-EMA13) momentum.
func ElderRay(candles []models.Candle) (buy, sell []bool) {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	ema13 := EMA(closes, 13)

	buy = make([]bool, len(candles))
	sell = make([]bool, len(candles))
	for i := 1; i < len(candles); i++ {
		bull := candles[i].High - ema13[i]
		bear := candles[i].Low - ema13[i]
		prevBull := candles[i-1].High - ema13[i-1]
		prevBear := candles[i-1].Low - ema13[i-1]

		buy[i] = (bear < 0 && bear > prevBear) || bull > prevBull
		sell[i] = (bull > 0 && bull < prevBull) || bear < prevBear
	}
	return buy, sell
}

// crossovers derives the above/below flags plus crossover markers for two
// series. A crossover is the first row where the relation flips.
func crossovers(fast, slow []float64) (above, aboveCross, below, belowCross []bool) {
	n := len(fast)
	above = make([]bool, n)
	aboveCross = make([]bool, n)
	below = make([]bool, n)
	belowCross = make([]bool, n)

	for i := 0; i < n; i++ {
		above[i] = fast[i] > slow[i]
		below[i] = fast[i] < slow[i]
		if i == 0 {
			aboveCross[i] = above[i]
			belowCross[i] = below[i]
			continue
		}
		aboveCross[i] = above[i] && !above[i-1]
		belowCross[i] = below[i] && !below[i-1]
	}
	return above, aboveCross, below, belowCross
}
