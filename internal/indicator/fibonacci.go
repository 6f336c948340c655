package indicator

import (
	"math"

	"github.com/Alias1177/cryptobot/models"
)

// retracement ratios, applied as max - ratio*diff over the window extremes.
var fibRatios = []float64{1, 0.768, 0.618, 0.5, 0.382, 0.286, 0}

// FibonacciBand returns the retracement levels bracketing price over the
// window's close extremes. Low is the nearest level at or below price,
// high the nearest level above. Levels are truncated to two places.
func FibonacciBand(candles []models.Candle, price float64) (low, high float64) {
	if len(candles) == 0 || price <= 0 {
		return 0, 0
	}

	min := candles[0].Close
	max := candles[0].Close
	for _, c := range candles {
		if c.Close < min {
			min = c.Close
		}
		if c.Close > max {
			max = c.Close
		}
	}
	diff := max - min

	levels := make([]float64, len(fibRatios))
	for i, r := range fibRatios {
		levels[i] = truncate2(max - r*diff)
	}

	// levels ascend from min (ratio 1) to max (ratio 0)
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i] <= price {
			low = levels[i]
			if i+1 < len(levels) {
				high = levels[i+1]
			} else {
				// price at or above the window high; project the
				// 0.618 extension
				high = truncate2(max + 0.618*diff)
			}
			return low, high
		}
	}

	// price below the whole window
	return 0, levels[0]
}

func truncate2(v float64) float64 {
	return math.Floor(v*100) / 100
}
