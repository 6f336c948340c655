package indicator

import (
	"math"

	"github.com/Alias1177/cryptobot/models"
)

// detectPatterns flags candlestick patterns for the candle at index i.
// Multi-candle patterns look back up to three rows and report false near
// the start of the window.
func detectPatterns(candles []models.Candle, i int) models.Patterns {
	var p models.Patterns

	c := candles[i]
	body := c.Open - c.Close
	spread := c.High - c.Low

	p.Hammer = spread > 3*body &&
		(c.Close-c.Low)/(0.001+spread) > 0.6 &&
		(c.Open-c.Low)/(0.001+spread) > 0.6

	p.InvertedHammer = spread > 3*body &&
		(c.High-c.Close)/(0.001+spread) > 0.6 &&
		(c.High-c.Open)/(0.001+spread) > 0.6

	if i >= 1 {
		prev := candles[i-1]

		p.ShootingStar = prev.Open < prev.Close && prev.Close < c.Open &&
			c.High-math.Max(c.Open, c.Close) >= math.Abs(c.Open-c.Close)*3 &&
			math.Min(c.Close, c.Open)-c.Low <= math.Abs(c.Open-c.Close)

		down := c.Open < prev.Open && c.Open > prev.Close &&
			c.Close < prev.Low &&
			c.Low-math.Max(c.Open, c.Close) < math.Abs(c.Open-c.Close)

		if i >= 2 {
			prev2 := candles[i-2]

			p.HangingMan = spread > 4*body &&
				(c.Close-c.Low)/(0.001+spread) >= 0.75 &&
				(c.Open-c.Low)/(0.001+spread) >= 0.75 &&
				prev.High < c.Open && prev2.High < c.Open

			up := c.Open > prev.Open && c.Open < prev.Close &&
				c.Close > prev.High &&
				c.High-math.Max(c.Open, c.Close) < math.Abs(c.Open-c.Close)
			prevUp := prev.Open > prev2.Open && prev.Open < prev2.Close &&
				prev.Close > prev2.High &&
				prev.High-math.Max(prev.Open, prev.Close) < math.Abs(prev.Open-prev.Close)
			p.ThreeWhiteSoldiers = up && prevUp

			prevDown := prev.Open < prev2.Open && prev.Open > prev2.Close &&
				prev.Close < prev2.Low &&
				prev.Low-math.Max(prev.Open, prev.Close) < math.Abs(prev.Open-prev.Close)
			p.ThreeBlackCrows = down && prevDown

			p.TwoBlackGapping = down && prev.High < prev2.Low

			p.MorningStar = math.Max(prev.Open, prev.Close) < prev2.Close &&
				prev2.Close < prev2.Open &&
				c.Close > c.Open && c.Open > math.Max(prev.Open, prev.Close)

			p.EveningStar = math.Min(prev.Open, prev.Close) > prev2.Close &&
				prev2.Close > prev2.Open &&
				c.Close < c.Open && c.Open < math.Min(prev.Open, prev.Close)

			p.AbandonedBaby = c.Open < c.Close &&
				prev.High < c.Low &&
				prev2.Open > prev2.Close &&
				prev.High < prev2.Low

			p.MorningDojiStar = dojiStar(prev2, prev, c, true)
			p.EveningDojiStar = dojiStar(prev2, prev, c, false)

			if i >= 3 {
				prev3 := candles[i-3]
				strike := prev.Open < prev2.Open && prev.Open > prev2.Close &&
					prev.Close < prev2.Low &&
					prev.Low-math.Max(prev.Open, prev.Close) < math.Abs(prev.Open-prev.Close) &&
					prev2.Open < prev3.Open && prev2.Open > prev3.Close &&
					prev2.Close < prev3.Low &&
					prev2.Low-math.Max(prev2.Open, prev2.Close) < math.Abs(prev2.Open-prev2.Close) &&
					c.Open < prev.Low && c.Close > prev3.High
				p.ThreeLineStrike = strike
			}
		}
	}

	return p
}

// dojiStar detects the morning (bullish=true) or evening doji star
// three-candle reversal.
func dojiStar(first, star, last models.Candle, bullish bool) bool {
	firstSpread := first.High - first.Low
	starSpread := star.High - star.Low
	lastSpread := last.High - last.Low
	if firstSpread == 0 || starSpread == 0 || lastSpread == 0 {
		return false
	}

	starBody := math.Abs(star.Close - star.Open)
	doji := starBody/starSpread < 0.1 &&
		star.High-math.Max(star.Close, star.Open) > 3*starBody &&
		math.Min(star.Close, star.Open)-star.Low > 3*starBody

	if !doji {
		return false
	}

	if bullish {
		return first.Close < first.Open &&
			math.Abs(first.Close-first.Open)/firstSpread >= 0.7 &&
			last.Close > last.Open &&
			math.Abs(last.Close-last.Open)/lastSpread >= 0.7 &&
			first.Close > star.Close && first.Close > star.Open &&
			star.Close < last.Open && star.Open < last.Open &&
			last.Close > first.Close
	}
	return first.Close > first.Open &&
		math.Abs(first.Close-first.Open)/firstSpread >= 0.7 &&
		last.Close < last.Open &&
		math.Abs(last.Close-last.Open)/lastSpread >= 0.7 &&
		first.Close < star.Close && first.Close < star.Open &&
		star.Close > last.Open && star.Open > last.Open &&
		last.Close < first.Close
}
