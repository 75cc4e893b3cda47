package patterns

import (
	"trading-fusion-engine/internal/market"
)

// isHammer: long lower wick, small upper wick, after a down candle.
func isHammer(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if c.LowerWick() < body*2 {
		return false
	}
	if c.UpperWick() > body*0.3 {
		return false
	}
	if prev != nil && prev.Close >= prev.Open {
		return false
	}
	return true
}

// isShootingStar: long upper wick, small lower wick, after an up candle.
func isShootingStar(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if c.UpperWick() < body*2 {
		return false
	}
	if c.LowerWick() > body*0.3 {
		return false
	}
	if prev != nil && prev.Close <= prev.Open {
		return false
	}
	return true
}

// isHangingMan: hammer geometry appearing after an up candle.
func isHangingMan(c market.Candle, prev *market.Candle) bool {
	body := c.Body()
	if c.LowerWick() < body*2 {
		return false
	}
	if c.UpperWick() > body*0.3 {
		return false
	}
	// Requires a preceding uptrend; without context it is not a hanging man.
	return prev != nil && prev.Close > prev.Open
}

// isDoji: body under 10% of range.
func isDoji(c market.Candle) bool {
	r := c.Range()
	if r == 0 {
		return false
	}
	return c.Body() < r*0.1
}

// isDragonflyDoji: doji with the body at the top of a long lower shadow.
func isDragonflyDoji(c market.Candle) bool {
	r := c.Range()
	if r == 0 || c.Body() > r*0.1 {
		return false
	}
	return c.LowerWick() > r*0.6 && c.UpperWick() < r*0.15
}

// isGravestoneDoji: doji with the body at the bottom of a long upper shadow.
func isGravestoneDoji(c market.Candle) bool {
	r := c.Range()
	if r == 0 || c.Body() > r*0.1 {
		return false
	}
	return c.UpperWick() > r*0.6 && c.LowerWick() < r*0.15
}

// isBullishEngulfing: bearish candle fully engulfed by the next bullish body.
func isBullishEngulfing(c1, c2 market.Candle) bool {
	if c1.Close >= c1.Open {
		return false
	}
	if c2.Close <= c2.Open {
		return false
	}
	return c2.Open <= c1.Close && c2.Close >= c1.Open
}

// isBearishEngulfing: bullish candle fully engulfed by the next bearish body.
func isBearishEngulfing(c1, c2 market.Candle) bool {
	if c1.Close <= c1.Open {
		return false
	}
	if c2.Close >= c2.Open {
		return false
	}
	return c2.Open >= c1.Close && c2.Close <= c1.Open
}

// isBullishHarami: small bullish body inside a large bearish one.
func isBullishHarami(c1, c2 market.Candle) bool {
	if c1.Close >= c1.Open {
		return false
	}
	if c2.Close <= c2.Open {
		return false
	}
	if c2.Body() > c1.Body()*0.6 {
		return false
	}
	return c2.Open > c1.Close && c2.Close < c1.Open
}

// isBearishHarami: small bearish body inside a large bullish one.
func isBearishHarami(c1, c2 market.Candle) bool {
	if c1.Close <= c1.Open {
		return false
	}
	if c2.Close >= c2.Open {
		return false
	}
	if c2.Body() > c1.Body()*0.6 {
		return false
	}
	return c2.Open < c1.Close && c2.Close > c1.Open
}

// isMorningStar: long bearish, small indecision body, long bullish closing
// above the midpoint of the first.
func (d *Detector) isMorningStar(c1, c2, c3 market.Candle) bool {
	if c1.Close >= c1.Open {
		return false
	}
	if c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyFraction {
		return false
	}
	if c2.Body() > c1.Body()*0.4 {
		return false
	}
	if c3.Close <= c3.Open {
		return false
	}
	if c3.Range() == 0 || c3.Body() < c3.Range()*d.minBodyFraction {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close >= midpoint
}

// isEveningStar: mirrored morning star.
func (d *Detector) isEveningStar(c1, c2, c3 market.Candle) bool {
	if c1.Close <= c1.Open {
		return false
	}
	if c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyFraction {
		return false
	}
	if c2.Body() > c1.Body()*0.4 {
		return false
	}
	if c3.Close >= c3.Open {
		return false
	}
	if c3.Range() == 0 || c3.Body() < c3.Range()*d.minBodyFraction {
		return false
	}
	midpoint := (c1.Open + c1.Close) / 2
	return c3.Close <= midpoint
}

// isThreeSoldiers: three consecutive bullish candles, each closing higher,
// each opening within the prior body.
func isThreeSoldiers(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if c.Close <= c.Open || (c.Range() > 0 && c.Body() < c.Range()*0.5) {
			return false
		}
	}
	return c2.Close > c1.Close && c3.Close > c2.Close &&
		c2.Open >= c1.Open && c2.Open <= c1.Close &&
		c3.Open >= c2.Open && c3.Open <= c2.Close
}

// isThreeCrows: mirrored three soldiers.
func isThreeCrows(c1, c2, c3 market.Candle) bool {
	for _, c := range []market.Candle{c1, c2, c3} {
		if c.Close >= c.Open || (c.Range() > 0 && c.Body() < c.Range()*0.5) {
			return false
		}
	}
	return c2.Close < c1.Close && c3.Close < c2.Close &&
		c2.Open <= c1.Open && c2.Open >= c1.Close &&
		c3.Open <= c2.Open && c3.Open >= c2.Close
}
