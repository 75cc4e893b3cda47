package indicator

import (
	"math"

	"trading-fusion-engine/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average over the last period closes.
func SMA(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average seeded with an SMA.
func EMA(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	ema := SMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// RSI
// ============================================================================

// RSI calculates the Relative Strength Index. Returns 50 (neutral) when the
// series is too short.
func RSI(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds MACD indicator values.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

func emaSeries(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}

// MACD calculates the MACD line, its signal line (EMA of the MACD series) and
// the histogram.
func MACD(candles []market.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fast[i] - slow[i]
	}

	signal := emaSeries(macd[slowPeriod-1:], signalPeriod)
	line := macd[len(macd)-1]
	sig := signal[len(signal)-1]

	return &MACDResult{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// Bands holds Bollinger Bands values.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands calculates bands around an SMA midline.
func BollingerBands(candles []market.Candle, period int, stdDevMultiplier float64) *Bands {
	if len(candles) < period {
		return &Bands{}
	}

	middle := SMA(candles, period)
	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &Bands{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// ============================================================================
// ATR
// ============================================================================

// ATR calculates the Average True Range.
func ATR(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}
	return trSum / float64(period)
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// Stochastic holds %K and %D values.
type Stochastic struct {
	K float64
	D float64
}

func stochK(candles []market.Candle, kPeriod int) float64 {
	if len(candles) < kPeriod {
		return 50
	}

	start := len(candles) - kPeriod
	highest := candles[start].High
	lowest := candles[start].Low
	for i := start; i < len(candles); i++ {
		if candles[i].High > highest {
			highest = candles[i].High
		}
		if candles[i].Low < lowest {
			lowest = candles[i].Low
		}
	}

	if highest == lowest {
		return 50
	}
	return (candles[len(candles)-1].Close - lowest) / (highest - lowest) * 100
}

// StochasticOscillator calculates %K and %D (SMA of %K over dPeriod).
func StochasticOscillator(candles []market.Candle, kPeriod, dPeriod int) *Stochastic {
	if len(candles) < kPeriod+dPeriod {
		return &Stochastic{K: 50, D: 50}
	}

	dSum := 0.0
	for i := 0; i < dPeriod; i++ {
		dSum += stochK(candles[:len(candles)-i], kPeriod)
	}

	return &Stochastic{
		K: stochK(candles, kPeriod),
		D: dSum / float64(dPeriod),
	}
}

// ============================================================================
// ADX
// ============================================================================

// ADX calculates the Average Directional Index from smoothed directional
// movement.
func ADX(candles []market.Candle, period int) float64 {
	if len(candles) < 2*period+1 {
		return 0
	}

	plusSum := 0.0
	minusSum := 0.0
	trSum := 0.0
	dxSum := 0.0
	dxCount := 0

	for i := len(candles) - 2*period; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		plusDM := 0.0
		minusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		prevClose := candles[i-1].Close
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-prevClose), math.Abs(candles[i].Low-prevClose)))

		plusSum += plusDM
		minusSum += minusDM
		trSum += tr

		if i >= len(candles)-period && trSum > 0 {
			plusDI := plusSum / trSum * 100
			minusDI := minusSum / trSum * 100
			if plusDI+minusDI > 0 {
				dxSum += math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
				dxCount++
			}
		}
	}

	if dxCount == 0 {
		return 0
	}
	adx := dxSum / float64(dxCount)
	if adx > 100 {
		adx = 100
	}
	return adx
}

// ============================================================================
// MOMENTUM
// ============================================================================

// Momentum calculates the percentage price change over period bars.
func Momentum(candles []market.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	current := candles[len(candles)-1].Close
	past := candles[len(candles)-period-1].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past * 100
}

// AverageVolume calculates average volume over a period.
func AverageVolume(candles []market.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}
