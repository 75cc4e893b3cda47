// Package patterns detects candlestick formations over a short rolling
// window. Detection returns the highest-confidence match; corroboration and
// actionability live with the candlestick scorer, not here.
package patterns

import (
	"time"

	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

// Formation identifies a candlestick pattern.
type Formation int

const (
	FormationNone Formation = iota
	Hammer
	ShootingStar
	HangingMan
	Doji
	DragonflyDoji
	GravestoneDoji
	BullishEngulfing
	BearishEngulfing
	BullishHarami
	BearishHarami
	MorningStar
	EveningStar
	ThreeWhiteSoldiers
	ThreeBlackCrows
)

func (f Formation) String() string {
	switch f {
	case Hammer:
		return "hammer"
	case ShootingStar:
		return "shooting_star"
	case HangingMan:
		return "hanging_man"
	case Doji:
		return "doji"
	case DragonflyDoji:
		return "dragonfly_doji"
	case GravestoneDoji:
		return "gravestone_doji"
	case BullishEngulfing:
		return "bullish_engulfing"
	case BearishEngulfing:
		return "bearish_engulfing"
	case BullishHarami:
		return "bullish_harami"
	case BearishHarami:
		return "bearish_harami"
	case MorningStar:
		return "morning_star"
	case EveningStar:
		return "evening_star"
	case ThreeWhiteSoldiers:
		return "three_white_soldiers"
	case ThreeBlackCrows:
		return "three_black_crows"
	default:
		return "none"
	}
}

// Match is one detected formation.
type Match struct {
	Formation   Formation   `json:"formation"`
	Direction   signal.Bias `json:"direction"`
	Confidence  float64     `json:"confidence"` // 0..1 base confidence
	CandleIndex int         `json:"candle_index"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// Detector scans candles for formations.
type Detector struct {
	minBodyFraction float64 // minimum body as fraction of range for "long" candles
	window          int     // rolling window scanned from the newest bar back
}

// NewDetector creates a pattern detector. Zero arguments select defaults.
func NewDetector(minBodyFraction float64, window int) *Detector {
	if minBodyFraction <= 0 {
		minBodyFraction = 0.6
	}
	if window <= 0 {
		window = 5
	}
	return &Detector{minBodyFraction: minBodyFraction, window: window}
}

// Best scans the trailing window and returns the highest-confidence match,
// or nil when nothing qualifies.
func (d *Detector) Best(candles []market.Candle) *Match {
	matches := d.Detect(candles)
	var best *Match
	for i := range matches {
		if best == nil || matches[i].Confidence > best.Confidence {
			best = &matches[i]
		}
	}
	return best
}

// Detect returns every formation found in the trailing window. Three-bar
// formations outrank two-bar, which outrank singles, via base confidences;
// matches further from the newest bar decay.
func (d *Detector) Detect(candles []market.Candle) []Match {
	var out []Match
	n := len(candles)
	if n == 0 {
		return out
	}

	start := n - d.window
	if start < 0 {
		start = 0
	}

	for i := n - 1; i >= start; i-- {
		c := candles[i]
		var prev *market.Candle
		if i > 0 {
			prev = &candles[i-1]
		}

		out = d.appendSingles(out, c, prev, i)
		if i >= 1 {
			out = d.appendPairs(out, candles[i-1], c, i)
		}
		if i >= 2 {
			out = d.appendTriples(out, candles[i-2], candles[i-1], c, i)
		}
	}

	for idx := range out {
		age := n - 1 - out[idx].CandleIndex
		out[idx].Confidence *= 1.0 - 0.08*float64(age)
		if out[idx].Confidence < 0 {
			out[idx].Confidence = 0
		}
	}
	return out
}

func (d *Detector) appendSingles(out []Match, c market.Candle, prev *market.Candle, idx int) []Match {
	at := time.UnixMilli(c.CloseTime)

	if isHammer(c, prev) {
		out = append(out, Match{Hammer, signal.BiasBullish, 0.65, idx, at})
	}
	if isShootingStar(c, prev) {
		out = append(out, Match{ShootingStar, signal.BiasBearish, 0.65, idx, at})
	}
	if isHangingMan(c, prev) {
		out = append(out, Match{HangingMan, signal.BiasBearish, 0.60, idx, at})
	}
	if isDragonflyDoji(c) {
		out = append(out, Match{DragonflyDoji, signal.BiasBullish, 0.55, idx, at})
	} else if isGravestoneDoji(c) {
		out = append(out, Match{GravestoneDoji, signal.BiasBearish, 0.55, idx, at})
	} else if isDoji(c) {
		out = append(out, Match{Doji, signal.BiasNeutral, 0.40, idx, at})
	}
	return out
}

func (d *Detector) appendPairs(out []Match, c1, c2 market.Candle, idx int) []Match {
	at := time.UnixMilli(c2.CloseTime)

	if isBullishEngulfing(c1, c2) {
		out = append(out, Match{BullishEngulfing, signal.BiasBullish, pairConfidence(c1, c2, 0.72), idx, at})
	}
	if isBearishEngulfing(c1, c2) {
		out = append(out, Match{BearishEngulfing, signal.BiasBearish, pairConfidence(c1, c2, 0.72), idx, at})
	}
	if isBullishHarami(c1, c2) {
		out = append(out, Match{BullishHarami, signal.BiasBullish, 0.60, idx, at})
	}
	if isBearishHarami(c1, c2) {
		out = append(out, Match{BearishHarami, signal.BiasBearish, 0.60, idx, at})
	}
	return out
}

func (d *Detector) appendTriples(out []Match, c1, c2, c3 market.Candle, idx int) []Match {
	at := time.UnixMilli(c3.CloseTime)

	if d.isMorningStar(c1, c2, c3) {
		out = append(out, Match{MorningStar, signal.BiasBullish, tripleConfidence(c1, c3, 0.78), idx, at})
	}
	if d.isEveningStar(c1, c2, c3) {
		out = append(out, Match{EveningStar, signal.BiasBearish, tripleConfidence(c1, c3, 0.78), idx, at})
	}
	if isThreeSoldiers(c1, c2, c3) {
		out = append(out, Match{ThreeWhiteSoldiers, signal.BiasBullish, 0.75, idx, at})
	}
	if isThreeCrows(c1, c2, c3) {
		out = append(out, Match{ThreeBlackCrows, signal.BiasBearish, 0.75, idx, at})
	}
	return out
}

// pairConfidence bumps the base when the second candle clearly dominates.
func pairConfidence(c1, c2 market.Candle, base float64) float64 {
	if c2.Body() > c1.Body()*1.5 {
		base += 0.08
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

// tripleConfidence bumps the base when the third candle outmuscles the first.
func tripleConfidence(c1, c3 market.Candle, base float64) float64 {
	if c3.Body() > c1.Body()*1.2 {
		base += 0.1
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}
