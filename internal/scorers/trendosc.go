package scorers

import (
	"context"
	"fmt"
	"math"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

const (
	divergenceHalfWindow = 12 // bars per comparison half
	divergenceConfidence = 95
)

// crossEvent classifies what happened between the previous and current bar.
type crossEvent int

const (
	crossNone crossEvent = iota
	crossBullish
	crossBearish
	zeroCrossUp
	zeroCrossDown
)

// TrendOscScorer reads the trend oscillator (MACD family). Crossovers and
// zero-line crossings override plain trend classification; divergence against
// price extremes overrides everything at maximal confidence. The final
// confidence cross-checks the momentum oscillator, the trend-strength
// oscillator and the multi-timeframe consensus.
type TrendOscScorer struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	candles    market.Provider
	cache      *resultCache
}

// NewTrendOscScorer creates the trend oscillator scorer.
func NewTrendOscScorer(symbol string, cfg Config, indicators *indicator.Cache, candles market.Provider) *TrendOscScorer {
	return &TrendOscScorer{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		candles:    candles,
		cache:      newResultCache(cfg.CacheTTL),
	}
}

// Evaluate produces the trend oscillator component signal. The consensus
// result may be nil when unavailable; the cross-check is then skipped.
func (s *TrendOscScorer) Evaluate(ctx context.Context, shift int, consensus *signal.ConsensusResult) *signal.ComponentSignal {
	if cached := s.cache.get(s.symbol, shift); cached != nil {
		return cached
	}

	line := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, shift)
	sigLine := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDSignal, shift)
	hist := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDHist, shift)
	if line.Source == indicator.SourceDefault && sigLine.Source == indicator.SourceDefault {
		sig := signal.Neutral(signal.ComponentTrendOsc, s.symbol, "trend oscillator unavailable")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}

	prevLine := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, shift+1)
	prevSig := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDSignal, shift+1)

	event := classifyEvent(prevLine.Value, prevSig.Value, line.Value, sigLine.Value)

	price := s.referencePrice(ctx, shift)
	if price <= 0 {
		sig := signal.Neutral(signal.ComponentTrendOsc, s.symbol, "no reference price")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}

	// Bias: divergence > cross events > plain position.
	divBias := s.detectDivergence(ctx, shift)
	bias := positionBias(line.Value, sigLine.Value)
	override := ""
	switch {
	case divBias != signal.BiasNeutral:
		bias = divBias
		override = "divergence"
	case event == crossBullish:
		bias = signal.BiasBullish
		override = "signal cross"
	case event == crossBearish:
		bias = signal.BiasBearish
		override = "signal cross"
	case event == zeroCrossUp:
		bias = signal.BiasBullish
		override = "zero cross"
	case event == zeroCrossDown:
		bias = signal.BiasBearish
		override = "zero cross"
	}

	// Four bounded score contributions.
	lineDelta := signal.Clamp(math.Abs(line.Value-sigLine.Value) / price * 12000) // 0..100 -> weighted 0..30
	zeroDist := signal.Clamp(math.Abs(line.Value) / price * 8000)
	histMag := signal.Clamp(math.Abs(hist.Value) / price * 8000)
	eventBonus := 0.0
	switch event {
	case crossBullish, crossBearish:
		eventBonus = 15
	case zeroCrossUp, zeroCrossDown:
		eventBonus = 10
	}
	score := signal.Clamp(0.30*lineDelta + 0.20*zeroDist + 0.20*histMag + eventBonus)

	confidence := 0.0
	if divBias != signal.BiasNeutral {
		confidence = divergenceConfidence
		score = signal.Clamp(score + 20)
	} else {
		confidence = 0.5 * score
		confidence += eventBonus
		if s.slopeConsistent(ctx, shift, hist.Value) {
			confidence += 10
		}
		if line.Value*hist.Value > 0 {
			confidence += 5 // zero-line alignment
		}
		confidence += s.crossChecks(ctx, shift, bias, consensus)
	}
	confidence = signal.Clamp(confidence)

	detail := fmt.Sprintf("line %.5g signal %.5g hist %.5g", line.Value, sigLine.Value, hist.Value)
	if override != "" {
		detail += " [" + override + "]"
	}

	sig := &signal.ComponentSignal{
		Component:  signal.ComponentTrendOsc,
		Symbol:     s.symbol,
		Bias:       bias,
		Score:      score,
		Confidence: confidence,
		Detail:     detail,
		Degraded:   line.Degraded || sigLine.Degraded,
		Timestamp:  time.Now(),
	}
	s.cache.set(s.symbol, shift, sig)
	return sig
}

func classifyEvent(prevLine, prevSig, line, sigLine float64) crossEvent {
	switch {
	case prevLine <= prevSig && line > sigLine:
		return crossBullish
	case prevLine >= prevSig && line < sigLine:
		return crossBearish
	case prevLine <= 0 && line > 0:
		return zeroCrossUp
	case prevLine >= 0 && line < 0:
		return zeroCrossDown
	}
	return crossNone
}

func positionBias(line, sigLine float64) signal.Bias {
	switch {
	case line > sigLine && line > 0:
		return signal.BiasBullish
	case line < sigLine && line < 0:
		return signal.BiasBearish
	case line > sigLine:
		return signal.BiasBullish
	case line < sigLine:
		return signal.BiasBearish
	}
	return signal.BiasNeutral
}

// detectDivergence compares the last two price extremes against the
// oscillator values at those bars: price pushing further while the oscillator
// retreats is a reversal signal.
func (s *TrendOscScorer) detectDivergence(ctx context.Context, shift int) signal.Bias {
	candles, err := s.candles.Candles(ctx, s.symbol, s.cfg.Timeframe, shift+2*divergenceHalfWindow+1)
	if err != nil || len(candles) < shift+2*divergenceHalfWindow+1 {
		return signal.BiasNeutral
	}
	if shift > 0 {
		candles = candles[:len(candles)-shift]
	}

	n := len(candles)
	recent := candles[n-divergenceHalfWindow:]
	earlier := candles[n-2*divergenceHalfWindow : n-divergenceHalfWindow]

	recentHiIdx, recentLoIdx := extremaIndexes(recent)
	earlierHiIdx, earlierLoIdx := extremaIndexes(earlier)

	// Bar index -> shift from the newest bar.
	toShift := func(base, idx int) int { return shift + (n - 1 - (base + idx)) }

	recentHi := recent[recentHiIdx].High
	earlierHi := earlier[earlierHiIdx].High
	recentLo := recent[recentLoIdx].Low
	earlierLo := earlier[earlierLoIdx].Low

	oscAtRecentHi := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, toShift(n-divergenceHalfWindow, recentHiIdx))
	oscAtEarlierHi := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, toShift(n-2*divergenceHalfWindow, earlierHiIdx))
	if recentHi > earlierHi && oscAtRecentHi.Value < oscAtEarlierHi.Value &&
		oscAtRecentHi.Source == indicator.SourceProvider && oscAtEarlierHi.Source == indicator.SourceProvider {
		return signal.BiasBearish
	}

	oscAtRecentLo := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, toShift(n-divergenceHalfWindow, recentLoIdx))
	oscAtEarlierLo := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, toShift(n-2*divergenceHalfWindow, earlierLoIdx))
	if recentLo < earlierLo && oscAtRecentLo.Value > oscAtEarlierLo.Value &&
		oscAtRecentLo.Source == indicator.SourceProvider && oscAtEarlierLo.Source == indicator.SourceProvider {
		return signal.BiasBullish
	}

	return signal.BiasNeutral
}

func extremaIndexes(candles []market.Candle) (hiIdx, loIdx int) {
	for i, c := range candles {
		if c.High > candles[hiIdx].High {
			hiIdx = i
		}
		if c.Low < candles[loIdx].Low {
			loIdx = i
		}
	}
	return hiIdx, loIdx
}

// slopeConsistent reports whether the histogram held its sign over the last
// three bars.
func (s *TrendOscScorer) slopeConsistent(ctx context.Context, shift int, current float64) bool {
	if current == 0 {
		return false
	}
	for i := 1; i <= 2; i++ {
		h := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDHist, shift+i)
		if h.Source == indicator.SourceDefault || h.Value*current <= 0 {
			return false
		}
	}
	return true
}

// crossChecks scores agreement with the momentum oscillator, the
// trend-strength oscillator and the multi-timeframe consensus.
func (s *TrendOscScorer) crossChecks(ctx context.Context, shift int, bias signal.Bias, consensus *signal.ConsensusResult) float64 {
	adj := 0.0

	rsi := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindRSI, shift)
	if rsi.Source != indicator.SourceDefault {
		rsiBias := signal.BiasNeutral
		if rsi.Value > 53 {
			rsiBias = signal.BiasBullish
		} else if rsi.Value < 47 {
			rsiBias = signal.BiasBearish
		}
		switch {
		case rsiBias == bias && bias != signal.BiasNeutral:
			adj += 5
		case rsiBias == bias.Opposite() && bias != signal.BiasNeutral:
			adj -= 5
		}
	}

	adx := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindADX, shift)
	if adx.Source != indicator.SourceDefault && adx.Value > 25 {
		adj += 5
	}

	if consensus != nil && bias != signal.BiasNeutral {
		switch {
		case consensus.Dominant == bias:
			adj += 10
		case consensus.Dominant == bias.Opposite():
			adj -= 10
		}
	}
	return adj
}

func (s *TrendOscScorer) referencePrice(ctx context.Context, shift int) float64 {
	candles, err := s.candles.Candles(ctx, s.symbol, s.cfg.Timeframe, shift+2)
	if err != nil || len(candles) <= shift {
		return 0
	}
	return candles[len(candles)-1-shift].Close
}

// CleanupExpired ages out the result cache. Maintenance path only.
func (s *TrendOscScorer) CleanupExpired() { s.cache.cleanupExpired() }
