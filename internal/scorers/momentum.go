package scorers

import (
	"context"
	"fmt"
	"math"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/signal"
)

const (
	momentumNeutralBand = 3.0 // distance from the midpoint treated as flat
	momentumSlopeBars   = 3
	persistenceWindow   = 5
)

// MomentumScorer reads the momentum oscillator (RSI family): bias from the
// distance to the neutral midpoint and the short-window slope, confidence
// boosted for overbought/oversold extremity and directional persistence.
type MomentumScorer struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	cache      *resultCache
}

// NewMomentumScorer creates the momentum oscillator scorer.
func NewMomentumScorer(symbol string, cfg Config, indicators *indicator.Cache) *MomentumScorer {
	return &MomentumScorer{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		cache:      newResultCache(cfg.CacheTTL),
	}
}

// Evaluate produces the momentum component signal at the given bar shift.
func (s *MomentumScorer) Evaluate(ctx context.Context, shift int) *signal.ComponentSignal {
	if cached := s.cache.get(s.symbol, shift); cached != nil {
		return cached
	}

	current := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindRSI, shift)
	if current.Source == indicator.SourceDefault {
		sig := signal.Neutral(signal.ComponentMomentum, s.symbol, "momentum oscillator unavailable")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}

	past := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindRSI, shift+momentumSlopeBars)
	slope := 0.0
	if past.Source != indicator.SourceDefault {
		slope = current.Value - past.Value
	}

	distance := current.Value - 50.0
	bias := signal.BiasNeutral
	switch {
	case distance > momentumNeutralBand && slope >= 0:
		bias = signal.BiasBullish
	case distance < -momentumNeutralBand && slope <= 0:
		bias = signal.BiasBearish
	case math.Abs(slope) > math.Abs(distance) && slope > 2:
		bias = signal.BiasBullish
	case math.Abs(slope) > math.Abs(distance) && slope < -2:
		bias = signal.BiasBearish
	}

	// Score from midpoint distance, topped up by slope magnitude.
	score := signal.Clamp(math.Abs(distance)*2.0 + math.Abs(slope)*1.5)
	if bias == signal.BiasNeutral {
		score = signal.Clamp(math.Abs(distance) * 1.2)
	}

	confidence := score * 0.8
	extreme := current.Value >= 70 || current.Value <= 30
	if extreme {
		confidence += 15
	}
	confidence += s.persistenceBonus(ctx, shift, distance)
	confidence = signal.Clamp(confidence)

	detail := fmt.Sprintf("rsi %.1f slope %.1f", current.Value, slope)
	if extreme {
		detail += " (extreme)"
	}

	sig := &signal.ComponentSignal{
		Component:  signal.ComponentMomentum,
		Symbol:     s.symbol,
		Bias:       bias,
		Score:      score,
		Confidence: confidence,
		Detail:     detail,
		Degraded:   current.Degraded,
		Timestamp:  time.Now(),
	}
	s.cache.set(s.symbol, shift, sig)
	return sig
}

// persistenceBonus rewards the oscillator holding one side of the midpoint
// across the trailing window.
func (s *MomentumScorer) persistenceBonus(ctx context.Context, shift int, distance float64) float64 {
	if math.Abs(distance) <= momentumNeutralBand {
		return 0
	}

	consistent := 0
	for i := 1; i <= persistenceWindow; i++ {
		r := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindRSI, shift+i)
		if r.Source == indicator.SourceDefault {
			break
		}
		if (distance > 0) == (r.Value > 50) {
			consistent++
		} else {
			break
		}
	}
	return float64(consistent) * 3.0
}

// CleanupExpired ages out the result cache. Maintenance path only.
func (s *MomentumScorer) CleanupExpired() { s.cache.cleanupExpired() }
