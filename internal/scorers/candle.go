package scorers

import (
	"context"
	"fmt"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/patterns"
	"trading-fusion-engine/internal/signal"
)

const (
	candleLookback      = 30
	confirmBoost        = 1.15
	actionableThreshold = 75
	actionableConfirms  = 2
	rewardATRMult       = 2.0
	stopATRMult         = 1.0
)

// CandleScorer finds the strongest recent candlestick formation and grades it
// against the broader indicator context. A formation alone is a weak signal;
// two or more agreeing confirmations make it actionable.
type CandleScorer struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	candles    market.Provider
	detector   *patterns.Detector
	cache      *resultCache
}

// NewCandleScorer creates the candlestick formation scorer.
func NewCandleScorer(symbol string, cfg Config, indicators *indicator.Cache, candles market.Provider) *CandleScorer {
	return &CandleScorer{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		candles:    candles,
		detector:   patterns.NewDetector(0.6, 5),
		cache:      newResultCache(cfg.CacheTTL),
	}
}

// Evaluate produces the candlestick component signal.
func (s *CandleScorer) Evaluate(ctx context.Context, shift int) *signal.ComponentSignal {
	if cached := s.cache.get(s.symbol, shift); cached != nil {
		return cached
	}

	candles, err := s.candles.Candles(ctx, s.symbol, s.cfg.Timeframe, shift+candleLookback)
	if err != nil || len(candles) < shift+5 {
		sig := signal.Neutral(signal.ComponentCandle, s.symbol, "insufficient candle history")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}
	if shift > 0 {
		candles = candles[:len(candles)-shift]
	}

	match := s.detector.Best(candles)
	if match == nil {
		sig := signal.Neutral(signal.ComponentCandle, s.symbol, "no formation")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}

	bias := match.Direction
	confirms, checked := s.confirmations(ctx, shift, bias, candles)

	confidence := match.Confidence * 100
	if confirms >= actionableConfirms {
		confidence = signal.Clamp(confidence * confirmBoost)
	}
	score := signal.Clamp(confidence * 0.9)

	actionable := confidence >= actionableThreshold && confirms >= actionableConfirms

	detail := fmt.Sprintf("%s confirms %d/%d", match.Formation, confirms, checked)
	if rr := s.riskReward(ctx, shift, bias, candles); rr != "" {
		detail += " " + rr
	}
	if actionable {
		detail += " actionable"
	}

	sig := &signal.ComponentSignal{
		Component:  signal.ComponentCandle,
		Symbol:     s.symbol,
		Bias:       bias,
		Score:      score,
		Confidence: confidence,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
	s.cache.set(s.symbol, shift, sig)
	return sig
}

// confirmations counts indicator readings that agree with the formation's
// direction. Degraded defaults do not count either way.
func (s *CandleScorer) confirmations(ctx context.Context, shift int, bias signal.Bias, candles []market.Candle) (agree, checked int) {
	price := candles[len(candles)-1].Close
	bull := bias == signal.BiasBullish

	line := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDLine, shift)
	sigLine := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMACDSignal, shift)
	if line.Source != indicator.SourceDefault && sigLine.Source != indicator.SourceDefault {
		checked++
		if (bull && line.Value > sigLine.Value) || (!bull && line.Value < sigLine.Value) {
			agree++
		}
	}

	rsi := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindRSI, shift)
	if rsi.Source != indicator.SourceDefault {
		checked++
		if (bull && rsi.Value > 50) || (!bull && rsi.Value < 50) {
			agree++
		}
	}

	adx := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindADX, shift)
	if adx.Source != indicator.SourceDefault {
		checked++
		if adx.Value > 25 {
			agree++
		}
	}

	k := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindStochK, shift)
	d := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindStochD, shift)
	if k.Source != indicator.SourceDefault && d.Source != indicator.SourceDefault {
		checked++
		if (bull && k.Value > d.Value) || (!bull && k.Value < d.Value) {
			agree++
		}
	}

	upper := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindBandUpper, shift)
	lower := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindBandLower, shift)
	if upper.Source != indicator.SourceDefault && lower.Source != indicator.SourceDefault && upper.Value > lower.Value {
		checked++
		pos := (price - lower.Value) / (upper.Value - lower.Value)
		// Reversal formations work best near the band the move would leave.
		if (bull && pos < 0.35) || (!bull && pos > 0.65) {
			agree++
		}
	}

	ma := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindMAMedium, shift)
	if ma.Source != indicator.SourceDefault {
		checked++
		if (bull && price > ma.Value) || (!bull && price < ma.Value) {
			agree++
		}
	}

	return agree, checked
}

// riskReward sketches an ATR-based stop and target for the formation.
func (s *CandleScorer) riskReward(ctx context.Context, shift int, bias signal.Bias, candles []market.Candle) string {
	atr := s.indicators.Get(ctx, s.cfg.Timeframe, indicator.KindATR, shift)
	if atr.Source == indicator.SourceDefault || atr.Value <= 0 {
		return ""
	}
	price := candles[len(candles)-1].Close
	var stop, target float64
	switch bias {
	case signal.BiasBullish:
		stop = price - stopATRMult*atr.Value
		target = price + rewardATRMult*atr.Value
	case signal.BiasBearish:
		stop = price + stopATRMult*atr.Value
		target = price - rewardATRMult*atr.Value
	default:
		return ""
	}
	return fmt.Sprintf("stop %.5g target %.5g rr %.1f", stop, target, rewardATRMult/stopATRMult)
}

// CleanupExpired ages out the result cache.
func (s *CandleScorer) CleanupExpired() { s.cache.cleanupExpired() }
