package scorers

import (
	"context"
	"fmt"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

const (
	volumeWindow      = 10
	volumeAvgPeriod   = 20
	spikeRatio        = 2.0
	climaxRatio       = 3.0
	divergencePenalty = 20
)

// VolumeScorer measures whether volume backs the current move. Direction
// comes from price; volume only grades conviction, so the component votes
// with the move it confirms and never against it.
type VolumeScorer struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	candles    market.Provider
	cache      *resultCache
}

// NewVolumeScorer creates the volume confirmation scorer.
func NewVolumeScorer(symbol string, cfg Config, indicators *indicator.Cache, candles market.Provider) *VolumeScorer {
	return &VolumeScorer{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		candles:    candles,
		cache:      newResultCache(cfg.CacheTTL),
	}
}

// Evaluate produces the volume component signal.
func (s *VolumeScorer) Evaluate(ctx context.Context, shift int) *signal.ComponentSignal {
	if cached := s.cache.get(s.symbol, shift); cached != nil {
		return cached
	}

	need := shift + volumeWindow + volumeAvgPeriod + 1
	candles, err := s.candles.Candles(ctx, s.symbol, s.cfg.Timeframe, need)
	if err != nil || len(candles) < shift+volumeWindow+2 {
		sig := signal.Neutral(signal.ComponentVolume, s.symbol, "insufficient volume history")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}
	if shift > 0 && len(candles) > shift {
		candles = candles[:len(candles)-shift]
	}

	window := candles[len(candles)-volumeWindow:]
	avgVol := indicator.AverageVolume(candles[:len(candles)-1], volumeAvgPeriod)
	if avgVol <= 0 {
		sig := signal.Neutral(signal.ComponentVolume, s.symbol, "no volume data")
		s.cache.set(s.symbol, shift, sig)
		return sig
	}

	// Count bars where volume moved with conviction in the bar's direction.
	upConfirmed, downConfirmed := 0, 0
	for _, c := range window {
		if c.Volume < avgVol {
			continue
		}
		if c.Bullish() {
			upConfirmed++
		} else if c.Close < c.Open {
			downConfirmed++
		}
	}

	last := window[len(window)-1]
	netMove := last.Close - window[0].Open
	bias := signal.BiasNeutral
	confirmed := 0
	switch {
	case netMove > 0:
		bias = signal.BiasBullish
		confirmed = upConfirmed
	case netMove < 0:
		bias = signal.BiasBearish
		confirmed = downConfirmed
	}

	lastRatio := last.Volume / avgVol
	conviction := convictionScore(lastRatio)

	// Divergence: price extending but volume drying up on the last bars.
	diverging := false
	if bias != signal.BiasNeutral && len(window) >= 4 {
		recentAvg := (window[len(window)-1].Volume + window[len(window)-2].Volume) / 2
		earlierAvg := (window[0].Volume + window[1].Volume) / 2
		if earlierAvg > 0 && recentAvg < earlierAvg*0.6 && recentAvg < avgVol {
			diverging = true
		}
	}
	climax := lastRatio >= climaxRatio

	score := signal.Clamp(conviction + float64(confirmed)*4)
	if lastRatio >= spikeRatio {
		score = signal.Clamp(score + 10)
	}
	if diverging {
		score = signal.Clamp(score - divergencePenalty)
	}

	confidence := signal.Clamp(0.6*score + float64(confirmed)*3)
	if diverging {
		confidence = signal.Clamp(confidence - divergencePenalty)
	}
	if climax {
		// Exhaustion risk; the move is confirmed but likely late.
		confidence = signal.Clamp(confidence * 0.85)
	}
	if score < 25 {
		bias = signal.BiasNeutral
	}

	detail := fmt.Sprintf("ratio %.2f confirmed %d/%d", lastRatio, confirmed, volumeWindow)
	if diverging {
		detail += " diverging"
	}
	if climax {
		detail += " climax"
	}

	sig := &signal.ComponentSignal{
		Component:  signal.ComponentVolume,
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

// convictionScore maps a volume-to-average ratio onto a base score.
func convictionScore(ratio float64) float64 {
	switch {
	case ratio < 0.5:
		return 20
	case ratio < 0.8:
		return 35
	case ratio < 1.2:
		return 50
	case ratio < 2.0:
		return 70
	case ratio < 3.0:
		return 85
	}
	return 95
}

// CleanupExpired ages out the result cache.
func (s *VolumeScorer) CleanupExpired() { s.cache.cleanupExpired() }
