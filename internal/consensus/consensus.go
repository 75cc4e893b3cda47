// Package consensus turns per-timeframe trend classifications into a weighted
// multi-timeframe vote with an alignment filter.
package consensus

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

// Config holds consensus parameters.
type Config struct {
	Timeframes   []market.Timeframe           `json:"timeframes"`
	Weights      map[market.Timeframe]float64 `json:"weights"`
	SidewaysBand float64                      `json:"sideways_band"` // MA separation under this fraction of price is sideways
	RefSep       float64                      `json:"ref_sep"`       // separation fraction mapping to full strength
}

// DefaultConfig returns the fixed timeframe set with its static weights.
// Weights favor higher timeframes but are deliberately non-monotonic: the
// 4-hour chart outweighs the daily.
func DefaultConfig() Config {
	return Config{
		Timeframes: []market.Timeframe{
			market.TF1m, market.TF5m, market.TF15m, market.TF30m,
			market.TF1h, market.TF4h, market.TF1d,
		},
		Weights: map[market.Timeframe]float64{
			market.TF1m:  0.06,
			market.TF5m:  0.08,
			market.TF15m: 0.12,
			market.TF30m: 0.14,
			market.TF1h:  0.20,
			market.TF4h:  0.25,
			market.TF1d:  0.15,
		},
		SidewaysBand: 0.0008,
		RefSep:       0.005,
	}
}

// Vote is one timeframe's classified trend contribution.
type Vote struct {
	Timeframe market.Timeframe  `json:"timeframe"`
	State     signal.TrendState `json:"state"`
	Strength  float64           `json:"strength"` // 0..1
	Weight    float64           `json:"weight"`
}

// Voter classifies each configured timeframe and aggregates the weighted vote.
type Voter struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	candles    market.Provider
	logger     zerolog.Logger
}

// NewVoter creates a consensus voter for one instrument.
func NewVoter(symbol string, cfg Config, indicators *indicator.Cache, candles market.Provider, logger zerolog.Logger) *Voter {
	if len(cfg.Timeframes) == 0 {
		cfg = DefaultConfig()
	}
	return &Voter{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		candles:    candles,
		logger:     logger,
	}
}

// Evaluate classifies all timeframes at the given bar shift and aggregates.
func (v *Voter) Evaluate(ctx context.Context, shift int) *signal.ConsensusResult {
	filter := v.longHorizonFilter(ctx, shift)
	votes := make([]Vote, 0, len(v.cfg.Timeframes))
	for _, tf := range v.cfg.Timeframes {
		votes = append(votes, v.classify(ctx, tf, shift, filter))
	}
	return Aggregate(votes, filter)
}

// filterState is the long-horizon trend filter: price vs the long moving
// average on the highest configured timeframe.
type filterState struct {
	bias   signal.Bias
	strong bool
	valid  bool
}

func (v *Voter) longHorizonFilter(ctx context.Context, shift int) filterState {
	highest := v.cfg.Timeframes[len(v.cfg.Timeframes)-1]
	price := v.closeAt(ctx, highest, shift)
	long := v.indicators.Get(ctx, highest, indicator.KindMALong, shift)
	if price <= 0 || long.Value <= 0 || (long.Degraded && long.Source == indicator.SourceDefault) {
		return filterState{}
	}

	dev := (price - long.Value) / long.Value
	fs := filterState{valid: true, strong: math.Abs(dev) > 0.01}
	if dev > 0 {
		fs.bias = signal.BiasBullish
	} else if dev < 0 {
		fs.bias = signal.BiasBearish
	} else {
		fs.valid = false
	}
	return fs
}

// classify derives one timeframe's trend state and strength from moving
// average ordering and the price position relative to those averages.
func (v *Voter) classify(ctx context.Context, tf market.Timeframe, shift int, filter filterState) Vote {
	vote := Vote{Timeframe: tf, Weight: v.cfg.Weights[tf], State: signal.TrendUnclear}

	price := v.closeAt(ctx, tf, shift)
	fast := v.indicators.Get(ctx, tf, indicator.KindMAFast, shift)
	med := v.indicators.Get(ctx, tf, indicator.KindMAMedium, shift)
	slow := v.indicators.Get(ctx, tf, indicator.KindMASlow, shift)

	if price <= 0 || fast.Value <= 0 || med.Value <= 0 {
		return vote
	}
	if fast.Source == indicator.SourceDefault && med.Source == indicator.SourceDefault {
		// Both averages defaulted to the reference price: nothing real to read.
		return vote
	}

	sep := math.Abs(fast.Value-med.Value) / price
	switch {
	case sep < v.cfg.SidewaysBand:
		vote.State = signal.TrendSideways
	case fast.Value > med.Value && price > med.Value:
		vote.State = signal.TrendUp
	case fast.Value < med.Value && price < med.Value:
		vote.State = signal.TrendDown
	default:
		vote.State = signal.TrendSideways
	}

	strength := clamp01(sep / v.cfg.RefSep)
	if slow.Value > 0 {
		stackedUp := fast.Value > med.Value && med.Value > slow.Value
		stackedDown := fast.Value < med.Value && med.Value < slow.Value
		if (vote.State == signal.TrendUp && stackedUp) || (vote.State == signal.TrendDown && stackedDown) {
			strength *= 1.5
		}
	}
	if filter.valid {
		if (vote.State == signal.TrendUp && filter.bias == signal.BiasBearish) ||
			(vote.State == signal.TrendDown && filter.bias == signal.BiasBullish) {
			strength *= 0.5
		}
	}
	vote.Strength = clamp01(strength)
	return vote
}

func (v *Voter) closeAt(ctx context.Context, tf market.Timeframe, shift int) float64 {
	candles, err := v.candles.Candles(ctx, v.symbol, tf, shift+2)
	if err != nil || len(candles) <= shift {
		return 0
	}
	return candles[len(candles)-1-shift].Close
}

// Aggregate folds the per-timeframe votes into a ConsensusResult. It is a
// pure function over the votes and filter so it can be exercised directly.
func Aggregate(votes []Vote, filter filterState) *signal.ConsensusResult {
	res := &signal.ConsensusResult{Dominant: signal.BiasNeutral}
	sum := &res.Votes

	for _, vote := range votes {
		w := vote.Weight * math.Max(vote.Strength, 0.1)
		switch vote.State {
		case signal.TrendUp:
			sum.BullishCount++
			sum.BullishWeight += w
		case signal.TrendDown:
			sum.BearishCount++
			sum.BearishWeight += w
		case signal.TrendSideways:
			sum.NeutralCount++
			sum.NeutralWeight += w
		default:
			sum.UnclearCount++
		}
	}
	sum.TotalWeight = sum.BullishWeight + sum.BearishWeight + sum.NeutralWeight

	if sum.TotalWeight <= 0 {
		res.NeutralConfidence = 100
		return res
	}

	res.BullishConfidence = sum.BullishWeight / sum.TotalWeight * 100
	res.BearishConfidence = sum.BearishWeight / sum.TotalWeight * 100
	res.NeutralConfidence = 100 - res.BullishConfidence - res.BearishConfidence

	dominantShare := res.NeutralConfidence
	switch {
	case res.BullishConfidence >= res.BearishConfidence && res.BullishConfidence > res.NeutralConfidence:
		res.Dominant = signal.BiasBullish
		dominantShare = res.BullishConfidence
	case res.BearishConfidence > res.BullishConfidence && res.BearishConfidence > res.NeutralConfidence:
		res.Dominant = signal.BiasBearish
		dominantShare = res.BearishConfidence
	}

	res.Conflict = res.BullishConfidence >= 30 && res.BearishConfidence >= 30

	mixed := sum.BullishCount > 0 && sum.BearishCount > 0
	alignment := dominantShare
	if mixed {
		alignment *= 0.7 // mixed-signal penalty
	}

	confidence := alignment
	if mixed {
		confidence *= 0.8
	} else if res.Dominant != signal.BiasNeutral {
		confidence *= 1.1
	}

	if filter.valid && res.Dominant != signal.BiasNeutral {
		agrees := res.Dominant == filter.bias
		switch {
		case agrees && filter.strong:
			confidence *= 1.10
		case agrees:
			confidence *= 1.05
		case filter.strong:
			confidence *= 0.90
		default:
			confidence *= 0.95
		}
	}

	res.Alignment = signal.Clamp(confidence)
	return res
}

// Signal maps a ConsensusResult onto the canonical component DTO.
func Signal(symbol string, res *signal.ConsensusResult) *signal.ComponentSignal {
	dominantShare := res.NeutralConfidence
	switch res.Dominant {
	case signal.BiasBullish:
		dominantShare = res.BullishConfidence
	case signal.BiasBearish:
		dominantShare = res.BearishConfidence
	}

	detail := fmt.Sprintf("votes %d/%d/%d bull/bear/neutral, alignment %.1f%%",
		res.Votes.BullishCount, res.Votes.BearishCount, res.Votes.NeutralCount, res.Alignment)
	if res.Conflict {
		detail += " (conflicted)"
	}

	return &signal.ComponentSignal{
		Component:  signal.ComponentConsensus,
		Symbol:     symbol,
		Bias:       res.Dominant,
		Score:      signal.Clamp(dominantShare),
		Confidence: res.Alignment,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
