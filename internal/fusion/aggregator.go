// Package fusion reconciles the component signals into one weighted,
// confidence-scored decision per instrument.
package fusion

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trading-fusion-engine/internal/signal"
)

const (
	// DefaultMinConfidence is the floor below which a decision is not
	// actionable.
	DefaultMinConfidence = 55.0

	conflictShareFloor = 30.0
	clearBoost         = 1.15
	conflictPenalty    = 0.80
)

// activeBonusSteps are the multiplicative rewards for corroboration: the
// second active component adds 5%, the third 3%, then 2% and 1%. Further
// components add nothing.
var activeBonusSteps = []float64{0.05, 0.03, 0.02, 0.01}

// DefaultWeights is the neutral starting allocation, summing to 100.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		signal.ComponentConsensus: 25,
		signal.ComponentTrendOsc:  20,
		signal.ComponentZone:      20,
		signal.ComponentMomentum:  15,
		signal.ComponentVolume:    10,
		signal.ComponentCandle:    10,
	}
}

// NormalizeWeights scales arbitrary non-negative weights so they sum to 100,
// preserving ratios. A negative weight is a configuration error. An all-zero
// map falls back to an equal split over its components; an empty map falls
// back to the neutral default allocation.
func NormalizeWeights(weights map[string]float64) (map[string]float64, error) {
	total := 0.0
	names := make([]string, 0, len(weights))
	for name, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %.4f for component %q", w, name)
		}
		total += w
		names = append(names, name)
	}
	if total <= 0 {
		return EqualWeights(names), nil
	}
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		out[name] = w / total * 100
	}
	return out, nil
}

// CapZoneWeight limits the zone component's share of an already-normalized
// allocation to cap, handing the excess to the other components in proportion
// to their existing weights. Zones are rebuilt from swing history and can be
// configured far heavier than the live components; the cap keeps a stale zone
// set from dominating a decision. cap <= 0 disables the limit.
func CapZoneWeight(weights map[string]float64, cap float64) map[string]float64 {
	zoneWeight := weights[signal.ComponentZone]
	if cap <= 0 || zoneWeight <= cap || len(weights) < 2 {
		return weights
	}

	rest := 0.0
	for name, w := range weights {
		if name != signal.ComponentZone {
			rest += w
		}
	}

	excess := zoneWeight - cap
	out := make(map[string]float64, len(weights))
	for name, w := range weights {
		switch {
		case name == signal.ComponentZone:
			out[name] = cap
		case rest > 0:
			out[name] = w + excess*(w/rest)
		default:
			out[name] = excess / float64(len(weights)-1)
		}
	}
	return out
}

// Aggregate fuses the component signals under the given normalized weights.
// Components with score zero are inactive and excluded from the average
// rather than dragging it down. Every intermediate value is clamped to 0..100
// before the next step uses it.
func Aggregate(symbol string, weights map[string]float64, components []signal.ComponentSignal, minConfidence float64) *signal.FusionDecision {
	decision := &signal.FusionDecision{
		EvaluationID: uuid.NewString(),
		Symbol:       symbol,
		Dominant:     signal.BiasNeutral,
		NeutralShare: 100,
		Weights:      weights,
		Components:   components,
		Timestamp:    time.Now(),
	}

	var weightSum, scoreSum float64
	var bullish, bearish, neutral int
	for _, c := range components {
		if c.Score <= 0 {
			continue
		}
		decision.ActiveComponents++
		w := weights[c.Component]
		weightSum += w
		scoreSum += signal.Clamp(c.Score) * w
		switch c.Bias {
		case signal.BiasBullish:
			bullish++
		case signal.BiasBearish:
			bearish++
		default:
			neutral++
		}
	}

	if decision.ActiveComponents == 0 || weightSum <= 0 {
		decision.ValidationMessage = "no active components"
		return decision
	}

	score := signal.Clamp(scoreSum / weightSum)
	for i := 0; i < decision.ActiveComponents-1 && i < len(activeBonusSteps); i++ {
		score = signal.Clamp(score * (1 + activeBonusSteps[i]))
	}
	decision.WeightedScore = score

	active := float64(decision.ActiveComponents)
	decision.BullishShare = signal.Clamp(float64(bullish) / active * 100)
	decision.BearishShare = signal.Clamp(float64(bearish) / active * 100)
	decision.NeutralShare = signal.Clamp(100 - decision.BullishShare - decision.BearishShare)
	decision.Conflict = decision.BullishShare >= conflictShareFloor && decision.BearishShare >= conflictShareFloor

	switch {
	case decision.BullishShare > decision.BearishShare && decision.BullishShare > decision.NeutralShare:
		decision.Dominant = signal.BiasBullish
	case decision.BearishShare > decision.BullishShare && decision.BearishShare > decision.NeutralShare:
		decision.Dominant = signal.BiasBearish
	}

	confidence := score
	switch {
	case decision.Conflict:
		confidence = signal.Clamp(confidence * conflictPenalty)
	case decision.Dominant != signal.BiasNeutral:
		confidence = signal.Clamp(confidence * clearBoost)
	}
	decision.OverallConfidence = confidence

	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	switch {
	case decision.Dominant == signal.BiasNeutral:
		decision.ValidationMessage = "no dominant direction"
	case confidence < minConfidence:
		decision.ValidationMessage = fmt.Sprintf("confidence %.1f below threshold %.1f", confidence, minConfidence)
	default:
		decision.IsValid = true
	}
	return decision
}

// EqualWeights spreads 100 evenly over the given component names. It is the
// fallback NormalizeWeights applies when every configured weight is zero; with
// no names at all it yields the neutral default allocation.
func EqualWeights(names []string) map[string]float64 {
	if len(names) == 0 {
		return DefaultWeights()
	}
	out := make(map[string]float64, len(names))
	each := 100 / float64(len(names))
	for _, n := range names {
		out[n] = each
	}
	return out
}
