// Package signal defines the canonical signal types exchanged between the
// component scorers, the timeframe consensus and the fusion aggregator.
// Every component produces the same ComponentSignal shape; mapping back to
// component-specific detail happens at the component boundary, not here.
package signal

import (
	"time"
)

// Bias is the directional lean a component assigns based on its own evidence.
type Bias int

const (
	BiasNeutral Bias = iota
	BiasBullish
	BiasBearish
)

func (b Bias) String() string {
	switch b {
	case BiasBullish:
		return "BULLISH"
	case BiasBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// Opposite returns the mirrored bias. Neutral mirrors to itself.
func (b Bias) Opposite() Bias {
	switch b {
	case BiasBullish:
		return BiasBearish
	case BiasBearish:
		return BiasBullish
	default:
		return BiasNeutral
	}
}

// TrendState classifies a single timeframe's trend.
type TrendState int

const (
	TrendUnclear TrendState = iota
	TrendUp
	TrendDown
	TrendSideways
)

func (t TrendState) String() string {
	switch t {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	case TrendSideways:
		return "SIDEWAYS"
	default:
		return "UNCLEAR"
	}
}

// Component names used as weight keys and cache keys.
const (
	ComponentConsensus = "mtf_consensus"
	ComponentMomentum  = "momentum"
	ComponentTrendOsc  = "trend_oscillator"
	ComponentVolume    = "volume"
	ComponentCandle    = "candlestick"
	ComponentZone      = "zone"
)

// ComponentSignal is the single DTO every scorer emits.
// Score and Confidence are both on the 0..100 scale.
type ComponentSignal struct {
	Component  string    `json:"component"`
	Symbol     string    `json:"symbol"`
	Bias       Bias      `json:"bias"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Detail     string    `json:"detail,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Neutral returns a degraded, zero-strength signal for a component whose data
// could not be obtained. Evaluation continues with the remaining components.
func Neutral(component, symbol, reason string) *ComponentSignal {
	return &ComponentSignal{
		Component: component,
		Symbol:    symbol,
		Bias:      BiasNeutral,
		Detail:    reason,
		Degraded:  true,
		Timestamp: time.Now(),
	}
}

// VoteSummary carries the raw multi-timeframe vote for display and debugging.
type VoteSummary struct {
	BullishCount  int     `json:"bullish_count"`
	BearishCount  int     `json:"bearish_count"`
	NeutralCount  int     `json:"neutral_count"`
	UnclearCount  int     `json:"unclear_count"`
	BullishWeight float64 `json:"bullish_weight"`
	BearishWeight float64 `json:"bearish_weight"`
	NeutralWeight float64 `json:"neutral_weight"`
	TotalWeight   float64 `json:"total_weight"`
}

// ConsensusResult is the weighted multi-timeframe vote outcome.
// The three confidence shares always sum to 100.
type ConsensusResult struct {
	BullishConfidence float64     `json:"bullish_confidence"`
	BearishConfidence float64     `json:"bearish_confidence"`
	NeutralConfidence float64     `json:"neutral_confidence"`
	Dominant          Bias        `json:"dominant"`
	Conflict          bool        `json:"conflict"`
	Alignment         float64     `json:"alignment"`
	Votes             VoteSummary `json:"votes"`
}

// FusionDecision is the final fused verdict for one evaluation. Decisions are
// immutable once computed; a new evaluation yields a new decision.
type FusionDecision struct {
	EvaluationID      string             `json:"evaluation_id"`
	Symbol            string             `json:"symbol"`
	OverallConfidence float64            `json:"overall_confidence"`
	WeightedScore     float64            `json:"weighted_score"`
	Dominant          Bias               `json:"dominant"`
	BullishShare      float64            `json:"bullish_share"`
	BearishShare      float64            `json:"bearish_share"`
	NeutralShare      float64            `json:"neutral_share"`
	Conflict          bool               `json:"conflict"`
	IsValid           bool               `json:"is_valid"`
	ValidationMessage string             `json:"validation_message,omitempty"`
	ActiveComponents  int                `json:"active_components"`
	Weights           map[string]float64 `json:"weights"`
	Components        []ComponentSignal  `json:"components"`
	Timestamp         time.Time          `json:"timestamp"`
}

// Clamp bounds a score-like value to the 0..100 interval.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Clamp01 bounds a ratio-like value to the 0..1 interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
