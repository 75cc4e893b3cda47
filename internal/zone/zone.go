// Package zone tracks significant price levels (support/resistance) through
// their full lifecycle: swing detection, merging, touch scoring, decay and
// archival. Archived zones are hidden from queries but retained for audit.
package zone

import (
	"time"

	"trading-fusion-engine/internal/market"
)

// Type classifies a zone by which side it defends.
type Type int

const (
	Support Type = iota
	Resistance
)

func (t Type) String() string {
	if t == Resistance {
		return "RESISTANCE"
	}
	return "SUPPORT"
}

// Bias is the positional read a zone gives for a price.
type Bias int

const (
	BiasNone Bias = iota
	BiasInZoneBuy
	BiasInZoneSell
	BiasLeanBuy
	BiasLeanSell
)

func (b Bias) String() string {
	switch b {
	case BiasInZoneBuy:
		return "IN_ZONE_BUY"
	case BiasInZoneSell:
		return "IN_ZONE_SELL"
	case BiasLeanBuy:
		return "BUY_BIAS"
	case BiasLeanSell:
		return "SELL_BIAS"
	default:
		return "NONE"
	}
}

// Zone is one tracked price level. Strength and Relevance stay in [0,1];
// Archived is terminal, zones are never deleted.
type Zone struct {
	ID              string           `json:"id"`
	Level           float64          `json:"level"`
	Type            Type             `json:"type"`
	Strength        float64          `json:"strength"`
	Relevance       float64          `json:"relevance"`
	TouchCount      int              `json:"touch_count"`
	FailedTests     int              `json:"failed_tests"`
	CreatedAt       time.Time        `json:"created_at"`
	SourceTimeframe market.Timeframe `json:"source_timeframe"`
	Archived        bool             `json:"archived"`
	ArchivedAt      time.Time        `json:"archived_at,omitempty"`

	// intrabar latches, not persisted
	touching bool
	testing  bool
}

// maxAge returns how long a zone from this source timeframe may live before
// pure age expiry. Lower timeframes expire sooner.
func maxAge(tf market.Timeframe) time.Duration {
	switch tf {
	case market.TF1d:
		return 90 * 24 * time.Hour
	case market.TF4h:
		return 45 * 24 * time.Hour
	case market.TF1h:
		return 20 * 24 * time.Hour
	default:
		return 10 * 24 * time.Hour
	}
}
