package fusion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/consensus"
	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/scorers"
	"trading-fusion-engine/internal/signal"
	"trading-fusion-engine/internal/zone"
)

// Config tunes one engine instance.
type Config struct {
	Weights       map[string]float64 `json:"weights"`
	MinConfidence float64            `json:"min_confidence"`
	ZoneWeightCap float64            `json:"zone_weight_cap"`
	IndicatorTTL  time.Duration      `json:"indicator_ttl"`
	Scorer        scorers.Config     `json:"scorer"`
	Consensus     consensus.Config   `json:"consensus"`
	Zones         zone.Config        `json:"zones"`
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		MinConfidence: DefaultMinConfidence,
		IndicatorTTL:  30 * time.Second,
		Scorer:        scorers.DefaultConfig(),
		Consensus:     consensus.DefaultConfig(),
		Zones:         zone.DefaultConfig(),
	}
}

// Engine fuses every component for a single instrument. One engine per
// symbol; instances share nothing, so concurrent symbols need no locking
// beyond their own engine. Within an instance all work happens on the
// caller's goroutine.
type Engine struct {
	symbol string
	cfg    Config
	logger zerolog.Logger

	candles    market.Provider
	indicators *indicator.Cache
	voter      *consensus.Voter
	zones      *zone.Tracker
	momentum   *scorers.MomentumScorer
	trendOsc   *scorers.TrendOscScorer
	volume     *scorers.VolumeScorer
	candle     *scorers.CandleScorer

	mu            sync.RWMutex
	weights       map[string]float64
	zonesBuilt    bool
	lastDecided   time.Time
	lastClosedBar int64
}

// NewEngine wires the full component set for one symbol. The candle provider
// and indicator provider are injected so live, cached and simulated data
// sources are interchangeable.
func NewEngine(symbol string, cfg Config, candles market.Provider, indicatorProvider indicator.Provider, logger zerolog.Logger) (*Engine, error) {
	weights, err := NormalizeWeights(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("engine weights: %w", err)
	}
	weights = CapZoneWeight(weights, cfg.ZoneWeightCap)
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.IndicatorTTL <= 0 {
		cfg.IndicatorTTL = 30 * time.Second
	}

	log := logger.With().Str("symbol", symbol).Logger()
	indicators := indicator.NewCache(symbol, indicatorProvider, candles, cfg.IndicatorTTL, log)

	e := &Engine{
		symbol:     symbol,
		cfg:        cfg,
		logger:     log,
		candles:    candles,
		indicators: indicators,
		voter:      consensus.NewVoter(symbol, cfg.Consensus, indicators, candles, log),
		zones:      zone.NewTracker(symbol, cfg.Zones, indicators, candles, log),
		momentum:   scorers.NewMomentumScorer(symbol, cfg.Scorer, indicators),
		trendOsc:   scorers.NewTrendOscScorer(symbol, cfg.Scorer, indicators, candles),
		volume:     scorers.NewVolumeScorer(symbol, cfg.Scorer, indicators, candles),
		candle:     scorers.NewCandleScorer(symbol, cfg.Scorer, indicators, candles),
		weights:    weights,
	}
	return e, nil
}

// Symbol returns the instrument this engine is bound to.
func (e *Engine) Symbol() string { return e.symbol }

// Evaluate runs every component against the same data snapshot and fuses the
// results. shift selects how many closed bars back to evaluate; 0 is the
// current bar. Component failures degrade to neutral signals, they never
// abort the evaluation.
func (e *Engine) Evaluate(ctx context.Context, shift int) (*signal.FusionDecision, error) {
	if shift < 0 {
		return nil, fmt.Errorf("negative shift %d", shift)
	}
	e.ensureZones(ctx)

	cons := e.voter.Evaluate(ctx, shift)
	components := []signal.ComponentSignal{
		*consensus.Signal(e.symbol, cons),
		*e.momentum.Evaluate(ctx, shift),
		*e.trendOsc.Evaluate(ctx, shift, cons),
		*e.volume.Evaluate(ctx, shift),
		*e.candle.Evaluate(ctx, shift),
		*e.zoneSignal(ctx),
	}

	e.mu.RLock()
	weights := e.weights
	e.mu.RUnlock()

	decision := Aggregate(e.symbol, weights, components, e.cfg.MinConfidence)

	e.mu.Lock()
	e.lastDecided = decision.Timestamp
	e.mu.Unlock()

	e.logger.Debug().
		Str("evaluation_id", decision.EvaluationID).
		Float64("confidence", decision.OverallConfidence).
		Str("dominant", decision.Dominant.String()).
		Bool("valid", decision.IsValid).
		Int("active", decision.ActiveComponents).
		Msg("fusion decision")
	return decision, nil
}

// ComponentSignal evaluates a single named component for inspection.
func (e *Engine) ComponentSignal(ctx context.Context, name string, shift int) (*signal.ComponentSignal, error) {
	if shift < 0 {
		return nil, fmt.Errorf("negative shift %d", shift)
	}
	e.ensureZones(ctx)
	switch name {
	case signal.ComponentConsensus:
		return consensus.Signal(e.symbol, e.voter.Evaluate(ctx, shift)), nil
	case signal.ComponentMomentum:
		return e.momentum.Evaluate(ctx, shift), nil
	case signal.ComponentTrendOsc:
		cons := e.voter.Evaluate(ctx, shift)
		return e.trendOsc.Evaluate(ctx, shift, cons), nil
	case signal.ComponentVolume:
		return e.volume.Evaluate(ctx, shift), nil
	case signal.ComponentCandle:
		return e.candle.Evaluate(ctx, shift), nil
	case signal.ComponentZone:
		return e.zoneSignal(ctx), nil
	}
	return nil, fmt.Errorf("unknown component %q", name)
}

// Consensus exposes the raw multi-timeframe vote for display.
func (e *Engine) Consensus(ctx context.Context, shift int) *signal.ConsensusResult {
	return e.voter.Evaluate(ctx, shift)
}

// QueryZones returns up to maxCount active zones nearest to refPrice.
func (e *Engine) QueryZones(maxCount int, refPrice float64) []zone.Zone {
	return e.zones.Query(maxCount, refPrice)
}

// ArchivedZones returns retired zones for audit.
func (e *Engine) ArchivedZones() []zone.Zone {
	return e.zones.ArchivedZones()
}

// ConfigureWeights replaces the component weights. Arbitrary non-negative
// values are accepted and normalized to sum 100; negative values are
// rejected and the previous weights stay in force.
func (e *Engine) ConfigureWeights(weights map[string]float64) error {
	normalized, err := NormalizeWeights(weights)
	if err != nil {
		return err
	}
	normalized = CapZoneWeight(normalized, e.cfg.ZoneWeightCap)
	e.mu.Lock()
	e.weights = normalized
	e.mu.Unlock()
	e.logger.Info().Interface("weights", normalized).Msg("weights reconfigured")
	return nil
}

// Weights returns the normalized weights currently in force.
func (e *Engine) Weights() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

// LastDecisionAt returns when this engine last produced a decision. Zero
// before the first evaluation.
func (e *Engine) LastDecisionAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDecided
}

// OnTick feeds the latest trade price into zone touch tracking. Cheap enough
// for the fast path.
func (e *Engine) OnTick(ctx context.Context, price float64) {
	e.ensureZones(ctx)
	e.zones.OnTick(ctx, price)
}

// OnBarClose feeds a bar close into zone failed-test accounting.
func (e *Engine) OnBarClose(ctx context.Context, closePrice float64) {
	e.ensureZones(ctx)
	e.zones.OnBarClose(ctx, closePrice)
}

// ObserveTick advances live zone tracking: the current trade price feeds
// touch detection, and when the working bar on the scorer timeframe has
// rolled over since the previous call, the finished bar's close feeds
// failed-test accounting. The evaluation loop calls this before each fusion
// pass.
func (e *Engine) ObserveTick(ctx context.Context) {
	if price, err := e.candles.TickPrice(ctx, e.symbol); err == nil && price > 0 {
		e.OnTick(ctx, price)
	}

	candles, err := e.candles.Candles(ctx, e.symbol, e.cfg.Scorer.Timeframe, 2)
	if err != nil || len(candles) < 2 {
		return
	}
	closed := candles[len(candles)-2]

	e.mu.Lock()
	prev := e.lastClosedBar
	e.lastClosedBar = closed.OpenTime
	e.mu.Unlock()

	// First observation just primes the rollover marker.
	if prev == 0 || prev == closed.OpenTime {
		return
	}
	e.OnBarClose(ctx, closed.Close)
}

// Maintain is the slow periodic path: zone rebuild and relevance decay plus
// cache aging. Kept off the tick path so a long rebuild never delays an
// evaluation.
func (e *Engine) Maintain(ctx context.Context) {
	e.zones.Rebuild(ctx)
	e.mu.Lock()
	e.zonesBuilt = true
	e.mu.Unlock()

	if price, err := e.candles.TickPrice(ctx, e.symbol); err == nil && price > 0 {
		e.zones.RecomputeRelevance(ctx, price)
	}

	e.indicators.CleanupExpired()
	e.momentum.CleanupExpired()
	e.trendOsc.CleanupExpired()
	e.volume.CleanupExpired()
	e.candle.CleanupExpired()
	e.logger.Debug().Msg("maintenance cycle complete")
}

// ensureZones lazily builds the zone set on first use so a fresh engine does
// not return an empty zone component until the first Maintain call.
func (e *Engine) ensureZones(ctx context.Context) {
	e.mu.RLock()
	built := e.zonesBuilt
	e.mu.RUnlock()
	if built {
		return
	}
	e.zones.Rebuild(ctx)
	e.mu.Lock()
	e.zonesBuilt = true
	e.mu.Unlock()
}

// zoneSignal maps the nearest-zone score into the canonical DTO.
func (e *Engine) zoneSignal(ctx context.Context) *signal.ComponentSignal {
	price, err := e.candles.TickPrice(ctx, e.symbol)
	if err != nil || price <= 0 {
		return signal.Neutral(signal.ComponentZone, e.symbol, "no tick price")
	}

	score, zoneType, distance := e.zones.Score(ctx, price)
	if score <= 0 {
		return signal.Neutral(signal.ComponentZone, e.symbol, "no zone in range")
	}

	bias := signal.BiasNeutral
	switch e.zones.BiasAt(ctx, price) {
	case zone.BiasInZoneBuy, zone.BiasLeanBuy:
		bias = signal.BiasBullish
	case zone.BiasInZoneSell, zone.BiasLeanSell:
		bias = signal.BiasBearish
	}

	return &signal.ComponentSignal{
		Component:  signal.ComponentZone,
		Symbol:     e.symbol,
		Bias:       bias,
		Score:      signal.Clamp(score),
		Confidence: signal.Clamp(score * 0.9),
		Detail:     fmt.Sprintf("%s at distance %.5g", zoneType, distance),
		Timestamp:  time.Now(),
	}
}
