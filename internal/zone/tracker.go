package zone

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/market"
)

// Config holds zone tracking parameters.
type Config struct {
	SourceTimeframes []market.Timeframe `json:"source_timeframes"` // two higher timeframes scanned for swings
	Lookback         int                `json:"lookback"`          // bars per source timeframe
	SwingWindow      int                `json:"swing_window"`      // symmetric neighbor window
	MinDistancePct   float64            `json:"min_distance_pct"`  // merge radius, fraction of price
	MinStrength      float64            `json:"min_strength"`      // discard threshold after merge
	BufferATRMult    float64            `json:"buffer_atr_mult"`   // buffer band width in ATRs
	TouchTolerance   float64            `json:"touch_tolerance"`   // touch radius, fraction of price
	MaxZones         int                `json:"max_zones"`         // fixed capacity of the active set
}

// DefaultConfig returns the standard zone tracking parameters.
func DefaultConfig() Config {
	return Config{
		SourceTimeframes: []market.Timeframe{market.TF4h, market.TF1d},
		Lookback:         180,
		SwingWindow:      5,
		MinDistancePct:   0.004,
		MinStrength:      0.25,
		BufferATRMult:    1.0,
		TouchTolerance:   0.0015,
		MaxZones:         48,
	}
}

// timeframeWeight scales candidate strength by source reliability.
func timeframeWeight(tf market.Timeframe) float64 {
	switch tf {
	case market.TF1d:
		return 0.9
	case market.TF4h:
		return 0.7
	case market.TF1h:
		return 0.55
	default:
		return 0.4
	}
}

const (
	strengthIncrement = 0.1
	maxFailedTests    = 3
	relevanceAgeSpan  = 30 * 24 * time.Hour
	distanceATRSpan   = 5.0
)

// Tracker owns the zone set for one instrument. All mutation happens on the
// maintenance path; queries are read-only over active zones.
type Tracker struct {
	symbol     string
	cfg        Config
	indicators *indicator.Cache
	candles    market.Provider
	logger     zerolog.Logger

	zones []*Zone // fixed-capacity active + archived arena
}

// NewTracker creates a zone tracker for one instrument.
func NewTracker(symbol string, cfg Config, indicators *indicator.Cache, candles market.Provider, logger zerolog.Logger) *Tracker {
	if cfg.MaxZones <= 0 {
		cfg.MaxZones = DefaultConfig().MaxZones
	}
	return &Tracker{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicators,
		candles:    candles,
		logger:     logger,
		zones:      make([]*Zone, 0, cfg.MaxZones),
	}
}

// Rebuild scans the source timeframes for swing extrema and merges the
// resulting candidates into the active set. Insufficient history yields an
// empty candidate set, never an error. Deferred to the maintenance timer;
// never runs inline with tick processing.
func (t *Tracker) Rebuild(ctx context.Context) {
	added := 0
	for _, tf := range t.cfg.SourceTimeframes {
		candles, err := t.candles.Candles(ctx, t.symbol, tf, t.cfg.Lookback)
		if err != nil || len(candles) < t.cfg.SwingWindow*2+1 {
			t.logger.Debug().Str("tf", string(tf)).Err(err).Msg("zone rebuild: insufficient history")
			continue
		}
		for _, sw := range findSwings(candles, t.cfg.SwingWindow) {
			z := &Zone{
				ID:              uuid.NewString(),
				Level:           sw.price,
				Type:            sw.zoneType,
				Strength:        timeframeWeight(tf),
				Relevance:       1.0,
				CreatedAt:       time.Now(),
				SourceTimeframe: tf,
			}
			if t.merge(z) {
				added++
			}
		}
	}
	t.discardWeak()
	if added > 0 {
		t.logger.Debug().Int("added", added).Int("active", len(t.Active())).Msg("zone rebuild complete")
	}
}

type swing struct {
	price    float64
	zoneType Type
}

// findSwings returns local extrema: a bar is a swing high/low only if no
// neighbor within the symmetric window matches or exceeds it.
func findSwings(candles []market.Candle, window int) []swing {
	var out []swing
	for i := window; i < len(candles)-window; i++ {
		isHigh := true
		isLow := true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			out = append(out, swing{price: candles[i].High, zoneType: Resistance})
		}
		if isLow {
			out = append(out, swing{price: candles[i].Low, zoneType: Support})
		}
	}
	return out
}

// merge folds a candidate into the set: a candidate within the minimum
// distance of an existing active zone keeps only the stronger of the two.
// Returns true when the candidate survived as a new zone.
func (t *Tracker) merge(candidate *Zone) bool {
	for _, z := range t.zones {
		if z.Archived || z.Type != candidate.Type {
			continue
		}
		if math.Abs(z.Level-candidate.Level)/candidate.Level < t.cfg.MinDistancePct {
			if candidate.Strength > z.Strength {
				z.Level = candidate.Level
				z.Strength = candidate.Strength
				z.SourceTimeframe = candidate.SourceTimeframe
			}
			return false
		}
	}
	if t.activeCount() >= t.cfg.MaxZones {
		t.evictWeakest(candidate)
		return t.containsZone(candidate)
	}
	t.zones = append(t.zones, candidate)
	return true
}

func (t *Tracker) containsZone(z *Zone) bool {
	for _, existing := range t.zones {
		if existing == z {
			return true
		}
	}
	return false
}

// evictWeakest replaces the weakest active zone when the arena is full and the
// candidate is stronger.
func (t *Tracker) evictWeakest(candidate *Zone) {
	weakest := -1
	for i, z := range t.zones {
		if z.Archived {
			continue
		}
		if weakest < 0 || z.Strength*z.Relevance < t.zones[weakest].Strength*t.zones[weakest].Relevance {
			weakest = i
		}
	}
	if weakest >= 0 && candidate.Strength > t.zones[weakest].Strength*t.zones[weakest].Relevance {
		t.zones[weakest] = candidate
	}
}

func (t *Tracker) discardWeak() {
	kept := t.zones[:0]
	for _, z := range t.zones {
		if z.Archived || z.Strength >= t.cfg.MinStrength || z.TouchCount > 0 {
			kept = append(kept, z)
		}
	}
	t.zones = kept
}

func (t *Tracker) activeCount() int {
	n := 0
	for _, z := range t.zones {
		if !z.Archived {
			n++
		}
	}
	return n
}

// buffer returns the zone band half-width for the current volatility.
func (t *Tracker) buffer(ctx context.Context, level float64) float64 {
	atr := t.indicators.Get(ctx, market.TF1h, indicator.KindATR, 0).Value
	buf := atr * t.cfg.BufferATRMult
	if min := level * t.cfg.TouchTolerance; buf < min {
		buf = min
	}
	return buf
}

// OnTick registers a price observation. A qualifying touch (price entering
// the touch tolerance of the level) increments TouchCount and bumps Strength
// exactly once per entry, capped at 1.0.
func (t *Tracker) OnTick(ctx context.Context, price float64) {
	for _, z := range t.zones {
		if z.Archived {
			continue
		}
		tol := z.Level * t.cfg.TouchTolerance
		inTouch := math.Abs(price-z.Level) <= tol
		if inTouch && !z.touching {
			z.TouchCount++
			z.Strength = math.Min(1.0, z.Strength+strengthIncrement)
		}
		z.touching = inTouch

		if math.Abs(price-z.Level) <= t.buffer(ctx, z.Level) {
			z.testing = true
		}
	}
}

// OnBarClose evaluates pending zone tests. A close finishing beyond the
// zone's buffer on its defended side, after the bar tested the zone, counts
// one failed test; the third failed test archives the zone.
func (t *Tracker) OnBarClose(ctx context.Context, closePrice float64) {
	for _, z := range t.zones {
		if z.Archived || !z.testing {
			continue
		}
		buf := t.buffer(ctx, z.Level)
		broken := false
		switch z.Type {
		case Support:
			broken = closePrice < z.Level-buf
		case Resistance:
			broken = closePrice > z.Level+buf
		}
		if broken {
			z.FailedTests++
			if z.FailedTests >= maxFailedTests {
				t.archive(z, "failed_tests")
			}
		}
		z.testing = false
	}
}

// RecomputeRelevance refreshes each active zone's relevance as a weighted
// blend of age decay, distance decay and failed-test decay, and applies pure
// age expiry. Maintenance path only.
func (t *Tracker) RecomputeRelevance(ctx context.Context, price float64) {
	atr := t.indicators.Get(ctx, market.TF1h, indicator.KindATR, 0).Value
	now := time.Now()

	for _, z := range t.zones {
		if z.Archived {
			continue
		}
		age := now.Sub(z.CreatedAt)
		if age > maxAge(z.SourceTimeframe) {
			t.archive(z, "age_expiry")
			continue
		}

		ageDecay := clamp01(1.0 - float64(age)/float64(relevanceAgeSpan))
		distDecay := 0.0
		if atr > 0 {
			distDecay = clamp01(1.0 - math.Abs(price-z.Level)/(distanceATRSpan*atr))
		}
		failDecay := clamp01(1.0 - float64(z.FailedTests)/float64(maxFailedTests))

		z.Relevance = clamp01(0.4*ageDecay + 0.35*distDecay + 0.25*failDecay)
	}
}

func (t *Tracker) archive(z *Zone, reason string) {
	z.Archived = true
	z.ArchivedAt = time.Now()
	t.logger.Debug().Float64("level", z.Level).Str("type", z.Type.String()).
		Str("reason", reason).Msg("zone archived")
}

// Active returns a copy of the active zone set.
func (t *Tracker) Active() []Zone {
	out := make([]Zone, 0, len(t.zones))
	for _, z := range t.zones {
		if !z.Archived {
			out = append(out, *z)
		}
	}
	return out
}

// ArchivedZones returns the archived set for audit.
func (t *Tracker) ArchivedZones() []Zone {
	var out []Zone
	for _, z := range t.zones {
		if z.Archived {
			out = append(out, *z)
		}
	}
	return out
}

// Nearest returns the active zone closest to price, or nil.
func (t *Tracker) Nearest(price float64) *Zone {
	var nearest *Zone
	best := math.MaxFloat64
	for _, z := range t.zones {
		if z.Archived {
			continue
		}
		d := math.Abs(price - z.Level)
		if d < best {
			best = d
			nearest = z
		}
	}
	if nearest == nil {
		return nil
	}
	copied := *nearest
	return &copied
}

// Score rates the nearest zone's pull on the price: full strength inside the
// buffer band, decaying linearly to zero over three buffer-widths beyond it.
func (t *Tracker) Score(ctx context.Context, price float64) (score float64, zoneType Type, distance float64) {
	z := t.Nearest(price)
	if z == nil {
		return 0, Support, 0
	}

	distance = math.Abs(price - z.Level)
	buf := t.buffer(ctx, z.Level)
	full := 100.0 * z.Strength * z.Relevance

	switch {
	case distance <= buf:
		score = full
	case buf > 0 && distance < buf*4:
		score = full * (1.0 - (distance-buf)/(3.0*buf))
	default:
		score = 0
	}
	if score < 0 {
		score = 0
	}
	return score, z.Type, distance
}

// BiasAt classifies the price relative to the nearest zone.
func (t *Tracker) BiasAt(ctx context.Context, price float64) Bias {
	z := t.Nearest(price)
	if z == nil {
		return BiasNone
	}

	buf := t.buffer(ctx, z.Level)
	inside := math.Abs(price-z.Level) <= buf

	switch z.Type {
	case Support:
		if inside {
			return BiasInZoneBuy
		}
		if price > z.Level {
			return BiasLeanBuy // holding above support
		}
		return BiasLeanSell // broken below support
	default: // Resistance
		if inside {
			return BiasInZoneSell
		}
		if price < z.Level {
			return BiasLeanSell
		}
		return BiasLeanBuy
	}
}

// Query returns up to maxCount active zones ordered by distance from the
// reference price. Selection is a partial sort over a bounded copy, not a
// full ordering of the arena.
func (t *Tracker) Query(maxCount int, refPrice float64) []Zone {
	if maxCount <= 0 {
		return nil
	}

	active := t.Active()
	if len(active) == 0 {
		return nil
	}

	if maxCount > len(active) {
		maxCount = len(active)
	}

	dist := func(z Zone) float64 { return math.Abs(z.Level - refPrice) }

	// Top-k by distance: partial selection, the tail stays unsorted.
	for i := 0; i < maxCount; i++ {
		best := i
		for j := i + 1; j < len(active); j++ {
			if dist(active[j]) < dist(active[best]) {
				best = j
			}
		}
		active[i], active[best] = active[best], active[i]
	}
	return active[:maxCount]
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
