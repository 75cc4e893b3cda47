package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/market"
)

// Source records how a reading was obtained.
type Source int

const (
	SourceProvider Source = iota
	SourceFallbackTimeframe
	SourceLastGood
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceFallbackTimeframe:
		return "fallback_timeframe"
	case SourceLastGood:
		return "last_good"
	case SourceDefault:
		return "default"
	default:
		return "provider"
	}
}

// Reading is one validated indicator value. A Degraded reading was obtained
// through substitution or default policy and should be trusted less, but it is
// always usable; the zero Value only ever appears together with Degraded.
type Reading struct {
	Value     float64          `json:"value"`
	Kind      Kind             `json:"kind"`
	Timeframe market.Timeframe `json:"timeframe"`
	Shift     int              `json:"shift"`
	Degraded  bool             `json:"degraded"`
	Source    Source           `json:"source"`
	Timestamp time.Time        `json:"timestamp"`
}

// Cache is the per-instrument validated reading layer. It never returns an
// error for "indicator temporarily unavailable"; resolution order is provider
// value within plausible range, fallback timeframe (volatility kinds), last
// successful fetch, asset-class default.
type Cache struct {
	symbol   string
	class    market.AssetClass
	provider Provider
	market   market.Provider
	ttl      time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	fresh    map[string]Reading
	lastGood map[string]Reading
}

// NewCache creates a reading cache bound to one instrument.
func NewCache(symbol string, provider Provider, marketData market.Provider, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &Cache{
		symbol:   symbol,
		class:    market.ClassifySymbol(symbol),
		provider: provider,
		market:   marketData,
		ttl:      ttl,
		logger:   logger,
		fresh:    make(map[string]Reading),
		lastGood: make(map[string]Reading),
	}
}

func key(tf market.Timeframe, kind Kind, shift int) string {
	return fmt.Sprintf("%s:%s:%d", tf, kind, shift)
}

// Get resolves one reading. The call never fails; the worst case is a
// degraded asset-class default.
func (c *Cache) Get(ctx context.Context, tf market.Timeframe, kind Kind, shift int) Reading {
	k := key(tf, kind, shift)

	c.mu.RLock()
	cached, ok := c.fresh[k]
	c.mu.RUnlock()
	if ok && time.Since(cached.Timestamp) < c.ttl {
		return cached
	}

	refPrice := c.referencePrice(ctx)

	if r, ok := c.tryFetch(ctx, tf, kind, shift, refPrice); ok {
		r.Source = SourceProvider
		c.store(k, r)
		return r
	}

	if kind.Volatility() {
		for _, fb := range fallbackTimeframes(tf) {
			if r, ok := c.tryFetch(ctx, fb, kind, shift, refPrice); ok {
				r.Timeframe = tf
				r.Degraded = true
				r.Source = SourceFallbackTimeframe
				c.storeFresh(k, r)
				c.logger.Debug().Str("kind", kind.String()).Str("tf", string(tf)).
					Str("fallback", string(fb)).Msg("volatility reading substituted")
				return r
			}
		}
	}

	c.mu.RLock()
	last, ok := c.lastGood[k]
	c.mu.RUnlock()
	if ok {
		last.Degraded = true
		last.Source = SourceLastGood
		return last
	}

	def := Reading{
		Value:     c.defaultValue(kind, tf, refPrice),
		Kind:      kind,
		Timeframe: tf,
		Shift:     shift,
		Degraded:  true,
		Source:    SourceDefault,
		Timestamp: time.Now(),
	}
	c.logger.Debug().Str("kind", kind.String()).Str("tf", string(tf)).
		Float64("value", def.Value).Msg("reading defaulted")
	return def
}

// tryFetch pulls one value from the provider and validates it.
func (c *Cache) tryFetch(ctx context.Context, tf market.Timeframe, kind Kind, shift int, refPrice float64) (Reading, bool) {
	value, err := c.provider.Value(ctx, c.symbol, tf, kind, shift)
	if err != nil {
		return Reading{}, false
	}
	if !c.plausible(kind, tf, value, refPrice) {
		return Reading{}, false
	}
	return Reading{
		Value:     value,
		Kind:      kind,
		Timeframe: tf,
		Shift:     shift,
		Timestamp: time.Now(),
	}, true
}

func (c *Cache) store(k string, r Reading) {
	c.mu.Lock()
	c.fresh[k] = r
	c.lastGood[k] = r
	c.mu.Unlock()
}

func (c *Cache) storeFresh(k string, r Reading) {
	c.mu.Lock()
	c.fresh[k] = r
	c.mu.Unlock()
}

func (c *Cache) referencePrice(ctx context.Context) float64 {
	price, err := c.market.TickPrice(ctx, c.symbol)
	if err != nil || price <= 0 {
		return 0
	}
	return price
}

// plausible applies numeric sanity plus the per-asset-class, per-timeframe
// range table. Non-finite, sentinel-sized and out-of-band values are treated
// as unavailable, never as zero.
func (c *Cache) plausible(kind Kind, tf market.Timeframe, value, refPrice float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if math.Abs(value) >= 1e12 {
		// Sentinel "empty" magnitude used by several indicator feeds.
		return false
	}

	switch {
	case kind.Oscillator():
		return value >= 0 && value <= 100

	case kind.PriceLevel():
		if value <= 0 {
			return false
		}
		if refPrice <= 0 {
			return true
		}
		dev := math.Abs(value-refPrice) / refPrice
		return dev <= maxDeviation(c.class, tf)

	case kind.Volatility():
		if value <= 0 {
			return false
		}
		if refPrice <= 0 {
			return true
		}
		frac := value / refPrice
		return frac >= 1e-7 && frac <= atrCeiling(c.class, tf)

	default: // MACD family: signed, bounded relative to price
		if refPrice <= 0 {
			return true
		}
		return math.Abs(value) <= refPrice*maxDeviation(c.class, tf)
	}
}

func (c *Cache) defaultValue(kind Kind, tf market.Timeframe, refPrice float64) float64 {
	switch {
	case kind == KindADX:
		return 20 // weak-trend default
	case kind.Oscillator():
		return 50
	case kind.PriceLevel():
		return refPrice
	case kind.Volatility():
		return refPrice * defaultATRFraction(c.class)
	default:
		return 0
	}
}

// CleanupExpired drops stale fresh entries; last-good values survive so
// transient provider failures keep being bridged. Maintenance path only.
func (c *Cache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, r := range c.fresh {
		if now.Sub(r.Timestamp) >= c.ttl {
			delete(c.fresh, k)
		}
	}
}

// fallbackTimeframes returns the substitution order for volatility readings:
// the next higher timeframes, nearest first.
func fallbackTimeframes(tf market.Timeframe) []market.Timeframe {
	var out []market.Timeframe
	seen := false
	for _, t := range market.AllTimeframes {
		if t == tf {
			seen = true
			continue
		}
		if seen {
			out = append(out, t)
		}
	}
	return out
}

// maxDeviation is the plausible distance of a price-level reading from the
// reference price: tighter for a 1-minute bar than a daily bar, widened for
// crypto and narrowed for currency pairs.
func maxDeviation(class market.AssetClass, tf market.Timeframe) float64 {
	base := map[market.Timeframe]float64{
		market.TF1m:  0.02,
		market.TF5m:  0.03,
		market.TF15m: 0.05,
		market.TF30m: 0.07,
		market.TF1h:  0.10,
		market.TF4h:  0.20,
		market.TF1d:  0.35,
	}[tf]
	if base == 0 {
		base = 0.10
	}
	return base * classMultiplier(class)
}

func atrCeiling(class market.AssetClass, tf market.Timeframe) float64 {
	base := map[market.Timeframe]float64{
		market.TF1m:  0.010,
		market.TF5m:  0.015,
		market.TF15m: 0.020,
		market.TF30m: 0.030,
		market.TF1h:  0.040,
		market.TF4h:  0.080,
		market.TF1d:  0.150,
	}[tf]
	if base == 0 {
		base = 0.040
	}
	return base * classMultiplier(class)
}

func classMultiplier(class market.AssetClass) float64 {
	switch class {
	case market.AssetForex:
		return 0.4
	case market.AssetMetal:
		return 1.0
	default:
		return 2.0
	}
}

func defaultATRFraction(class market.AssetClass) float64 {
	switch class {
	case market.AssetForex:
		return 0.0006
	case market.AssetMetal:
		return 0.0015
	default:
		return 0.004
	}
}
