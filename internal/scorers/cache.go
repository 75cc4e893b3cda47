// Package scorers contains the per-family bias/confidence producers:
// momentum oscillator, trend oscillator, volume and candlestick pattern.
// Each scorer is stateless across evaluations apart from a short-TTL cache of
// its own last result.
package scorers

import (
	"fmt"
	"sync"
	"time"

	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

// Config is shared scorer configuration.
type Config struct {
	Timeframe market.Timeframe `json:"timeframe"` // evaluation timeframe
	CacheTTL  time.Duration    `json:"cache_ttl"`
	Lookback  int              `json:"lookback"` // candles pulled per evaluation
}

// DefaultConfig returns standard scorer settings.
func DefaultConfig() Config {
	return Config{
		Timeframe: market.TF15m,
		CacheTTL:  45 * time.Second,
		Lookback:  60,
	}
}

// resultCache memoizes one ComponentSignal per (symbol, shift) with TTL
// expiry.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]cachedSignal
	ttl     time.Duration
}

type cachedSignal struct {
	sig       *signal.ComponentSignal
	expiresAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = DefaultConfig().CacheTTL
	}
	return &resultCache{
		entries: make(map[string]cachedSignal),
		ttl:     ttl,
	}
}

func (c *resultCache) get(symbol string, shift int) *signal.ComponentSignal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(symbol, shift)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.sig
}

func (c *resultCache) set(symbol string, shift int, sig *signal.ComponentSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(symbol, shift)] = cachedSignal{
		sig:       sig,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *resultCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func cacheKey(symbol string, shift int) string {
	return fmt.Sprintf("%s:%d", symbol, shift)
}
