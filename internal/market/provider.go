package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Provider is the external market-data boundary. Implementations may fail or
// return short series; callers own the degradation policy.
type Provider interface {
	// Candles returns up to limit bars for the symbol and timeframe, oldest
	// first, the last bar being the most recent (possibly still open).
	Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)
	// TickPrice returns the latest traded price.
	TickPrice(ctx context.Context, symbol string) (float64, error)
}

// CachedProvider wraps a Provider with a per-(symbol,timeframe) TTL cache so
// one evaluation's components all observe the same candle snapshot and
// transient provider failures are bridged by the last successful fetch.
type CachedProvider struct {
	inner Provider

	mu    sync.RWMutex
	cache map[string]*candleEntry
}

type candleEntry struct {
	candles   []Candle
	fetchedAt time.Time
	expiresAt time.Time
}

// NewCachedProvider wraps inner with candle caching.
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: make(map[string]*candleEntry),
	}
}

// Candles returns cached bars when fresh, otherwise fetches. On fetch failure
// a stale cached series is returned rather than an error, as long as one
// exists.
func (p *CachedProvider) Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	key := fmt.Sprintf("%s:%s:%d", symbol, tf, limit)

	p.mu.RLock()
	entry, ok := p.cache[key]
	p.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.candles, nil
	}

	candles, err := p.inner.Candles(ctx, symbol, tf, limit)
	if err != nil {
		if ok {
			// Stale but present beats unavailable.
			return entry.candles, nil
		}
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, tf, err)
	}

	p.mu.Lock()
	p.cache[key] = &candleEntry{
		candles:   candles,
		fetchedAt: time.Now(),
		expiresAt: time.Now().Add(tf.CacheTTL()),
	}
	p.mu.Unlock()

	return candles, nil
}

// TickPrice passes through to the inner provider, falling back to the last
// cached close for the lowest timeframe when the provider fails.
func (p *CachedProvider) TickPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := p.inner.TickPrice(ctx, symbol)
	if err == nil {
		return price, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	var newest *candleEntry
	prefix := symbol + ":"
	for key, entry := range p.cache {
		if len(entry.candles) == 0 || !strings.HasPrefix(key, prefix) {
			continue
		}
		if newest == nil || entry.fetchedAt.After(newest.fetchedAt) {
			newest = entry
		}
	}
	if newest != nil {
		return newest.candles[len(newest.candles)-1].Close, nil
	}
	return 0, fmt.Errorf("tick price %s: %w", symbol, err)
}

// CleanupExpired removes expired cache entries. Called from the maintenance
// path, never inline with tick processing.
func (p *CachedProvider) CleanupExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for key, entry := range p.cache {
		if now.After(entry.expiresAt) {
			delete(p.cache, key)
		}
	}
}
