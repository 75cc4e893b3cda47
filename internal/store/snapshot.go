package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/signal"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

const (
	snapshotKeyFormat = "fusion:%s:decision"
	snapshotTTL       = 5 * time.Minute
)

// SnapshotCache serves the latest decision per symbol from Redis with
// graceful degradation. When Redis is down, reads and writes fail softly and
// callers fall back to evaluating or to the database.
type SnapshotCache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewSnapshotCache connects to Redis. A failed initial connection returns the
// cache in degraded mode rather than an error; it recovers on its own.
func NewSnapshotCache(cfg RedisConfig, logger zerolog.Logger) (*SnapshotCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	sc := &SnapshotCache{
		client:        client,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("initial Redis connection failed, running degraded")
		return sc, nil
	}

	sc.healthy = true
	sc.lastCheck = time.Now()
	logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return sc, nil
}

// IsHealthy reports whether Redis is currently usable.
func (sc *SnapshotCache) IsHealthy() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.healthy
}

func (sc *SnapshotCache) recordFailure() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.failureCount++
	if sc.failureCount >= sc.maxFailures {
		if sc.healthy {
			sc.logger.Warn().Int("failures", sc.failureCount).Msg("Redis marked unhealthy")
		}
		sc.healthy = false
	}
}

func (sc *SnapshotCache) recordSuccess() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.healthy {
		sc.logger.Info().Msg("Redis recovered")
	}
	sc.healthy = true
	sc.failureCount = 0
	sc.lastCheck = time.Now()
}

// checkHealth pings in the background once the check interval has elapsed
// while unhealthy.
func (sc *SnapshotCache) checkHealth() {
	sc.mu.RLock()
	shouldCheck := !sc.healthy && time.Since(sc.lastCheck) >= sc.checkInterval
	sc.mu.RUnlock()
	if !shouldCheck {
		return
	}

	sc.mu.Lock()
	sc.lastCheck = time.Now()
	sc.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sc.client.Ping(ctx).Err(); err == nil {
			sc.recordSuccess()
		}
	}()
}

// PutDecision stores the latest decision for a symbol.
func (sc *SnapshotCache) PutDecision(ctx context.Context, d *signal.FusionDecision) error {
	sc.checkHealth()
	if !sc.IsHealthy() {
		return fmt.Errorf("redis unavailable")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	key := fmt.Sprintf(snapshotKeyFormat, d.Symbol)
	if err := sc.client.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		sc.recordFailure()
		return fmt.Errorf("set snapshot: %w", err)
	}
	sc.recordSuccess()
	return nil
}

// GetDecision returns the cached decision for a symbol, or nil when absent.
func (sc *SnapshotCache) GetDecision(ctx context.Context, symbol string) (*signal.FusionDecision, error) {
	sc.checkHealth()
	if !sc.IsHealthy() {
		return nil, fmt.Errorf("redis unavailable")
	}

	key := fmt.Sprintf(snapshotKeyFormat, symbol)
	data, err := sc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		sc.recordSuccess()
		return nil, nil
	}
	if err != nil {
		sc.recordFailure()
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	sc.recordSuccess()

	var d signal.FusionDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &d, nil
}

// InvalidateDecision drops the cached decision for a symbol.
func (sc *SnapshotCache) InvalidateDecision(ctx context.Context, symbol string) error {
	if !sc.IsHealthy() {
		return fmt.Errorf("redis unavailable")
	}
	key := fmt.Sprintf(snapshotKeyFormat, symbol)
	if err := sc.client.Del(ctx, key).Err(); err != nil {
		sc.recordFailure()
		return fmt.Errorf("delete snapshot: %w", err)
	}
	sc.recordSuccess()
	return nil
}

// Close shuts down the Redis client.
func (sc *SnapshotCache) Close() error {
	return sc.client.Close()
}
