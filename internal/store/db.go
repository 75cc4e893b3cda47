// Package store persists decisions and archived zones for audit and serves
// hot decision snapshots from Redis.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the audit tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id SERIAL PRIMARY KEY,
			evaluation_id UUID NOT NULL UNIQUE,
			symbol VARCHAR(20) NOT NULL,
			overall_confidence DECIMAL(6, 2) NOT NULL,
			weighted_score DECIMAL(6, 2) NOT NULL,
			dominant VARCHAR(10) NOT NULL,
			bullish_share DECIMAL(6, 2) NOT NULL,
			bearish_share DECIMAL(6, 2) NOT NULL,
			neutral_share DECIMAL(6, 2) NOT NULL,
			conflict BOOLEAN NOT NULL DEFAULT FALSE,
			is_valid BOOLEAN NOT NULL DEFAULT FALSE,
			validation_message TEXT,
			active_components INT NOT NULL DEFAULT 0,
			weights JSONB,
			components JSONB,
			decided_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_is_valid ON decisions(is_valid)`,

		`CREATE TABLE IF NOT EXISTS archived_zones (
			id SERIAL PRIMARY KEY,
			zone_id UUID NOT NULL UNIQUE,
			symbol VARCHAR(20) NOT NULL,
			zone_type VARCHAR(12) NOT NULL,
			level DECIMAL(20, 8) NOT NULL,
			strength DECIMAL(5, 4) NOT NULL,
			relevance DECIMAL(5, 4) NOT NULL,
			touch_count INT NOT NULL DEFAULT 0,
			failed_tests INT NOT NULL DEFAULT 0,
			source_timeframe VARCHAR(10) NOT NULL,
			formed_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_zones_symbol ON archived_zones(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_zones_archived_at ON archived_zones(archived_at DESC)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}

// HealthCheck performs a database health check.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
