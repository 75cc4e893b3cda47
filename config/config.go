// Package config loads engine configuration from config.json with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-fusion-engine/internal/api"
	"trading-fusion-engine/internal/fusion"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/store"
)

// Config is the full application configuration.
type Config struct {
	Symbols        []string          `json:"symbols"`
	Engine         fusion.Config     `json:"engine"`
	EvaluateEvery  time.Duration     `json:"-"`
	MaintainEvery  time.Duration     `json:"-"`
	MarketConfig   MarketConfig      `json:"market"`
	ServerConfig   api.ServerConfig  `json:"server"`
	DatabaseConfig DatabaseConfig    `json:"database"`
	RedisConfig    store.RedisConfig `json:"redis"`
	LoggingConfig  logging.Config    `json:"logging"`
}

// MarketConfig selects and tunes the candle data source.
type MarketConfig struct {
	MockMode  bool   `json:"mock_mode"`
	StreamURL string `json:"stream_url"`
	MaxBars   int    `json:"max_bars"`
}

// DatabaseConfig wraps the store config plus an enable switch.
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	store.Config
}

// Load reads config.json when present and applies environment overrides on
// top. Environment variables always win.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FUSION_SYMBOLS"); v != "" {
		cfg.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
			}
		}
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"BTCUSDT"}
	}

	// Engine
	base := fusion.DefaultConfig()
	if cfg.Engine.Weights == nil {
		cfg.Engine.Weights = base.Weights
	}
	if cfg.Engine.MinConfidence <= 0 {
		cfg.Engine.MinConfidence = base.MinConfidence
	}
	if cfg.Engine.IndicatorTTL <= 0 {
		cfg.Engine.IndicatorTTL = base.IndicatorTTL
	}
	if cfg.Engine.Scorer.Lookback == 0 {
		cfg.Engine.Scorer = base.Scorer
	}
	if len(cfg.Engine.Consensus.Timeframes) == 0 {
		cfg.Engine.Consensus = base.Consensus
	}
	if len(cfg.Engine.Zones.SourceTimeframes) == 0 {
		cfg.Engine.Zones = base.Zones
	}
	cfg.Engine.MinConfidence = getEnvFloatOrDefault("FUSION_MIN_CONFIDENCE", cfg.Engine.MinConfidence)

	cfg.EvaluateEvery = getEnvDurationOrDefault("FUSION_EVALUATE_INTERVAL", 15*time.Second)
	cfg.MaintainEvery = getEnvDurationOrDefault("FUSION_MAINTAIN_INTERVAL", 5*time.Minute)

	// Market data
	cfg.MarketConfig.MockMode = getEnvOrDefault("MOCK_MODE", boolString(cfg.MarketConfig.MockMode)) == "true"
	cfg.MarketConfig.StreamURL = getEnvOrDefault("MARKET_STREAM_URL", cfg.MarketConfig.StreamURL)
	if cfg.MarketConfig.StreamURL == "" {
		cfg.MarketConfig.StreamURL = "wss://stream.binance.com:9443"
	}
	if cfg.MarketConfig.MaxBars <= 0 {
		cfg.MarketConfig.MaxBars = 500
	}

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolString(cfg.ServerConfig.ProductionMode)) == "true"
	cfg.ServerConfig.JWTSecret = getEnvOrDefault("API_JWT_SECRET", cfg.ServerConfig.JWTSecret)
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("API_RATE_LIMIT", defaultInt(cfg.ServerConfig.RateLimit, 120))

	// Database
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "fusion"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "fusion"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
