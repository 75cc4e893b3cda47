package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-fusion-engine/config"
	"trading-fusion-engine/internal/api"
	"trading-fusion-engine/internal/fusion"
	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.Config{})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(cfg.LoggingConfig)
	logger.Info().Strs("symbols", cfg.Symbols).Msg("starting fusion engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Market data: live stream unless mock mode is requested.
	var candles market.Provider
	if cfg.MarketConfig.MockMode {
		logger.Warn().Msg("mock mode enabled, using simulated market data")
		candles = market.NewCachedProvider(market.NewSimProvider())
	} else {
		stream := market.NewStreamProvider(
			cfg.MarketConfig.StreamURL,
			cfg.Symbols,
			cfg.MarketConfig.MaxBars,
			logging.Component(logger, "stream"),
		)
		stream.Start(ctx)
		defer stream.Stop()
		candles = market.NewCachedProvider(stream)
	}

	indicators := indicator.NewComputeProvider(candles, indicator.DefaultPeriods())

	engines := make(map[string]*fusion.Engine, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		eng, err := fusion.NewEngine(symbol, cfg.Engine, candles, indicators, logging.Component(logger, "engine"))
		if err != nil {
			logger.Fatal().Err(err).Str("symbol", symbol).Msg("failed to create engine")
		}
		engines[symbol] = eng
	}

	// Optional audit persistence.
	var repo *store.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := store.NewDB(cfg.DatabaseConfig.Config, logging.Component(logger, "store"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		repo = store.NewRepository(db)
	}

	// Optional Redis snapshot cache, degraded mode tolerated.
	var snapshots *store.SnapshotCache
	if cfg.RedisConfig.Enabled {
		snapshots, err = store.NewSnapshotCache(cfg.RedisConfig, logging.Component(logger, "snapshots"))
		if err != nil {
			logger.Warn().Err(err).Msg("snapshot cache unavailable")
			snapshots = nil
		} else {
			defer snapshots.Close()
		}
	}

	// A nil *store.SnapshotCache must stay a nil interface inside the server.
	var decisionCache api.DecisionCache
	if snapshots != nil {
		decisionCache = snapshots
	}
	server := api.NewServer(cfg.ServerConfig, engines, repo, decisionCache, logging.Component(logger, "api"))
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runEvaluateLoop(ctx, cfg, engines, repo, snapshots, server, logger)
	}()
	go func() {
		defer wg.Done()
		runMaintainLoop(ctx, cfg, engines, repo, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
	wg.Wait()
	logger.Info().Msg("fusion engine stopped")
}

// runEvaluateLoop is the fast path: feed live ticks and bar closes into zone
// tracking, evaluate every symbol each interval, publish to subscribers and
// cache the snapshot.
func runEvaluateLoop(
	ctx context.Context,
	cfg *config.Config,
	engines map[string]*fusion.Engine,
	repo *store.Repository,
	snapshots *store.SnapshotCache,
	server *api.Server,
	logger zerolog.Logger,
) {
	ticker := time.NewTicker(cfg.EvaluateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for symbol, eng := range engines {
			eng.ObserveTick(ctx)
			decision, err := eng.Evaluate(ctx, 0)
			if err != nil {
				logger.Error().Err(err).Str("symbol", symbol).Msg("evaluation failed")
				continue
			}

			server.Hub().Publish(decision)
			if snapshots != nil {
				if err := snapshots.PutDecision(ctx, decision); err != nil {
					logger.Debug().Err(err).Msg("snapshot write skipped")
				}
			}
			if repo != nil {
				if err := repo.SaveDecision(ctx, decision); err != nil {
					logger.Error().Err(err).Str("symbol", symbol).Msg("decision persist failed")
				}
			}
		}
	}
}

// runMaintainLoop is the slow path: zone lifecycle, relevance decay, cache
// aging and archived zone flushing.
func runMaintainLoop(
	ctx context.Context,
	cfg *config.Config,
	engines map[string]*fusion.Engine,
	repo *store.Repository,
	logger zerolog.Logger,
) {
	ticker := time.NewTicker(cfg.MaintainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for symbol, eng := range engines {
			eng.Maintain(ctx)
			if repo != nil {
				if err := repo.SaveArchivedZones(ctx, symbol, eng.ArchivedZones()); err != nil {
					logger.Error().Err(err).Str("symbol", symbol).Msg("archived zone persist failed")
				}
			}
		}
	}
}
