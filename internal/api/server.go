// Package api exposes the fusion engines over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trading-fusion-engine/internal/fusion"
	"trading-fusion-engine/internal/signal"
	"trading-fusion-engine/internal/store"
)

// DecisionCache is the snapshot store the server reads before falling back
// to a synchronous evaluation. *store.SnapshotCache satisfies it; tests
// substitute an in-memory fake.
type DecisionCache interface {
	GetDecision(ctx context.Context, symbol string) (*signal.FusionDecision, error)
	PutDecision(ctx context.Context, d *signal.FusionDecision) error
	InvalidateDecision(ctx context.Context, symbol string) error
	IsHealthy() bool
}

// RateLimiter provides simple in-memory rate limiting per endpoint.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	ProductionMode bool   `json:"production_mode"`
	JWTSecret      string `json:"jwt_secret"`
	RateLimit      int    `json:"rate_limit"`
}

// Server is the HTTP API server. It holds one engine per symbol; requests
// for unknown symbols are rejected rather than lazily spawning engines.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	engines     map[string]*fusion.Engine
	repo        *store.Repository // nil when persistence is disabled
	snapshots   DecisionCache     // nil when Redis is disabled
	tokens      *TokenManager     // nil when auth is disabled
	rateLimiter *RateLimiter
	hub         *DecisionHub
	logger      zerolog.Logger
}

// NewServer creates the API server over the given engines.
func NewServer(
	config ServerConfig,
	engines map[string]*fusion.Engine,
	repo *store.Repository,
	snapshots DecisionCache,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	limit := config.RateLimit
	if limit <= 0 {
		limit = 120
	}

	server := &Server{
		router:      router,
		config:      config,
		engines:     engines,
		repo:        repo,
		snapshots:   snapshots,
		rateLimiter: NewRateLimiter(limit, time.Minute),
		hub:         NewDecisionHub(logger),
		logger:      logger,
	}
	if config.JWTSecret != "" {
		server.tokens = NewTokenManager(config.JWTSecret, time.Hour)
	}

	server.setupRoutes()
	go server.hub.Run()
	return server
}

// Hub exposes the decision broadcast hub so the driver can publish results.
func (s *Server) Hub() *DecisionHub { return s.hub }

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/ws/decisions", s.handleDecisionWS)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	if s.tokens != nil {
		api.Use(s.tokens.Middleware())
	}

	api.GET("/decision/:symbol", s.handleDecision)
	api.GET("/signals/:symbol/:component", s.handleComponentSignal)
	api.GET("/zones/:symbol", s.handleZones)
	api.GET("/zones/:symbol/archived", s.handleArchivedZones)
	api.GET("/consensus/:symbol", s.handleConsensus)
	api.GET("/history/:symbol", s.handleHistory)
	api.GET("/weights/:symbol", s.handleGetWeights)
	api.POST("/weights", s.handleSetWeights)
}

// Start runs the HTTP server. Blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) engine(c *gin.Context) (*fusion.Engine, bool) {
	symbol := c.Param("symbol")
	eng, ok := s.engines[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown symbol %q", symbol)})
		return nil, false
	}
	return eng, true
}
