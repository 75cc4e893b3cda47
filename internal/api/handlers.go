package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	symbols := make([]string, 0, len(s.engines))
	var lastDecision time.Time
	for symbol, eng := range s.engines {
		symbols = append(symbols, symbol)
		if t := eng.LastDecisionAt(); t.After(lastDecision) {
			lastDecision = t
		}
	}

	status := gin.H{
		"status":        "ok",
		"symbols":       symbols,
		"last_decision": lastDecision,
		"clients":       s.hub.ClientCount(),
	}
	if s.snapshots != nil {
		status["redis_healthy"] = s.snapshots.IsHealthy()
	}
	if s.repo != nil {
		status["persistence"] = "enabled"
	}
	c.JSON(http.StatusOK, status)
}

// handleDecision serves the latest decision: Redis snapshot when fresh,
// otherwise a synchronous evaluation. Snapshots only hold the current bar,
// so any non-zero shift bypasses the cache.
func (s *Server) handleDecision(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	shift, err := parseShift(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.snapshots != nil && shift == 0 && c.Query("fresh") == "" {
		if cached, err := s.snapshots.GetDecision(ctx, eng.Symbol()); err == nil && cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	decision, err := eng.Evaluate(ctx, shift)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.snapshots != nil && shift == 0 {
		_ = s.snapshots.PutDecision(ctx, decision)
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleComponentSignal(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}
	shift, err := parseShift(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := eng.ComponentSignal(c.Request.Context(), c.Param("component"), shift)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) handleZones(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}

	maxCount := 10
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a positive integer"})
			return
		}
		maxCount = n
	}

	refPrice := 0.0
	if v := c.Query("price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a positive number"})
			return
		}
		refPrice = p
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": eng.Symbol(),
		"zones":  eng.QueryZones(maxCount, refPrice),
	})
}

// handleArchivedZones serves retired zones, preferring the audit store.
func (s *Server) handleArchivedZones(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}

	if s.repo != nil {
		records, err := s.repo.ArchivedZones(c.Request.Context(), eng.Symbol(), 100)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"symbol": eng.Symbol(), "zones": records})
			return
		}
		s.logger.Warn().Err(err).Msg("archived zone query failed, serving in-memory archive")
	}
	c.JSON(http.StatusOK, gin.H{"symbol": eng.Symbol(), "zones": eng.ArchivedZones()})
}

func (s *Server) handleConsensus(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}
	shift, err := parseShift(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eng.Consensus(c.Request.Context(), shift))
}

func (s *Server) handleHistory(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision history requires persistence"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.repo.RecentDecisions(c.Request.Context(), eng.Symbol(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": eng.Symbol(), "decisions": records})
}

func (s *Server) handleGetWeights(c *gin.Context) {
	eng, ok := s.engine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": eng.Symbol(), "weights": eng.Weights()})
}

type weightsRequest struct {
	Symbol  string             `json:"symbol" binding:"required"`
	Weights map[string]float64 `json:"weights" binding:"required"`
}

// handleSetWeights reconfigures component weights for one symbol. Weights
// are normalized server-side; the normalized result is echoed back.
func (s *Server) handleSetWeights(c *gin.Context) {
	var req weightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	eng, ok := s.engines[req.Symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}

	if err := eng.ConfigureWeights(req.Weights); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.snapshots != nil {
		_ = s.snapshots.InvalidateDecision(c.Request.Context(), req.Symbol)
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "weights": eng.Weights()})
}

func parseShift(c *gin.Context) (int, error) {
	v := c.Query("shift")
	if v == "" {
		return 0, nil
	}
	shift, err := strconv.Atoi(v)
	if err != nil || shift < 0 {
		return 0, errInvalidShift
	}
	return shift, nil
}

var errInvalidShift = errors.New("shift must be a non-negative integer")
