package api

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strconv"
	"time"

	"stock-trading-engine/internal/auth"
	"stock-trading-engine/internal/events"

	"github.com/gin-gonic/gin"
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	status := s.engine.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"engine_state":    status["state"],
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"journal_records": s.journal.Len(),
	})
}

// ===== AUTH =====

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin verifies the operator credentials and issues an access token.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	// Constant-time username compare; bcrypt covers the password.
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.authCfg.Username)) == 1
	passOK := auth.VerifyPassword(req.Password, s.authCfg.PasswordHash)
	if !userOK || !passOK {
		s.logger.Warn().Str("username", req.Username).Str("ip", c.ClientIP()).Msg("Failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expiresAt, err := s.jwtManager.GenerateAccessToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}

// ===== ENGINE =====

// handleStatus returns the full engine status snapshot.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetStatus())
}

// handleTriggerCycle requests an immediate scan cycle.
func (s *Server) handleTriggerCycle(c *gin.Context) {
	s.engine.TriggerCycle()
	c.JSON(http.StatusAccepted, gin.H{"message": "cycle triggered"})
}

// ===== POSITIONS =====

// handleGetPositions flattens every strategy's position cache.
func (s *Server) handleGetPositions(c *gin.Context) {
	var positions []gin.H
	for _, id := range s.engine.InstanceIDs() {
		inst, ok := s.engine.Instance(id)
		if !ok {
			continue
		}
		for _, pos := range inst.Positions() {
			positions = append(positions, gin.H{
				"strategy":   id,
				"symbol":     pos.Symbol,
				"size":       pos.Size,
				"avg_cost":   pos.AvgCost,
				"entry_time": pos.EntryTime,
			})
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i]["strategy"].(string) != positions[j]["strategy"].(string) {
			return positions[i]["strategy"].(string) < positions[j]["strategy"].(string)
		}
		return positions[i]["symbol"].(string) < positions[j]["symbol"].(string)
	})
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

type closeAllRequest struct {
	Reason string `json:"reason"`
}

// handleCloseAllPositions liquidates everything across all strategies.
func (s *Server) handleCloseAllPositions(c *gin.Context) {
	var req closeAllRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual close-all via API"
	}

	closed := s.engine.CloseAll(req.Reason)
	s.logger.Info().Int("closed", closed).Str("reason", req.Reason).Msg("Close-all requested via API")
	c.JSON(http.StatusOK, gin.H{"closed": closed, "reason": req.Reason})
}

// ===== STRATEGIES =====

// handleGetStrategies lists every hosted strategy instance.
func (s *Server) handleGetStrategies(c *gin.Context) {
	var strategies []map[string]interface{}
	for _, id := range s.engine.InstanceIDs() {
		if inst, ok := s.engine.Instance(id); ok {
			strategies = append(strategies, inst.Snapshot())
		}
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "count": len(strategies)})
}

// handleGetStrategy returns one instance snapshot.
func (s *Server) handleGetStrategy(c *gin.Context) {
	inst, ok := s.engine.Instance(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy"})
		return
	}
	c.JSON(http.StatusOK, inst.Snapshot())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// handleToggleStrategy enables or disables signal generation for one
// strategy. Open positions keep their exit management either way.
func (s *Server) handleToggleStrategy(c *gin.Context) {
	id := c.Param("id")
	inst, ok := s.engine.Instance(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy"})
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry an enabled flag"})
		return
	}

	inst.SetEnabled(*req.Enabled)
	s.bus.Publish(events.Event{
		Type: events.EventStrategyToggled,
		Data: map[string]interface{}{
			"strategy": id,
			"enabled":  *req.Enabled,
		},
	})
	s.logger.Info().Str("strategy", id).Bool("enabled", *req.Enabled).Msg("Strategy toggled via API")

	c.JSON(http.StatusOK, gin.H{"strategy": id, "enabled": *req.Enabled})
}

// ===== JOURNAL =====

// handleGetTrades returns the most recent journal records.
func (s *Server) handleGetTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records := s.journal.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"trades":         records,
		"count":          len(records),
		"total_appended": s.journal.TotalAppended(),
	})
}

// ===== SCANNER =====

// handleGetScanResult returns the last preselect scan, if any ran.
func (s *Server) handleGetScanResult(c *gin.Context) {
	if s.scanner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preselect scanner disabled"})
		return
	}
	result := s.scanner.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan has completed yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}
