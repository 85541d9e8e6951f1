// Package api exposes the monitoring surface: a REST API over the live
// engine, a WebSocket event stream, and Prometheus metrics. The API is
// read-mostly; the only mutating routes are the strategy toggle, the
// manual cycle trigger and the close-all panic button.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/auth"
	"stock-trading-engine/internal/events"
	"stock-trading-engine/internal/journal"
	"stock-trading-engine/internal/scanner"
	"stock-trading-engine/internal/strategy"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ===== RATE LIMITER =====

// RateLimiter provides simple in-memory rate limiting per client and path.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
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

// ===== SERVER =====

// EngineAPI is the slice of the cycle controller the API needs.
// Implemented by engine.Controller.
type EngineAPI interface {
	GetStatus() map[string]interface{}
	InstanceIDs() []string
	Instance(id string) (*strategy.Instance, bool)
	CloseAll(reason string) int
	TriggerCycle()
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	authCfg    config.AuthConfig

	engine  EngineAPI
	journal *journal.Journal
	scanner *scanner.Scanner // nil when preselect is disabled
	bus     *events.EventBus

	jwtManager   *auth.JWTManager // nil when auth is disabled
	rateLimiter  *RateLimiter
	loginLimiter *RateLimiter
	hub          *WSHub
	logger       zerolog.Logger
	startedAt    time.Time
}

// NewServer creates a new API server wired to the engine.
func NewServer(
	cfg config.ServerConfig,
	authCfg config.AuthConfig,
	eng EngineAPI,
	jrnl *journal.Journal,
	scn *scanner.Scanner,
	bus *events.EventBus,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	origins := splitOrigins(cfg.AllowedOrigins)
	if len(origins) == 0 || origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		cfg:          cfg,
		authCfg:      authCfg,
		engine:       eng,
		journal:      jrnl,
		scanner:      scn,
		bus:          bus,
		rateLimiter:  NewRateLimiter(120, time.Minute),
		loginLimiter: NewRateLimiter(10, time.Minute),
		logger:       logger,
		startedAt:    time.Now(),
	}

	if authCfg.Enabled {
		server.jwtManager = auth.NewJWTManager(authCfg.JWTSecret, authCfg.AccessTokenDuration)
	}

	server.hub = NewWSHub(logger)
	go server.hub.Run()
	if bus != nil {
		bus.SubscribeAll(server.hub.BroadcastEvent)
	}

	server.setupRoutes()

	return server
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// rateLimitMiddleware rate limits requests by client IP and route.
func (s *Server) rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !limiter.Allow(c.ClientIP() + path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, slow down",
			})
			return
		}
		c.Next()
	}
}

// requestLogger logs completed requests at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestLogger())

	// Health check and metrics are always public.
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth status endpoint (always available, returns whether auth is enabled)
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authCfg.Enabled})
	})

	// Login is public but tightly rate limited.
	if s.authCfg.Enabled {
		s.router.POST("/api/login", s.rateLimitMiddleware(s.loginLimiter), s.handleLogin)
	}

	// API routes (protected when auth is enabled)
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware(s.rateLimiter))
	if s.authCfg.Enabled {
		api.Use(auth.Middleware(s.jwtManager))
	}

	{
		// Engine endpoints
		api.GET("/status", s.handleStatus)
		api.POST("/cycle", s.handleTriggerCycle)

		// Position endpoints
		api.GET("/positions", s.handleGetPositions)
		api.POST("/positions/close-all", s.handleCloseAllPositions)

		// Strategy endpoints
		api.GET("/strategies", s.handleGetStrategies)
		api.GET("/strategies/:id", s.handleGetStrategy)
		api.PUT("/strategies/:id/toggle", s.handleToggleStrategy)

		// Journal endpoints
		api.GET("/trades", s.handleGetTrades)

		// Preselect scanner results
		api.GET("/scan", s.handleGetScanResult)
	}

	// WebSocket event stream
	s.router.GET("/ws", s.handleWebSocket)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
