package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server exposes the HTTP API of SPEC_FULL §4.9/§6 over the
// BotController, built the way ipadev88-proxy-checker-api's
// internal/api/server.go wires gin: a thin router plus one rate
// limiter keyed by client IP.
type Server struct {
	cfg         *Config
	controller  *BotController
	metrics     *Metrics
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *ipRateLimiter
}

type ipRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPRateLimiter(requestsPerMinute int) *ipRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    maxInt(requestsPerMinute/10, 1),
	}
}

func (rl *ipRateLimiter) get(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.limiters[key]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NewServer builds the gin router and registers every SPEC_FULL §4.9 route.
func NewServer(cfg *Config, controller *BotController, metrics *Metrics) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		controller:  controller,
		metrics:     metrics,
		router:      router,
		rateLimiter: newIPRateLimiter(600),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.rateLimitMiddleware())

	s.router.GET("/inspect", s.handleInspect)
	s.router.GET("/status", s.handleStatus)
	s.router.POST("/reconnect", s.handleReconnect)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.ClientIP(),
		}).Info("api request")
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.get(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// handleInspect implements GET /inspect?link=... per SPEC_FULL §4.9,
// dropping the teacher implementation's database-cache lookup: results
// are never persisted (Non-goal).
func (s *Server) handleInspect(c *gin.Context) {
	raw := c.Query("link")
	if raw == "" {
		raw = c.Query("url")
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing link parameter"})
		return
	}

	link, err := ParseInspectLink(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.controller.LookupInspect(link)
	if err != nil {
		switch err {
		case ErrNoBotsAvailable, ErrNotReady:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case ErrTtlExceeded:
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.GetStatus())
}

// handleReconnect implements POST /reconnect?bot=username per
// SPEC_FULL §4.9, replacing the teacher implementation's broken
// commandChan/botCommand plumbing with a direct controller call.
func (s *Server) handleReconnect(c *gin.Context) {
	username := c.Query("bot")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing bot parameter"})
		return
	}
	if err := s.controller.Reconnect(username); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTTL + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.WithField("addr", s.cfg.ListenAddr).Info("starting http api")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down http api")
	return s.httpServer.Shutdown(ctx)
}
