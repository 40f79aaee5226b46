package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/umlhub/umlhub/auth"
	"github.com/umlhub/umlhub/internal/config"
)

// Server wires the collaboration hub and its HTTP surface together
type Server struct {
	wsHub          *WebSocketHub
	authMiddleware *auth.Middleware
	db             *gorm.DB
	redis          *redis.Client
	registry       *prometheus.Registry
}

// NewServer creates the API server. The hub is created here but its
// sweeper does not run until StartWebSocketHub is called.
func NewServer(db *gorm.DB, redisClient *redis.Client, authMiddleware *auth.Middleware, cfg config.CollaborationConfig) *Server {
	registry := prometheus.NewRegistry()
	metrics := NewCollabMetrics(registry)

	return &Server{
		wsHub:          NewWebSocketHub(NewGormDiagramStore(db), cfg, metrics),
		authMiddleware: authMiddleware,
		db:             db,
		redis:          redisClient,
		registry:       registry,
	}
}

// Hub exposes the websocket hub, mainly for tests and the sweeper wiring
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// RegisterHandlers registers the API routes with the router
func (s *Server) RegisterHandlers(r *gin.Engine) {
	r.GET("/ws/diagrams/:diagram_id", s.authMiddleware.AuthRequired(), s.HandleWebSocket)
	r.GET("/healthz", s.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// HandleWebSocket upgrades the request and hands the session to the hub.
// The diagram ID in the path is advisory: the session joins rooms via
// join messages, so the path segment is only logged, never trusted.
func (s *Server) HandleWebSocket(c *gin.Context) {
	s.wsHub.HandleWS(c)
}

// HandleHealth reports liveness of the server and its dependencies
func (s *Server) HandleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{"postgres": "ok", "redis": "ok"}

	if sqlDB, err := s.db.DB(); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":      http.StatusText(status),
		"checks":      checks,
		"connections": s.wsHub.ConnectionCount(),
		"rooms":       s.wsHub.RoomCount(),
	})
}

// StartWebSocketHub starts the lock expiry sweeper
func (s *Server) StartWebSocketHub(ctx context.Context) {
	go s.wsHub.StartLockSweeper(ctx)
}
