package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askwhyharsh/liveradar/internal/ratelimit"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

type WebSocketHandler interface {
	HandleWebSocket(c *gin.Context)
}

type RouteOptions struct {
	AllowedOrigins []string
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

func SetupRoutes(r *gin.Engine, handler *Handler, wsHandler WebSocketHandler, rlMiddleware *ratelimit.Middleware, opts RouteOptions, log logger.Logger) {
	// Apply global middleware
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggingMiddleware(log))
	r.Use(CORSMiddleware(opts.AllowedOrigins))
	r.Use(RequestTimeMiddleware())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// API routes
	api := r.Group("/api")
	api.Use(rlMiddleware.IPRateLimit())
	{
		api.POST("/session/create", handler.CreateSession)

		api.GET("/radius", rlMiddleware.SessionRequired(), handler.GetRadius)
		api.GET("/nearby", rlMiddleware.SessionRequired(), handler.GetNearby)

		api.GET("/health", handler.Health)
	}

	// WebSocket route
	r.GET("/ws", rlMiddleware.IPRateLimit(), wsHandler.HandleWebSocket)
}
