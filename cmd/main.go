package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askwhyharsh/liveradar/internal/api"
	"github.com/askwhyharsh/liveradar/internal/config"
	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/radar"
	"github.com/askwhyharsh/liveradar/internal/ratelimit"
	"github.com/askwhyharsh/liveradar/internal/session"
	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	"github.com/askwhyharsh/liveradar/internal/websocket"
	"github.com/askwhyharsh/liveradar/pkg/logger"
	"github.com/askwhyharsh/liveradar/pkg/validator"
)

// radarStore is what the process needs from a location backend.
type radarStore interface {
	location.Store
	location.ChangeFeed
	location.Sweeper
}

type redisBackend struct {
	*location.RedisStore
	*location.RedisFeed
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	appLogger := logger.NewLogger(cfg.Server.Env, cfg.Monitoring.LogLevel)
	defer appLogger.Sync()
	appLogger.Info("Starting live radar server...")

	// Initialize Redis
	redisClient, err := storage.NewRedisClient(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", "address", cfg.RedisAddr())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var collector *metrics.Collector
	if cfg.Monitoring.EnableMetrics {
		collector, err = metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			appLogger.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	// Location store and change feed
	var store radarStore
	switch cfg.Radar.StoreBackend {
	case "memory":
		store = location.NewMemoryStore()
	default:
		feed := location.NewRedisFeed(redisClient, appLogger)
		store = redisBackend{location.NewRedisStore(redisClient), feed}

		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLogger.Error("Location change feed stopped", "error", err)
			}
		}()
	}
	appLogger.Info("Location store ready", "backend", cfg.Radar.StoreBackend)

	// Profile directory
	var directory profile.Directory = profile.NewMemoryDirectory()
	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgresClient(cfg.Postgres.DSN)
		if err != nil {
			appLogger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		directory = profile.NewPostgresDirectory(pg)
		appLogger.Info("Connected to Postgres")
	}
	profiles := profile.NewCachedLookup(redisClient, directory, cfg.Radar.ProfileCacheTTL, appLogger)

	// Discovery
	radius := cfg.Radar.RadiusConfig()
	finder := discovery.NewFinder(store, profiles, discovery.Config{
		Radius:       radius,
		ActiveWindow: cfg.Radar.ActiveWindow,
		QueryTimeout: cfg.Radar.QueryTimeout,
		MaxResults:   cfg.Radar.MaxNearbyResults,
	}, collector, appLogger)

	// Initialize services
	sessionService := session.NewService(redisClient, profiles, cfg.Session.TTL)
	sessionManager := session.NewManager(sessionService, appLogger)

	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit)
	rateLimitMiddleware := ratelimit.NewMiddleware(rateLimiter, appLogger)

	// Initialize validator
	val := validator.NewValidator()

	// Initialize WebSocket hub
	hub := websocket.NewHub(ctx, redisClient, appLogger)
	go hub.Run()

	// Initialize WebSocket handler
	wsHandler := websocket.NewHandler(
		hub,
		sessionManager,
		store,
		store,
		finder,
		rateLimiter,
		val,
		websocket.Config{
			Tracker: tracker.Config{
				MinMovement:        cfg.Radar.MinMovement,
				CadenceHigh:        cfg.Radar.CadenceHigh,
				CadenceBalanced:    cfg.Radar.CadenceBalanced,
				CadenceLow:         cfg.Radar.CadenceLow,
				AcquisitionTimeout: cfg.Radar.AcquisitionTimeout,
			},
			Syncer: location.SyncerConfig{TTL: cfg.Radar.LocationTTL},
			Radar:  radar.Config{Radius: radius, MaxResults: cfg.Radar.MaxNearbyResults},
		},
		collector,
		appLogger,
	)

	// Initialize API handler
	apiHandler := api.NewHandler(
		sessionService,
		finder,
		radius,
		rateLimiter,
		val,
		hub,
		appLogger,
	)

	// Start background services
	janitor := location.NewJanitor(store, cfg.Radar.SweepInterval, collector, appLogger)
	go janitor.Start(ctx)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	opts := api.RouteOptions{AllowedOrigins: cfg.Server.AllowedOrigins}
	if collector != nil {
		opts.Metrics = promhttp.HandlerFor(collector.Gatherer(), promhttp.HandlerOpts{})
	}

	// Setup routes
	api.SetupRoutes(router, apiHandler, wsHandler, rateLimitMiddleware, opts, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Server starting", "address", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Cancel context to stop background services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server stopped")
}
