package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quizhall/server/internal/v1/analytics"
	"github.com/quizhall/server/internal/v1/auth"
	"github.com/quizhall/server/internal/v1/config"
	"github.com/quizhall/server/internal/v1/health"
	"github.com/quizhall/server/internal/v1/httpapi"
	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/middleware"
	"github.com/quizhall/server/internal/v1/ratelimit"
	"github.com/quizhall/server/internal/v1/snapshot"
	"github.com/quizhall/server/internal/v1/tracing"
	"github.com/quizhall/server/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	logging.Initialize(cfg.DevelopmentMode)
	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Tracing (Optional) ---
	if cfg.OtelEnabled {
		tp, err := tracing.InitTracer(context.Background(), "quizhall-server", cfg.OtelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
			slog.Info("✅ Tracing initialized", "collector", cfg.OtelCollectorAddr)
		}
	}

	// --- Snapshot Store ---
	// An inaccessible snapshot directory is the one startup failure that
	// exits non-zero; a bad load merely starts empty.
	snapshots, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("Snapshot store unavailable", "error", err)
		os.Exit(1)
	}

	// --- Redis Analytics Mirror (Optional) ---
	var mirror *analytics.Mirror
	if cfg.RedisEnabled {
		mirror, err = analytics.NewMirror(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running without analytics mirror", "error", err)
			mirror = nil
		} else {
			slog.Info("✅ Redis analytics mirror initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}
	analyticsStore := analytics.NewStore(mirror)

	// --- Rate Limiter ---
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, mirror.Client())
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Hub ---
	hub := transport.NewHub(transport.Config{
		Snapshots:     snapshots,
		Analytics:     analyticsStore,
		RateLimiter:   rateLimiter,
		SweepInterval: cfg.StaleSweepInterval,
		StaleMaxAge:   cfg.StaleRoomMaxAge,
	})

	// Load the previous snapshot; a corrupt file starts empty.
	if records, err := snapshots.Load(cfg.StaleRoomMaxAge); err != nil {
		slog.Warn("Snapshot load failed, starting with no rooms", "error", err)
	} else {
		hub.RestoreRooms(records)
	}

	// Background loops stop with this context at shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	go hub.RunStaleSweeper(bgCtx)
	go snapshots.Run(bgCtx, cfg.SnapshotInterval, hub.ExportRecords)

	// --- Set up Server ---
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.OtelEnabled {
		router.Use(otelgin.Middleware("quizhall-server"))
	}
	router.Use(rateLimiter.GlobalMiddleware())

	// Routing
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/hub", hub.ServeWs)
	}

	api := httpapi.NewHandler(hub, analyticsStore)
	api.Register(router, rateLimiter.RoomsMiddleware())

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(snapshots, mirror)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context is used to inform the server it has 30 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the sweeper and the snapshot loop (the loop takes a final save).
	bgCancel()

	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	// One last snapshot after every room has quiesced.
	if err := snapshots.SaveAll(hub.ExportRecords()); err != nil {
		slog.Error("Final snapshot save failed", "error", err)
	}

	if mirror != nil {
		if err := mirror.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}
