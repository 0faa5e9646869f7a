package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablebook/api/routes"
	"tablebook/internal/realtime"
	"tablebook/internal/reservations"
	"tablebook/internal/shared/config"
	"tablebook/internal/shared/database"
	"tablebook/internal/shared/middleware"
	"tablebook/pkg/logger"
	"tablebook/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// rebuild after gin mode is known so the handler format matches
	appLogger = logger.New()
	logger.SetDefault(appLogger)
	appLogger.Info("Starting tablebook",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("commit", GitCommit),
		slog.String("instance", cfg.InstanceID),
	)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to initialize database", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	if db.Redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := reservations.PreloadScripts(ctx, db.Redis); err != nil {
			// scripts load on first use anyway
			appLogger.Warn("Failed to preload Redis Lua scripts", logger.Err(err))
		}
		cancel()
	}

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, &ratelimit.Config{
			Enabled:             cfg.RateLimit.Enabled,
			WindowDuration:      cfg.RateLimit.WindowDuration,
			DefaultRequests:     cfg.RateLimit.DefaultRequests,
			ReservationRequests: cfg.RateLimit.ReservationRequests,
			WriteRequests:       cfg.RateLimit.WriteRequests,
			RealtimeRequests:    cfg.RateLimit.RealtimeRequests,
			HealthRequests:      cfg.RateLimit.HealthRequests,
			WhitelistedIPs:      cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("write_requests", cfg.RateLimit.WriteRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	hub := realtime.NewHub(appLogger)
	backplane, err := newBackplane(cfg, appLogger)
	if err != nil {
		appLogger.Error("Backplane unavailable, events stay on this instance", logger.Err(err))
	}
	broadcaster := realtime.NewBroadcaster(hub, backplane, cfg.InstanceID, appLogger)

	backplaneCtx, stopBackplane := context.WithCancel(context.Background())
	broadcaster.Start(backplaneCtx)

	router := setupRouter(cfg, db, hub, broadcaster, rateLimiter, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("feed", fmt.Sprintf("ws://localhost:%s/ws/reservations", cfg.Port)),
			slog.String("database", cfg.Database.Driver),
			slog.Bool("redis", db.Redis != nil),
			slog.String("backplane", cfg.Realtime.Backplane),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", logger.Err(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	// hijacked WebSocket connections are not tracked by Shutdown; closing the hub ends them
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", logger.Err(err))
	}

	stopBackplane()
	if err := broadcaster.Close(); err != nil {
		appLogger.Warn("Backplane did not close cleanly", logger.Err(err))
	}

	appLogger.Info("Server exited gracefully")
}

// newBackplane returns nil when events only need to reach this instance
func newBackplane(cfg *config.Config, log *logger.Logger) (realtime.Backplane, error) {
	switch cfg.Realtime.Backplane {
	case "kafka":
		bp, err := realtime.NewKafkaBackplane(cfg.Kafka, cfg.InstanceID, log)
		if err != nil {
			return nil, err
		}
		return bp, nil
	case "rabbitmq":
		bp, err := realtime.NewRabbitMQBackplane(cfg.RabbitMQ, log)
		if err != nil {
			return nil, err
		}
		return bp, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backplane %q", cfg.Realtime.Backplane)
	}
}

func setupRouter(cfg *config.Config, db *database.DB, hub *realtime.Hub, publisher reservations.Publisher, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()

	engine.Use(middleware.RequestID(), middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter, appLogger))
	}

	appRouter := routes.NewRouter(cfg, db, hub, publisher, appLogger)
	appRouter.SetupRoutes(engine)

	return engine
}
