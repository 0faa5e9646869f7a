// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"tablebook/internal/realtime"
	"tablebook/internal/reservations"
	"tablebook/internal/shared/config"
	"tablebook/internal/shared/constants"
	"tablebook/internal/shared/database"
	"tablebook/internal/tables"
	"tablebook/pkg/cache"
	"tablebook/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	hub       *realtime.Hub
	publisher reservations.Publisher
	log       *logger.Logger

	service reservations.Service
}

// NewRouter creates a new router instance. publisher is where confirmed changes go; it is
// usually a realtime.Broadcaster over hub.
func NewRouter(cfg *config.Config, db *database.DB, hub *realtime.Hub, publisher reservations.Publisher, log *logger.Logger) *Router {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Router{
		config:    cfg,
		db:        db,
		hub:       hub,
		publisher: publisher,
		log:       log,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	r.service = r.buildReservationService()

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupReservationRoutes(api)
	}

	r.setupRealtimeRoutes(engine)
}

// Service returns the reservation service built by SetupRoutes
func (r *Router) Service() reservations.Service {
	return r.service
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "tablebook",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "tablebook",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"instance":    r.config.InstanceID,
			"database":    r.db.Driver,
			"redis":       r.db.Redis != nil,
			"backplane":   r.config.Realtime.Backplane,
			"realtime":    r.hub.Stats(),
			"timestamp":   time.Now(),
		})
	})
}

// buildReservationService wires the store, table lookups and idempotency store.
// Redis backs the table cache and idempotency keys when it is available.
func (r *Router) buildReservationService() reservations.Service {
	sqlDB := r.db.GetSQL()

	var tableRepo tables.Repository = tables.NewRepository(sqlDB)
	var idem reservations.IdempotencyStore

	resCfg := r.config.Reservations
	ttl := orDefault(resCfg.IdempotencyTTL, constants.TTL_IDEMPOTENCY)
	pendingTTL := orDefault(resCfg.PendingClaimTTL, constants.TTL_PENDING_CLAIM)

	if rdb := r.db.GetRedisClient(); rdb != nil {
		tableRepo = tables.NewCachedRepository(tableRepo, cache.NewService(rdb, r.log))
		idem = reservations.NewRedisIdempotencyStore(rdb, ttl, pendingTTL)
	} else {
		idem = reservations.NewMemoryIdempotencyStore(ttl, pendingTTL)
	}

	return reservations.NewService(
		reservations.NewRepository(sqlDB),
		tableRepo,
		r.publisher,
		idem,
		reservations.OptionsFromConfig(resCfg),
		r.log,
	)
}

func (r *Router) setupReservationRoutes(rg *gin.RouterGroup) {
	controller := reservations.NewController(r.service, r.log)
	reservations.SetupReservationRoutes(rg, controller)
}

func (r *Router) setupRealtimeRoutes(engine *gin.Engine) {
	handler := realtime.NewHandler(r.hub, r.service, r.config.Realtime, r.log)
	engine.GET("/ws/reservations", handler.Serve)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
