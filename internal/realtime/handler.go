package realtime

import (
	"net/http"
	"time"

	"tablebook/internal/reservations"
	"tablebook/internal/shared/config"
	"tablebook/internal/shared/utils/response"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests into reservation feed connections
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	cfg        config.RealtimeConfig
	log        *logger.Logger
}

func NewHandler(hub *Hub, service reservations.Service, cfg config.RealtimeConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetDefault()
	}
	cfg = withDefaults(cfg)
	return &Handler{
		hub:        hub,
		dispatcher: NewDispatcher(service, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg: cfg,
		log: log.WithComponent("realtime"),
	}
}

// Serve handles GET /ws/reservations. A business_id query parameter subscribes the
// connection straight away, as if it had sent getReservations.
func (h *Handler) Serve(c *gin.Context) {
	var initial *feed.Envelope
	if raw := c.Query("business_id"); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, "Invalid business_id",
				response.ErrorDetail{Code: "validation_error", Fields: map[string]string{"business_id": "must be a UUID"}})
			return
		}
		env, err := feed.NewEnvelope(feed.EventGetReservations, "", 0, reservations.GetReservationsRequest{BusinessID: raw})
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "Failed to open feed", nil)
			return
		}
		initial = &env
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug("WebSocket upgrade failed", logger.Err(err))
		return
	}

	h.log.Debug("Feed connection opened", "remote", c.ClientIP())
	newSession(conn, h.hub, h.dispatcher, h.cfg, h.log).run(initial)
	h.log.Debug("Feed connection closed", "remote", c.ClientIP())
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func withDefaults(cfg config.RealtimeConfig) config.RealtimeConfig {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	return cfg
}
