package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"tablebook/internal/shared/config"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// session is one WebSocket connection. It is bound to at most one business channel;
// asking for another business's reservations moves the subscription.
type session struct {
	conn       *websocket.Conn
	sub        *Subscriber
	hub        *Hub
	dispatcher *Dispatcher
	cfg        config.RealtimeConfig
	log        *logger.Logger

	mu       sync.Mutex
	business uuid.UUID
	closed   bool
}

func newSession(conn *websocket.Conn, hub *Hub, dispatcher *Dispatcher, cfg config.RealtimeConfig, log *logger.Logger) *session {
	return &session{
		conn:       conn,
		sub:        NewSubscriber(cfg.SendBuffer),
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

func (s *session) Subscribe(businessID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	if s.business != uuid.Nil && s.business != businessID {
		s.hub.Unsubscribe(s.business, s.sub)
	}
	s.business = businessID
	return s.hub.Subscribe(businessID, s.sub)
}

func (s *session) Reply(env feed.Envelope) bool {
	frame, err := json.Marshal(env)
	if err != nil {
		s.log.Error("Failed to encode frame", "event", env.Event, logger.Err(err))
		return false
	}
	return s.sub.Offer(frame)
}

func (s *session) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.business != uuid.Nil {
			s.hub.Unsubscribe(s.business, s.sub)
		}
	}
	s.mu.Unlock()
	s.sub.Drop()
}

// run blocks until the connection ends. initial, when set, is handled before any
// client frame.
func (s *session) run(initial *feed.Envelope) {
	go s.writePump()
	s.readPump(initial)
}

func (s *session) readPump(initial *feed.Envelope) {
	defer s.close()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	if initial != nil {
		s.dispatcher.Handle(s, *initial)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Connection closed unexpectedly", logger.Err(err))
			}
			return
		}

		var env feed.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug("Ignoring malformed frame", logger.Err(err))
			continue
		}
		s.dispatcher.Handle(s, env)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.sub.Send():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.sub.Drop()
				return
			}

		case <-s.sub.Dropped():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
			return

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.sub.Drop()
				return
			}
		}
	}
}
