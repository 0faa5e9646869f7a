// Package realtime pushes reservation changes to WebSocket subscribers, one channel per
// business, and carries commands from those sockets to the reservation service.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
)

// Subscriber is one connection's outbound queue
type Subscriber struct {
	send     chan []byte
	dropped  chan struct{}
	dropOnce sync.Once
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscriber{
		send:    make(chan []byte, buffer),
		dropped: make(chan struct{}),
	}
}

// Send yields frames to write, in order
func (s *Subscriber) Send() <-chan []byte { return s.send }

// Dropped is closed when the subscriber fell behind or was shut down
func (s *Subscriber) Dropped() <-chan struct{} { return s.dropped }

// Offer queues a frame without blocking and reports whether it fit
func (s *Subscriber) Offer(frame []byte) bool {
	select {
	case <-s.dropped:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.Drop()
		return false
	}
}

func (s *Subscriber) Drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

type channel struct {
	seq  uint64
	subs map[*Subscriber]struct{}
}

// Hub owns the per-business channels. Each change gets the next sequence number of its
// channel, so subscribers can order events against a snapshot.
type Hub struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*channel
	log      *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Hub{
		channels: make(map[uuid.UUID]*channel),
		log:      log.WithComponent("realtime_hub"),
	}
}

// Subscribe adds sub to the business channel and returns the channel's current sequence.
// Every later event carries a greater sequence number.
func (h *Hub) Subscribe(businessID uuid.UUID, sub *Subscriber) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[businessID]
	if !ok {
		ch = &channel{subs: make(map[*Subscriber]struct{})}
		h.channels[businessID] = ch
	}
	ch.subs[sub] = struct{}{}
	return ch.seq
}

func (h *Hub) Unsubscribe(businessID uuid.UUID, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(businessID, sub)
}

func (h *Hub) removeLocked(businessID uuid.UUID, sub *Subscriber) {
	ch, ok := h.channels[businessID]
	if !ok {
		return
	}
	delete(ch.subs, sub)
	if len(ch.subs) == 0 {
		delete(h.channels, businessID)
	}
}

// Publish delivers locally; it satisfies reservations.Publisher for single-instance setups
func (h *Hub) Publish(_ context.Context, businessID uuid.UUID, event feed.Event) error {
	return h.Deliver(businessID, event)
}

// Deliver stamps event with the next sequence number and queues it on every subscriber
// of the business. Subscribers whose queue is full are dropped.
func (h *Hub) Deliver(businessID uuid.UUID, event feed.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[businessID]
	if !ok {
		return nil
	}
	env, err := event.Envelope(ch.seq + 1)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event.Type, err)
	}
	ch.seq++

	for sub := range ch.subs {
		if !sub.Offer(frame) {
			h.log.Warn("Dropping slow subscriber",
				"business_id", businessID.String(), "event", event.Type, "seq", ch.seq)
			h.removeLocked(businessID, sub)
		}
	}
	return nil
}

type Stats struct {
	Channels    int `json:"channels"`
	Subscribers int `json:"subscribers"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{Channels: len(h.channels)}
	for _, ch := range h.channels {
		s.Subscribers += len(ch.subs)
	}
	return s
}

// Close drops every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.channels {
		for sub := range ch.subs {
			sub.Drop()
		}
		delete(h.channels, id)
	}
}
