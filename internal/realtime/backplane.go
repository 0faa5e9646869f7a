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

// Backplane fans reservation events out to every server instance
type Backplane interface {
	Publish(ctx context.Context, msg Message) error
	// Run consumes messages until ctx ends, passing each one to handle
	Run(ctx context.Context, handle func(Message)) error
	Close() error
}

// Message is what instances exchange over the backplane
type Message struct {
	BusinessID uuid.UUID  `json:"business_id"`
	Origin     string     `json:"origin"`
	Event      feed.Event `json:"event"`
}

func (m Message) encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal backplane message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal backplane message: %w", err)
	}
	if m.BusinessID == uuid.Nil {
		return Message{}, fmt.Errorf("backplane message without business_id")
	}
	return m, nil
}

// Broadcaster publishes confirmed changes to local subscribers and, when a backplane is
// configured, to the other instances. Messages an instance sent itself are skipped on
// the way back in.
type Broadcaster struct {
	hub       *Hub
	backplane Backplane
	instance  string
	log       *logger.Logger

	wg sync.WaitGroup
}

func NewBroadcaster(hub *Hub, backplane Backplane, instanceID string, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Broadcaster{
		hub:       hub,
		backplane: backplane,
		instance:  instanceID,
		log:       log.WithComponent("realtime_broadcaster"),
	}
}

// Publish delivers locally first so this instance's subscribers never wait on the broker
func (b *Broadcaster) Publish(ctx context.Context, businessID uuid.UUID, event feed.Event) error {
	if err := b.hub.Deliver(businessID, event); err != nil {
		return err
	}
	if b.backplane == nil {
		return nil
	}
	err := b.backplane.Publish(ctx, Message{BusinessID: businessID, Origin: b.instance, Event: event})
	if err != nil {
		return fmt.Errorf("fan out %s to other instances: %w", event.Type, err)
	}
	return nil
}

// Start consumes the backplane in the background until ctx ends
func (b *Broadcaster) Start(ctx context.Context) {
	if b.backplane == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.backplane.Run(ctx, b.receive); err != nil && ctx.Err() == nil {
			b.log.Error("Backplane consumer stopped", logger.Err(err))
		}
	}()
}

func (b *Broadcaster) receive(msg Message) {
	if msg.Origin == b.instance {
		return
	}
	if err := b.hub.Deliver(msg.BusinessID, msg.Event); err != nil {
		b.log.Warn("Dropping backplane message",
			"business_id", msg.BusinessID.String(), "event", msg.Event.Type, logger.Err(err))
	}
}

// Close waits for the consumer to stop, then closes the backplane
func (b *Broadcaster) Close() error {
	if b.backplane == nil {
		return nil
	}
	err := b.backplane.Close()
	b.wg.Wait()
	return err
}
