package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBus is a backplane shared by every instance in a test
type memoryBus struct {
	mu       sync.Mutex
	handlers []func(Message)
	fail     error
}

type memoryBackplane struct {
	bus  *memoryBus
	done chan struct{}
	once sync.Once
}

func (b *memoryBus) join() *memoryBackplane {
	return &memoryBackplane{bus: b, done: make(chan struct{})}
}

func (m *memoryBackplane) Publish(_ context.Context, msg Message) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if m.bus.fail != nil {
		return m.bus.fail
	}
	data, err := msg.encode()
	if err != nil {
		return err
	}
	decoded, err := decodeMessage(data)
	if err != nil {
		return err
	}
	for _, h := range m.bus.handlers {
		h(decoded)
	}
	return nil
}

func (m *memoryBackplane) Run(ctx context.Context, handle func(Message)) error {
	m.bus.mu.Lock()
	m.bus.handlers = append(m.bus.handlers, handle)
	m.bus.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-m.done:
	}
	return nil
}

func (m *memoryBackplane) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func TestBroadcaster_FansOutAcrossInstances(t *testing.T) {
	bus := &memoryBus{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, hubB := NewHub(logger.Discard()), NewHub(logger.Discard())
	a := NewBroadcaster(hubA, bus.join(), "a", logger.Discard())
	b := NewBroadcaster(hubB, bus.join(), "b", logger.Discard())
	a.Start(ctx)
	b.Start(ctx)
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.handlers) == 2
	}, time.Second, 5*time.Millisecond)

	business := uuid.New()
	onA, onB := NewSubscriber(8), NewSubscriber(8)
	hubA.Subscribe(business, onA)
	hubB.Subscribe(business, onB)

	require.NoError(t, a.Publish(ctx, business, feed.Created(record("r1"))))

	assert.Equal(t, uint64(1), nextFrame(t, onA).Seq)
	assert.Equal(t, uint64(1), nextFrame(t, onB).Seq)
	// the origin instance does not deliver its own event twice
	assert.Empty(t, onA.Send())

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestBroadcaster_BackplaneFailureStillDeliversLocally(t *testing.T) {
	bus := &memoryBus{fail: errors.New("broker down")}
	hub := NewHub(logger.Discard())
	br := NewBroadcaster(hub, bus.join(), "a", logger.Discard())

	business := uuid.New()
	sub := NewSubscriber(4)
	hub.Subscribe(business, sub)

	err := br.Publish(context.Background(), business, feed.Removed("r1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, feed.EventReservationDeleted, nextFrame(t, sub).Event)
}

func TestBroadcaster_WithoutBackplane(t *testing.T) {
	hub := NewHub(logger.Discard())
	br := NewBroadcaster(hub, nil, "solo", logger.Discard())
	br.Start(context.Background())

	business := uuid.New()
	sub := NewSubscriber(4)
	hub.Subscribe(business, sub)
	require.NoError(t, br.Publish(context.Background(), business, feed.Created(record("r1"))))
	assert.Equal(t, uint64(1), nextFrame(t, sub).Seq)
	assert.NoError(t, br.Close())
}

func TestDecodeMessageRequiresBusiness(t *testing.T) {
	_, err := decodeMessage([]byte(`{"origin":"a","event":{"type":"reservationDeleted","id":"x"}}`))
	assert.Error(t, err)
	_, err = decodeMessage([]byte(`not json`))
	assert.Error(t, err)
}
