package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"tablebook/internal/reservations"
	"tablebook/internal/tables"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixture struct {
	hub      *Hub
	svc      reservations.Service
	business uuid.UUID
}

// newFixture wires a reservation service whose changes go straight to a hub.
// The business has table 5 with 4 seats.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&tables.Table{}, &reservations.Reservation{}))

	business := uuid.New()
	tableRepo := tables.NewRepository(db)
	require.NoError(t, tableRepo.Create(context.Background(), &tables.Table{
		BusinessID:  business,
		TableNumber: 5,
		Seats:       4,
		FloorName:   "Main",
		Active:      true,
	}))

	loc, err := time.LoadLocation("Asia/Colombo")
	require.NoError(t, err)
	now := time.Date(2025, 5, 20, 10, 0, 0, 0, loc)

	hub := NewHub(logger.Discard())
	svc := reservations.NewService(
		reservations.NewRepository(db),
		tableRepo,
		hub,
		reservations.NewMemoryIdempotencyStore(time.Hour, time.Minute),
		reservations.Options{
			Location:       loc,
			UpdateLeadTime: 24 * time.Hour,
			CancelLeadTime: 12 * time.Hour,
			Now:            func() time.Time { return now },
		},
		logger.Discard(),
	)
	return &fixture{hub: hub, svc: svc, business: business}
}

func (f *fixture) createRequest(start, end string) reservations.CreateReservationRequest {
	return reservations.CreateReservationRequest{
		BusinessID:     f.business.String(),
		TableNumber:    5,
		CustomerName:   "Nimal Perera",
		CustomerNumber: "+94771234567",
		GroupSize:      2,
		SlotType:       "casual",
		StartTime:      start,
		EndTime:        end,
		EndDate:        "2025-06-01",
	}
}

// fakeConn records replies and subscribes through a real hub
type fakeConn struct {
	hub *Hub
	sub *Subscriber

	mu      sync.Mutex
	replies []feed.Envelope
}

func newFakeConn(hub *Hub) *fakeConn {
	return &fakeConn{hub: hub, sub: NewSubscriber(16)}
}

func (c *fakeConn) Subscribe(businessID uuid.UUID) uint64 {
	return c.hub.Subscribe(businessID, c.sub)
}

func (c *fakeConn) Reply(env feed.Envelope) bool {
	c.mu.Lock()
	c.replies = append(c.replies, env)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) take() []feed.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.replies
	c.replies = nil
	return out
}

func command(t *testing.T, event, ackID string, payload interface{}) feed.Envelope {
	t.Helper()
	env, err := feed.NewEnvelope(event, ackID, 0, payload)
	require.NoError(t, err)
	return env
}

func decodeAck(t *testing.T, env feed.Envelope) feed.Ack {
	t.Helper()
	require.Equal(t, feed.EventAck, env.Event)
	var ack feed.Ack
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	return ack
}

// nextFrame reads one queued frame off a subscriber
func nextFrame(t *testing.T, sub *Subscriber) feed.Envelope {
	t.Helper()
	select {
	case data := <-sub.Send():
		var env feed.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return feed.Envelope{}
	}
}
