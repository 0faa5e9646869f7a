package reservations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tablebook/internal/tables"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var colombo = mustLocation("Asia/Colombo")

// testNow is well clear of every lead time for bookings on 2025-06-01
var testNow = time.Date(2025, 5, 20, 10, 0, 0, 0, colombo)

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func setupTestDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, db.AutoMigrate(&tables.Table{}, &Reservation{}))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	businessID uuid.UUID
	event      feed.Event
}

func (p *recordingPublisher) Publish(_ context.Context, businessID uuid.UUID, event feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{businessID: businessID, event: event})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type fixture struct {
	db        *gorm.DB
	repo      Repository
	tables    tables.Repository
	publisher *recordingPublisher
	svc       Service
	business  uuid.UUID
	now       time.Time
}

// newFixture seeds a business with table 5 (4 seats), table 6 (2 seats) and table 7 (8 seats)
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:        db,
		repo:      NewRepository(db),
		tables:    tables.NewRepository(db),
		publisher: &recordingPublisher{},
		business:  uuid.New(),
		now:       testNow,
	}

	ctx := context.Background()
	for _, tb := range []tables.Table{
		{TableNumber: 5, Seats: 4},
		{TableNumber: 6, Seats: 2},
		{TableNumber: 7, Seats: 8, FloorName: "Terrace"},
	} {
		tb := tb
		tb.BusinessID = f.business
		tb.Active = true
		if tb.FloorName == "" {
			tb.FloorName = "Main"
		}
		require.NoError(t, f.tables.Create(ctx, &tb))
	}

	f.svc = NewService(f.repo, f.tables, f.publisher, NewMemoryIdempotencyStore(time.Hour, time.Minute), Options{
		Location:       colombo,
		UpdateLeadTime: 24 * time.Hour,
		CancelLeadTime: 12 * time.Hour,
		Now:            func() time.Time { return f.now },
	}, logger.Discard())
	return f
}

func (f *fixture) request(table int, date, start, end string, party int) CreateReservationRequest {
	return CreateReservationRequest{
		BusinessID:     f.business.String(),
		TableNumber:    table,
		CustomerName:   "Nimal Perera",
		CustomerNumber: "+94771234567",
		GroupSize:      party,
		SlotType:       "casual",
		StartTime:      start,
		EndTime:        end,
		EndDate:        date,
	}
}

func (f *fixture) mustCreate(t *testing.T, table int, date, start, end string, party int) *Reservation {
	t.Helper()
	res, err := f.svc.CreateReservation(context.Background(), f.request(table, date, start, end, party))
	require.NoError(t, err)
	return res
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
