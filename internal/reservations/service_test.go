package reservations

import (
	"context"
	"errors"
	"testing"
	"time"

	"tablebook/internal/tables"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateReservation_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
	assert.Equal(t, StatusActive, first.Status)
	assert.Equal(t, "18:00:00", first.StartTime)
	assert.Equal(t, "19:00:00", first.EndTime)
	assert.Equal(t, 1, first.Version)

	_, err := f.svc.CreateReservation(ctx, f.request(5, "2025-06-01", "18:30", "19:30", 2))
	require.ErrorIs(t, err, ErrConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, conflict.Blocking)
	assert.Equal(t, first.ID, conflict.Blocking.ID)
	assert.Contains(t, err.Error(), "table 5")

	f.mustCreate(t, 5, "2025-06-01", "19:00", "20:00", 2)

	_, err = f.svc.CancelReservation(ctx, first.ID.String())
	require.NoError(t, err)

	retry := f.mustCreate(t, 5, "2025-06-01", "18:30", "19:30", 2)
	assert.NotEqual(t, first.ID, retry.ID)

	assert.Equal(t, []string{
		feed.EventReservationAdded,
		feed.EventReservationAdded,
		feed.EventReservationUpdated,
		feed.EventReservationAdded,
	}, f.publisher.types())
}

func TestCreateReservation_PersistedStateHasNoOverlaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attempts := [][2]string{
		{"10:00", "11:00"}, {"10:30", "11:30"}, {"11:00", "12:00"}, {"09:00", "10:01"},
		{"11:59", "13:00"}, {"12:00", "13:00"}, {"08:00", "10:00"}, {"13:00", "14:30"},
	}
	for _, a := range attempts {
		_, _ = f.svc.CreateReservation(ctx, f.request(5, "2025-06-01", a[0], a[1], 2))
	}

	list, err := f.svc.GetReservations(ctx, f.business.String())
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for i := range list {
		for j := range list {
			if i == j {
				continue
			}
			wi, _ := list[i].Window()
			wj, _ := list[j].Window()
			assert.False(t, wi.Overlaps(wj), "%s-%s overlaps %s-%s",
				list[i].StartTime, list[i].EndTime, list[j].StartTime, list[j].EndTime)
		}
	}
}

func TestCreateReservation_Capacity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReservation(context.Background(), f.request(6, "2025-06-01", "03:00", "04:00", 3))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictCapacity, conflict.Reason)
	assert.Empty(t, f.publisher.types())
}

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateReservationRequest)
		field  string
	}{
		{"missing business", func(r *CreateReservationRequest) { r.BusinessID = "" }, "business_id"},
		{"bad business", func(r *CreateReservationRequest) { r.BusinessID = "not-a-uuid" }, "business_id"},
		{"no customer", func(r *CreateReservationRequest) { r.CustomerName, r.CustomerNumber = "", "" }, "customer_name"},
		{"walk-in without number", func(r *CreateReservationRequest) { r.CustomerNumber = "" }, "customer_number"},
		{"zero party", func(r *CreateReservationRequest) { r.GroupSize = 0 }, "group_size"},
		{"unknown slot", func(r *CreateReservationRequest) { r.SlotType = "brunch" }, "slot_type"},
		{"unparseable start", func(r *CreateReservationRequest) { r.StartTime = "dinner" }, "start_time"},
		{"end before start", func(r *CreateReservationRequest) { r.EndTime = "5:00 PM" }, "end_time"},
		{"missing date", func(r *CreateReservationRequest) { r.EndDate = "" }, "end_date"},
		{"bad status", func(r *CreateReservationRequest) { r.Status = "Completed" }, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(5, "2025-06-01", "6:00 PM", "7:00 PM", 2)
			tt.mutate(&req)

			_, err := f.svc.CreateReservation(ctx, req)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Empty(t, f.publisher.types())
}

func TestCreateReservation_RegisteredCustomerNeedsNoPhone(t *testing.T) {
	f := newFixture(t)
	req := f.request(5, "2025-06-01", "6:00 PM", "", 2)
	req.CustomerName, req.CustomerNumber, req.CustomerUsername = "", "", "nimal"

	res, err := f.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.HasWalkInCustomer())
}

func TestCreateReservation_UnknownTable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateReservation(context.Background(), f.request(99, "2025-06-01", "18:00", "19:00", 2))
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation_error", ErrorCode(err))
}

func TestCreateReservation_DefaultEndTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		slot string
		end  string
	}{
		{"casual", "19:00:00"},
		{"fine_dining", "20:00:00"},
		{"fine-dining", "20:00:00"},
		{"buffet", "19:30:00"},
	}
	for i, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			req := f.request(7, "2025-06-0"+string(rune('2'+i)), "6:00 PM", "", 2)
			req.SlotType = tt.slot
			res, err := f.svc.CreateReservation(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, "18:00:00", res.StartTime)
			assert.Equal(t, tt.end, res.EndTime)
		})
	}

	_, err := f.svc.CreateReservation(ctx, f.request(7, "2025-06-01", "11:30 PM", "", 2))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateReservation_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(5, "2025-06-01", "18:00", "19:00", 2)
	req.IdempotencyKey = "order-123"

	first, err := f.svc.CreateReservation(ctx, req)
	require.NoError(t, err)
	again, err := f.svc.CreateReservation(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, f.publisher.types(), 1)

	list, err := f.svc.GetReservations(ctx, f.business.String())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateReservation_FailedCreateReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	req := f.request(5, "2025-06-01", "18:30", "19:30", 2)
	req.IdempotencyKey = "retry-me"
	_, err := f.svc.CreateReservation(ctx, req)
	require.ErrorIs(t, err, ErrConflict)

	req.StartTime, req.EndTime = "19:00", "20:00"
	res, err := f.svc.CreateReservation(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "19:00:00", res.StartTime)
}

func TestCreateReservation_PendingKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	store := NewMemoryIdempotencyStore(time.Hour, time.Minute)
	svc := NewService(f.repo, f.tables, f.publisher, store, Options{Location: colombo, Now: func() time.Time { return f.now }}, nil)

	state, _, err := store.Claim(ctx, f.business.String(), "in-flight")
	require.NoError(t, err)
	require.Equal(t, ClaimAcquired, state)

	req := f.request(5, "2025-06-01", "18:00", "19:00", 2)
	req.IdempotencyKey = "in-flight"
	_, err = svc.CreateReservation(ctx, req)
	assert.ErrorIs(t, err, ErrRequestInProgress)
	assert.Equal(t, 409, HTTPStatus(err))
}

type failingIdempotencyStore struct{}

func (failingIdempotencyStore) Claim(context.Context, string, string) (ClaimState, string, error) {
	return 0, "", errors.New("connection refused")
}
func (failingIdempotencyStore) Complete(context.Context, string, string, string) error { return nil }
func (failingIdempotencyStore) Release(context.Context, string, string) error         { return nil }

func TestCreateReservation_IdempotencyStoreDown(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.tables, f.publisher, failingIdempotencyStore{}, Options{Location: colombo}, nil)

	req := f.request(5, "2025-06-01", "18:00", "19:00", 2)
	req.IdempotencyKey = "k"
	_, err := svc.CreateReservation(context.Background(), req)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 503, HTTPStatus(err))
	assert.Contains(t, UserMessage(err), "try again")
}

func TestCreateReservation_BroadcastFailureKeepsWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("hub gone")

	res, err := f.svc.CreateReservation(context.Background(), f.request(5, "2025-06-01", "18:00", "19:00", 2))
	require.NoError(t, err)

	stored, err := f.svc.GetReservation(context.Background(), res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, res.ID, stored.ID)
}

func TestUpdateReservation_MovesWindowAndKeepsLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:30", 2)
	f.publisher.reset()

	updated, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{StartTime: strPtr("8:00 PM")})
	require.NoError(t, err)
	assert.Equal(t, "20:00:00", updated.StartTime)
	assert.Equal(t, "21:30:00", updated.EndTime)
	assert.Equal(t, 2, updated.Version)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0].event
	assert.Equal(t, feed.EventReservationUpdated, ev.Type)
	assert.Equal(t, 2, ev.Record.Version)
}

func TestUpdateReservation_ConflictExcludesItself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
	f.mustCreate(t, 5, "2025-06-01", "20:00", "21:00", 2)

	// sliding within its own window is fine
	_, err := f.svc.UpdateReservation(ctx, a.ID.String(), UpdatePatch{StartTime: strPtr("18:15"), EndTime: strPtr("19:15")})
	require.NoError(t, err)

	_, err = f.svc.UpdateReservation(ctx, a.ID.String(), UpdatePatch{EndTime: strPtr("20:30")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateReservation_ChangeTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 4)

	_, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{TableNumber: intPtr(6)})
	require.ErrorIs(t, err, ErrConflict, "table 6 seats two")

	moved, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{TableNumber: intPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, moved.TableNumber)
	assert.Equal(t, "Terrace", moved.FloorName)

	// table 5 is free again
	f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
}

func TestUpdateReservation_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	_, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateReservation(ctx, uuid.NewString(), UpdatePatch{GroupSize: intPtr(3)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateReservation(ctx, "nope", UpdatePatch{GroupSize: intPtr(3)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{Status: strPtr("Cancelled"), GroupSize: intPtr(3)})
	assert.ErrorIs(t, err, ErrValidation)

	// Active alongside other fields is accepted when nothing changes status
	upd, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{Status: strPtr("Active"), GroupSize: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, upd.GroupSize)

	// no longer active
	_, err = f.svc.CompleteReservation(ctx, res.ID.String())
	require.NoError(t, err)
	_, err = f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{GroupSize: intPtr(2)})
	assert.ErrorIs(t, err, ErrUpdateNotAllowed)
}

func TestUpdateReservation_StatusPatchRoutesToTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	same, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{Status: strPtr("Active")})
	require.NoError(t, err)
	assert.Equal(t, res.Version, same.Version)

	cancelled, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{Status: strPtr("Cancelled")})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{Status: strPtr("Active")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLeadTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	// 20 hours before start: too late to edit, still fine to cancel
	f.now = time.Date(2025, 5, 31, 22, 0, 0, 0, colombo)
	_, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{GroupSize: intPtr(3)})
	assert.ErrorIs(t, err, ErrUpdateNotAllowed)
	assert.Equal(t, 422, HTTPStatus(err))

	// 10 hours before start: too late to cancel
	f.now = time.Date(2025, 6, 1, 8, 0, 0, 0, colombo)
	_, err = f.svc.CancelReservation(ctx, res.ID.String())
	assert.ErrorIs(t, err, ErrCancellationNotAllowed)

	// completing ignores the lead time
	done, err := f.svc.CompleteReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestLeadTimes_EvaluatedInBusinessZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	// 12h30m before 18:00 Colombo, expressed in UTC
	f.now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cancelled, err := f.svc.CancelReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
	f.publisher.reset()

	cancelled, err := f.svc.CancelReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	again, err := f.svc.CancelReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version)
	assert.Len(t, f.publisher.types(), 1, "repeat cancel publishes nothing")

	_, err = f.svc.CompleteReservation(ctx, res.ID.String())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.CancelReservation(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	done, err := f.svc.CompleteReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	again, err := f.svc.CompleteReservation(ctx, res.ID.String())
	require.NoError(t, err)
	assert.Equal(t, done.Version, again.Version)

	_, err = f.svc.CancelReservation(ctx, res.ID.String())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a completed booking frees the table
	f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
}

func TestDeleteReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
	f.publisher.reset()

	require.NoError(t, f.svc.DeleteReservation(ctx, res.ID.String()))
	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, f.business, ev.businessID)
	assert.Equal(t, feed.EventReservationDeleted, ev.event.Type)
	assert.Equal(t, res.ID.String(), ev.event.ID)

	_, err := f.svc.GetReservation(ctx, res.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.DeleteReservation(ctx, res.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.publisher.events, 1)
}

func TestGetReservations_Order(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mustCreate(t, 5, "2025-06-02", "20:00", "21:00", 2)
	b := f.mustCreate(t, 5, "2025-06-01", "10:00", "11:00", 2)
	c := f.mustCreate(t, 7, "2025-06-01", "10:00", "11:00", 2)

	other := f.request(5, "2025-06-01", "12:00", "13:00", 2)
	other.BusinessID = uuid.NewString()
	_, err := f.svc.CreateReservation(ctx, other)
	require.ErrorIs(t, err, ErrTableNotFound)

	list, err := f.svc.GetReservations(ctx, f.business.String())
	require.NoError(t, err)
	require.Len(t, list, 3)
	ids := []uuid.UUID{list[0].ID, list[1].ID, list[2].ID}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID, c.ID}, ids)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}

	_, err = f.svc.GetReservations(ctx, "bad")
	assert.ErrorIs(t, err, ErrValidation)
}

// pinnedTables answers number lookups from a mapping captured earlier
type pinnedTables struct {
	tables.Repository
	byNumber map[int]tables.Table
}

func (p pinnedTables) GetByNumber(ctx context.Context, businessID uuid.UUID, number int) (*tables.Table, error) {
	if tb, ok := p.byNumber[number]; ok {
		return &tb, nil
	}
	return p.Repository.GetByNumber(ctx, businessID, number)
}

func TestCreateReservation_RenumberedTableIsNeverBookedByOldNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	five := seedTable(t, f, 5)
	six := seedTable(t, f, 6)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&tables.Table{}).Where("id = ?", five.ID).Update("table_number", 6).Error; err != nil {
			return err
		}
		return tx.Model(&tables.Table{}).Where("id = ?", six.ID).Update("table_number", 5).Error
	}))

	stale := NewService(f.repo, pinnedTables{Repository: f.tables, byNumber: map[int]tables.Table{5: five}},
		f.publisher, nil, Options{Location: colombo, Now: func() time.Time { return f.now }}, logger.Discard())

	_, err := stale.CreateReservation(ctx, f.request(5, "2025-06-01", "18:00", "19:00", 2))
	require.ErrorIs(t, err, ErrStaleReservation)
	assert.Empty(t, f.publisher.types())

	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)
	assert.Equal(t, six.ID, res.TableID, "table 5 now means the former table 6")
	assert.Equal(t, 5, res.TableNumber)
}

func TestUpdateReservation_TableRenumberedSinceBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	require.NoError(t, f.db.Model(&tables.Table{}).Where("id = ?", res.TableID).Update("table_number", 15).Error)

	moved, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{StartTime: strPtr("20:00")})
	require.NoError(t, err)
	assert.Equal(t, res.TableID, moved.TableID)
	assert.Equal(t, 15, moved.TableNumber)
}

func TestCreateReservation_RejectsPastStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, f.request(5, "2025-05-19", "18:00", "19:00", 2))
	assert.ErrorIs(t, err, ErrValidation)

	// 09:30 Colombo is already behind testNow (10:00)
	_, err = f.svc.CreateReservation(ctx, f.request(5, "2025-05-20", "09:30", "10:30", 2))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "start_time")

	// later the same day is fine; bookings close to the start are allowed
	f.mustCreate(t, 5, "2025-05-20", "11:00", "12:00", 2)
}

func TestUpdateReservation_TargetStartMustClearLeadTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.mustCreate(t, 5, "2025-06-01", "18:00", "19:00", 2)

	// into the past
	_, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{EndDate: strPtr("2025-05-19")})
	assert.ErrorIs(t, err, ErrUpdateNotAllowed)

	// an hour from now
	_, err = f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{EndDate: strPtr("2025-05-20"), StartTime: strPtr("11:00")})
	assert.ErrorIs(t, err, ErrUpdateNotAllowed)
	assert.Equal(t, 422, HTTPStatus(err))

	// two days out is fine
	moved, err := f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{EndDate: strPtr("2025-05-22")})
	require.NoError(t, err)
	assert.Equal(t, "2025-05-22", moved.Date)

	// patches that leave the start alone are not held to it
	_, err = f.svc.UpdateReservation(ctx, res.ID.String(), UpdatePatch{GroupSize: intPtr(3)})
	require.NoError(t, err)
}

func TestGetCustomerHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book := func(table int, date, start string) *Reservation {
		req := f.request(table, date, start, "", 2)
		req.CustomerName, req.CustomerNumber = "", ""
		req.CustomerUsername = "ayesha.f"
		res, err := f.svc.CreateReservation(ctx, req)
		require.NoError(t, err)
		return res
	}
	early := book(5, "2025-06-01", "12:00")
	late := book(7, "2025-06-01", "19:00")
	next := book(5, "2025-06-03", "09:00")
	f.mustCreate(t, 6, "2025-06-02", "18:00", "19:00", 2) // walk-in, not in the history

	_, err := f.svc.CancelReservation(ctx, early.ID.String())
	require.NoError(t, err)

	list, err := f.svc.GetCustomerHistory(ctx, "  ayesha.f ")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{next.ID, late.ID, early.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, StatusCancelled, list[2].Status, "history keeps every status")
	assert.Equal(t, "Terrace", list[1].FloorName)

	list, err = f.svc.GetCustomerHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.GetCustomerHistory(ctx, " ")
	assert.ErrorIs(t, err, ErrValidation)
}
