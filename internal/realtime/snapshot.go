package realtime

import (
	"context"
	"strconv"

	"tablebook/internal/reservations"
	"tablebook/pkg/feed"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SnapshotLoader reads a business's reservation set for newly subscribed connections.
// Connections that subscribed at the same sequence number share one query.
type SnapshotLoader struct {
	service reservations.Service
	group   singleflight.Group
}

func NewSnapshotLoader(service reservations.Service) *SnapshotLoader {
	return &SnapshotLoader{service: service}
}

// Load returns a snapshot that reflects at least every event up to seq.
// The returned slice is shared between callers and must not be modified.
func (l *SnapshotLoader) Load(ctx context.Context, businessID uuid.UUID, seq uint64) ([]feed.Reservation, error) {
	key := businessID.String() + ":" + strconv.FormatUint(seq, 10)
	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		list, err := l.service.GetReservations(ctx, businessID.String())
		if err != nil {
			return nil, err
		}
		return reservations.ToRecords(list), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]feed.Reservation), nil
}
