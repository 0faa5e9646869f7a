package reservations

import (
	"fmt"
	"time"

	"tablebook/internal/tables"

	"github.com/google/uuid"
)

const day = 24 * time.Hour

// Window is a half-open [Start, End) interval measured from midnight
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Overlaps uses half-open semantics, so back-to-back windows do not overlap
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && w.End > o.Start
}

func (w Window) Valid() bool {
	return w.Start >= 0 && w.End > w.Start && w.End < day
}

func (w Window) Length() time.Duration {
	return w.End - w.Start
}

// ParseWindow reads two HH:mm:ss clock values
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

// ParseClock converts HH:mm:ss into an offset from midnight
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// FormatClock is the inverse of ParseClock
func FormatClock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// CheckAvailability decides whether partySize guests can have table on date during window.
// existing should already be narrowed to the business, table and date; anything else in it,
// and anything not Active, is ignored. excludeID skips the reservation being moved.
// A nil result means available; otherwise the error is a *ConflictError.
func CheckAvailability(table tables.Table, date string, window Window, partySize int, existing []Reservation, excludeID uuid.UUID) error {
	if partySize > table.Seats {
		return &ConflictError{
			Reason:      ConflictCapacity,
			TableNumber: table.TableNumber,
			Date:        date,
			Capacity:    table.Seats,
			PartySize:   partySize,
		}
	}

	for i := range existing {
		r := existing[i]
		if excludeID != uuid.Nil && r.ID == excludeID {
			continue
		}
		if !r.Status.IsActive() || r.TableID != table.ID || r.Date != date {
			continue
		}
		w, err := r.Window()
		if err != nil {
			continue
		}
		if w.Overlaps(window) {
			return &ConflictError{
				Reason:      ConflictOverlap,
				TableNumber: table.TableNumber,
				Date:        date,
				Capacity:    table.Seats,
				PartySize:   partySize,
				Blocking:    &r,
			}
		}
	}
	return nil
}

// IsAvailable is CheckAvailability as a predicate
func IsAvailable(table tables.Table, date string, window Window, partySize int, existing []Reservation, excludeID uuid.UUID) bool {
	return CheckAvailability(table, date, window, partySize, existing, excludeID) == nil
}
