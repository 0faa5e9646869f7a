package reservations

import (
	"time"

	"tablebook/pkg/feed"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reservation books one table for one customer for a window on a date.
// Date is YYYY-MM-DD and the times are HH:mm:ss in the business timezone.
type Reservation struct {
	ID         uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	BusinessID uuid.UUID `gorm:"type:varchar(36);not null;index:idx_reservations_business" json:"business_id"`

	// TableID is the stable reference used for conflict checks; TableNumber and FloorName
	// record what the table was called when the booking was written.
	TableID     uuid.UUID `gorm:"type:varchar(36);not null;index:idx_reservations_slot,priority:1" json:"table_id"`
	TableNumber int       `gorm:"not null" json:"table_number"`
	FloorName   string    `gorm:"type:varchar(100)" json:"floor_name"`

	CustomerUsername string `gorm:"type:varchar(100);index:idx_reservations_customer" json:"customer_username,omitempty"`
	CustomerName     string `gorm:"type:varchar(150)" json:"customer_name,omitempty"`
	CustomerNumber   string `gorm:"type:varchar(30)" json:"customer_number,omitempty"`

	GroupSize int      `gorm:"not null;check:group_size > 0" json:"group_size"`
	SlotType  SlotType `gorm:"type:varchar(20);not null" json:"slot_type"`
	Date      string   `gorm:"type:varchar(10);not null;index:idx_reservations_slot,priority:2" json:"date"`
	StartTime string   `gorm:"type:varchar(8);not null" json:"start_time"`
	EndTime   string   `gorm:"type:varchar(8);not null;check:end_time > start_time" json:"end_time"`
	Status    Status   `gorm:"type:varchar(20);not null;index:idx_reservations_slot,priority:3;check:status IN ('Active', 'Completed', 'Cancelled')" json:"status"`
	Version   int      `gorm:"not null" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for Reservation
func (Reservation) TableName() string {
	return "reservations"
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}

// Window returns the reservation's [start, end) interval
func (r *Reservation) Window() (Window, error) {
	return ParseWindow(r.StartTime, r.EndTime)
}

// StartsAt is the reservation start as an instant in loc
func (r *Reservation) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" "+clockLayout, r.Date+" "+r.StartTime, loc)
}

// HasWalkInCustomer reports whether the booking was made for an unregistered guest
func (r *Reservation) HasWalkInCustomer() bool {
	return r.CustomerUsername == ""
}

// ToRecord renders the reservation in its wire form
func (r *Reservation) ToRecord() feed.Reservation {
	return feed.Reservation{
		ID:               r.ID.String(),
		BusinessID:       r.BusinessID.String(),
		TableID:          r.TableID.String(),
		TableNumber:      r.TableNumber,
		FloorName:        r.FloorName,
		CustomerUsername: r.CustomerUsername,
		CustomerName:     r.CustomerName,
		CustomerNumber:   r.CustomerNumber,
		GroupSize:        r.GroupSize,
		SlotType:         string(r.SlotType),
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Status:           string(r.Status),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ToRecords renders a list in wire form
func ToRecords(list []Reservation) []feed.Reservation {
	out := make([]feed.Reservation, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToRecord())
	}
	return out
}
