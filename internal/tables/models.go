package tables

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Table is a bookable table of a business floor plan. The floor-plan editor owns it;
// the reservation core only reads it.
type Table struct {
	ID          uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	BusinessID  uuid.UUID `gorm:"type:varchar(36);not null;index:idx_tables_business_number,priority:1" json:"business_id"`
	FloorName   string    `gorm:"type:varchar(100)" json:"floor_name"`
	TableNumber int       `gorm:"not null;index:idx_tables_business_number,priority:2" json:"table_number"`
	Seats       int       `gorm:"not null;check:seats > 0" json:"seats"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName avoids the reserved word "tables"
func (Table) TableName() string {
	return "dining_tables"
}

func (t *Table) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
