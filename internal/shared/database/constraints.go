package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the partial indexes that back the reservation conflict checks.
// MySQL has no partial indexes; the composite indexes declared on the models cover it.
func MigrateConstraints(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		return nil
	}

	// Active reservations of one table on one day: the sibling set read by every create
	err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reservations_active_slot
		ON reservations (table_id, date, start_time)
		WHERE status = 'Active';
	`).Error
	if err != nil {
		return err
	}

	// A table number is unique per business among tables of the current floor plan
	err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tables_active_number
		ON dining_tables (business_id, table_number)
		WHERE active;
	`).Error
	if err != nil {
		return err
	}

	return nil
}
