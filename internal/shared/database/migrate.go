package database

import (
	"tablebook/internal/reservations"
	"tablebook/internal/tables"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&tables.Table{},
		&reservations.Reservation{},
	)
}
