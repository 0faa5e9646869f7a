package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/tables"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Create re-checks availability against the committed state and inserts res in one
	// transaction. table is the table res was resolved to.
	Create(ctx context.Context, res *Reservation, table tables.Table) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// UpdateByID writes res if its stored version still equals expectedVersion.
	// A non-nil recheck repeats the availability check against that table first.
	UpdateByID(ctx context.Context, res *Reservation, expectedVersion int, recheck *tables.Table) error
	DeleteByID(ctx context.Context, id uuid.UUID) error

	ListActiveByTableAndDate(ctx context.Context, businessID, tableID uuid.UUID, date string) ([]Reservation, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Reservation, error)
	ListByCustomer(ctx context.Context, customerUsername string) ([]Reservation, error)
}

type repository struct {
	db    *gorm.DB
	locks *slotLocks
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, locks: newSlotLocks()}
}

func (r *repository) Create(ctx context.Context, res *Reservation, table tables.Table) error {
	unlock := r.locks.lock(slotKey(res.BusinessID.String(), table.ID.String(), res.Date))
	defer unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockTable(tx, table)
		if err != nil {
			return err
		}
		if err := checkSiblings(tx, res, *locked); err != nil {
			return err
		}
		return tx.Create(res).Error
	})
	return classify("create reservation", err)
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var res Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if err != nil {
		return nil, classify("get reservation", err)
	}
	return &res, nil
}

func (r *repository) UpdateByID(ctx context.Context, res *Reservation, expectedVersion int, recheck *tables.Table) error {
	if recheck != nil {
		unlock := r.locks.lock(slotKey(res.BusinessID.String(), recheck.ID.String(), res.Date))
		defer unlock()
	}

	next := expectedVersion + 1
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if recheck != nil {
			locked, err := lockTable(tx, *recheck)
			if err != nil {
				return err
			}
			if err := checkSiblings(tx, res, *locked); err != nil {
				return err
			}
		}

		result := tx.Model(&Reservation{}).
			Where("id = ? AND version = ?", res.ID, expectedVersion).
			Updates(map[string]interface{}{
				"table_id":          res.TableID,
				"table_number":      res.TableNumber,
				"floor_name":        res.FloorName,
				"customer_username": res.CustomerUsername,
				"customer_name":     res.CustomerName,
				"customer_number":   res.CustomerNumber,
				"group_size":        res.GroupSize,
				"slot_type":         res.SlotType,
				"date":              res.Date,
				"start_time":        res.StartTime,
				"end_time":          res.EndTime,
				"status":            res.Status,
				"version":           next,
				"updated_at":        now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			return nil
		}

		var count int64
		if err := tx.Model(&Reservation{}).Where("id = ?", res.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleReservation
	})
	if err != nil {
		return classify("update reservation", err)
	}

	res.Version = next
	res.UpdatedAt = now
	return nil
}

func (r *repository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Reservation{})
	if result.Error != nil {
		return classify("delete reservation", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListActiveByTableAndDate(ctx context.Context, businessID, tableID uuid.UUID, date string) ([]Reservation, error) {
	list, err := activeSiblings(r.db.WithContext(ctx), businessID, tableID, date)
	if err != nil {
		return nil, classify("list reservations", err)
	}
	return list, nil
}

// ListByBusiness returns every reservation of the business in creation order
func (r *repository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Reservation, error) {
	var list []Reservation
	err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, classify("list reservations", err)
	}
	return list, nil
}

// ListByCustomer returns a registered customer's reservations across businesses, latest first
func (r *repository) ListByCustomer(ctx context.Context, customerUsername string) ([]Reservation, error) {
	var list []Reservation
	err := r.db.WithContext(ctx).
		Where("customer_username = ?", customerUsername).
		Order("date DESC, start_time DESC, created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, classify("list customer reservations", err)
	}
	return list, nil
}

// lockTable takes a row lock on the table so concurrent writers to it queue up.
// SQLite has no row locks and already runs one writer at a time.
// want is the table the caller resolved; a row that since moved to another number
// or business is refused so the booking never lands on a different physical table.
func lockTable(tx *gorm.DB, want tables.Table) (*tables.Table, error) {
	q := tx.Where("id = ?", want.ID)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var table tables.Table
	if err := q.First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("lock table: %w", err)
	}
	if !table.Active {
		return nil, ErrTableNotFound
	}
	if table.BusinessID != want.BusinessID || table.TableNumber != want.TableNumber {
		return nil, fmt.Errorf("%w (table %d)", ErrTableChanged, want.TableNumber)
	}
	return &table, nil
}

func checkSiblings(tx *gorm.DB, res *Reservation, table tables.Table) error {
	res.TableNumber = table.TableNumber
	res.FloorName = table.FloorName

	window, err := res.Window()
	if err != nil {
		return invalid("start_time", err.Error())
	}
	siblings, err := activeSiblings(tx, res.BusinessID, table.ID, res.Date)
	if err != nil {
		return err
	}
	return CheckAvailability(table, res.Date, window, res.GroupSize, siblings, res.ID)
}

func activeSiblings(db *gorm.DB, businessID, tableID uuid.UUID, date string) ([]Reservation, error) {
	var list []Reservation
	err := db.
		Where("business_id = ? AND table_id = ? AND date = ? AND status = ?", businessID, tableID, date, StatusActive).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

// classify keeps domain errors as they are and reports everything else as the store
// being unavailable, so callers never treat a failed read as an empty table.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrStaleReservation):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
}
