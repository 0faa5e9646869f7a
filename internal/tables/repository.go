package tables

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrTableNotFound = errors.New("table not found")

type Repository interface {
	GetByNumber(ctx context.Context, businessID uuid.UUID, number int) (*Table, error)
	// GetByID also returns retired tables; callers check Active.
	GetByID(ctx context.Context, businessID, id uuid.UUID) (*Table, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Table, error)

	// Create is used by the seeder and tests; the floor-plan editor writes tables in production.
	Create(ctx context.Context, table *Table) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetByNumber resolves a table number within the business's current floor plan
func (r *repository) GetByNumber(ctx context.Context, businessID uuid.UUID, number int) (*Table, error) {
	var table Table
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND table_number = ? AND active = ?", businessID, number, true).
		First(&table).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table %d: %w", number, err)
	}
	return &table, nil
}

func (r *repository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*Table, error) {
	var table Table
	err := r.db.WithContext(ctx).Where("id = ? AND business_id = ?", id, businessID).First(&table).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table %s: %w", id, err)
	}
	return &table, nil
}

func (r *repository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Table, error) {
	var list []Table
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND active = ?", businessID, true).
		Order("table_number ASC").
		Find(&list).Error
	return list, err
}

func (r *repository) Create(ctx context.Context, table *Table) error {
	return r.db.WithContext(ctx).Create(table).Error
}
