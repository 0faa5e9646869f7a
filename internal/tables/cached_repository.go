package tables

import (
	"context"
	"errors"

	"tablebook/internal/shared/constants"
	"tablebook/pkg/cache"

	"github.com/google/uuid"
)

// cachedRepository serves table lookups by id from Redis. Lookups by number are not
// cached because the floor-plan editor can renumber tables at any time.
type cachedRepository struct {
	Repository
	cache cache.Service
}

// NewCachedRepository wraps next with a read-through cache; a nil cache returns next unchanged
func NewCachedRepository(next Repository, c cache.Service) Repository {
	if c == nil {
		return next
	}
	return &cachedRepository{Repository: next, cache: c}
}

// GetByID may return a row up to TTL_TABLE_LOOKUP old. The reservation store re-reads the
// table under lock before writing, so a stale entry can fail a command but never misplace it.
func (r *cachedRepository) GetByID(ctx context.Context, businessID, id uuid.UUID) (*Table, error) {
	var table Table
	key := constants.BuildTableByIDKey(businessID.String(), id.String())
	err := r.cache.GetOrSet(ctx, key, constants.TTL_TABLE_LOOKUP, func() (interface{}, error) {
		return r.Repository.GetByID(ctx, businessID, id)
	}, &table)
	if err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *cachedRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Table, error) {
	var list []Table
	err := r.cache.GetOrSet(ctx, constants.BuildTablesListKey(businessID.String()), constants.TTL_TABLE_LIST, func() (interface{}, error) {
		return r.Repository.ListByBusiness(ctx, businessID)
	}, &list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *cachedRepository) Create(ctx context.Context, table *Table) error {
	if err := r.Repository.Create(ctx, table); err != nil {
		return err
	}
	return r.invalidate(ctx, table.BusinessID)
}

// invalidate drops every cached lookup of the business
func (r *cachedRepository) invalidate(ctx context.Context, businessID uuid.UUID) error {
	return errors.Join(
		r.cache.DeletePattern(ctx, constants.BuildTablePatternForBusiness(businessID.String())),
		r.cache.Delete(ctx, constants.BuildTablesListKey(businessID.String())),
	)
}
