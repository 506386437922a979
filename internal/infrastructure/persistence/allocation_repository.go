package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAllocationRepository implements allocation.Repository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByID finds an allocation line by its ID
func (r *GormAllocationRepository) FindByID(ctx context.Context, id uuid.UUID) (*allocation.AllocationLine, error) {
	var line allocation.AllocationLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindByLot finds all lines belonging to one allocation decision
func (r *GormAllocationRepository) FindByLot(ctx context.Context, lotID uuid.UUID) ([]allocation.AllocationLine, error) {
	var lines []allocation.AllocationLine
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindActiveByOrderAndProduct finds the single non-cancelled line for an
// order/product pair
func (r *GormAllocationRepository) FindActiveByOrderAndProduct(ctx context.Context, orderNumber, productCode string) (*allocation.AllocationLine, error) {
	var line allocation.AllocationLine
	if err := r.db.WithContext(ctx).
		Where("order_number = ? AND product_code = ? AND status <> ?",
			orderNumber, productCode, allocation.StatusCancelled).
		First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindActiveByOrder finds all non-cancelled lines of an order across lots
func (r *GormAllocationRepository) FindActiveByOrder(ctx context.Context, orderNumber string) ([]allocation.AllocationLine, error) {
	var lines []allocation.AllocationLine
	if err := r.db.WithContext(ctx).
		Where("order_number = ? AND status <> ?", orderNumber, allocation.StatusCancelled).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindByOrder finds all lines of an order, cancelled ones included
func (r *GormAllocationRepository) FindByOrder(ctx context.Context, orderNumber string) ([]allocation.AllocationLine, error) {
	var lines []allocation.AllocationLine
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("created_at ASC, id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// FindByStatus finds allocation lines by lifecycle status
func (r *GormAllocationRepository) FindByStatus(ctx context.Context, status allocation.Status, filter shared.Filter) ([]allocation.AllocationLine, error) {
	var lines []allocation.AllocationLine
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&allocation.AllocationLine{}).
			Where("status = ?", status),
		filter,
	)

	if err := query.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// Save creates or updates an allocation line. A save that would put a
// second active lot on the same (order, product) pair is rejected with
// shared.ErrAlreadyExists.
func (r *GormAllocationRepository) Save(ctx context.Context, line *allocation.AllocationLine) error {
	if line.Status.IsActive() {
		var count int64
		if err := r.db.WithContext(ctx).Model(&allocation.AllocationLine{}).
			Where("order_number = ? AND product_code = ? AND status <> ? AND lot_id <> ?",
				line.OrderNumber, line.ProductCode, allocation.StatusCancelled, line.LotID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrAlreadyExists
		}
	}
	return r.db.WithContext(ctx).Save(line).Error
}

// SaveAll persists a batch of lines from one lot
func (r *GormAllocationRepository) SaveAll(ctx context.Context, lines []allocation.AllocationLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&lines).Error
}

// applyFilter applies pagination and ordering to the query
func (r *GormAllocationRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if offset, limit, ok := filter.Paginate(); ok {
		query = query.Offset(offset).Limit(limit)
	}

	orderBy := ValidateSortField(filter.OrderBy, AllocationSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormAllocationRepository implements allocation.Repository
var _ allocation.Repository = (*GormAllocationRepository)(nil)
