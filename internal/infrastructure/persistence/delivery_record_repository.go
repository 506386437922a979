package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/tracking"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDeliveryRecordRepository implements tracking.Repository using GORM
type GormDeliveryRecordRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRecordRepository creates a new GormDeliveryRecordRepository
func NewGormDeliveryRecordRepository(db *gorm.DB) *GormDeliveryRecordRepository {
	return &GormDeliveryRecordRepository{db: db}
}

// FindByID finds a record by its ID
func (r *GormDeliveryRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*tracking.DeliveryRecord, error) {
	var rec tracking.DeliveryRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindByInvoiceNumber finds the record for an invoice
func (r *GormDeliveryRecordRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*tracking.DeliveryRecord, error) {
	var rec tracking.DeliveryRecord
	if err := r.db.WithContext(ctx).
		First(&rec, "invoice_number = ?", invoiceNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindAtDistributionCenter finds records flagged as returned to the CD
func (r *GormDeliveryRecordRepository) FindAtDistributionCenter(ctx context.Context, filter shared.Filter) ([]tracking.DeliveryRecord, error) {
	var records []tracking.DeliveryRecord
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&tracking.DeliveryRecord{}).
			Where("at_distribution_center = ?", true),
		filter,
	)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Save creates or updates a delivery record
func (r *GormDeliveryRecordRepository) Save(ctx context.Context, rec *tracking.DeliveryRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// DeleteByInvoiceNumber removes the record for an invoice. Deleting an
// absent record is a no-op.
func (r *GormDeliveryRecordRepository) DeleteByInvoiceNumber(ctx context.Context, invoiceNumber string) error {
	return r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Delete(&tracking.DeliveryRecord{}).Error
}

// applyFilter applies pagination and ordering to the query
func (r *GormDeliveryRecordRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if offset, limit, ok := filter.Paginate(); ok {
		query = query.Offset(offset).Limit(limit)
	}

	orderBy := ValidateSortField(filter.OrderBy, DeliveryRecordSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormDeliveryRecordRepository implements tracking.Repository
var _ tracking.Repository = (*GormDeliveryRecordRepository)(nil)
