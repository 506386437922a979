package persistence

import (
	"context"
	"errors"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/stock"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMovementRepository implements stock.Repository using GORM.
// Movements are append-only; there is no update or delete path.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// FindByID finds a movement by its ID
func (r *GormMovementRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.Movement, error) {
	var m stock.Movement
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindByInvoice finds all movements for an invoice number
func (r *GormMovementRepository) FindByInvoice(ctx context.Context, invoiceNumber string) ([]stock.Movement, error) {
	var movements []stock.Movement
	if err := r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Order("movement_date ASC, id ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// ExistsDeduction reports whether a non-reversed deduction exists for the
// (product, invoice number) pair. A reversal cancels exactly one deduction,
// so the pair is considered deducted while deductions outnumber reversals.
func (r *GormMovementRepository) ExistsDeduction(ctx context.Context, productCode, invoiceNumber string) (bool, error) {
	base := r.db.WithContext(ctx).Model(&stock.Movement{}).
		Where("product_code = ? AND invoice_number = ?", productCode, invoiceNumber)

	var deductions int64
	if err := base.Session(&gorm.Session{}).
		Where("annotation NOT LIKE ?", stock.ReversalPrefix+"%").
		Count(&deductions).Error; err != nil {
		return false, err
	}

	var reversals int64
	if err := base.Session(&gorm.Session{}).
		Where("annotation LIKE ?", stock.ReversalPrefix+"%").
		Count(&reversals).Error; err != nil {
		return false, err
	}

	return deductions > reversals, nil
}

// Create appends a movement
func (r *GormMovementRepository) Create(ctx context.Context, m *stock.Movement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Ensure GormMovementRepository implements stock.Repository
var _ stock.Repository = (*GormMovementRepository)(nil)
