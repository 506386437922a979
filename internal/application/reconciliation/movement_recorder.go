package reconciliation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/stock"
)

// MovementRecorder writes stock deductions for reconciled invoices. It is
// idempotent over the (product, invoice number) pair: reconciling the same
// invoice twice never produces a second deduction.
type MovementRecorder struct {
	logger *zap.Logger
}

// NewMovementRecorder creates a MovementRecorder
func NewMovementRecorder(logger *zap.Logger) *MovementRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MovementRecorder{logger: logger}
}

// EnsureDeduction records a deduction for one invoice line unless one
// already exists for the same (product, invoice) pair. It returns true when
// a new movement was written.
func (r *MovementRecorder) EnsureDeduction(ctx context.Context, movements stock.Repository, productCode, invoiceNumber string, quantity decimal.Decimal, lotID *uuid.UUID) (bool, error) {
	exists, err := movements.ExistsDeduction(ctx, productCode, invoiceNumber)
	if err != nil {
		return false, err
	}
	if exists {
		r.logger.Debug("deduction already recorded, skipping",
			zap.String("product_code", productCode),
			zap.String("invoice_number", invoiceNumber))
		return false, nil
	}

	m, err := stock.NewDeduction(productCode, invoiceNumber, quantity, lotID)
	if err != nil {
		return false, err
	}
	if err := movements.Create(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

// ReverseForInvoice writes a reversal for every deduction of the invoice
// that has not been reversed yet. Used when an invoice is deactivated.
func (r *MovementRecorder) ReverseForInvoice(ctx context.Context, movements stock.Repository, invoiceNumber string) (int, error) {
	existing, err := movements.FindByInvoice(ctx, invoiceNumber)
	if err != nil {
		return 0, err
	}

	reversed := make(map[string]bool, len(existing))
	for i := range existing {
		if existing[i].IsReversal() {
			reversed[strings.TrimPrefix(existing[i].Annotation, stock.ReversalPrefix)] = true
		}
	}

	count := 0
	for i := range existing {
		m := &existing[i]
		if m.IsReversal() || reversed[m.Annotation] {
			continue
		}
		if err := movements.Create(ctx, stock.NewReversal(m)); err != nil {
			return count, err
		}
		count++
	}
	r.logger.Info("reversed stock movements for deactivated invoice",
		zap.String("invoice_number", invoiceNumber),
		zap.Int("count", count))
	return count, nil
}
