package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
)

// LotCancellationReport summarizes the rollback of one allocation lot
type LotCancellationReport struct {
	LotID                    uuid.UUID `json:"lot_id"`
	OrderNumber              string    `json:"order_number"`
	AllocationLinesCancelled int       `json:"allocation_lines_cancelled"`
	ShipmentLinesCancelled   int       `json:"shipment_lines_cancelled"`
	InvoicesReopened         []string  `json:"invoices_reopened,omitempty"`
}

// LotCancellationService cancels an allocation lot: its allocation lines
// move to CANCELADO, the shipment lines it backs are unlinked and cancelled,
// and downstream shipment/freight totals are re-derived. Invoices that were
// matched against the lot lose their source-order reference so the next
// batch run can match them elsewhere. A lot already frozen by invoice sync
// cannot be cancelled.
type LotCancellationService struct {
	allocationRepo allocation.Repository
	cascade        *CascadeRecalculator
	scope          TransactionScope
	mutex          shared.Mutex
	logger         *zap.Logger
	lockTimeout    time.Duration
}

// LotCancellationOption is a functional option for configuring LotCancellationService
type LotCancellationOption func(*LotCancellationService)

// WithCancellationLockTimeout overrides the per-order lock acquisition timeout
func WithCancellationLockTimeout(d time.Duration) LotCancellationOption {
	return func(s *LotCancellationService) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewLotCancellationService creates a LotCancellationService
func NewLotCancellationService(
	allocationRepo allocation.Repository,
	cascade *CascadeRecalculator,
	scope TransactionScope,
	mutex shared.Mutex,
	logger *zap.Logger,
	opts ...LotCancellationOption,
) *LotCancellationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LotCancellationService{
		allocationRepo: allocationRepo,
		cascade:        cascade,
		scope:          scope,
		mutex:          mutex,
		logger:         logger,
		lockTimeout:    DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelLot cancels every line of the lot under the per-order lock, in one
// transaction together with the shipment-line rollback.
func (s *LotCancellationService) CancelLot(ctx context.Context, lotID uuid.UUID) (*LotCancellationReport, error) {
	allocLines, err := s.allocationRepo.FindByLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if len(allocLines) == 0 {
		return nil, shared.ErrNotFound.WithDetails(fmt.Sprintf("allocation lot %s does not exist", lotID))
	}
	for i := range allocLines {
		if allocLines[i].Synced {
			return nil, shared.NewDomainError("ALLOCATION_SYNCED",
				"Cannot cancel a lot already reconciled with an invoice")
		}
	}

	orderNumber := allocLines[0].OrderNumber
	release, err := s.mutex.Acquire(ctx, "order:"+orderNumber, s.lockTimeout)
	if err != nil {
		if errors.Is(err, shared.ErrLockTimeout) {
			return nil, shared.ErrConcurrencyConflict.WithDetails(
				fmt.Sprintf("order %s is being reconciled by another worker", orderNumber))
		}
		return nil, err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			s.logger.Warn("failed to release order lock",
				zap.String("order_number", orderNumber), zap.Error(rerr))
		}
	}()

	report := &LotCancellationReport{LotID: lotID, OrderNumber: orderNumber}
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return s.cancelTx(ctx, repos, lotID, report)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("allocation lot cancelled",
		zap.String("lot_id", lotID.String()),
		zap.String("order_number", orderNumber),
		zap.Int("allocation_lines", report.AllocationLinesCancelled),
		zap.Int("shipment_lines", report.ShipmentLinesCancelled),
		zap.Strings("invoices_reopened", report.InvoicesReopened))
	return report, nil
}

func (s *LotCancellationService) cancelTx(ctx context.Context, repos TransactionalRepositories, lotID uuid.UUID, report *LotCancellationReport) error {
	// Re-read inside the transaction; a concurrent sync may have frozen the
	// lot between the precheck and lock acquisition.
	allocLines, err := repos.Allocations().FindByLot(ctx, lotID)
	if err != nil {
		return err
	}
	for i := range allocLines {
		al := &allocLines[i]
		if al.Synced {
			return shared.NewDomainError("ALLOCATION_SYNCED",
				"Cannot cancel a lot already reconciled with an invoice")
		}
		if !al.Status.IsActive() {
			continue
		}
		if err := al.Cancel(); err != nil {
			return err
		}
		if err := repos.Allocations().Save(ctx, al); err != nil {
			return err
		}
		report.AllocationLinesCancelled++
	}

	lines, err := repos.ShipmentLines().FindByLot(ctx, lotID)
	if err != nil {
		return err
	}
	for i := range lines {
		line := &lines[i]
		if line.Status != shipment.LineStatusActive {
			continue
		}
		if line.IsMatched() {
			report.InvoicesReopened = append(report.InvoicesReopened, *line.InvoiceNumber)
			if err := s.reopenInvoice(ctx, repos, *line.InvoiceNumber); err != nil {
				return err
			}
		}
		line.UnlinkInvoice()
		if err := line.Cancel(); err != nil {
			return err
		}
		if err := repos.ShipmentLines().Save(ctx, line); err != nil {
			return err
		}
		if _, err := s.cascade.RecalculateAfterUnlink(ctx, repos, line); err != nil {
			return err
		}
		report.ShipmentLinesCancelled++
	}
	return nil
}

// reopenInvoice drops the invoice's source-order reference so it re-enters
// the pending set
func (s *LotCancellationService) reopenInvoice(ctx context.Context, repos TransactionalRepositories, invoiceNumber string) error {
	inv, err := repos.Invoices().FindByInvoiceNumber(ctx, invoiceNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	inv.SetSourceOrderRef("")
	return repos.Invoices().Save(ctx, inv)
}
