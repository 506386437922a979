package reconciliation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	domainrecon "github.com/freightops/backend/internal/domain/reconciliation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/tracking"
)

// StatusService derives the multi-state order status on demand. Nothing is
// stored: the service assembles a snapshot of the allocation, shipment,
// invoice and delivery facts and hands it to the pure derivation.
type StatusService struct {
	allocationRepo allocation.Repository
	lineRepo       shipment.LineRepository
	shipmentRepo   shipment.Repository
	freightRepo    freight.Repository
	invoiceRepo    invoice.Repository
	trackingRepo   tracking.Repository
	logger         *zap.Logger
}

// NewStatusService creates a StatusService
func NewStatusService(
	allocationRepo allocation.Repository,
	lineRepo shipment.LineRepository,
	shipmentRepo shipment.Repository,
	freightRepo freight.Repository,
	invoiceRepo invoice.Repository,
	trackingRepo tracking.Repository,
	logger *zap.Logger,
) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{
		allocationRepo: allocationRepo,
		lineRepo:       lineRepo,
		shipmentRepo:   shipmentRepo,
		freightRepo:    freightRepo,
		invoiceRepo:    invoiceRepo,
		trackingRepo:   trackingRepo,
		logger:         logger,
	}
}

// GetOrderStatus derives the current status of one order. An order with
// no active allocation lot, whether never allocated or with every lot
// cancelled, has no derivable status and is reported as unallocated,
// which is not the same as ABERTO.
func (s *StatusService) GetOrderStatus(ctx context.Context, orderNumber string) (*OrderStatusResponse, error) {
	snapshot, err := s.buildSnapshot(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	status, err := domainrecon.DeriveStatus(*snapshot)
	if errors.Is(err, shared.ErrUnallocated) {
		return &OrderStatusResponse{OrderNumber: orderNumber, Unallocated: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &OrderStatusResponse{OrderNumber: orderNumber, Status: status.String()}, nil
}

// buildSnapshot gathers the four fact sources the derivation reads
func (s *StatusService) buildSnapshot(ctx context.Context, orderNumber string) (*domainrecon.StatusSnapshot, error) {
	all, err := s.allocationRepo.FindByOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	snapshot := &domainrecon.StatusSnapshot{}
	active := make([]allocation.AllocationLine, 0, len(all))
	for i := range all {
		if all[i].Status.IsActive() {
			active = append(active, all[i])
		}
	}
	snapshot.HasActiveLot = len(active) > 0
	if !snapshot.HasActiveLot {
		return snapshot, nil
	}

	lotID := active[0].LotID
	quoteExists, err := s.freightRepo.ExistsOpenForLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	snapshot.QuoteExists = quoteExists

	lines, err := s.lineRepo.FindByLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		line := &lines[i]
		if line.Status != shipment.LineStatusActive {
			continue
		}

		sh, err := s.shipmentRepo.FindByID(ctx, line.ShipmentID)
		if err != nil {
			return nil, err
		}
		if sh.Status != shipment.StatusActive {
			continue
		}
		if sh.DepartureDate != nil {
			snapshot.ShipmentDeparted = true
		}

		if !line.IsMatched() {
			continue
		}
		matched, err := s.invoiceMatched(ctx, *line.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		snapshot.InvoiceMatched = true

		atCD, err := s.atDistributionCenter(ctx, *line.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if atCD {
			snapshot.AtDistributionCenter = true
		}
	}
	return snapshot, nil
}

// invoiceMatched checks that the linked invoice still exists and is active
func (s *StatusService) invoiceMatched(ctx context.Context, invoiceNumber string) (bool, error) {
	exists, err := s.invoiceRepo.ExistsByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// atDistributionCenter checks the delivery-monitoring flag of the invoice
func (s *StatusService) atDistributionCenter(ctx context.Context, invoiceNumber string) (bool, error) {
	record, err := s.trackingRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.AtDistributionCenter, nil
}
