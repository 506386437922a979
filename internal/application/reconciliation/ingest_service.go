package reconciliation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shared"
)

// DefaultImportDedupeTTL bounds how long a delivered feed message is
// remembered for redelivery dedupe.
const DefaultImportDedupeTTL = 24 * time.Hour

// InvoiceIngestService imports invoices from the external billing feed.
// Imported invoices enter the pending set and are picked up by the next
// reconciliation run (or an explicit per-invoice trigger).
type InvoiceIngestService struct {
	invoiceRepo invoice.Repository
	dedupe      shared.IdempotencyStore
	dedupeTTL   time.Duration
	logger      *zap.Logger
}

// InvoiceIngestServiceOption configures an InvoiceIngestService
type InvoiceIngestServiceOption func(*InvoiceIngestService)

// WithImportDedupe short-circuits redelivered feed messages before they
// hit the database. The invoice-number uniqueness check remains the
// source of truth; the store only absorbs redelivery bursts.
func WithImportDedupe(store shared.IdempotencyStore, ttl time.Duration) InvoiceIngestServiceOption {
	return func(s *InvoiceIngestService) {
		s.dedupe = store
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// NewInvoiceIngestService creates an InvoiceIngestService
func NewInvoiceIngestService(invoiceRepo invoice.Repository, logger *zap.Logger, opts ...InvoiceIngestServiceOption) *InvoiceIngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InvoiceIngestService{
		invoiceRepo: invoiceRepo,
		dedupeTTL:   DefaultImportDedupeTTL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportInvoice creates an invoice with its lines. The invoice number is
// the external identity: re-importing an existing number is rejected with
// shared.ErrAlreadyExists.
func (s *InvoiceIngestService) ImportInvoice(ctx context.Context, req ImportInvoiceRequest) (*InvoiceResponse, error) {
	if s.dedupe != nil {
		fresh, err := s.dedupe.MarkProcessed(ctx, "import:"+req.InvoiceNumber, s.dedupeTTL)
		if err != nil {
			// Store outage must not block the feed; fall through to the
			// database uniqueness check.
			s.logger.Warn("import dedupe store unavailable",
				zap.String("invoice_number", req.InvoiceNumber),
				zap.Error(err))
		} else if !fresh {
			return nil, shared.ErrAlreadyExists.WithDetails("invoice " + req.InvoiceNumber)
		}
	}

	exists, err := s.invoiceRepo.ExistsByInvoiceNumber(ctx, req.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.ErrAlreadyExists.WithDetails("invoice " + req.InvoiceNumber)
	}

	inv, err := invoice.NewInvoice(req.InvoiceNumber, req.IssueDate, req.ClientTaxID, req.ClientName, req.TotalValue, req.Incoterm, req.SourceOrderRef)
	if err != nil {
		return nil, err
	}
	for _, line := range req.Lines {
		if _, err := inv.AddLine(line.ProductCode, line.Quantity, line.UnitPrice, line.UnitWeight); err != nil {
			return nil, err
		}
	}
	if req.Post {
		if err := inv.Post(); err != nil {
			return nil, err
		}
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invoice imported",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("client_tax_id", inv.ClientTaxID),
		zap.Int("lines", len(inv.Lines)))
	return toInvoiceResponse(inv), nil
}

// DeactivateInvoice soft-deletes an invoice. The caller is expected to run
// the invoice through the reconciliation service afterwards so its effects
// are removed; the deactivation itself only flips the flag.
func (s *InvoiceIngestService) DeactivateInvoice(ctx context.Context, invoiceNumber string) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if err := inv.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invoice deactivated", zap.String("invoice_number", inv.InvoiceNumber))
	return toInvoiceResponse(inv), nil
}

// GetInvoice returns one invoice with its lines
func (s *InvoiceIngestService) GetInvoice(ctx context.Context, invoiceNumber string) (*InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv), nil
}

// ListPending returns invoices awaiting reconciliation
func (s *InvoiceIngestService) ListPending(ctx context.Context, filter shared.Filter) ([]InvoiceResponse, error) {
	pending, err := s.invoiceRepo.FindPending(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]InvoiceResponse, 0, len(pending))
	for i := range pending {
		out = append(out, *toInvoiceResponse(&pending[i]))
	}
	return out, nil
}

func toInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	resp := &InvoiceResponse{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		IssueDate:      inv.IssueDate,
		ClientTaxID:    inv.ClientTaxID,
		ClientName:     inv.ClientName,
		TotalValue:     inv.TotalValue,
		TotalWeight:    inv.TotalWeight,
		Incoterm:       inv.Incoterm,
		SourceOrderRef: inv.SourceOrderRef,
		PostingStatus:  inv.PostingStatus.String(),
		Active:         inv.Active,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
		Version:        inv.Version,
	}
	for i := range inv.Lines {
		l := &inv.Lines[i]
		resp.Lines = append(resp.Lines, InvoiceLineResponse{
			ID:             l.ID,
			ProductCode:    l.ProductCode,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			UnitWeight:     l.UnitWeight,
			ComputedWeight: l.ComputedWeight,
			Unresolved:     l.Unresolved,
		})
	}
	return resp
}
