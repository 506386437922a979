package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/invoice"
	domainrecon "github.com/freightops/backend/internal/domain/reconciliation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/tracking"
	"github.com/freightops/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultLockTimeout bounds the wait for the per-order lock
	DefaultLockTimeout = 10 * time.Second
	// DefaultBatchWorkers is the worker-pool size of batch runs
	DefaultBatchWorkers = 4
	// DefaultBatchSize caps the invoices pulled into one batch run
	DefaultBatchSize = 500
	// maxMatchAttempts bounds the rematch loop when a chosen candidate is
	// taken by a concurrent invoice between scoring and the lock scope
	maxMatchAttempts = 3
)

// errLineTaken signals that the chosen shipment line was linked or
// cancelled concurrently; the caller re-scores the remaining candidates.
var errLineTaken = errors.New("shipment line no longer available")

// ReconciliationService orchestrates the reconciliation of invoices against
// open shipment lines: candidate matching, allocation update, stock
// movement, derived-quantity cascade and delivery tracking, all under a
// per-order lock inside one transaction per invoice.
type ReconciliationService struct {
	invoiceRepo  invoice.Repository
	lineRepo     shipment.LineRepository
	shipmentRepo shipment.Repository
	matcher      *domainrecon.Matcher
	cascade      *CascadeRecalculator
	recorder     *MovementRecorder
	scope        TransactionScope
	mutex        shared.Mutex
	logger       *zap.Logger

	deliveryMonitor tracking.DeliveryMonitor
	freightLauncher tracking.FreightLauncher

	lockTimeout  time.Duration
	batchWorkers int
	batchSize    int
}

// ReconciliationServiceOption is a functional option for configuring ReconciliationService
type ReconciliationServiceOption func(*ReconciliationService)

// WithLockTimeout overrides the per-order lock acquisition timeout
func WithLockTimeout(d time.Duration) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithBatchWorkers overrides the batch worker-pool size
func WithBatchWorkers(n int) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithBatchSize caps the number of pending invoices per batch run
func WithBatchSize(n int) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDeliveryMonitor wires the external delivery-monitoring trigger
func WithDeliveryMonitor(m tracking.DeliveryMonitor) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		s.deliveryMonitor = m
	}
}

// WithFreightLauncher wires the external auto-launch freight trigger
func WithFreightLauncher(l tracking.FreightLauncher) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		s.freightLauncher = l
	}
}

// NewReconciliationService creates a ReconciliationService
func NewReconciliationService(
	invoiceRepo invoice.Repository,
	lineRepo shipment.LineRepository,
	shipmentRepo shipment.Repository,
	matcher *domainrecon.Matcher,
	cascade *CascadeRecalculator,
	recorder *MovementRecorder,
	scope TransactionScope,
	mutex shared.Mutex,
	logger *zap.Logger,
	opts ...ReconciliationServiceOption,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReconciliationService{
		invoiceRepo:  invoiceRepo,
		lineRepo:     lineRepo,
		shipmentRepo: shipmentRepo,
		matcher:      matcher,
		cascade:      cascade,
		recorder:     recorder,
		scope:        scope,
		mutex:        mutex,
		logger:       logger,
		lockTimeout:  DefaultLockTimeout,
		batchWorkers: DefaultBatchWorkers,
		batchSize:    DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessInvoice reconciles one invoice end to end. Non-fatal findings are
// collected into the report; an error is returned only when the invoice
// could not be processed at all (missing invoice, lock timeout, write
// failure).
func (s *ReconciliationService) ProcessInvoice(ctx context.Context, invoiceNumber string) (*InvoiceReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "reconciliation.process_invoice",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceNumber, invoiceNumber))
	defer span.End()

	inv, err := s.invoiceRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := &InvoiceReport{InvoiceNumber: inv.InvoiceNumber}

	// An inactive invoice must leave no reconciliation footprint behind.
	if !inv.Active {
		if err := s.removeInvoiceEffects(ctx, inv, report); err != nil {
			return nil, err
		}
		return report, nil
	}

	// Re-processing a matched invoice must not double its effects: the
	// recorder skips existing movements and the cascade is deterministic.
	linked, err := s.lineRepo.FindByInvoiceNumber(ctx, inv.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		report.AlreadyProcessed = true
		line := &linked[0]
		report.Matched = true
		report.OrderNumber = line.OrderNumber
		lot := line.LotID
		report.LotID = &lot
		return report, s.applyMatch(ctx, inv, line.ID, line.OrderNumber, report)
	}

	for attempt := 1; ; attempt++ {
		candidates, err := s.loadCandidates(ctx, inv)
		if err != nil {
			return nil, err
		}

		best, ok := s.findBestAcrossLines(inv, candidates)
		if !ok {
			telemetry.AddEvent(span, "no_candidate_matched",
				telemetry.SpanAttrClientRoot, inv.RootTaxID())
			report.AddInconsistency(InconsistencyNoCandidate,
				fmt.Sprintf("no open shipment line for client root %s matched invoice %s", inv.RootTaxID(), inv.InvoiceNumber))
			s.logger.Info("no candidate matched invoice, recording without a match",
				zap.String("invoice_number", inv.InvoiceNumber),
				zap.String("client_root", inv.RootTaxID()),
				zap.Int("candidates", len(candidates)))
			return report, s.recordWithoutMatch(ctx, inv, candidates, report)
		}

		report.Matched = true
		report.OrderNumber = best.Candidate.OrderNumber
		lot := best.Candidate.LotID
		report.LotID = &lot
		report.Score = best.Score

		err = s.applyMatch(ctx, inv, best.Candidate.LineID, best.Candidate.OrderNumber, report)
		if errors.Is(err, errLineTaken) {
			if attempt < maxMatchAttempts {
				s.logger.Info("candidate line taken concurrently, rematching",
					zap.String("invoice_number", inv.InvoiceNumber),
					zap.String("order_number", best.Candidate.OrderNumber),
					zap.Int("attempt", attempt))
				telemetry.AddEvent(span, "candidate_line_taken",
					telemetry.SpanAttrOrderNumber, best.Candidate.OrderNumber,
					"attempt", attempt)
				report.Matched = false
				report.OrderNumber = ""
				report.LotID = nil
				report.Score = 0
				continue
			}
			conflict := shared.ErrConcurrencyConflict.WithDetails(
				fmt.Sprintf("candidates for invoice %s kept being taken by concurrent workers", inv.InvoiceNumber))
			telemetry.RecordError(span, conflict)
			return nil, conflict
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return report, err
		}
		telemetry.SetAttribute(span, telemetry.SpanAttrOrderNumber, best.Candidate.OrderNumber)
		telemetry.SetAttribute(span, telemetry.SpanAttrMatchScore, best.Score)
		return report, nil
	}
}

// recordWithoutMatch commits the deductions of an unmatched invoice with
// no lot reference, and flags the located-but-unscored candidate lines for
// manual review. A later match clears the flag.
func (s *ReconciliationService) recordWithoutMatch(ctx context.Context, inv *invoice.Invoice, candidates []domainrecon.Candidate, report *InvoiceReport) error {
	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		for i := range inv.Lines {
			l := &inv.Lines[i]
			created, err := s.recorder.EnsureDeduction(ctx, repos.Movements(), l.ProductCode, inv.InvoiceNumber, l.Quantity, nil)
			if err != nil {
				return err
			}
			if !created {
				report.AddInconsistency(InconsistencyDuplicateMovement,
					fmt.Sprintf("deduction for product %s already recorded", l.ProductCode))
			}
		}

		for i := range candidates {
			line, err := repos.ShipmentLines().FindByID(ctx, candidates[i].LineID)
			if err != nil {
				return err
			}
			if line.IsMatched() || line.Status != shipment.LineStatusActive {
				continue
			}
			line.FlagValidationError(shipment.ValidationErrorNoMatch)
			if err := repos.ShipmentLines().Save(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyMatch serializes with other invoices of the same order and commits
// the whole reconciliation in one transaction.
func (s *ReconciliationService) applyMatch(ctx context.Context, inv *invoice.Invoice, lineID uuid.UUID, orderNumber string, report *InvoiceReport) error {
	release, err := s.mutex.Acquire(ctx, "order:"+orderNumber, s.lockTimeout)
	if err != nil {
		if errors.Is(err, shared.ErrLockTimeout) {
			return shared.ErrConcurrencyConflict.WithDetails(
				fmt.Sprintf("order %s is being reconciled by another worker", orderNumber))
		}
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			s.logger.Warn("failed to release order lock",
				zap.String("order_number", orderNumber), zap.Error(rerr))
		}
	}()

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return s.reconcileTx(ctx, repos, inv, lineID, orderNumber, report)
	})
	if err != nil {
		return err
	}

	s.notifyDownstream(ctx, inv)
	return nil
}

// reconcileTx is the write protocol for one matched invoice, run inside a
// transaction while the per-order lock is held.
func (s *ReconciliationService) reconcileTx(ctx context.Context, repos TransactionalRepositories, inv *invoice.Invoice, lineID uuid.UUID, orderNumber string, report *InvoiceReport) error {
	line, err := repos.ShipmentLines().FindByID(ctx, lineID)
	if err != nil {
		return err
	}

	// The candidate set was read before the lock; the line may have been
	// taken by a concurrent invoice in the meantime.
	if err := line.LinkInvoice(inv.InvoiceNumber); err != nil {
		return fmt.Errorf("%w: %v", errLineTaken, err)
	}
	if err := repos.ShipmentLines().Save(ctx, line); err != nil {
		return err
	}

	s.markAllocationInvoiced(ctx, repos, line, report)

	inv.SetSourceOrderRef(orderNumber)
	if err := repos.Invoices().Save(ctx, inv); err != nil {
		return err
	}

	for i := range inv.Lines {
		l := &inv.Lines[i]
		var lotID *uuid.UUID
		if l.ProductCode == line.ProductCode {
			id := line.LotID
			lotID = &id
		}
		created, err := s.recorder.EnsureDeduction(ctx, repos.Movements(), l.ProductCode, inv.InvoiceNumber, l.Quantity, lotID)
		if err != nil {
			return err
		}
		if !created && !report.AlreadyProcessed {
			report.AddInconsistency(InconsistencyDuplicateMovement,
				fmt.Sprintf("deduction for product %s already recorded", l.ProductCode))
		}
	}

	cascadeResult, err := s.cascade.Recalculate(ctx, repos, inv, line)
	if err != nil {
		return err
	}
	for _, code := range cascadeResult.UnresolvedProducts {
		report.AddInconsistency(InconsistencyCatalogEntryMissing, "no weight catalog entry for product "+code)
	}
	for _, code := range cascadeResult.UnresolvedPallets {
		report.AddInconsistency(InconsistencyCatalogEntryMissing, "no usable pallet factor for product "+code)
	}
	if cascadeResult.QuoteError != nil {
		report.AddInconsistency(InconsistencyRateCalcUnavailable, cascadeResult.QuoteError.Error())
	}

	return s.ensureDeliveryRecord(ctx, repos, inv)
}

// markAllocationInvoiced moves the matched allocation line to FATURADO and
// freezes it. Allocation problems are reported, never fatal: the match and
// cascade stand on their own.
func (s *ReconciliationService) markAllocationInvoiced(ctx context.Context, repos TransactionalRepositories, line *shipment.ShipmentLine, report *InvoiceReport) {
	alloc, err := repos.Allocations().FindActiveByOrderAndProduct(ctx, line.OrderNumber, line.ProductCode)
	if errors.Is(err, shared.ErrNotFound) {
		report.AddInconsistency(InconsistencyAllocationNotFound,
			fmt.Sprintf("no active allocation for order %s product %s", line.OrderNumber, line.ProductCode))
		return
	}
	if err != nil {
		report.AddInconsistency(InconsistencyAllocationNotFound, err.Error())
		return
	}
	if alloc.Synced {
		return
	}
	if err := alloc.MarkInvoiced(); err != nil {
		report.AddInconsistency(InconsistencyAllocationStateFrozen, err.Error())
		return
	}
	if err := repos.Allocations().Save(ctx, alloc); err != nil {
		report.AddInconsistency(InconsistencyAllocationStateFrozen, err.Error())
	}
}

// ensureDeliveryRecord opens delivery tracking for the invoice if absent
func (s *ReconciliationService) ensureDeliveryRecord(ctx context.Context, repos TransactionalRepositories, inv *invoice.Invoice) error {
	_, err := repos.DeliveryRecords().FindByInvoiceNumber(ctx, inv.InvoiceNumber)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	record, err := tracking.NewDeliveryRecord(inv.InvoiceNumber, inv.ClientTaxID)
	if err != nil {
		return err
	}
	return repos.DeliveryRecords().Save(ctx, record)
}

// removeInvoiceEffects undoes the reconciliation footprint of a
// deactivated invoice: unlinks shipment lines, reverses stock movements,
// drops the delivery record and re-derives downstream totals.
func (s *ReconciliationService) removeInvoiceEffects(ctx context.Context, inv *invoice.Invoice, report *InvoiceReport) error {
	linked, err := s.lineRepo.FindByInvoiceNumber(ctx, inv.InvoiceNumber)
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		// Nothing was ever matched; reverse any stray movements anyway.
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			if _, err := s.recorder.ReverseForInvoice(ctx, repos.Movements(), inv.InvoiceNumber); err != nil {
				return err
			}
			return repos.DeliveryRecords().DeleteByInvoiceNumber(ctx, inv.InvoiceNumber)
		})
	}

	orderNumber := linked[0].OrderNumber
	release, err := s.mutex.Acquire(ctx, "order:"+orderNumber, s.lockTimeout)
	if err != nil {
		if errors.Is(err, shared.ErrLockTimeout) {
			return shared.ErrConcurrencyConflict.WithDetails(
				fmt.Sprintf("order %s is being reconciled by another worker", orderNumber))
		}
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			s.logger.Warn("failed to release order lock",
				zap.String("order_number", orderNumber), zap.Error(rerr))
		}
	}()

	return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		for i := range linked {
			line, err := repos.ShipmentLines().FindByID(ctx, linked[i].ID)
			if err != nil {
				return err
			}
			line.UnlinkInvoice()
			if err := repos.ShipmentLines().Save(ctx, line); err != nil {
				return err
			}
			if _, err := s.cascade.RecalculateAfterUnlink(ctx, repos, line); err != nil {
				return err
			}
		}
		if _, err := s.recorder.ReverseForInvoice(ctx, repos.Movements(), inv.InvoiceNumber); err != nil {
			return err
		}
		if err := repos.DeliveryRecords().DeleteByInvoiceNumber(ctx, inv.InvoiceNumber); err != nil {
			return err
		}
		s.logger.Info("removed reconciliation effects of inactive invoice",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("order_number", orderNumber),
			zap.Int("lines_unlinked", len(linked)))
		return nil
	})
}

// ProcessBatch reconciles the given invoices, or every pending invoice
// when the list is empty, with a bounded worker pool. Each invoice fails
// or succeeds on its own; a cancelled context stops dispatching but lets
// in-flight invoices finish.
func (s *ReconciliationService) ProcessBatch(ctx context.Context, invoiceNumbers []string) (*BatchReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "reconciliation.process_batch",
		telemetry.WithAttribute("requested_invoices", len(invoiceNumbers)))
	defer span.End()

	if len(invoiceNumbers) == 0 {
		pending, err := s.invoiceRepo.FindPending(ctx, shared.Filter{Page: 1, PageSize: s.batchSize, OrderBy: "created_at", OrderDir: "asc"})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		invoiceNumbers = make([]string, 0, len(pending))
		for i := range pending {
			invoiceNumbers = append(invoiceNumbers, pending[i].InvoiceNumber)
		}
	}

	batch := &BatchReport{StartedAt: time.Now()}
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan string)

	for w := 0; w < s.batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for invoiceNumber := range jobs {
				report, err := s.ProcessInvoice(ctx, invoiceNumber)
				mu.Lock()
				if err != nil {
					batch.recordFailure(invoiceNumber, err)
				} else {
					batch.record(report)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i := range invoiceNumbers {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- invoiceNumbers[i]:
		}
	}
	close(jobs)
	wg.Wait()

	batch.FinishedAt = time.Now()
	s.logger.Info("reconciliation batch finished",
		zap.Int("processed", batch.Processed),
		zap.Int("matched", batch.Matched),
		zap.Int("unresolved", batch.Unresolved),
		zap.Int("already_processed", batch.AlreadyProcessed),
		zap.Int("failed", batch.Failed),
		zap.Duration("elapsed", batch.FinishedAt.Sub(batch.StartedAt)))

	if ctx.Err() != nil {
		return batch, ctx.Err()
	}
	return batch, nil
}

// loadCandidates reads the open shipment lines of the invoice's client root
// and converts them to matcher candidates, resolving each line's shipment
// creation time for the recency bonus.
func (s *ReconciliationService) loadCandidates(ctx context.Context, inv *invoice.Invoice) ([]domainrecon.Candidate, error) {
	lines, err := s.lineRepo.FindOpenByClientRoot(ctx, inv.RootTaxID())
	if err != nil {
		return nil, err
	}

	shipmentCreated := make(map[uuid.UUID]time.Time)
	candidates := make([]domainrecon.Candidate, 0, len(lines))
	for i := range lines {
		l := &lines[i]
		createdAt, ok := shipmentCreated[l.ShipmentID]
		if !ok {
			sh, err := s.shipmentRepo.FindByID(ctx, l.ShipmentID)
			if err != nil {
				return nil, err
			}
			createdAt = sh.CreatedAt
			shipmentCreated[l.ShipmentID] = createdAt
		}
		candidates = append(candidates, domainrecon.Candidate{
			LineID:            l.ID,
			LotID:             l.LotID,
			OrderNumber:       l.OrderNumber,
			ProductCode:       l.ProductCode,
			AllocatedQuantity: l.Quantity,
			LineCreatedAt:     l.CreatedAt,
			ShipmentCreatedAt: createdAt,
		})
	}
	return candidates, nil
}

// findBestAcrossLines scores every invoice line against the candidate set
// and keeps the overall best match
func (s *ReconciliationService) findBestAcrossLines(inv *invoice.Invoice, candidates []domainrecon.Candidate) (domainrecon.MatchResult, bool) {
	var best domainrecon.MatchResult
	found := false
	for i := range inv.Lines {
		l := &inv.Lines[i]
		result, ok := s.matcher.FindBestMatch(domainrecon.LineFacts{
			ProductCode: l.ProductCode,
			Quantity:    l.Quantity,
		}, candidates)
		if !ok {
			continue
		}
		if !found || result.Score > best.Score {
			best = result
			found = true
		}
	}
	return best, found
}

// notifyDownstream fires the best-effort external triggers after commit
func (s *ReconciliationService) notifyDownstream(ctx context.Context, inv *invoice.Invoice) {
	if s.deliveryMonitor != nil {
		if err := s.deliveryMonitor.SyncDeliveryRecord(ctx, inv.InvoiceNumber); err != nil {
			s.logger.Warn("delivery monitor sync failed",
				zap.String("invoice_number", inv.InvoiceNumber), zap.Error(err))
		}
	}
	if s.freightLauncher != nil {
		if err := s.freightLauncher.TryAutoLaunchFreight(ctx, inv.ClientTaxID); err != nil {
			s.logger.Warn("auto-launch freight failed",
				zap.String("client_tax_id", inv.ClientTaxID), zap.Error(err))
		}
	}
}
