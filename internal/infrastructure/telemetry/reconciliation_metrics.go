package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ReconciliationMetrics provides business metrics for the reconciliation engine.
// It tracks invoice intake, match activity, and backlog health.
type ReconciliationMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	invoiceImportedTotal *Counter
	lineMatchedTotal     *Counter
	deductionTotal       *Counter
	syncRunTotal         *Counter

	// Histogram metrics
	syncDuration *Histogram

	// Gauge metrics (point-in-time values)
	pendingInvoiceCount   *Gauge
	openShipmentLineCount *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	backlogProvider BacklogMetricsProvider
}

// BacklogMetricsProvider provides backlog data for periodic metrics collection.
// This interface allows the telemetry layer to query reconciliation state
// without depending on the domain repositories directly.
type BacklogMetricsProvider interface {
	// CountPendingInvoices returns the number of active invoices not yet
	// reconciled to a source order
	CountPendingInvoices(ctx context.Context) (int64, error)

	// CountOpenShipmentLines returns the number of active shipment lines
	// still waiting for an invoice match
	CountOpenShipmentLines(ctx context.Context) (int64, error)
}

// ReconciliationMetricsConfig holds configuration for reconciliation metrics.
type ReconciliationMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	BacklogProvider BacklogMetricsProvider
}

// NewReconciliationMetrics creates a new ReconciliationMetrics instance.
func NewReconciliationMetrics(cfg ReconciliationMetricsConfig) (*ReconciliationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconciliationMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	// Initialize counter metrics
	var err error

	// Intake metrics
	rm.invoiceImportedTotal, err = NewCounter(
		cfg.Meter,
		"recon_invoice_imported_total",
		"Total number of invoices imported",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	// Match metrics
	rm.lineMatchedTotal, err = NewCounter(
		cfg.Meter,
		"recon_line_match_total",
		"Total number of invoice line match attempts",
		"{lines}",
	)
	if err != nil {
		return nil, err
	}

	rm.deductionTotal, err = NewCounter(
		cfg.Meter,
		"recon_stock_deduction_total",
		"Total number of stock deduction movements recorded",
		"{movements}",
	)
	if err != nil {
		return nil, err
	}

	// Sync pass metrics
	rm.syncRunTotal, err = NewCounter(
		cfg.Meter,
		"recon_sync_run_total",
		"Total number of reconciliation sync passes",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	rm.syncDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "recon_sync_duration_seconds",
		Description: "Duration of reconciliation sync passes",
		Unit:        "s",
	})
	if err != nil {
		return nil, err
	}

	// Backlog gauge metrics
	rm.pendingInvoiceCount, err = NewGauge(
		cfg.Meter,
		"recon_invoice_pending_count",
		"Current number of invoices awaiting reconciliation",
		"{invoices}",
	)
	if err != nil {
		return nil, err
	}

	rm.openShipmentLineCount, err = NewGauge(
		cfg.Meter,
		"recon_shipment_line_open_count",
		"Current number of shipment lines awaiting an invoice match",
		"{lines}",
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// =============================================================================
// Intake Metrics
// =============================================================================

// ImportOutcome represents the result of an invoice import for metrics labeling.
type ImportOutcome string

const (
	ImportOutcomeCreated   ImportOutcome = "created"
	ImportOutcomeDuplicate ImportOutcome = "duplicate"
	ImportOutcomeRejected  ImportOutcome = "rejected"
)

// RecordInvoiceImported records an invoice import event.
// This should be called from the application layer when an import completes.
func (rm *ReconciliationMetrics) RecordInvoiceImported(ctx context.Context, outcome ImportOutcome) {
	rm.invoiceImportedTotal.Inc(ctx,
		AttrImportOutcome.String(string(outcome)),
	)
}

// =============================================================================
// Match Metrics
// =============================================================================

// MatchOutcome represents the result of a line match attempt for metrics labeling.
type MatchOutcome string

const (
	MatchOutcomeMatched    MatchOutcome = "matched"
	MatchOutcomeUnresolved MatchOutcome = "unresolved"
)

// RecordLineMatch records an invoice line match attempt.
func (rm *ReconciliationMetrics) RecordLineMatch(ctx context.Context, outcome MatchOutcome) {
	rm.lineMatchedTotal.Inc(ctx,
		AttrMatchOutcome.String(string(outcome)),
	)
}

// RecordDeduction records a stock deduction movement for a product.
func (rm *ReconciliationMetrics) RecordDeduction(ctx context.Context, productCode string) {
	rm.deductionTotal.Inc(ctx,
		AttrProductCode.String(productCode),
	)
}

// =============================================================================
// Sync Pass Metrics
// =============================================================================

// SyncTrigger identifies what started a reconciliation pass.
type SyncTrigger string

const (
	SyncTriggerScheduler SyncTrigger = "scheduler"
	SyncTriggerManual    SyncTrigger = "manual"
	SyncTriggerImport    SyncTrigger = "import"
)

// RecordSyncRun records a completed reconciliation pass and its duration.
func (rm *ReconciliationMetrics) RecordSyncRun(ctx context.Context, trigger SyncTrigger, d time.Duration) {
	rm.syncRunTotal.Inc(ctx,
		AttrSyncTrigger.String(string(trigger)),
	)
	rm.syncDuration.RecordDuration(ctx, d,
		AttrSyncTrigger.String(string(trigger)),
	)
}

// =============================================================================
// Backlog Metrics
// =============================================================================

// RecordPendingInvoices records the current reconciliation backlog size.
// This is a gauge metric that should be updated periodically.
func (rm *ReconciliationMetrics) RecordPendingInvoices(ctx context.Context, count int64) {
	rm.pendingInvoiceCount.Record(ctx, count)
}

// RecordOpenShipmentLines records the current number of unmatched shipment lines.
// This is a gauge metric that should be updated periodically.
func (rm *ReconciliationMetrics) RecordOpenShipmentLines(ctx context.Context, count int64) {
	rm.openShipmentLineCount.Record(ctx, count)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects backlog metrics every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (rm *ReconciliationMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	rm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go rm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (rm *ReconciliationMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	rm.collectBacklogMetrics(ctx)

	for {
		select {
		case <-rm.stopChan:
			rm.logger.Info("Stopping periodic reconciliation metrics collection")
			return
		case <-ctx.Done():
			rm.logger.Info("Context cancelled, stopping periodic reconciliation metrics collection")
			return
		case <-ticker.C:
			rm.collectBacklogMetrics(ctx)
		}
	}
}

// collectBacklogMetrics collects backlog gauge metrics.
func (rm *ReconciliationMetrics) collectBacklogMetrics(ctx context.Context) {
	if rm.backlogProvider == nil {
		rm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	pending, err := rm.backlogProvider.CountPendingInvoices(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count pending invoices", zap.Error(err))
	} else {
		rm.RecordPendingInvoices(ctx, pending)
	}

	open, err := rm.backlogProvider.CountOpenShipmentLines(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count open shipment lines", zap.Error(err))
	} else {
		rm.RecordOpenShipmentLines(ctx, open)
	}
}

// Stop stops the periodic collection.
func (rm *ReconciliationMetrics) Stop() {
	rm.stopOnce.Do(func() {
		close(rm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewReconciliationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// =============================================================================
// Attribute Key Constants
// =============================================================================

// Reconciliation metrics attribute keys not already defined in metrics.go
var (
	AttrImportOutcome = attribute.Key("import_outcome")
	AttrSyncTrigger   = attribute.Key("sync_trigger")
)
