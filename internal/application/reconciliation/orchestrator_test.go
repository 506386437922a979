package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	domainrecon "github.com/freightops/backend/internal/domain/reconciliation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
)

const (
	testClientTaxID = "12345678000190"
	testClientRoot  = "12345678"
)

type testEnv struct {
	repos    *fakeRepos
	mutex    *inmemMutex
	rateCalc *stubRateCalculator
	service  *ReconciliationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := newFakeRepos()
	mutex := newInmemMutex()
	rateCalc := &stubRateCalculator{quote: decimal.NewFromFloat(150.555)}
	logger := zap.NewNop()

	service := NewReconciliationService(
		repos.invoices,
		repos.lines,
		repos.shipments,
		domainrecon.NewMatcher(),
		NewCascadeRecalculator(rateCalc, logger),
		NewMovementRecorder(logger),
		NewNoOpTransactionScope(repos),
		mutex,
		logger,
		WithLockTimeout(200*time.Millisecond),
		WithBatchWorkers(2),
	)
	return &testEnv{repos: repos, mutex: mutex, rateCalc: rateCalc, service: service}
}

func (e *testEnv) seedCatalog(t *testing.T, code string, unitWeight, palletFactor float64) {
	t.Helper()
	entry, err := catalogEntry(code, unitWeight, palletFactor)
	require.NoError(t, err)
	require.NoError(t, e.repos.weights.Save(context.Background(), entry))
}

type seededOrder struct {
	order      string
	lotID      uuid.UUID
	lineID     uuid.UUID
	shipmentID uuid.UUID
	freightID  uuid.UUID
}

// seedOrder builds the upstream state one reconciliation expects: an active
// allocation line, an active shipment with one open line, and a pending
// freight for the client.
func (e *testEnv) seedOrder(t *testing.T, order, product string, quantity int64) seededOrder {
	t.Helper()
	ctx := context.Background()
	qty := decimal.NewFromInt(quantity)
	value := decimal.NewFromInt(quantity * 10)

	alloc, err := allocation.NewAllocationLine(uuid.New(), order, product, testClientTaxID, qty, value)
	require.NoError(t, err)
	require.NoError(t, e.repos.allocations.Save(ctx, alloc))

	sh, err := shipment.NewShipment("EMB-"+order, "CARRIER-1")
	require.NoError(t, err)
	require.NoError(t, sh.Activate())
	require.NoError(t, e.repos.shipments.Save(ctx, sh))

	line, err := shipment.NewShipmentLine(sh.ID, alloc.LotID, order, testClientTaxID, testClientRoot, product, qty, value)
	require.NoError(t, err)
	require.NoError(t, e.repos.lines.Save(ctx, line))

	fr, err := freight.NewFreight(sh.ID, testClientTaxID, freight.RateTableParams{
		TableCode:     "TAB-1",
		CarrierCode:   "CARRIER-1",
		MinimumCharge: decimal.NewFromInt(50),
		AdValoremPct:  decimal.NewFromFloat(0.3),
	})
	require.NoError(t, err)
	require.NoError(t, e.repos.freights.Save(ctx, fr))

	return seededOrder{order: order, lotID: alloc.LotID, lineID: line.ID, shipmentID: sh.ID, freightID: fr.ID}
}

func (e *testEnv) seedInvoice(t *testing.T, number, product string, quantity int64) *invoice.Invoice {
	t.Helper()
	inv, err := invoice.NewInvoice(number, time.Now(), testClientTaxID, "Cliente Teste", decimal.NewFromInt(quantity*10), "CIF", "")
	require.NoError(t, err)
	_, err = inv.AddLine(product, decimal.NewFromInt(quantity), decimal.NewFromInt(10), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, inv.Post())
	require.NoError(t, e.repos.invoices.Save(context.Background(), inv))
	return inv
}

func TestProcessInvoice_MatchesAndCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-001", "P1", 100)

	report, err := env.service.ProcessInvoice(ctx, "NF-001")
	require.NoError(t, err)

	assert.True(t, report.Matched)
	assert.False(t, report.AlreadyProcessed)
	assert.Equal(t, "PED-1", report.OrderNumber)
	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Inconsistencies)

	// Shipment line linked and derived quantities cascaded
	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	require.NotNil(t, line.InvoiceNumber)
	assert.Equal(t, "NF-001", *line.InvoiceNumber)
	assert.True(t, line.Weight.Equal(decimal.NewFromInt(250)))    // 100 * 2.5
	assert.True(t, line.PalletCount.Equal(decimal.NewFromInt(2))) // 100 / 50

	// Invoice back-referenced to the order with computed total weight
	inv, err := env.repos.invoices.FindByInvoiceNumber(ctx, "NF-001")
	require.NoError(t, err)
	assert.Equal(t, "PED-1", inv.SourceOrderRef)
	assert.True(t, inv.TotalWeight.Equal(decimal.NewFromInt(250)))

	// Allocation frozen in FATURADO
	alloc, err := env.repos.allocations.FindActiveByOrderAndProduct(ctx, "PED-1", "P1")
	require.NoError(t, err)
	assert.Equal(t, allocation.StatusInvoiced, alloc.Status)
	assert.True(t, alloc.Synced)

	// Exactly one negative movement for the (product, invoice) pair
	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-001")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].Quantity.Equal(decimal.NewFromInt(-100)))

	// Shipment totals re-summed
	sh, err := env.repos.shipments.FindByID(ctx, seeded.shipmentID)
	require.NoError(t, err)
	assert.True(t, sh.TotalWeight.Equal(decimal.NewFromInt(250)))

	// Freight requoted, rounded at the monetary boundary
	fr, err := env.repos.freights.FindByID(ctx, seeded.freightID)
	require.NoError(t, err)
	assert.True(t, fr.QuotedValue.Equal(decimal.NewFromFloat(150.56)))
	assert.True(t, fr.WeightTotal.Equal(decimal.NewFromInt(250)))

	// Delivery tracking opened
	_, err = env.repos.deliveries.FindByInvoiceNumber(ctx, "NF-001")
	assert.NoError(t, err)
}

func TestProcessInvoice_NoCandidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-002", "P9", 100) // no open line sells P9

	report, err := env.service.ProcessInvoice(ctx, "NF-002")
	require.NoError(t, err)

	assert.False(t, report.Matched)
	require.Len(t, report.Inconsistencies, 1)
	assert.Equal(t, InconsistencyNoCandidate, report.Inconsistencies[0].Category)

	// The invoice is still recorded: one deduction with no lot reference
	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-002")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].Quantity.Equal(decimal.NewFromInt(-100)))
	assert.Nil(t, movements[0].LotID)

	// The located-but-unscored line is flagged for manual review
	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	require.NotNil(t, line.ValidationError)
	assert.Equal(t, shipment.ValidationErrorNoMatch, *line.ValidationError)

	// No match, no delivery tracking
	_, err = env.repos.deliveries.FindByInvoiceNumber(ctx, "NF-002")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProcessInvoice_NoCandidateIsRerunSafe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedInvoice(t, "NF-012", "P9", 100)

	_, err := env.service.ProcessInvoice(ctx, "NF-012")
	require.NoError(t, err)

	report, err := env.service.ProcessInvoice(ctx, "NF-012")
	require.NoError(t, err)

	var categories []string
	for _, inc := range report.Inconsistencies {
		categories = append(categories, inc.Category)
	}
	assert.Contains(t, categories, InconsistencyDuplicateMovement)

	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-012")
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestProcessInvoice_MatchClearsNoMatchFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)

	// An unmatched invoice for another product flags the located line
	env.seedInvoice(t, "NF-013", "P9", 100)
	_, err := env.service.ProcessInvoice(ctx, "NF-013")
	require.NoError(t, err)
	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	require.NotNil(t, line.ValidationError)

	// A later match for the line's own product clears the flag
	env.seedInvoice(t, "NF-014", "P1", 100)
	report, err := env.service.ProcessInvoice(ctx, "NF-014")
	require.NoError(t, err)
	require.True(t, report.Matched)

	line, err = env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	assert.Nil(t, line.ValidationError)
}

func TestProcessInvoice_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-003", "P1", 100)

	first, err := env.service.ProcessInvoice(ctx, "NF-003")
	require.NoError(t, err)
	require.True(t, first.Matched)

	second, err := env.service.ProcessInvoice(ctx, "NF-003")
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, "PED-1", second.OrderNumber)

	// Still exactly one movement and an unchanged quote
	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-003")
	require.NoError(t, err)
	assert.Len(t, movements, 1)

	fr, err := env.repos.freights.FindByID(ctx, seeded.freightID)
	require.NoError(t, err)
	assert.True(t, fr.QuotedValue.Equal(decimal.NewFromFloat(150.56)))
}

func TestProcessInvoice_LockTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-004", "P1", 100)

	// Another worker holds the order lock for the whole attempt
	release, err := env.mutex.Acquire(ctx, "order:PED-1", time.Second)
	require.NoError(t, err)
	defer func() { _ = release() }()

	_, err = env.service.ProcessInvoice(ctx, "NF-004")
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestProcessInvoice_CatalogEntryMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No catalog entry for P1
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-005", "P1", 100)

	report, err := env.service.ProcessInvoice(ctx, "NF-005")
	require.NoError(t, err)
	require.True(t, report.Matched)

	var categories []string
	for _, inc := range report.Inconsistencies {
		categories = append(categories, inc.Category)
	}
	assert.Contains(t, categories, InconsistencyCatalogEntryMissing)

	// The unresolved line contributes zero weight and the line is flagged
	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	assert.True(t, line.Weight.IsZero())
	require.NotNil(t, line.ValidationError)
	assert.Equal(t, shipment.ValidationErrorWeightMissing, *line.ValidationError)
}

func TestProcessInvoice_PalletFactorUnresolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Weight resolves, pallet factor does not
	env.seedCatalog(t, "P1", 2.5, 0)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-010", "P1", 100)

	report, err := env.service.ProcessInvoice(ctx, "NF-010")
	require.NoError(t, err)
	require.True(t, report.Matched)

	var categories []string
	for _, inc := range report.Inconsistencies {
		categories = append(categories, inc.Category)
	}
	assert.Contains(t, categories, InconsistencyCatalogEntryMissing)

	// The product contributes its weight but zero pallets
	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	assert.True(t, line.Weight.Equal(decimal.NewFromInt(250)))
	assert.True(t, line.PalletCount.IsZero())
}

func TestProcessInvoice_RateCalculatorDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.rateCalc.err = context.DeadlineExceeded

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-006", "P1", 100)

	report, err := env.service.ProcessInvoice(ctx, "NF-006")
	require.NoError(t, err)
	require.True(t, report.Matched)

	var categories []string
	for _, inc := range report.Inconsistencies {
		categories = append(categories, inc.Category)
	}
	assert.Contains(t, categories, InconsistencyRateCalcUnavailable)

	// Prior quote (zero) retained, totals still refreshed
	fr, err := env.repos.freights.FindByID(ctx, seeded.freightID)
	require.NoError(t, err)
	assert.True(t, fr.QuotedValue.IsZero())
	assert.True(t, fr.WeightTotal.Equal(decimal.NewFromInt(250)))
}

func TestProcessInvoice_InactiveInvoiceRemovesEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	seeded := env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-007", "P1", 100)

	_, err := env.service.ProcessInvoice(ctx, "NF-007")
	require.NoError(t, err)

	// Deactivate and re-process: every effect must be removed
	inv, err := env.repos.invoices.FindByInvoiceNumber(ctx, "NF-007")
	require.NoError(t, err)
	require.NoError(t, inv.Deactivate())
	require.NoError(t, env.repos.invoices.Save(ctx, inv))

	_, err = env.service.ProcessInvoice(ctx, "NF-007")
	require.NoError(t, err)

	line, err := env.repos.lines.FindByID(ctx, seeded.lineID)
	require.NoError(t, err)
	assert.Nil(t, line.InvoiceNumber)
	assert.True(t, line.Weight.IsZero())

	// The deduction is compensated, not deleted
	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-007")
	require.NoError(t, err)
	require.Len(t, movements, 2)
	sum := decimal.Zero
	for i := range movements {
		sum = sum.Add(movements[i].Quantity)
	}
	assert.True(t, sum.IsZero())

	_, err = env.repos.deliveries.FindByInvoiceNumber(ctx, "NF-007")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// hookScope runs a callback before each transaction, emulating writes
// that land between candidate scoring and the lock scope
type hookScope struct {
	inner  TransactionScope
	before func()
}

func (h *hookScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	if h.before != nil {
		h.before()
	}
	return h.inner.Execute(ctx, fn)
}

func TestProcessInvoice_RematchesWhenLineTaken(t *testing.T) {
	repos := newFakeRepos()
	mutex := newInmemMutex()
	rateCalc := &stubRateCalculator{quote: decimal.NewFromFloat(150.555)}
	logger := zap.NewNop()
	scope := &hookScope{inner: NewNoOpTransactionScope(repos)}
	service := NewReconciliationService(
		repos.invoices,
		repos.lines,
		repos.shipments,
		domainrecon.NewMatcher(),
		NewCascadeRecalculator(rateCalc, logger),
		NewMovementRecorder(logger),
		scope,
		mutex,
		logger,
		WithLockTimeout(200*time.Millisecond),
	)
	env := &testEnv{repos: repos, mutex: mutex, rateCalc: rateCalc, service: service}
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	// PED-A scores higher (exact quantity), PED-B is the runner-up
	best := env.seedOrder(t, "PED-A", "P1", 100)
	runnerUp := env.seedOrder(t, "PED-B", "P1", 108)
	env.seedInvoice(t, "NF-020", "P1", 100)

	// Another worker links the best line right before the transaction opens
	stolen := false
	scope.before = func() {
		if stolen {
			return
		}
		stolen = true
		line, err := repos.lines.FindByID(ctx, best.lineID)
		require.NoError(t, err)
		require.NoError(t, line.LinkInvoice("NF-OTHER"))
		require.NoError(t, repos.lines.Save(ctx, line))
	}

	report, err := service.ProcessInvoice(ctx, "NF-020")
	require.NoError(t, err)
	require.True(t, report.Matched)
	assert.Equal(t, "PED-B", report.OrderNumber)

	line, err := repos.lines.FindByID(ctx, runnerUp.lineID)
	require.NoError(t, err)
	require.NotNil(t, line.InvoiceNumber)
	assert.Equal(t, "NF-020", *line.InvoiceNumber)
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	env.seedCatalog(t, "P2", 1.0, 0)
	env.seedOrder(t, "PED-1", "P1", 100)
	env.seedOrder(t, "PED-2", "P2", 40)
	env.seedInvoice(t, "NF-101", "P1", 100)
	env.seedInvoice(t, "NF-102", "P2", 40)
	env.seedInvoice(t, "NF-103", "P9", 10) // nothing to match

	report, err := env.service.ProcessBatch(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, 0, report.Failed)
}

func TestProcessBatch_ExplicitInvoiceList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedCatalog(t, "P1", 2.5, 50)
	env.seedCatalog(t, "P2", 1.0, 10)
	env.seedOrder(t, "PED-1", "P1", 100)
	env.seedOrder(t, "PED-2", "P2", 40)
	env.seedInvoice(t, "NF-111", "P1", 100)
	env.seedInvoice(t, "NF-112", "P2", 40)

	report, err := env.service.ProcessBatch(ctx, []string{"NF-111"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Matched)

	// The invoice outside the list stays pending
	movements, err := env.repos.movements.FindByInvoice(ctx, "NF-112")
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestProcessBatch_CancelledContextStopsDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.seedCatalog(t, "P1", 2.5, 50)
	env.seedOrder(t, "PED-1", "P1", 100)
	env.seedInvoice(t, "NF-201", "P1", 100)

	report, err := env.service.ProcessBatch(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Processed)
}
