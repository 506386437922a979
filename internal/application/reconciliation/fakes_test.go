package reconciliation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/stock"
	"github.com/freightops/backend/internal/domain/tracking"
)

// In-memory repositories backing the service tests. They implement the
// same contracts as the GORM repositories, including the candidate filter
// and the one-active-lot rule.

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*invoice.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[string]*invoice.Invoice)}
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ID == id {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeInvoiceRepo) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceNumber]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) FindActiveByClientRoot(ctx context.Context, rootTaxID string, filter shared.Filter) ([]invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range r.invoices {
		if inv.Active && inv.RootTaxID() == rootTaxID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) FindPending(ctx context.Context, filter shared.Filter) ([]invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range r.invoices {
		if inv.Active && inv.SourceOrderRef == "" {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeInvoiceRepo) ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceNumber]
	return ok && inv.Active, nil
}

func (r *fakeInvoiceRepo) Save(ctx context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invoices[inv.InvoiceNumber] = &cp
	return nil
}

func (r *fakeInvoiceRepo) SaveLines(ctx context.Context, lines []invoice.InvoiceLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range lines {
		inv, ok := r.invoices[lines[i].InvoiceNumber]
		if !ok {
			continue
		}
		for j := range inv.Lines {
			if inv.Lines[j].ID == lines[i].ID {
				inv.Lines[j] = lines[i]
			}
		}
	}
	return nil
}

func (r *fakeInvoiceRepo) CountForStatus(ctx context.Context, status invoice.PostingStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, inv := range r.invoices {
		if inv.PostingStatus == status {
			n++
		}
	}
	return n, nil
}

type fakeAllocationRepo struct {
	mu    sync.Mutex
	lines map[uuid.UUID]*allocation.AllocationLine
}

func newFakeAllocationRepo() *fakeAllocationRepo {
	return &fakeAllocationRepo{lines: make(map[uuid.UUID]*allocation.AllocationLine)}
}

func (r *fakeAllocationRepo) FindByID(ctx context.Context, id uuid.UUID) (*allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeAllocationRepo) FindByLot(ctx context.Context, lotID uuid.UUID) ([]allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []allocation.AllocationLine
	for _, l := range r.lines {
		if l.LotID == lotID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) FindActiveByOrderAndProduct(ctx context.Context, orderNumber, productCode string) (*allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l.OrderNumber == orderNumber && l.ProductCode == productCode && l.Status.IsActive() {
			cp := *l
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeAllocationRepo) FindActiveByOrder(ctx context.Context, orderNumber string) ([]allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []allocation.AllocationLine
	for _, l := range r.lines {
		if l.OrderNumber == orderNumber && l.Status.IsActive() {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) FindByOrder(ctx context.Context, orderNumber string) ([]allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []allocation.AllocationLine
	for _, l := range r.lines {
		if l.OrderNumber == orderNumber {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) FindByStatus(ctx context.Context, status allocation.Status, filter shared.Filter) ([]allocation.AllocationLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []allocation.AllocationLine
	for _, l := range r.lines {
		if l.Status == status {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) Save(ctx context.Context, line *allocation.AllocationLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line.Status.IsActive() {
		for _, other := range r.lines {
			if other.ID != line.ID && other.OrderNumber == line.OrderNumber &&
				other.ProductCode == line.ProductCode && other.Status.IsActive() && other.LotID != line.LotID {
				return shared.ErrAlreadyExists
			}
		}
	}
	cp := *line
	r.lines[line.ID] = &cp
	return nil
}

func (r *fakeAllocationRepo) SaveAll(ctx context.Context, lines []allocation.AllocationLine) error {
	for i := range lines {
		if err := r.Save(ctx, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeShipmentRepo struct {
	mu        sync.Mutex
	shipments map[uuid.UUID]*shipment.Shipment
}

func newFakeShipmentRepo() *fakeShipmentRepo {
	return &fakeShipmentRepo{shipments: make(map[uuid.UUID]*shipment.Shipment)}
}

func (r *fakeShipmentRepo) FindByID(ctx context.Context, id uuid.UUID) (*shipment.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeShipmentRepo) FindByShipmentNumber(ctx context.Context, shipmentNumber string) (*shipment.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shipments {
		if s.ShipmentNumber == shipmentNumber {
			cp := *s
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeShipmentRepo) FindActive(ctx context.Context, filter shared.Filter) ([]shipment.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipment.Shipment
	for _, s := range r.shipments {
		if s.Status == shipment.StatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeShipmentRepo) Save(ctx context.Context, s *shipment.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.shipments[s.ID] = &cp
	return nil
}

type fakeLineRepo struct {
	mu        sync.Mutex
	lines     map[uuid.UUID]*shipment.ShipmentLine
	shipments *fakeShipmentRepo
}

func newFakeLineRepo(shipments *fakeShipmentRepo) *fakeLineRepo {
	return &fakeLineRepo{lines: make(map[uuid.UUID]*shipment.ShipmentLine), shipments: shipments}
}

func (r *fakeLineRepo) FindByID(ctx context.Context, id uuid.UUID) (*shipment.ShipmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lines[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLineRepo) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]shipment.ShipmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipment.ShipmentLine
	for _, l := range r.lines {
		if l.ShipmentID == shipmentID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeLineRepo) FindOpenByClientRoot(ctx context.Context, rootTaxID string) ([]shipment.ShipmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipment.ShipmentLine
	for _, l := range r.lines {
		if l.Status != shipment.LineStatusActive || l.IsMatched() || l.ClientRootTaxID != rootTaxID {
			continue
		}
		sh, ok := r.shipments.shipments[l.ShipmentID]
		if !ok || sh.Status != shipment.StatusActive {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *fakeLineRepo) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]shipment.ShipmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipment.ShipmentLine
	for _, l := range r.lines {
		if l.InvoiceNumber != nil && *l.InvoiceNumber == invoiceNumber {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeLineRepo) FindByLot(ctx context.Context, lotID uuid.UUID) ([]shipment.ShipmentLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipment.ShipmentLine
	for _, l := range r.lines {
		if l.LotID == lotID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeLineRepo) Save(ctx context.Context, line *shipment.ShipmentLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *line
	r.lines[line.ID] = &cp
	return nil
}

func (r *fakeLineRepo) SaveAll(ctx context.Context, lines []shipment.ShipmentLine) error {
	for i := range lines {
		if err := r.Save(ctx, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeFreightRepo struct {
	mu       sync.Mutex
	freights map[uuid.UUID]*freight.Freight
	lines    *fakeLineRepo
}

func newFakeFreightRepo(lines *fakeLineRepo) *fakeFreightRepo {
	return &fakeFreightRepo{freights: make(map[uuid.UUID]*freight.Freight), lines: lines}
}

func (r *fakeFreightRepo) FindByID(ctx context.Context, id uuid.UUID) (*freight.Freight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.freights[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFreightRepo) FindByShipmentAndClient(ctx context.Context, shipmentID uuid.UUID, clientTaxID string) (*freight.Freight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.freights {
		if f.ShipmentID == shipmentID && f.ClientTaxID == clientTaxID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeFreightRepo) FindByShipment(ctx context.Context, shipmentID uuid.UUID) ([]freight.Freight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []freight.Freight
	for _, f := range r.freights {
		if f.ShipmentID == shipmentID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFreightRepo) FindOpenByClient(ctx context.Context, clientTaxID string) ([]freight.Freight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []freight.Freight
	for _, f := range r.freights {
		if f.ClientTaxID == clientTaxID && f.Status.IsOpen() {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFreightRepo) ExistsOpenForLot(ctx context.Context, lotID uuid.UUID) (bool, error) {
	lines, err := r.lines.FindByLot(ctx, lotID)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range lines {
		for _, f := range r.freights {
			if f.ShipmentID == lines[i].ShipmentID && f.Status != freight.StatusCancelled {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *fakeFreightRepo) Save(ctx context.Context, f *freight.Freight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.freights[f.ID] = &cp
	return nil
}

type fakeMovementRepo struct {
	mu        sync.Mutex
	movements []stock.Movement
}

func newFakeMovementRepo() *fakeMovementRepo {
	return &fakeMovementRepo{}
}

func (r *fakeMovementRepo) FindByID(ctx context.Context, id uuid.UUID) (*stock.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.movements {
		if r.movements[i].ID == id {
			cp := r.movements[i]
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeMovementRepo) FindByInvoice(ctx context.Context, invoiceNumber string) ([]stock.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stock.Movement
	for i := range r.movements {
		if r.movements[i].InvoiceNumber == invoiceNumber {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) ExistsDeduction(ctx context.Context, productCode, invoiceNumber string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.movements {
		m := &r.movements[i]
		if m.ProductCode == productCode && m.InvoiceNumber == invoiceNumber && !m.IsReversal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMovementRepo) Create(ctx context.Context, m *stock.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, *m)
	return nil
}

type fakeTrackingRepo struct {
	mu      sync.Mutex
	records map[string]*tracking.DeliveryRecord
}

func newFakeTrackingRepo() *fakeTrackingRepo {
	return &fakeTrackingRepo{records: make(map[string]*tracking.DeliveryRecord)}
}

func (r *fakeTrackingRepo) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*tracking.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[invoiceNumber]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeTrackingRepo) FindAtDistributionCenter(ctx context.Context, filter shared.Filter) ([]tracking.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []tracking.DeliveryRecord
	for _, rec := range r.records {
		if rec.AtDistributionCenter {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeTrackingRepo) Save(ctx context.Context, rec *tracking.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.InvoiceNumber] = &cp
	return nil
}

func (r *fakeTrackingRepo) DeleteByInvoiceNumber(ctx context.Context, invoiceNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, invoiceNumber)
	return nil
}

func (r *fakeTrackingRepo) FindByID(ctx context.Context, id uuid.UUID) (*tracking.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

type fakeCatalogRepo struct {
	mu      sync.Mutex
	entries map[string]*catalog.ProductWeight
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{entries: make(map[string]*catalog.ProductWeight)}
}

func (r *fakeCatalogRepo) FindByProductCode(ctx context.Context, productCode string) (*catalog.ProductWeight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[productCode]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeCatalogRepo) FindByProductCodes(ctx context.Context, productCodes []string) (map[string]*catalog.ProductWeight, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*catalog.ProductWeight, len(productCodes))
	for _, code := range productCodes {
		if e, ok := r.entries[code]; ok {
			cp := *e
			out[code] = &cp
		}
	}
	return out, nil
}

func (r *fakeCatalogRepo) Save(ctx context.Context, entry *catalog.ProductWeight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries[entry.ProductCode] = &cp
	return nil
}

func catalogEntry(code string, unitWeight, palletFactor float64) (*catalog.ProductWeight, error) {
	return catalog.NewProductWeight(code, "", decimal.NewFromFloat(unitWeight), decimal.NewFromFloat(palletFactor))
}

// fakeRepos bundles the fakes behind TransactionalRepositories
type fakeRepos struct {
	invoices    *fakeInvoiceRepo
	allocations *fakeAllocationRepo
	shipments   *fakeShipmentRepo
	lines       *fakeLineRepo
	freights    *fakeFreightRepo
	movements   *fakeMovementRepo
	deliveries  *fakeTrackingRepo
	weights     *fakeCatalogRepo
}

func newFakeRepos() *fakeRepos {
	shipments := newFakeShipmentRepo()
	lines := newFakeLineRepo(shipments)
	return &fakeRepos{
		invoices:    newFakeInvoiceRepo(),
		allocations: newFakeAllocationRepo(),
		shipments:   shipments,
		lines:       lines,
		freights:    newFakeFreightRepo(lines),
		movements:   newFakeMovementRepo(),
		deliveries:  newFakeTrackingRepo(),
		weights:     newFakeCatalogRepo(),
	}
}

func (f *fakeRepos) Invoices() invoice.Repository           { return f.invoices }
func (f *fakeRepos) Allocations() allocation.Repository     { return f.allocations }
func (f *fakeRepos) Shipments() shipment.Repository         { return f.shipments }
func (f *fakeRepos) ShipmentLines() shipment.LineRepository { return f.lines }
func (f *fakeRepos) Freights() freight.Repository           { return f.freights }
func (f *fakeRepos) Movements() stock.Repository            { return f.movements }
func (f *fakeRepos) DeliveryRecords() tracking.Repository   { return f.deliveries }
func (f *fakeRepos) Catalog() catalog.Repository            { return f.weights }

var _ TransactionalRepositories = (*fakeRepos)(nil)

// inmemMutex is a process-local shared.Mutex for tests. Acquire fails with
// shared.ErrLockTimeout when the key is already held and the timeout passes.
type inmemMutex struct {
	mu   sync.Mutex
	held map[string]bool
}

func newInmemMutex() *inmemMutex {
	return &inmemMutex{held: make(map[string]bool)}
}

func (m *inmemMutex) Acquire(ctx context.Context, key string, timeout time.Duration) (func() error, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if !m.held[key] {
			m.held[key] = true
			m.mu.Unlock()
			return func() error {
				m.mu.Lock()
				defer m.mu.Unlock()
				delete(m.held, key)
				return nil
			}, nil
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, shared.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

var _ shared.Mutex = (*inmemMutex)(nil)

// stubRateCalculator returns a fixed quote or error and counts calls
type stubRateCalculator struct {
	mu    sync.Mutex
	quote decimal.Decimal
	err   error
	calls int
}

func (c *stubRateCalculator) Quote(ctx context.Context, req freight.QuoteRequest) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return decimal.Zero, c.err
	}
	return c.quote, nil
}

var _ freight.RateCalculator = (*stubRateCalculator)(nil)
