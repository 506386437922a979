package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/shared"
)

// fakeDedupeStore is an in-test IdempotencyStore with an injectable failure.
type fakeDedupeStore struct {
	seen    map[string]bool
	markErr error
}

func newFakeDedupeStore() *fakeDedupeStore {
	return &fakeDedupeStore{seen: make(map[string]bool)}
}

func (s *fakeDedupeStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *fakeDedupeStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	return s.seen[key], nil
}

func (s *fakeDedupeStore) Close() error { return nil }

func importRequest(invoiceNumber string) ImportInvoiceRequest {
	return ImportInvoiceRequest{
		InvoiceNumber:  invoiceNumber,
		IssueDate:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ClientTaxID:    "12.345.678/0001-95",
		ClientName:     "Cliente Exemplo Ltda",
		TotalValue:     decimal.NewFromInt(1500),
		Incoterm:       "CIF",
		SourceOrderRef: "PED-100",
		Lines: []ImportInvoiceLineRequest{
			{
				ProductCode: "P1",
				Quantity:    decimal.NewFromInt(40),
				UnitPrice:   decimal.NewFromFloat(37.5),
			},
		},
	}
}

func TestImportInvoice_CreatesPendingInvoice(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())

	resp, err := svc.ImportInvoice(context.Background(), importRequest("NF-1"))
	require.NoError(t, err)

	assert.Equal(t, "NF-1", resp.InvoiceNumber)
	assert.Equal(t, "PROVISORIO", resp.PostingStatus)
	assert.True(t, resp.Active)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "P1", resp.Lines[0].ProductCode)

	saved, err := repo.FindByInvoiceNumber(context.Background(), "NF-1")
	require.NoError(t, err)
	assert.Equal(t, "PED-100", saved.SourceOrderRef)
}

func TestImportInvoice_PostFlagPostsInvoice(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())

	req := importRequest("NF-2")
	req.Post = true

	resp, err := svc.ImportInvoice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "LANCADO", resp.PostingStatus)
}

func TestImportInvoice_DuplicateNumberRejected(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ImportInvoice(ctx, importRequest("NF-3"))
	require.NoError(t, err)

	_, err = svc.ImportInvoice(ctx, importRequest("NF-3"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestImportInvoice_DedupeShortCircuitsRedelivery(t *testing.T) {
	repo := newFakeInvoiceRepo()
	store := newFakeDedupeStore()
	store.seen["import:NF-4"] = true
	svc := NewInvoiceIngestService(repo, zap.NewNop(), WithImportDedupe(store, time.Hour))

	_, err := svc.ImportInvoice(context.Background(), importRequest("NF-4"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	// Nothing reached the repository
	exists, err := repo.ExistsByInvoiceNumber(context.Background(), "NF-4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportInvoice_DedupeOutageFallsThroughToRepo(t *testing.T) {
	repo := newFakeInvoiceRepo()
	store := newFakeDedupeStore()
	store.markErr = errors.New("connection refused")
	svc := NewInvoiceIngestService(repo, zap.NewNop(), WithImportDedupe(store, time.Hour))

	resp, err := svc.ImportInvoice(context.Background(), importRequest("NF-5"))
	require.NoError(t, err)
	assert.Equal(t, "NF-5", resp.InvoiceNumber)
}

func TestImportInvoice_InvalidLineRejected(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())

	req := importRequest("NF-6")
	req.Lines[0].Quantity = decimal.Zero

	_, err := svc.ImportInvoice(context.Background(), req)
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_QUANTITY", domainErr.Code)
}

func TestDeactivateInvoice_FlipsFlagOnly(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())
	ctx := context.Background()

	_, err := svc.ImportInvoice(ctx, importRequest("NF-7"))
	require.NoError(t, err)

	resp, err := svc.DeactivateInvoice(ctx, "NF-7")
	require.NoError(t, err)
	assert.False(t, resp.Active)
}

func TestDeactivateInvoice_UnknownNumber(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())

	_, err := svc.DeactivateInvoice(context.Background(), "NF-NOPE")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListPending_ReturnsOnlyUnreconciled(t *testing.T) {
	repo := newFakeInvoiceRepo()
	svc := NewInvoiceIngestService(repo, zap.NewNop())
	ctx := context.Background()

	// Pending means no source-order reference assigned yet
	for _, number := range []string{"NF-8", "NF-9"} {
		req := importRequest(number)
		req.SourceOrderRef = ""
		_, err := svc.ImportInvoice(ctx, req)
		require.NoError(t, err)
	}

	pending, err := svc.ListPending(ctx, shared.Filter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
