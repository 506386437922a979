package persistence

import (
	"context"
	"testing"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormDeliveryRecordRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDeliveryRecordRepository(db)
	ctx := context.Background()

	t.Run("saves and finds by invoice number", func(t *testing.T) {
		rec, err := tracking.NewDeliveryRecord("NF-1", "12345678000190")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, rec))

		found, err := repo.FindByInvoiceNumber(ctx, "NF-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, found.ID)
		assert.False(t, found.AtDistributionCenter)
	})

	t.Run("FindAtDistributionCenter returns only flagged records", func(t *testing.T) {
		rec, err := tracking.NewDeliveryRecord("NF-2", "12345678000190")
		require.NoError(t, err)
		rec.FlagAtDistributionCenter()
		require.NoError(t, repo.Save(ctx, rec))

		records, err := repo.FindAtDistributionCenter(ctx, shared.Filter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "NF-2", records[0].InvoiceNumber)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		require.NoError(t, repo.DeleteByInvoiceNumber(ctx, "NF-1"))

		_, err := repo.FindByInvoiceNumber(ctx, "NF-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("deleting an absent record is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.DeleteByInvoiceNumber(ctx, "NF-NOPE"))
	})
}
