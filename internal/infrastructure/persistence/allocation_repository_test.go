package persistence

import (
	"context"
	"testing"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAllocationLine(t *testing.T, lotID uuid.UUID, orderNumber, productCode string) *allocation.AllocationLine {
	t.Helper()
	line, err := allocation.NewAllocationLine(lotID, orderNumber, productCode, "12345678000190",
		decimal.NewFromInt(100), decimal.NewFromInt(5000))
	require.NoError(t, err)
	return line
}

func TestGormAllocationRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAllocationRepository(db)
	ctx := context.Background()

	t.Run("saves and reloads a line", func(t *testing.T) {
		line := buildAllocationLine(t, uuid.New(), "PED-1", "PROD-1")
		require.NoError(t, repo.Save(ctx, line))

		found, err := repo.FindByID(ctx, line.ID)
		require.NoError(t, err)
		assert.Equal(t, "PED-1", found.OrderNumber)
	})

	t.Run("rejects a second active lot for the same order and product", func(t *testing.T) {
		first := buildAllocationLine(t, uuid.New(), "PED-2", "PROD-1")
		require.NoError(t, repo.Save(ctx, first))

		second := buildAllocationLine(t, uuid.New(), "PED-2", "PROD-1")
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("allows a new lot after the previous one is cancelled", func(t *testing.T) {
		first := buildAllocationLine(t, uuid.New(), "PED-3", "PROD-1")
		require.NoError(t, repo.Save(ctx, first))
		require.NoError(t, first.Cancel())
		require.NoError(t, repo.Save(ctx, first))

		second := buildAllocationLine(t, uuid.New(), "PED-3", "PROD-1")
		assert.NoError(t, repo.Save(ctx, second))
	})

	t.Run("updating the same lot is not a conflict", func(t *testing.T) {
		line := buildAllocationLine(t, uuid.New(), "PED-4", "PROD-1")
		require.NoError(t, repo.Save(ctx, line))
		require.NoError(t, line.MarkQuoted())
		assert.NoError(t, repo.Save(ctx, line))
	})
}

func TestGormAllocationRepository_Find(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormAllocationRepository(db)
	ctx := context.Background()

	lotID := uuid.New()
	active := buildAllocationLine(t, lotID, "PED-10", "PROD-1")
	require.NoError(t, repo.Save(ctx, active))

	cancelled := buildAllocationLine(t, uuid.New(), "PED-10", "PROD-2")
	require.NoError(t, repo.Save(ctx, cancelled))
	require.NoError(t, cancelled.Cancel())
	require.NoError(t, repo.Save(ctx, cancelled))

	t.Run("FindActiveByOrderAndProduct skips cancelled lines", func(t *testing.T) {
		found, err := repo.FindActiveByOrderAndProduct(ctx, "PED-10", "PROD-1")
		require.NoError(t, err)
		assert.Equal(t, active.ID, found.ID)

		_, err = repo.FindActiveByOrderAndProduct(ctx, "PED-10", "PROD-2")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("FindActiveByOrder excludes cancelled lines", func(t *testing.T) {
		lines, err := repo.FindActiveByOrder(ctx, "PED-10")
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, active.ID, lines[0].ID)
	})

	t.Run("FindByOrder includes cancelled lines", func(t *testing.T) {
		lines, err := repo.FindByOrder(ctx, "PED-10")
		require.NoError(t, err)
		assert.Len(t, lines, 2)
	})

	t.Run("FindByLot returns the lot lines", func(t *testing.T) {
		lines, err := repo.FindByLot(ctx, lotID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, active.ID, lines[0].ID)
	})

	t.Run("FindByStatus filters by lifecycle status", func(t *testing.T) {
		lines, err := repo.FindByStatus(ctx, allocation.StatusCancelled, shared.Filter{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, cancelled.ID, lines[0].ID)
	})
}
