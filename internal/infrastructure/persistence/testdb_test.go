package persistence

import (
	"testing"

	"github.com/freightops/backend/internal/domain/allocation"
	"github.com/freightops/backend/internal/domain/catalog"
	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shipment"
	"github.com/freightops/backend/internal/domain/stock"
	"github.com/freightops/backend/internal/domain/tracking"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory SQLite database with all reconciliation
// tables migrated. Each call gets its own isolated database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&catalog.ProductWeight{},
		&invoice.Invoice{},
		&invoice.InvoiceLine{},
		&allocation.AllocationLine{},
		&shipment.Shipment{},
		&shipment.ShipmentLine{},
		&freight.Freight{},
		&stock.Movement{},
		&tracking.DeliveryRecord{},
	)
	require.NoError(t, err)

	return db
}
