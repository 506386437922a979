package shipment

import (
	"testing"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeShipment(t *testing.T) *Shipment {
	t.Helper()
	s, err := NewShipment("EMB-2026-001", "TRANSP-01")
	require.NoError(t, err)
	require.NoError(t, s.Activate())
	return s
}

func lineWith(t *testing.T, s *Shipment, weight, value, pallets int64) ShipmentLine {
	t.Helper()
	line, err := NewShipmentLine(s.ID, uuid.New(), "PED-100", "12345678000195", "12345678", "P1", decimal.NewFromInt(10), decimal.NewFromInt(value))
	require.NoError(t, err)
	line.SetDerived(decimal.NewFromInt(weight), decimal.NewFromInt(pallets))
	return *line
}

func TestNewShipment_StartsDraft(t *testing.T) {
	s, err := NewShipment("  EMB-2026-001  ", "TRANSP-01")

	require.NoError(t, err)
	assert.Equal(t, StatusDraft, s.Status)
	assert.Equal(t, "EMB-2026-001", s.ShipmentNumber)
	assert.Nil(t, s.DepartureDate)
}

func TestNewShipment_BlankNumberRejected(t *testing.T) {
	_, err := NewShipment("   ", "TRANSP-01")

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_SHIPMENT_NUMBER", domainErr.Code)
}

func TestShipment_ActivateOnlyFromDraft(t *testing.T) {
	s := activeShipment(t)

	err := s.Activate()

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestShipment_RecordDepartureRequiresActive(t *testing.T) {
	s, err := NewShipment("EMB-2026-001", "")
	require.NoError(t, err)

	assert.Error(t, s.RecordDeparture(time.Now()))

	require.NoError(t, s.Activate())
	departed := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordDeparture(departed))
	require.NotNil(t, s.DepartureDate)
	assert.True(t, s.DepartureDate.Equal(departed))
}

func TestShipment_CancelTwiceRejected(t *testing.T) {
	s := activeShipment(t)

	require.NoError(t, s.Cancel())
	err := s.Cancel()

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestShipment_RecomputeTotalsSkipsCancelledLines(t *testing.T) {
	s := activeShipment(t)
	live := lineWith(t, s, 500, 1000, 2)
	dead := lineWith(t, s, 300, 700, 1)
	require.NoError(t, (&dead).Cancel())

	s.RecomputeTotals([]ShipmentLine{live, dead})

	assert.True(t, s.TotalWeight.Equal(decimal.NewFromInt(500)))
	assert.True(t, s.TotalValue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, s.TotalPallets.Equal(decimal.NewFromInt(2)))
}

func TestShipment_OverrideWeightWinsOverSum(t *testing.T) {
	s := activeShipment(t)
	line := lineWith(t, s, 500, 1000, 2)

	s.SetOverrideWeight(decimal.NewFromInt(620))
	s.RecomputeTotals([]ShipmentLine{line})

	assert.True(t, s.TotalWeight.Equal(decimal.NewFromInt(620)))
	assert.True(t, s.TotalValue.Equal(decimal.NewFromInt(1000)))

	s.ClearOverrideWeight()
	s.RecomputeTotals([]ShipmentLine{line})
	assert.True(t, s.TotalWeight.Equal(decimal.NewFromInt(500)))
}

func TestShipment_CreatedWithin(t *testing.T) {
	s := activeShipment(t)
	now := s.CreatedAt.Add(3 * 24 * time.Hour)

	assert.True(t, s.CreatedWithin(7*24*time.Hour, now))
	assert.False(t, s.CreatedWithin(2*24*time.Hour, now))
}
