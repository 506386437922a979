package shipment

import (
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a shipment ("embarque")
type Status string

const (
	// StatusDraft is a shipment still being assembled
	StatusDraft Status = "draft"
	// StatusActive is a confirmed shipment whose lines are match candidates
	StatusActive Status = "ativo"
	// StatusCancelled is a cancelled shipment
	StatusCancelled Status = "cancelado"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusCancelled:
		return true
	}
	return false
}

// Shipment is a physical consolidated dispatch owning many shipment lines.
// Aggregate totals are derived from the active lines unless an explicit
// override is set, which then becomes the source of truth.
type Shipment struct {
	shared.BaseAggregateRoot
	ShipmentNumber string           `gorm:"type:varchar(50);not null;uniqueIndex"`
	CarrierRef     string           `gorm:"type:varchar(50);index"`
	Status         Status           `gorm:"type:varchar(20);not null;index"`
	DepartureDate  *time.Time       `gorm:"type:timestamptz"`
	TotalWeight    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	TotalValue     decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	TotalPallets   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	OverrideWeight *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Lines          []ShipmentLine   `gorm:"foreignKey:ShipmentID"`
}

// TableName returns the table name for GORM
func (Shipment) TableName() string {
	return "shipments"
}

// NewShipment creates a draft shipment
func NewShipment(shipmentNumber, carrierRef string) (*Shipment, error) {
	if strings.TrimSpace(shipmentNumber) == "" {
		return nil, shared.NewDomainError("INVALID_SHIPMENT_NUMBER", "Shipment number cannot be empty")
	}
	return &Shipment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ShipmentNumber:    strings.TrimSpace(shipmentNumber),
		CarrierRef:        carrierRef,
		Status:            StatusDraft,
		TotalWeight:       decimal.Zero,
		TotalValue:        decimal.Zero,
		TotalPallets:      decimal.Zero,
	}, nil
}

// Activate confirms the shipment, opening its lines for matching
func (s *Shipment) Activate() error {
	if s.Status != StatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Only draft shipments can be activated")
	}
	s.Status = StatusActive
	return nil
}

// Cancel cancels the shipment
func (s *Shipment) Cancel() error {
	if s.Status == StatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Shipment is already cancelled")
	}
	s.Status = StatusCancelled
	return nil
}

// RecordDeparture sets the departure date
func (s *Shipment) RecordDeparture(at time.Time) error {
	if s.Status != StatusActive {
		return shared.NewDomainError("INVALID_STATE", "Only active shipments can depart")
	}
	s.DepartureDate = &at
	return nil
}

// SetOverrideWeight pins the aggregate weight, taking precedence over the
// derived sum until cleared with ClearOverrideWeight.
func (s *Shipment) SetOverrideWeight(weight decimal.Decimal) {
	s.OverrideWeight = &weight
	s.TotalWeight = weight
}

// ClearOverrideWeight removes the explicit total, returning to derived sums
func (s *Shipment) ClearOverrideWeight() {
	s.OverrideWeight = nil
}

// RecomputeTotals derives the aggregate totals from the given lines,
// counting only active ones. An explicit weight override wins over the sum.
func (s *Shipment) RecomputeTotals(lines []ShipmentLine) {
	weight := decimal.Zero
	value := decimal.Zero
	pallets := decimal.Zero
	for i := range lines {
		if lines[i].Status != LineStatusActive {
			continue
		}
		weight = weight.Add(lines[i].Weight)
		value = value.Add(lines[i].Value)
		pallets = pallets.Add(lines[i].PalletCount)
	}
	if s.OverrideWeight != nil {
		weight = *s.OverrideWeight
	}
	s.TotalWeight = weight
	s.TotalValue = value
	s.TotalPallets = pallets
}

// CreatedWithin reports whether the shipment was created within d of now.
// The matcher awards recency points to shipments under 7 days old.
func (s *Shipment) CreatedWithin(d time.Duration, now time.Time) bool {
	return now.Sub(s.CreatedAt) <= d
}
