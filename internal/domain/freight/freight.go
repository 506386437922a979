package freight

import (
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the negotiation status of a freight record
type Status string

const (
	// StatusPending awaits a quote ("PENDENTE")
	StatusPending Status = "PENDENTE"
	// StatusNegotiating is under discussion with the carrier ("EM_TRATATIVA")
	StatusNegotiating Status = "EM_TRATATIVA"
	// StatusApproved has an accepted quote ("APROVADO")
	StatusApproved Status = "APROVADO"
	// StatusRejected has a refused quote ("REJEITADO")
	StatusRejected Status = "REJEITADO"
	// StatusPaid has been settled with the carrier ("PAGO")
	StatusPaid Status = "PAGO"
	// StatusCancelled is a cancelled freight record
	StatusCancelled Status = "CANCELADO"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusNegotiating, StatusApproved, StatusRejected, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the quoted value may still be recomputed
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusNegotiating || s == StatusApproved
}

// RateTableParams are the stored rate-table parameters handed to the
// external calculator on every re-quote. Pricing policy itself is out of
// this engine's hands.
type RateTableParams struct {
	TableCode     string          `gorm:"type:varchar(30)" json:"table_code"`
	CarrierCode   string          `gorm:"type:varchar(30)" json:"carrier_code"`
	MinimumCharge decimal.Decimal `gorm:"type:decimal(18,2)" json:"minimum_charge"`
	AdValoremPct  decimal.Decimal `gorm:"type:decimal(8,4)" json:"ad_valorem_pct"`
}

// Freight is the carrier billing record for one (shipment, client) pair.
// Its quoted value is recomputed, never hand-edited, whenever the weight
// total of its constituent shipment lines changes.
type Freight struct {
	shared.BaseAggregateRoot
	ShipmentID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_freight_shipment_client,priority:1"`
	ClientTaxID string          `gorm:"type:varchar(20);not null;index:idx_freight_shipment_client,priority:2"`
	QuotedValue decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaidValue   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	WeightTotal decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ValueTotal  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status      Status          `gorm:"type:varchar(20);not null;index"`
	RateTable   RateTableParams `gorm:"embedded;embeddedPrefix:rate_"`
}

// TableName returns the table name for GORM
func (Freight) TableName() string {
	return "freights"
}

// NewFreight creates a pending freight record for a (shipment, client) pair
func NewFreight(shipmentID uuid.UUID, clientTaxID string, rateTable RateTableParams) (*Freight, error) {
	if shipmentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SHIPMENT", "Shipment ID cannot be empty")
	}
	if clientTaxID == "" {
		return nil, shared.NewDomainError("INVALID_CLIENT_TAX_ID", "Client tax-id cannot be empty")
	}
	return &Freight{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ShipmentID:        shipmentID,
		ClientTaxID:       clientTaxID,
		QuotedValue:       decimal.Zero,
		PaidValue:         decimal.Zero,
		WeightTotal:       decimal.Zero,
		ValueTotal:        decimal.Zero,
		Status:            StatusPending,
		RateTable:         rateTable,
	}, nil
}

// Requote stores re-summed totals and a fresh quoted value. Rounding to two
// decimals happens here, at the monetary boundary, and nowhere upstream.
func (f *Freight) Requote(weightTotal, valueTotal, quotedValue decimal.Decimal) error {
	if !f.Status.IsOpen() {
		return shared.NewDomainError("INVALID_STATE", "Cannot requote freight in status "+f.Status.String())
	}
	f.WeightTotal = weightTotal
	f.ValueTotal = valueTotal
	f.QuotedValue = quotedValue.Round(2)
	return nil
}

// SetTotals updates the summed weight/value without touching the quote
// (used when the calculator is unavailable and the prior quote is retained)
func (f *Freight) SetTotals(weightTotal, valueTotal decimal.Decimal) {
	f.WeightTotal = weightTotal
	f.ValueTotal = valueTotal
}

// RecordPayment marks the freight paid
func (f *Freight) RecordPayment(paidValue decimal.Decimal) error {
	if f.Status != StatusApproved {
		return shared.NewDomainError("INVALID_STATE", "Only approved freight can be paid")
	}
	f.PaidValue = paidValue.Round(2)
	f.Status = StatusPaid
	return nil
}

// Cancel cancels the freight record
func (f *Freight) Cancel() error {
	if f.Status == StatusPaid {
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel paid freight")
	}
	if f.Status == StatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Freight is already cancelled")
	}
	f.Status = StatusCancelled
	return nil
}
