package reconciliation

import (
	"github.com/freightops/backend/internal/domain/shared"
)

// OrderStatus is the derived multi-state status of an order. It is a pure
// projection over allocation, shipment, invoice and delivery facts; it is
// never stored and there is no transition log.
type OrderStatus string

const (
	// StatusOpen — allocated, not yet quoted ("ABERTO")
	StatusOpen OrderStatus = "ABERTO"
	// StatusQuoted — a freight quote covers the active lot ("COTADO")
	StatusQuoted OrderStatus = "COTADO"
	// StatusShipped — the active shipment has departed ("EMBARCADO")
	StatusShipped OrderStatus = "EMBARCADO"
	// StatusInvoiced — a matched, non-cancelled invoice exists ("FATURADO")
	StatusInvoiced OrderStatus = "FATURADO"
	// StatusAtDistributionCenter — delivery monitoring flagged the invoice
	// back at the distribution center ("NF_NO_CD")
	StatusAtDistributionCenter OrderStatus = "NF_NO_CD"
	// StatusCancelled — explicit cancellation, reachable from any state
	StatusCancelled OrderStatus = "CANCELADO"
)

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// Rank places the status on the progress lattice; absent cancellation a
// derived status never regresses as downstream facts accumulate.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusQuoted:
		return 1
	case StatusShipped:
		return 2
	case StatusInvoiced:
		return 3
	case StatusAtDistributionCenter:
		return 4
	}
	return -1
}

// StatusSnapshot is a value-object capture of the four fact sources the
// derivation reads. Callers assemble it from repositories; the derivation
// itself touches no storage.
type StatusSnapshot struct {
	// HasActiveLot is false when every allocation lot of the order is cancelled
	HasActiveLot bool
	// Cancelled is an explicit order-level cancellation fact supplied by
	// the caller. Merely having every lot cancelled is not a cancellation;
	// that order is reported as unallocated.
	Cancelled bool
	// AtDistributionCenter mirrors the delivery-monitoring "returned to CD" flag
	AtDistributionCenter bool
	// InvoiceMatched is true when a matched, non-cancelled invoice number
	// exists for the active lot
	InvoiceMatched bool
	// ShipmentDeparted is true when the active shipment has a departure date
	ShipmentDeparted bool
	// QuoteExists is true when a non-cancelled freight covers the active lot
	QuoteExists bool
}

// DeriveStatus maps a snapshot to the order status. Rules are evaluated in
// precedence order; the first match wins. An order with no active lot has
// no derivable status and returns shared.ErrUnallocated, which callers
// must report as "unallocated", distinct from ABERTO.
func DeriveStatus(s StatusSnapshot) (OrderStatus, error) {
	if s.Cancelled {
		return StatusCancelled, nil
	}
	if !s.HasActiveLot {
		return "", shared.ErrUnallocated
	}
	switch {
	case s.AtDistributionCenter:
		return StatusAtDistributionCenter, nil
	case s.InvoiceMatched:
		return StatusInvoiced, nil
	case s.ShipmentDeparted:
		return StatusShipped, nil
	case s.QuoteExists:
		return StatusQuoted, nil
	}
	return StatusOpen, nil
}
