package reconciliation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/invoice"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/freightops/backend/internal/domain/shipment"
)

// CascadeResult reports the non-fatal findings of one cascade run
type CascadeResult struct {
	// UnresolvedProducts lists invoice-line products with no usable catalog entry
	UnresolvedProducts []string
	// UnresolvedPallets lists products whose catalog entry has no usable
	// pallet factor; they contribute zero pallets
	UnresolvedPallets []string
	// QuoteRefreshed is true when the freight quote was recomputed
	QuoteRefreshed bool
	// QuoteError holds the calculator failure when the prior quote was retained
	QuoteError error
}

// CascadeRecalculator propagates derived quantities downstream after a
// match: catalog weights onto invoice lines, line sums onto the matched
// shipment line, line totals onto the shipment header, and finally a fresh
// freight quote. Each step reads only what the previous step wrote, so the
// whole chain is deterministic for a given catalog state.
//
// All decimal arithmetic stays unrounded; rounding happens once, inside
// Freight.Requote, at the monetary boundary.
type CascadeRecalculator struct {
	rateCalc freight.RateCalculator
	logger   *zap.Logger
}

// NewCascadeRecalculator creates a CascadeRecalculator
func NewCascadeRecalculator(rateCalc freight.RateCalculator, logger *zap.Logger) *CascadeRecalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeRecalculator{rateCalc: rateCalc, logger: logger}
}

// Recalculate runs the full cascade for one matched invoice/shipment-line
// pair inside the caller's transaction. Catalog gaps and calculator outages
// are reported in the result, not returned as errors; only write failures
// abort the cascade.
func (c *CascadeRecalculator) Recalculate(ctx context.Context, repos TransactionalRepositories, inv *invoice.Invoice, line *shipment.ShipmentLine) (*CascadeResult, error) {
	result := &CascadeResult{}

	if err := c.resolveInvoiceWeights(ctx, repos, inv, result); err != nil {
		return result, err
	}
	if err := c.updateShipmentLine(ctx, repos, inv, line, result); err != nil {
		return result, err
	}
	sh, err := c.recomputeShipment(ctx, repos, line.ShipmentID)
	if err != nil {
		return result, err
	}
	if err := c.requoteFreight(ctx, repos, sh, line.ClientTaxID, result); err != nil {
		return result, err
	}
	return result, nil
}

// RecalculateAfterUnlink re-derives shipment and freight totals after a
// line lost its invoice (invoice deactivation path).
func (c *CascadeRecalculator) RecalculateAfterUnlink(ctx context.Context, repos TransactionalRepositories, line *shipment.ShipmentLine) (*CascadeResult, error) {
	result := &CascadeResult{}
	sh, err := c.recomputeShipment(ctx, repos, line.ShipmentID)
	if err != nil {
		return result, err
	}
	if err := c.requoteFreight(ctx, repos, sh, line.ClientTaxID, result); err != nil {
		return result, err
	}
	return result, nil
}

// resolveInvoiceWeights looks up every line's product in the weight catalog
// and stores the computed weights. Lines without a catalog entry are marked
// unresolved and excluded from all sums.
func (c *CascadeRecalculator) resolveInvoiceWeights(ctx context.Context, repos TransactionalRepositories, inv *invoice.Invoice, result *CascadeResult) error {
	entries, err := repos.Catalog().FindByProductCodes(ctx, productCodes(inv))
	if err != nil {
		return err
	}

	total := decimal.Zero
	for i := range inv.Lines {
		l := &inv.Lines[i]
		entry, ok := entries[l.ProductCode]
		if !ok {
			l.MarkUnresolved()
			result.UnresolvedProducts = append(result.UnresolvedProducts, l.ProductCode)
			continue
		}
		l.SetComputedWeight(entry.UnitWeight)
		total = total.Add(l.ComputedWeight)
	}
	inv.SetTotalWeight(total)

	if err := repos.Invoices().SaveLines(ctx, inv.Lines); err != nil {
		return shared.ErrCascadeWriteFailure.WithDetails(err.Error())
	}
	if err := repos.Invoices().Save(ctx, inv); err != nil {
		return shared.ErrCascadeWriteFailure.WithDetails(err.Error())
	}
	return nil
}

// updateShipmentLine derives the matched line's weight and pallet count
// from the invoice's resolved lines.
func (c *CascadeRecalculator) updateShipmentLine(ctx context.Context, repos TransactionalRepositories, inv *invoice.Invoice, line *shipment.ShipmentLine, result *CascadeResult) error {
	entries, err := repos.Catalog().FindByProductCodes(ctx, productCodes(inv))
	if err != nil {
		return err
	}

	pallets := decimal.Zero
	for i := range inv.Lines {
		l := &inv.Lines[i]
		if l.Unresolved {
			continue
		}
		entry, ok := entries[l.ProductCode]
		if !ok {
			continue
		}
		if !entry.HasPalletFactor() {
			result.UnresolvedPallets = append(result.UnresolvedPallets, l.ProductCode)
			c.logger.Warn("pallet factor unresolved, product contributes zero pallets",
				zap.String("product_code", l.ProductCode),
				zap.String("invoice_number", inv.InvoiceNumber))
			continue
		}
		pallets = pallets.Add(entry.PalletsFor(l.Quantity))
	}

	line.SetDerived(inv.TotalWeight, pallets)
	if len(result.UnresolvedProducts) > 0 {
		line.FlagValidationError(shipment.ValidationErrorWeightMissing)
	}
	if err := repos.ShipmentLines().Save(ctx, line); err != nil {
		return shared.ErrCascadeWriteFailure.WithDetails(err.Error())
	}
	return nil
}

// recomputeShipment re-sums the shipment header from all of its lines
func (c *CascadeRecalculator) recomputeShipment(ctx context.Context, repos TransactionalRepositories, shipmentID uuid.UUID) (*shipment.Shipment, error) {
	sh, err := repos.Shipments().FindByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	lines, err := repos.ShipmentLines().FindByShipment(ctx, sh.ID)
	if err != nil {
		return nil, err
	}
	sh.RecomputeTotals(lines)
	if err := repos.Shipments().Save(ctx, sh); err != nil {
		return nil, shared.ErrCascadeWriteFailure.WithDetails(err.Error())
	}
	return sh, nil
}

// requoteFreight refreshes the quote of the (shipment, client) freight.
// A calculator outage retains the prior quoted value and is surfaced in
// the result instead of failing the cascade.
func (c *CascadeRecalculator) requoteFreight(ctx context.Context,
	repos TransactionalRepositories, sh *shipment.Shipment, clientTaxID string, result *CascadeResult) error {

	fr, err := repos.Freights().FindByShipmentAndClient(ctx, sh.ID, clientTaxID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !fr.Status.IsOpen() {
		return nil
	}

	lines, err := repos.ShipmentLines().FindByShipment(ctx, sh.ID)
	if err != nil {
		return err
	}
	weight, value := clientTotals(lines, clientTaxID)
	if sh.OverrideWeight != nil {
		weight = *sh.OverrideWeight
	}

	quoted, err := c.rateCalc.Quote(ctx, freight.QuoteRequest{
		Weight:    weight,
		Value:     value,
		RateTable: fr.RateTable,
	})
	if err != nil {
		c.logger.Warn("rate calculator unavailable, retaining prior quote",
			zap.String("shipment_id", sh.ID.String()),
			zap.String("client_tax_id", clientTaxID),
			zap.Error(err))
		fr.SetTotals(weight, value)
		result.QuoteError = shared.ErrRateCalculatorUnavailable.WithDetails(err.Error())
	} else {
		if err := fr.Requote(weight, value, quoted); err != nil {
			return err
		}
		result.QuoteRefreshed = true
	}

	if err := repos.Freights().Save(ctx, fr); err != nil {
		return shared.ErrCascadeWriteFailure.WithDetails(err.Error())
	}
	return nil
}

// clientTotals sums weight and value over the active lines of one client
func clientTotals(lines []shipment.ShipmentLine, clientTaxID string) (decimal.Decimal, decimal.Decimal) {
	weight, value := decimal.Zero, decimal.Zero
	for i := range lines {
		l := &lines[i]
		if l.Status != shipment.LineStatusActive || l.ClientTaxID != clientTaxID {
			continue
		}
		weight = weight.Add(l.Weight)
		value = value.Add(l.Value)
	}
	return weight, value
}

func productCodes(inv *invoice.Invoice) []string {
	codes := make([]string, 0, len(inv.Lines))
	for i := range inv.Lines {
		codes = append(codes, inv.Lines[i].ProductCode)
	}
	return codes
}
