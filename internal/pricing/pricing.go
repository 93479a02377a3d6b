// Package pricing derives document totals from line items.
//
// All amounts are shopspring decimals rounded half away from zero to two
// places. Item totals are rounded individually and the subtotal is their sum,
// so the stored items always add up to the stored subtotal.
package pricing

import (
	"strings"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"

	"github.com/shopspring/decimal"
)

const op = "pricing.Compute"

var maxTaxRate = decimal.NewFromInt(100)

// taxRatePlaces matches documents.tax_rate NUMERIC(7,4); a finer rate would be
// rounded on write and no longer reproduce the stored tax amount.
const taxRatePlaces = 4

// Totals is the derived monetary state of a document
type Totals struct {
	Subtotal    decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	Items       []models.LineItem
}

// RequiresItems reports whether a document of type t must carry at least one
// line item. Estimates may be backed by an uploaded original instead.
func RequiresItems(t models.DocumentType) bool {
	return t == models.DocumentTypeInvoice || t == models.DocumentTypeChangeOrder
}

// Compute validates items for the document type and derives its totals.
func Compute(t models.DocumentType, items []models.LineItemInput, taxRatePercent decimal.Decimal) (Totals, error) {
	if len(items) == 0 && RequiresItems(t) {
		return Totals{}, apperr.Validation(op, "%s requires at least one line item", strings.ToLower(t.Label()))
	}
	return ComputeTotals(items, taxRatePercent)
}

// ComputeTotals is pure: subtotal = sum(qty*price), tax = subtotal*rate/100,
// total = subtotal + tax.
func ComputeTotals(items []models.LineItemInput, taxRatePercent decimal.Decimal) (Totals, error) {
	if taxRatePercent.IsNegative() || taxRatePercent.GreaterThan(maxTaxRate) {
		return Totals{}, apperr.Validation(op, "tax rate must be between 0 and 100")
	}
	if !taxRatePercent.Equal(taxRatePercent.Round(taxRatePlaces)) {
		return Totals{}, apperr.Validation(op, "tax rate allows at most %d decimal places", taxRatePlaces)
	}

	subtotal := decimal.Zero
	lines := make([]models.LineItem, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return Totals{}, apperr.Validation(op, "item %d: description is required", i+1)
		}
		if !item.Quantity.IsPositive() {
			return Totals{}, apperr.Validation(op, "item %d: quantity must be greater than 0", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, apperr.Validation(op, "item %d: unit price cannot be negative", i+1)
		}

		lineTotal := item.Quantity.Mul(item.UnitPrice).Round(2)
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, models.LineItem{
			Position:    i + 1,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  lineTotal,
		})
	}

	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(taxRatePercent).Shift(-2).Round(2)

	return Totals{
		Subtotal:    subtotal,
		TaxRate:     taxRatePercent,
		TaxAmount:   tax,
		TotalAmount: subtotal.Add(tax),
		Items:       lines,
	}, nil
}

// Apply copies totals and items onto doc
func (t Totals) Apply(doc *models.Document) {
	doc.Subtotal = t.Subtotal
	doc.TaxRate = t.TaxRate
	doc.TaxAmount = t.TaxAmount
	doc.TotalAmount = t.TotalAmount
	doc.Items = t.Items
}

// Inputs turns stored items back into inputs, e.g. when an update changes
// only the tax rate and the items must be re-priced.
func Inputs(items []models.LineItem) []models.LineItemInput {
	in := make([]models.LineItemInput, len(items))
	for i, item := range items {
		in[i] = models.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return in
}

// ToMinorUnits converts an amount to integer cents for payment providers
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
