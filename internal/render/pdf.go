// Package render lays out documents as PDF with gofpdf.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"contractor-backend/internal/models"
	"contractor-backend/internal/timeutil"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"
)

// ErrDisabled is returned by Render when rendering is switched off in config
var ErrDisabled = errors.New("render: renderer disabled")

// Input is everything a rendered document depends on
type Input struct {
	Document *models.Document
	Profile  models.BusinessProfile
	Logo     []byte
}

// PDFRenderer renders A4 documents. Output depends only on Input, so rendering
// the same state twice yields identical bytes.
type PDFRenderer struct {
	enabled      bool
	currencySign string
}

func NewPDFRenderer(enabled bool, currencySign string) *PDFRenderer {
	if currencySign == "" {
		currencySign = "$"
	}
	return &PDFRenderer{enabled: enabled, currencySign: currencySign}
}

func (r *PDFRenderer) Available() bool {
	return r != nil && r.enabled
}

// Render builds the PDF in a separate goroutine so ctx's deadline bounds it
func (r *PDFRenderer) Render(ctx context.Context, in Input) ([]byte, error) {
	if !r.Available() {
		return nil, ErrDisabled
	}
	if in.Document == nil {
		return nil, errors.New("render: nil document")
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := r.build(in)
		done <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("render: %w", ctx.Err())
	case res := <-done:
		return res.data, res.err
	}
}

func (r *PDFRenderer) money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var grouped []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, intPart[i])
	}
	out := r.currencySign + string(grouped) + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func imageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "PNG"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return "JPG"
	}
	return ""
}

func (r *PDFRenderer) build(in Input) ([]byte, error) {
	doc := in.Document
	status := doc.Status

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(doc.UpdatedAt)
	pdf.SetModificationDate(doc.UpdatedAt)
	pdf.SetTitle(fmt.Sprintf("%s %s", doc.Type.Label(), doc.Number), true)
	pdf.SetAuthor(in.Profile.Name, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Header: logo + business block on the left, document block on the right
	top := pdf.GetY()
	textX := 15.0
	if kind := imageType(in.Logo); kind != "" {
		opts := gofpdf.ImageOptions{ImageType: kind, ReadDpi: true}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(in.Logo))
		if pdf.Ok() {
			pdf.ImageOptions("logo", 15, top, 0, 20, false, opts, 0, "")
			textX = 45
		} else {
			// a broken logo must not fail the document
			pdf.ClearError()
		}
	}

	pdf.SetXY(textX, top)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(90, 7, tr(in.Profile.Name), "", 2, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, line := range []string{in.Profile.Address, in.Profile.Phone, in.Profile.Email} {
		if line != "" {
			pdf.CellFormat(90, 4.5, tr(line), "", 2, "L", false, 0, "")
		}
	}
	if in.Profile.LicenseNumber != "" {
		pdf.CellFormat(90, 4.5, tr("License #"+in.Profile.LicenseNumber), "", 2, "L", false, 0, "")
	}
	leftBottom := pdf.GetY()

	pdf.SetXY(120, top)
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(75, 9, strings.ToUpper(doc.Type.Label()), "", 2, "R", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(75, 5, doc.Number, "", 2, "R", false, 0, "")
	pdf.CellFormat(75, 5, "Date: "+timeutil.Format(doc.CreatedAt, timeutil.DisplayLayout), "", 2, "R", false, 0, "")
	if doc.DueDate != nil {
		label := "Due: "
		if doc.Type == models.DocumentTypeEstimate {
			label = "Valid until: "
		}
		pdf.CellFormat(75, 5, label+timeutil.Format(*doc.DueDate, timeutil.DisplayLayout), "", 2, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(75, 5, "Status: "+strings.ToUpper(string(status)), "", 2, "R", false, 0, "")

	if y := pdf.GetY(); y > leftBottom {
		leftBottom = y
	}
	pdf.SetXY(15, leftBottom+6)

	// Bill to
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(180, 7, "Bill To", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{doc.Customer.Name, doc.Customer.Address, doc.Customer.Email, doc.Customer.Phone} {
		if line != "" {
			pdf.CellFormat(180, 5, tr(line), "LR", 1, "L", false, 0, "")
		}
	}
	pdf.CellFormat(180, 1, "", "LRB", 1, "L", false, 0, "")
	pdf.Ln(4)

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.MultiCell(180, 6, tr(doc.Title), "", "L", false)
	}
	if doc.Description != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(180, 5, tr(doc.Description), "", "L", false)
	}
	pdf.Ln(3)

	// Items
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(95, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Unit Price", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, item := range doc.Items {
		pdf.CellFormat(95, 6, tr(truncate(item.Description, 60)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, item.Quantity.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, r.money(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, r.money(item.TotalPrice), "1", 1, "R", false, 0, "")
	}
	if len(doc.Items) == 0 {
		pdf.CellFormat(180, 6, "No line items", "1", 1, "C", false, 0, "")
	}
	pdf.Ln(2)

	// Totals
	totalsRow := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(145, 6, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, value, "1", 1, "R", false, 0, "")
	}
	totalsRow("Subtotal", r.money(doc.Subtotal), false)
	totalsRow(fmt.Sprintf("Tax (%s%%)", doc.TaxRate.String()), r.money(doc.TaxAmount), false)
	totalsRow("Total", r.money(doc.TotalAmount), true)

	if doc.Type == models.DocumentTypeInvoice && doc.PaidDate != nil && status == models.StatusPaid {
		pdf.Ln(4)
		pdf.SetFillColor(200, 255, 200)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(180, 9, "PAID "+timeutil.Format(*doc.PaidDate, timeutil.DisplayLayout), "1", 1, "C", true, 0, "")
	}

	if doc.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(180, 6, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(180, 5, tr(doc.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
