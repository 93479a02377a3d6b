package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateDocumentRequest is shared by all document types; the type comes from the route
type CreateDocumentRequest struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Customer        CustomerSnapshot `json:"customer"`
	CustomerID      *int64           `json:"customer_id,omitempty"`
	ProjectID       *int64           `json:"project_id,omitempty"`
	TaxRate         decimal.Decimal  `json:"tax_rate"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	Notes           string           `json:"notes"`
	OriginalFileKey string           `json:"original_file_key,omitempty"`
	Items           []LineItemInput  `json:"items"`
}

// UpdateFields are editable on every document type. Nil means unchanged.
// Items replace the whole item list and force recomputation of totals.
type UpdateFields struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	Customer    *CustomerSnapshot `json:"customer,omitempty"`
	Status      *Status           `json:"status,omitempty"`
	TaxRate     *decimal.Decimal  `json:"tax_rate,omitempty"`
	Items       *[]LineItemInput  `json:"items,omitempty"`
}

func (u UpdateFields) applyText(doc *Document) {
	if u.Title != nil {
		doc.Title = *u.Title
	}
	if u.Description != nil {
		doc.Description = *u.Description
	}
	if u.Notes != nil {
		doc.Notes = *u.Notes
	}
	if u.Customer != nil {
		doc.Customer = *u.Customer
	}
}

// RepricesDocument reports whether the update touches anything totals derive from
func (u UpdateFields) RepricesDocument() bool {
	return u.Items != nil || u.TaxRate != nil
}

// DocumentUpdate is the per-type update request. Fields a type does not
// declare are dropped by JSON decoding, so they can never be written.
type DocumentUpdate interface {
	DocumentType() DocumentType
	Base() UpdateFields
	// ApplyTo copies the plain fields onto doc. Status, items and tax rate are
	// applied by the caller through the status machine and pricing.
	ApplyTo(doc *Document)
}

type EstimateUpdate struct {
	UpdateFields
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	OriginalFileKey *string    `json:"original_file_key,omitempty"`
}

func (u *EstimateUpdate) DocumentType() DocumentType { return DocumentTypeEstimate }
func (u *EstimateUpdate) Base() UpdateFields         { return u.UpdateFields }

func (u *EstimateUpdate) ApplyTo(doc *Document) {
	u.applyText(doc)
	if u.ValidUntil != nil {
		doc.DueDate = u.ValidUntil
	}
	if u.OriginalFileKey != nil {
		doc.OriginalFileKey = *u.OriginalFileKey
	}
}

type InvoiceUpdate struct {
	UpdateFields
	DueDate *time.Time `json:"due_date,omitempty"`
}

func (u *InvoiceUpdate) DocumentType() DocumentType { return DocumentTypeInvoice }
func (u *InvoiceUpdate) Base() UpdateFields         { return u.UpdateFields }

func (u *InvoiceUpdate) ApplyTo(doc *Document) {
	u.applyText(doc)
	if u.DueDate != nil {
		doc.DueDate = u.DueDate
	}
}

type ChangeOrderUpdate struct {
	UpdateFields
	ProjectID *int64 `json:"project_id,omitempty"`
}

func (u *ChangeOrderUpdate) DocumentType() DocumentType { return DocumentTypeChangeOrder }
func (u *ChangeOrderUpdate) Base() UpdateFields         { return u.UpdateFields }

func (u *ChangeOrderUpdate) ApplyTo(doc *Document) {
	u.applyText(doc)
	if u.ProjectID != nil {
		doc.ProjectID = u.ProjectID
	}
}

// NewUpdate returns an empty update request of the right variant for t
func NewUpdate(t DocumentType) DocumentUpdate {
	switch t {
	case DocumentTypeEstimate:
		return &EstimateUpdate{}
	case DocumentTypeInvoice:
		return &InvoiceUpdate{}
	case DocumentTypeChangeOrder:
		return &ChangeOrderUpdate{}
	}
	return nil
}

// SendDocumentRequest drives the "send via email" action
type SendDocumentRequest struct {
	RecipientEmail string `json:"recipient_email"`
	SenderName     string `json:"sender_name"`
	Message        string `json:"message"`
}

// SendDocumentResult reports the notification outcome. Unavailable is a
// first-class outcome, not an error.
type SendDocumentResult struct {
	Success     bool      `json:"success"`
	Unavailable bool      `json:"unavailable,omitempty"`
	Error       string    `json:"error,omitempty"`
	Document    *Document `json:"document,omitempty"`
}
