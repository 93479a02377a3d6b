package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType identifies which commercial document a row holds
type DocumentType string

const (
	DocumentTypeEstimate    DocumentType = "estimate"
	DocumentTypeInvoice     DocumentType = "invoice"
	DocumentTypeChangeOrder DocumentType = "change_order"
)

// Prefix is the number prefix used for the type (EST, INV, CO)
func (t DocumentType) Prefix() string {
	switch t {
	case DocumentTypeEstimate:
		return "EST"
	case DocumentTypeInvoice:
		return "INV"
	case DocumentTypeChangeOrder:
		return "CO"
	}
	return ""
}

// Label is the human-readable name printed on artifacts and emails
func (t DocumentType) Label() string {
	switch t {
	case DocumentTypeEstimate:
		return "Estimate"
	case DocumentTypeInvoice:
		return "Invoice"
	case DocumentTypeChangeOrder:
		return "Change Order"
	}
	return string(t)
}

func (t DocumentType) Valid() bool {
	return t.Prefix() != ""
}

// Status is the lifecycle state of a document; the legal set depends on the type
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks the provider-side state of an invoice payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

const PaymentMethodCard = "card"

// CustomerSnapshot is copied onto the document at creation time
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// PaymentRecord is embedded in invoices
type PaymentRecord struct {
	Provider          string        `json:"provider,omitempty"`
	ProviderReference string        `json:"provider_reference,omitempty"`
	Status            PaymentStatus `json:"payment_status,omitempty"`
	Method            string        `json:"payment_method,omitempty"`
	LastEventID       string        `json:"-"`
}

// Document is an estimate, invoice or change order
type Document struct {
	ID               int64            `json:"id"`
	Type             DocumentType     `json:"type"`
	Number           string           `json:"number"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Customer         CustomerSnapshot `json:"customer"`
	CustomerID       *int64           `json:"customer_id,omitempty"`
	ProjectID        *int64           `json:"project_id,omitempty"`
	SourceDocumentID *int64           `json:"source_document_id,omitempty"`
	Status           Status           `json:"status"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	DueDate         *time.Time `json:"due_date,omitempty"` // valid-until for estimates
	SentDate        *time.Time `json:"sent_date,omitempty"`
	ApprovedDate    *time.Time `json:"approved_date,omitempty"`
	PaidDate        *time.Time `json:"paid_date,omitempty"`
	StatusChangedAt time.Time  `json:"status_changed_at"`

	Notes  string `json:"notes"`
	UserID int64  `json:"user_id"`

	// Revision increases on every mutation; an artifact is valid only for the
	// revision it was rendered from.
	Revision         int    `json:"revision"`
	ArtifactKey      string `json:"-"`
	ArtifactRevision int    `json:"-"`
	OriginalFileKey  string `json:"original_file_key,omitempty"`

	Payment *PaymentRecord `json:"payment,omitempty"`

	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasFreshArtifact reports whether the cached handle was rendered from the current revision
func (d *Document) HasFreshArtifact() bool {
	return d.ArtifactKey != "" && d.ArtifactRevision == d.Revision
}

// LineItem belongs to exactly one document
type LineItem struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// LineItemInput is an item as submitted by a client, before totals are derived
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// DocumentFilter narrows list queries
type DocumentFilter struct {
	Type      DocumentType
	Status    Status
	UserID    int64
	ProjectID *int64
	// Today, when set, makes the status filter match the status readers see:
	// unpaid invoices past due count as overdue rather than draft or sent.
	Today  *time.Time
	Limit  int
	Offset int
}

// StatusCount aggregates stored documents for one type and status
type StatusCount struct {
	Type   DocumentType    `json:"type"`
	Status Status          `json:"status"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}
