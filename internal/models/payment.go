package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEventType is the provider-neutral kind of a webhook event
type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment.succeeded"
	PaymentEventFailed    PaymentEventType = "payment.failed"
	PaymentEventIgnored   PaymentEventType = "ignored"
)

// Reconciliation outcomes recorded per event
const (
	OutcomeApplied          = "applied"
	OutcomeAlreadySucceeded = "already_succeeded"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvoiceNotFound  = "invoice_not_found"
	OutcomeIgnored          = "ignored"
	// OutcomeReceived and OutcomeError mark events whose effect has not been
	// applied yet; a redelivery of either is processed again.
	OutcomeReceived         = "received"
	OutcomeError            = "error"
)

// PaymentEvent is a verified, provider-neutral webhook event
type PaymentEvent struct {
	Provider          string           `json:"provider"`
	EventID           string           `json:"event_id"`
	Type              PaymentEventType `json:"type"`
	RawType           string           `json:"raw_type"`
	InvoiceID         int64            `json:"invoice_id,omitempty"`
	ProviderReference string           `json:"provider_reference"`
	Amount            decimal.Decimal  `json:"amount"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	ReceivedAt        time.Time        `json:"received_at"`
	Outcome           string           `json:"outcome,omitempty"`
}

// CheckoutSession is returned to the client to complete an invoice payment
type CheckoutSession struct {
	InvoiceID int64  `json:"invoice_id"`
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	URL       string `json:"url,omitempty"`
	// PublicKey is set by providers whose client SDK completes the payment
	PublicKey string `json:"public_key,omitempty"`
	// Amount is in minor units of Currency
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
