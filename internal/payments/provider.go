package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"contractor-backend/internal/models"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	ErrMalformedEvent   = errors.New("payments: malformed webhook payload")
	ErrNotConfigured    = errors.New("payments: provider not configured")
)

// CheckoutRequest describes the invoice to collect
type CheckoutRequest struct {
	InvoiceID     int64
	Number        string
	Title         string
	CustomerEmail string
	Amount        int64
	Currency      string
}

// Provider is a payment processor: outbound checkout creation and inbound
// signed webhooks translated into provider-neutral events.
type Provider interface {
	Name() string
	SignatureHeader() string
	Available() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error)
	// ParseWebhook verifies the signature before decoding anything. Errors
	// wrapping ErrInvalidSignature must be rejected.
	ParseWebhook(body []byte, signature string) (models.PaymentEvent, error)
}

// Registry looks providers up by name for webhook routing
type Registry struct {
	providers map[string]Provider
	primary   string
}

// NewRegistry registers providers; primary names the one used for checkout
func NewRegistry(primary string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider), primary: primary}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Checkout returns the provider used for new checkouts, if configured
func (r *Registry) Checkout() (Provider, bool) {
	p, ok := r.Get(r.primaryName())
	if !ok || !p.Available() {
		return nil, false
	}
	return p, true
}

// Available reports whether checkout can be offered
func (r *Registry) Available() bool {
	_, ok := r.Checkout()
	return ok
}

func (r *Registry) primaryName() string {
	if r == nil {
		return ""
	}
	return r.primary
}

// invoiceIDFromMetadata reads the invoice id we attach to every checkout
func invoiceIDFromMetadata(md map[string]string) int64 {
	raw := strings.TrimSpace(md[MetadataInvoiceID])
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// MetadataInvoiceID is the metadata/notes key carrying our invoice id
const MetadataInvoiceID = "invoice_id"

func malformed(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrMalformedEvent, err)
}
