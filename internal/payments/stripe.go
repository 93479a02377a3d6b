package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"contractor-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const ProviderStripe = "stripe"

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL overrides the Stripe API base, e.g. for stripe-mock
	APIURL string
}

type StripeProvider struct {
	opts StripeOptions
	api  *client.API
}

func NewStripeProvider(opts StripeOptions) *StripeProvider {
	p := &StripeProvider{opts: opts}
	if opts.SecretKey == "" {
		return p
	}

	var backends *stripe.Backends
	if opts.APIURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL: stripe.String(opts.APIURL),
			}),
		}
	}
	p.api = &client.API{}
	p.api.Init(opts.SecretKey, backends)
	return p
}

func (p *StripeProvider) Name() string            { return ProviderStripe }
func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }
func (p *StripeProvider) Available() bool         { return p != nil && p.api != nil }

// CreateCheckout opens a hosted Checkout Session for the invoice total. The
// invoice id travels in both session and payment intent metadata so either
// event family resolves it.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	invoiceID := strconv.FormatInt(req.InvoiceID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.opts.SuccessURL),
		CancelURL:         stripe.String(p.opts.CancelURL),
		ClientReferenceID: stripe.String(invoiceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(checkoutTitle(req)),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataInvoiceID: invoiceID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetadataInvoiceID, invoiceID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &models.CheckoutSession{
		InvoiceID: req.InvoiceID,
		Provider:  ProviderStripe,
		Reference: s.ID,
		URL:       s.URL,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
	}, nil
}

func checkoutTitle(req CheckoutRequest) string {
	if req.Title != "" {
		return fmt.Sprintf("Invoice %s: %s", req.Number, req.Title)
	}
	return "Invoice " + req.Number
}

// ParseWebhook verifies the Stripe-Signature header and maps the event
func (p *StripeProvider) ParseWebhook(body []byte, signature string) (models.PaymentEvent, error) {
	if p == nil || p.opts.WebhookSecret == "" {
		return models.PaymentEvent{}, fmt.Errorf("stripe: %w: webhook secret not configured", ErrInvalidSignature)
	}

	// accounts send their own default api_version; only the signature matters here
	event, err := webhook.ConstructEventWithOptions(body, signature, p.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return models.PaymentEvent{}, fmt.Errorf("stripe: %w: %v", ErrInvalidSignature, err)
	}

	out := models.PaymentEvent{
		Provider:   ProviderStripe,
		EventID:    event.ID,
		RawType:    string(event.Type),
		Type:       models.PaymentEventIgnored,
		ReceivedAt: time.Now().UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.RawType {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return out, malformed(ProviderStripe, err)
		}
		out.InvoiceID = invoiceIDFromMetadata(pi.Metadata)
		out.ProviderReference = pi.ID
		out.Amount = fromMinorUnits(pi.Amount)
		if out.RawType == "payment_intent.succeeded" {
			out.Type = models.PaymentEventSucceeded
		} else {
			out.Type = models.PaymentEventFailed
			out.FailureReason = lastPaymentError(event.Data.Raw)
		}

	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return out, malformed(ProviderStripe, err)
		}
		out.InvoiceID = invoiceIDFromMetadata(s.Metadata)
		if out.InvoiceID == 0 {
			out.InvoiceID = invoiceIDFromMetadata(map[string]string{MetadataInvoiceID: s.ClientReferenceID})
		}
		out.ProviderReference = s.ID
		out.Amount = fromMinorUnits(s.AmountTotal)
		switch {
		case out.RawType == "checkout.session.async_payment_failed":
			out.Type = models.PaymentEventFailed
		case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
			out.Type = models.PaymentEventSucceeded
		}
	}
	return out, nil
}

func lastPaymentError(raw []byte) string {
	var v struct {
		LastPaymentError *struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if json.Unmarshal(raw, &v) != nil || v.LastPaymentError == nil {
		return ""
	}
	return v.LastPaymentError.Message
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
