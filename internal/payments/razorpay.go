package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"contractor-backend/internal/models"

	razorpay "github.com/razorpay/razorpay-go"
)

const ProviderRazorpay = "razorpay"

type RazorpayOptions struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type RazorpayProvider struct {
	opts   RazorpayOptions
	client *razorpay.Client
}

func NewRazorpayProvider(opts RazorpayOptions) *RazorpayProvider {
	p := &RazorpayProvider{opts: opts}
	if opts.KeyID != "" && opts.KeySecret != "" {
		p.client = razorpay.NewClient(opts.KeyID, opts.KeySecret)
	}
	return p
}

func (p *RazorpayProvider) Name() string            { return ProviderRazorpay }
func (p *RazorpayProvider) SignatureHeader() string { return "X-Razorpay-Signature" }
func (p *RazorpayProvider) Available() bool         { return p != nil && p.client != nil }

// CreateCheckout creates an order the client SDK completes with the public key
func (p *RazorpayProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	currency := strings.ToUpper(req.Currency)
	orderData := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  req.Number,
		"notes": map[string]interface{}{
			MetadataInvoiceID: fmt.Sprintf("%d", req.InvoiceID),
			"invoice_number":  req.Number,
		},
	}

	order, err := p.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create order: %w", err)
	}
	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("razorpay: create order: missing order id in response")
	}

	return &models.CheckoutSession{
		InvoiceID: req.InvoiceID,
		Provider:  ProviderRazorpay,
		Reference: orderID,
		PublicKey: p.opts.KeyID,
		Amount:    req.Amount,
		Currency:  currency,
	}, nil
}

type razorpayWebhook struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity struct {
				ID               string                 `json:"id"`
				OrderID          string                 `json:"order_id"`
				Amount           int64                  `json:"amount"`
				Status           string                 `json:"status"`
				Notes            map[string]interface{} `json:"notes"`
				ErrorDescription string                 `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// VerifySignature checks the X-Razorpay-Signature header against the raw body
func (p *RazorpayProvider) VerifySignature(body []byte, signature string) bool {
	if p == nil || p.opts.WebhookSecret == "" || signature == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(p.opts.WebhookSecret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook verifies and maps payment.captured / payment.failed events.
// Razorpay bodies carry no event id, so the id is derived from the event
// name and payment id, which is stable across redeliveries.
func (p *RazorpayProvider) ParseWebhook(body []byte, signature string) (models.PaymentEvent, error) {
	if !p.VerifySignature(body, signature) {
		return models.PaymentEvent{}, fmt.Errorf("razorpay: %w", ErrInvalidSignature)
	}

	var hook razorpayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return models.PaymentEvent{}, malformed(ProviderRazorpay, err)
	}

	entity := hook.Payload.Payment.Entity
	out := models.PaymentEvent{
		Provider:   ProviderRazorpay,
		EventID:    hook.Event + ":" + entity.ID,
		RawType:    hook.Event,
		Type:       models.PaymentEventIgnored,
		ReceivedAt: time.Now().UTC(),
	}
	if entity.ID == "" {
		out.EventID = fmt.Sprintf("%s:%d", hook.Event, hook.CreatedAt)
		return out, nil
	}

	out.InvoiceID = invoiceIDFromMetadata(stringNotes(entity.Notes))
	out.ProviderReference = entity.OrderID
	out.Amount = fromMinorUnits(entity.Amount)

	switch hook.Event {
	case "payment.captured":
		out.Type = models.PaymentEventSucceeded
	case "payment.failed":
		out.Type = models.PaymentEventFailed
		out.FailureReason = entity.ErrorDescription
	}
	return out, nil
}

// stringNotes flattens notes values, which Razorpay echoes as strings or numbers
func stringNotes(notes map[string]interface{}) map[string]string {
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = fmt.Sprintf("%.0f", val)
		}
	}
	return out
}
