package services

import (
	"context"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/models"
	"contractor-backend/internal/payments"
	"contractor-backend/internal/pricing"

	"github.com/rs/zerolog"
)

type CheckoutDocumentRepository interface {
	Get(ctx context.Context, id int64) (*models.Document, error)
	SetPaymentReference(ctx context.Context, id int64, provider, reference string) error
}

// PaymentService opens provider checkouts for invoices
type PaymentService struct {
	docs      CheckoutDocumentRepository
	providers *payments.Registry
	currency  string
	log       zerolog.Logger
}

func NewPaymentService(docs CheckoutDocumentRepository, providers *payments.Registry, currency string) *PaymentService {
	return &PaymentService{
		docs:      docs,
		providers: providers,
		currency:  currency,
		log:       logger.WithComponent("payments"),
	}
}

// CreateCheckout starts a payment for the full invoice total and stores the
// provider reference on the invoice for later reconciliation.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID, invoiceID int64) (*models.CheckoutSession, error) {
	const op = "payments.CreateCheckout"

	provider, ok := s.providers.Checkout()
	if !ok {
		return nil, apperr.Unavailable(op, "payments", payments.ErrNotConfigured)
	}

	inv, err := s.docs.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Type != models.DocumentTypeInvoice || inv.UserID != userID {
		return nil, apperr.NotFound(op, "invoice %d not found", invoiceID)
	}
	if inv.Status == models.StatusPaid || (inv.Payment != nil && inv.Payment.Status == models.PaymentStatusSucceeded) {
		return nil, apperr.Conflict(op, "invoice %s is already paid", inv.Number)
	}
	if inv.Status == models.StatusCancelled {
		return nil, apperr.Conflict(op, "invoice %s is cancelled", inv.Number)
	}

	amount := pricing.ToMinorUnits(inv.TotalAmount)
	if amount <= 0 {
		return nil, apperr.Validation(op, "invoice %s has nothing to pay", inv.Number)
	}

	session, err := provider.CreateCheckout(ctx, payments.CheckoutRequest{
		InvoiceID:     inv.ID,
		Number:        inv.Number,
		Title:         inv.Title,
		CustomerEmail: inv.Customer.Email,
		Amount:        amount,
		Currency:      s.currency,
	})
	if err != nil {
		s.log.Error().Err(err).Str("provider", provider.Name()).Str("number", inv.Number).Msg("Checkout creation failed")
		return nil, apperr.Unavailable(op, provider.Name(), err)
	}

	if err := s.docs.SetPaymentReference(ctx, inv.ID, provider.Name(), session.Reference); err != nil {
		return nil, err
	}

	s.log.Info().Str("provider", provider.Name()).Str("number", inv.Number).Str("reference", session.Reference).Msg("Checkout created")
	return session, nil
}
