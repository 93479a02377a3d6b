package services

import (
	"context"
	"errors"
	"time"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/events"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/metrics"
	"contractor-backend/internal/models"
	"contractor-backend/internal/payments"
	"contractor-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

// PaymentDocumentRepository is the invoice persistence reconciliation needs
type PaymentDocumentRepository interface {
	Get(ctx context.Context, id int64) (*models.Document, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Document, error)
	// MarkPaymentSucceeded returns the artifact key made stale and whether
	// the invoice changed; it is a no-op on an already succeeded payment.
	MarkPaymentSucceeded(ctx context.Context, id int64, reference, eventID string, today time.Time) (string, bool, error)
	MarkPaymentFailed(ctx context.Context, id int64, reference, eventID string) (bool, error)
}

type PaymentEventStore interface {
	Record(ctx context.Context, e *models.PaymentEvent) (bool, error)
	SetOutcome(ctx context.Context, provider, eventID, outcome string, invoiceID int64) error
}

type ArtifactInvalidator interface {
	Invalidate(ctx context.Context, key string)
}

// ReconciliationService applies verified payment-provider events to invoices
// with at-most-once effect.
type ReconciliationService struct {
	providers *payments.Registry
	docs      PaymentDocumentRepository
	store     PaymentEventStore
	artifacts ArtifactInvalidator
	events    EventPublisher
	now       func() time.Time
	log       zerolog.Logger
}

func NewReconciliationService(providers *payments.Registry, docs PaymentDocumentRepository, store PaymentEventStore, artifacts ArtifactInvalidator, publisher EventPublisher) *ReconciliationService {
	return &ReconciliationService{
		providers: providers,
		docs:      docs,
		store:     store,
		artifacts: artifacts,
		events:    publisher,
		now:       timeutil.Now,
		log:       logger.WithComponent("reconciliation"),
	}
}

func (s *ReconciliationService) WithClock(now func() time.Time) *ReconciliationService {
	s.now = now
	return s
}

// HandleWebhook verifies a raw provider delivery and applies it. A failed
// verification is rejected before anything is read or written.
func (s *ReconciliationService) HandleWebhook(ctx context.Context, provider string, body []byte, signature string) (*models.PaymentEvent, error) {
	p, ok := s.providers.Get(provider)
	if !ok {
		return nil, apperr.NotFound("reconciliation.Webhook", "unknown payment provider %q", provider)
	}

	ev, err := p.ParseWebhook(body, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			metrics.WebhookEvents.WithLabelValues(provider, "rejected").Inc()
			s.log.Warn().Err(err).Str("provider", provider).Msg("Webhook signature rejected")
			return nil, apperr.Rejected("reconciliation.Webhook", err)
		}
		return nil, apperr.Validation("reconciliation.Webhook", "malformed %s webhook payload", provider)
	}

	if err := s.Apply(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Apply records the event and applies it unless it was already applied.
// ev.Outcome is set on return.
func (s *ReconciliationService) Apply(ctx context.Context, ev *models.PaymentEvent) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now().UTC()
	}

	fresh, err := s.store.Record(ctx, ev)
	if err != nil {
		return err
	}
	log := s.log.With().Str("provider", ev.Provider).Str("event_id", ev.EventID).Str("event", ev.RawType).Logger()
	if !fresh {
		ev.Outcome = models.OutcomeDuplicate
		metrics.WebhookEvents.WithLabelValues(ev.Provider, ev.Outcome).Inc()
		log.Info().Msg("Duplicate payment event acknowledged")
		return nil
	}

	outcome, invoiceID, err := s.apply(ctx, ev, log)
	if err != nil {
		ev.Outcome = models.OutcomeError
		if serr := s.store.SetOutcome(ctx, ev.Provider, ev.EventID, models.OutcomeError, ev.InvoiceID); serr != nil {
			log.Error().Err(serr).Msg("Failed to record payment event outcome")
		}
		metrics.WebhookEvents.WithLabelValues(ev.Provider, ev.Outcome).Inc()
		return err
	}

	ev.Outcome = outcome
	if invoiceID > 0 {
		ev.InvoiceID = invoiceID
	}
	if err := s.store.SetOutcome(ctx, ev.Provider, ev.EventID, outcome, invoiceID); err != nil {
		log.Error().Err(err).Msg("Failed to record payment event outcome")
	}
	metrics.WebhookEvents.WithLabelValues(ev.Provider, outcome).Inc()
	log.Info().Str("outcome", outcome).Int64("invoice_id", invoiceID).Msg("Payment event processed")
	return nil
}

func (s *ReconciliationService) apply(ctx context.Context, ev *models.PaymentEvent, log zerolog.Logger) (string, int64, error) {
	if ev.Type != models.PaymentEventSucceeded && ev.Type != models.PaymentEventFailed {
		return models.OutcomeIgnored, 0, nil
	}

	inv, err := s.resolveInvoice(ctx, ev)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn().Int64("invoice_id", ev.InvoiceID).Str("reference", ev.ProviderReference).Msg("Payment event for unknown invoice acknowledged")
		return models.OutcomeInvoiceNotFound, 0, nil
	}
	if err != nil {
		return "", 0, err
	}

	if ev.Type == models.PaymentEventSucceeded {
		if ev.Amount.IsPositive() && !ev.Amount.Equal(inv.TotalAmount) {
			log.Warn().
				Str("paid", ev.Amount.StringFixed(2)).
				Str("total", inv.TotalAmount.StringFixed(2)).
				Str("number", inv.Number).
				Msg("Payment amount differs from invoice total")
		}

		staleKey, changed, err := s.docs.MarkPaymentSucceeded(ctx, inv.ID, ev.ProviderReference, ev.EventID, timeutil.StartOfDay(s.now()))
		if err != nil {
			return "", inv.ID, err
		}
		if !changed {
			return models.OutcomeAlreadySucceeded, inv.ID, nil
		}
		if s.artifacts != nil {
			s.artifacts.Invalidate(ctx, staleKey)
		}
		inv.Status = models.StatusPaid
		s.publish(events.DocumentEvent(events.InvoicePaid, inv))
		return models.OutcomeApplied, inv.ID, nil
	}

	changed, err := s.docs.MarkPaymentFailed(ctx, inv.ID, ev.ProviderReference, ev.EventID)
	if err != nil {
		return "", inv.ID, err
	}
	if !changed {
		return models.OutcomeAlreadySucceeded, inv.ID, nil
	}
	log.Info().Str("number", inv.Number).Str("reason", ev.FailureReason).Msg("Invoice payment failed")
	s.publish(events.DocumentEvent(events.PaymentFailed, inv))
	return models.OutcomeApplied, inv.ID, nil
}

// resolveInvoice prefers the invoice id we attached at checkout and falls
// back to the provider reference stored on the invoice.
func (s *ReconciliationService) resolveInvoice(ctx context.Context, ev *models.PaymentEvent) (*models.Document, error) {
	if ev.InvoiceID > 0 {
		doc, err := s.docs.Get(ctx, ev.InvoiceID)
		if err == nil && doc.Type == models.DocumentTypeInvoice {
			return doc, nil
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	if ev.ProviderReference != "" {
		return s.docs.FindByPaymentReference(ctx, ev.ProviderReference)
	}
	return nil, apperr.NotFound("reconciliation.Resolve", "no invoice for event %s", ev.EventID)
}

func (s *ReconciliationService) publish(e events.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
