package repositories

import (
	"context"
	"fmt"

	"contractor-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentEventRepository struct {
	DB *pgxpool.Pool
}

func NewPaymentEventRepository(db *pgxpool.Pool) *PaymentEventRepository {
	return &PaymentEventRepository{DB: db}
}

// Record stores the event once. inserted is false when the provider already
// delivered an event with the same id and its effect was applied; events left
// in received or error state are claimed again so a failed attempt can retry.
func (r *PaymentEventRepository) Record(ctx context.Context, e *models.PaymentEvent) (bool, error) {
	var invoiceID *int64
	if e.InvoiceID > 0 {
		invoiceID = &e.InvoiceID
	}
	tag, err := r.DB.Exec(ctx,
		`INSERT INTO payment_events (provider, event_id, event_type, raw_type, invoice_id, provider_reference, amount, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (provider, event_id) DO UPDATE SET outcome = 'received'
		 WHERE payment_events.outcome IN ('received', 'error')`,
		e.Provider, e.EventID, string(e.Type), e.RawType, invoiceID, e.ProviderReference, e.Amount, e.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentEventRepository) SetOutcome(ctx context.Context, provider, eventID, outcome string, invoiceID int64) error {
	var inv *int64
	if invoiceID > 0 {
		inv = &invoiceID
	}
	_, err := r.DB.Exec(ctx,
		`UPDATE payment_events SET outcome = $3, invoice_id = COALESCE($4, invoice_id)
		 WHERE provider = $1 AND event_id = $2`,
		provider, eventID, outcome, inv,
	)
	if err != nil {
		return fmt.Errorf("set payment event outcome: %w", err)
	}
	return nil
}
