package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/models"
	"contractor-backend/internal/payments"
	"contractor-backend/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 64 << 10

type CheckoutAPI interface {
	CreateCheckout(ctx context.Context, userID, invoiceID int64) (*models.CheckoutSession, error)
}

type WebhookAPI interface {
	HandleWebhook(ctx context.Context, provider string, body []byte, signature string) (*models.PaymentEvent, error)
}

type PaymentHandler struct {
	Checkout  CheckoutAPI
	Webhooks  WebhookAPI
	Providers *payments.Registry
	log       zerolog.Logger
}

func NewPaymentHandler(checkout CheckoutAPI, webhooks WebhookAPI, providers *payments.Registry) *PaymentHandler {
	return &PaymentHandler{
		Checkout:  checkout,
		Webhooks:  webhooks,
		Providers: providers,
		log:       logger.WithComponent("webhooks"),
	}
}

// CreateCheckout opens a provider checkout for an invoice
func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := userAndID(w, r)
	if !ok {
		return
	}

	session, err := h.Checkout.CreateCheckout(r.Context(), userID, id)
	if err != nil {
		utils.HandleError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, session)
}

// HandleWebhook receives signed provider events. Anything verified is
// acknowledged with 200, including events that matched no invoice, so the
// provider stops retrying. Storage failures answer 500 to get a redelivery.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	provider, ok := h.Providers.Get(name)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "unknown payment provider")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.Warn().Str("provider", name).Int64("limit", tooLarge.Limit).Msg("Webhook body too large")
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "Webhook body too large")
			return
		}
		h.log.Warn().Err(err).Str("provider", name).Msg("Failed to read webhook body")
		utils.RespondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	ev, err := h.Webhooks.HandleWebhook(r.Context(), name, body, r.Header.Get(provider.SignatureHeader()))
	if err != nil {
		if !errors.Is(err, apperr.ErrReconciliationRejected) && !errors.Is(err, apperr.ErrValidation) {
			h.log.Error().Err(err).Str("provider", name).Msg("Webhook processing failed")
		}
		utils.HandleError(w, r, err)
		return
	}

	utils.JSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"event_id": ev.EventID,
		"outcome":  ev.Outcome,
	})
}
