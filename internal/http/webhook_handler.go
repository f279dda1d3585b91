package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/service"
)

const signatureHeader = "Stripe-Signature"

type DeliveryProcessor interface {
	HandleDelivery(ctx context.Context, payload []byte, signature string) (*service.ReconciliationResult, error)
}

type WebhookHandler struct {
	deliveries DeliveryProcessor
	timeout    time.Duration
}

func NewWebhookHandler(deliveries DeliveryProcessor, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		deliveries: deliveries,
		timeout:    timeout,
	}
}

type WebhookResponseDTO struct {
	Received    bool   `json:"received"`
	State       string `json:"state"`
	OrderNumber string `json:"order_number,omitempty"`
}

// POST /api/v1/webhooks/payment
//
// Any non-2xx answer makes the provider redeliver, so only transient failures
// get one. Webhook errors are never shown to a buyer.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}

	result, err := h.deliveries.HandleDelivery(ctx, payload, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		respondError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	case errors.Is(err, service.ErrDeliveryInFlight):
		w.Header().Set("Retry-After", "5")
		respondError(w, http.StatusServiceUnavailable, "in_flight", "delivery already in progress")
		return
	case service.IsTransient(err):
		slog.ErrorContext(ctx, "payment delivery failed, asking for redelivery",
			"error", err, "request_id", getRequestID(r.Context()))
		respondError(w, http.StatusInternalServerError, "internal_error", "temporary failure")
		return
	case errors.Is(err, domain.ErrMalformedMetadata):
		// already logged as a data-integrity problem; redelivery cannot fix it
	case err != nil:
		slog.ErrorContext(ctx, "payment delivery failed", "error", err, "request_id", getRequestID(r.Context()))
		respondError(w, http.StatusInternalServerError, "internal_error", "temporary failure")
		return
	}

	resp := WebhookResponseDTO{Received: true}
	if result != nil {
		resp.State = result.State.String()
		if result.Order != nil {
			resp.OrderNumber = result.Order.OrderNumber
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
