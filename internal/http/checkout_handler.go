package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/shopspring/decimal"
)

type CheckoutService interface {
	InitiateCheckout(ctx context.Context, request *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type CartItemDTO struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type CheckoutRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

type CheckoutResponseDTO struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type LineProblemDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message"`
}

type ValidationErrorResponse struct {
	Error    string           `json:"error"`
	Code     string           `json:"code"`
	Problems []LineProblemDTO `json:"problems"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyer := getBuyerFromContext(r.Context())
	if buyer == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", service.ErrUnauthenticated.Error())
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	items := make([]domain.CartItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.CartItem{
			ProductID:        item.ProductID,
			ClaimedName:      item.Name,
			ClaimedUnitPrice: item.Price,
			Quantity:         item.Quantity,
		}
	}

	resp, err := h.checkout.InitiateCheckout(ctx, &service.CheckoutRequest{
		Buyer: buyer,
		Items: items,
	})
	if err != nil {
		handleCheckoutError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		SessionID: resp.SessionID,
		URL:       resp.URL,
	})
}

func handleCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	var checkoutErr *service.CheckoutError

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.As(err, &validationErr):
		problems := make([]LineProblemDTO, len(validationErr.Problems))
		for i, p := range validationErr.Problems {
			problems[i] = LineProblemDTO{ProductID: p.ProductID, Name: p.Name, Message: p.Message}
		}
		respondJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:    validationErr.Error(),
			Code:     "invalid_cart",
			Problems: problems,
		})
	case errors.As(err, &checkoutErr):
		slog.ErrorContext(ctx, "checkout failed", "error", err, "request_id", getRequestID(ctx))
		respondError(w, http.StatusBadGateway, "checkout_unavailable", checkoutErr.Message)
	default:
		slog.ErrorContext(ctx, "checkout failed", "error", err, "request_id", getRequestID(ctx))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
