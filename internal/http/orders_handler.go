package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByBuyerID(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type OrderItemDTO struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
	Subtotal        string `json:"subtotal"`
}

type OrderResponseDTO struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	Status          string          `json:"status"`
	Items           []OrderItemDTO  `json:"items"`
	Total           string          `json:"total"`
	Currency        string          `json:"currency"`
	ShippingAddress *domain.Address `json:"shipping_address,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyer := getBuyerFromContext(r.Context())
	if buyer == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrdersByBuyerID(ctx, buyer.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list orders", "buyer_id", buyer.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	result := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderDTO(o))
	}

	respondJSON(w, http.StatusOK, result)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyer := getBuyerFromContext(r.Context())
	if buyer == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "order_id must be a UUID")
		return
	}

	order, err := h.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get order", "order_id", orderID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	// someone else's order looks the same as a missing one
	if order.BuyerID != buyer.ID {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func toOrderDTO(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemDTO{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			PriceAtPurchase: domain.FormatMinor(item.PriceAtPurchase),
			Subtotal:        domain.FormatMinor(item.Subtotal()),
		}
	}
	return OrderResponseDTO{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		Status:          o.Status.String(),
		Items:           items,
		Total:           domain.FormatMinor(o.Total),
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
	}
}
