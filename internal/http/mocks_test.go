package http

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// --- Mocks ---

type CheckoutServiceMock struct {
	resp *service.CheckoutResponse
	err  error

	lastRequest *service.CheckoutRequest
}

func (m *CheckoutServiceMock) InitiateCheckout(ctx context.Context, request *service.CheckoutRequest) (*service.CheckoutResponse, error) {
	m.lastRequest = request
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type DeliveryProcessorMock struct {
	result *service.ReconciliationResult
	err    error

	payload   []byte
	signature string
}

func (m *DeliveryProcessorMock) HandleDelivery(ctx context.Context, payload []byte, signature string) (*service.ReconciliationResult, error) {
	m.payload = payload
	m.signature = signature
	return m.result, m.err
}

type OrderReaderMock struct {
	orders map[uuid.UUID]*domain.Order
	err    error
}

func (m OrderReaderMock) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m OrderReaderMock) ListOrdersByBuyerID(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []*domain.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			result = append(result, o)
		}
	}
	return result, nil
}

// --- helpers ---

func withUser(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), buyerKey, &domain.Buyer{
		ID:    "buyer-1",
		Email: "buyer@example.com",
		Name:  "Test Buyer",
	})
	return r.WithContext(ctx)
}

func withOrderID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("order_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
