package service

import (
	"context"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/google/uuid"
)

// CatalogReader returns snapshots for the ids that exist and are published.
// Unknown ids are omitted from the result.
type CatalogReader interface {
	GetProductSnapshots(ctx context.Context, productIDs []string) ([]domain.ProductSnapshot, error)
}

type CustomerStore interface {
	// FindCustomerByBuyerID returns repository.ErrCustomerNotFound when no link exists.
	FindCustomerByBuyerID(ctx context.Context, buyerID string) (*domain.CustomerLink, error)
	UpsertCustomer(ctx context.Context, link *domain.CustomerLink) (*domain.CustomerLink, error)
}

type OrderStore interface {
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	// MaterializeOrder inserts the order, decrements stock for every line and
	// records the outbox event in a single transaction.
	MaterializeOrder(ctx context.Context, order *domain.Order) ([]domain.StockAdjustment, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByBuyerID(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

type PaymentProvider interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCustomer(ctx context.Context, buyer domain.Buyer) (string, error)
	CreateCheckoutSession(ctx context.Context, req *domain.SessionRequest) (*domain.CheckoutSession, error)
	ListPaidLineItems(ctx context.Context, sessionID string) ([]domain.PaidLineItem, error)
}

// EventVerifier authenticates a raw webhook body and decodes it. It returns
// domain.ErrSignatureInvalid for any authentication failure and
// domain.ErrMalformedMetadata for an authentic event it cannot decode.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (domain.PaymentEvent, error)
}

// Locker serializes concurrent work on one key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type DeliveryRecord struct {
	EventID     string
	Kind        string
	PaymentID   string
	SessionID   string
	State       State
	OrderID     string
	Error       string
	ReceivedAt  time.Time
	CompletedAt time.Time
}

// DeliveryJournal keeps an audit trail of webhook deliveries.
type DeliveryJournal interface {
	Record(ctx context.Context, rec *DeliveryRecord) error
}

type CheckoutRequest struct {
	Buyer *domain.Buyer
	Items []domain.CartItem
}

type CheckoutResponse struct {
	SessionID string
	URL       string
}
