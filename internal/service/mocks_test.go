package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/domain"
	r "github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockStore is an in-memory content store with the same uniqueness rules as
// the Postgres repository.
type MockStore struct {
	m         sync.Mutex
	products  map[string]domain.ProductSnapshot
	customers map[string]*domain.CustomerLink
	orders    map[string]*domain.Order // by payment id
	numbers   map[string]bool

	CatalogErr      error
	FindCustomerErr error
	UpsertErr       error
	FindOrderErr    error
	MaterializeErr  error

	CatalogCalls     int
	UpsertCalls      int
	MaterializeCalls int
	// TakenNumbers makes MaterializeOrder report a collision for these order numbers.
	TakenNumbers map[string]bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		products:     map[string]domain.ProductSnapshot{},
		customers:    map[string]*domain.CustomerLink{},
		orders:       map[string]*domain.Order{},
		numbers:      map[string]bool{},
		TakenNumbers: map[string]bool{},
	}
}

func (m *MockStore) AddProduct(id, name, price string, stock int) {
	m.m.Lock()
	defer m.m.Unlock()
	m.products[id] = domain.ProductSnapshot{
		ID:             id,
		Name:           name,
		UnitPrice:      decimal.RequireFromString(price),
		AvailableStock: stock,
	}
}

func (m *MockStore) SetPrice(id, price string) {
	m.m.Lock()
	defer m.m.Unlock()
	p := m.products[id]
	p.UnitPrice = decimal.RequireFromString(price)
	m.products[id] = p
}

func (m *MockStore) DeleteProduct(id string) {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.products, id)
}

func (m *MockStore) Stock(id string) int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.products[id].AvailableStock
}

func (m *MockStore) OrderCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.orders)
}

func (m *MockStore) GetProductSnapshots(_ context.Context, ids []string) ([]domain.ProductSnapshot, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.CatalogCalls++
	if m.CatalogErr != nil {
		return nil, m.CatalogErr
	}
	var out []domain.ProductSnapshot
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockStore) FindCustomerByBuyerID(_ context.Context, buyerID string) (*domain.CustomerLink, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.FindCustomerErr != nil {
		return nil, m.FindCustomerErr
	}
	link, ok := m.customers[buyerID]
	if !ok {
		return nil, r.ErrCustomerNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockStore) UpsertCustomer(_ context.Context, link *domain.CustomerLink) (*domain.CustomerLink, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	saved := *link
	if existing, ok := m.customers[link.BuyerID]; ok {
		saved.ID = existing.ID
	} else if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	m.customers[link.BuyerID] = &saved
	copied := saved
	return &copied, nil
}

func (m *MockStore) FindOrderByPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.FindOrderErr != nil {
		return nil, m.FindOrderErr
	}
	order, ok := m.orders[paymentID]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockStore) MaterializeOrder(_ context.Context, order *domain.Order) ([]domain.StockAdjustment, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.MaterializeCalls++
	if m.MaterializeErr != nil {
		return nil, m.MaterializeErr
	}
	if _, ok := m.orders[order.PaymentID]; ok {
		return nil, r.ErrDuplicatePayment
	}
	if m.numbers[order.OrderNumber] || m.TakenNumbers[order.OrderNumber] {
		return nil, r.ErrOrderNumberTaken
	}

	quantities := map[string]int{}
	for _, item := range order.Items {
		quantities[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	adjustments := make([]domain.StockAdjustment, 0, len(ids))
	for _, id := range ids {
		adj := domain.StockAdjustment{ProductID: id, Quantity: quantities[id]}
		p, ok := m.products[id]
		if !ok {
			adj.Missing = true
		} else {
			p.AvailableStock -= adj.Quantity
			m.products[id] = p
			adj.Remaining = p.AvailableStock
		}
		adjustments = append(adjustments, adj)
	}

	stored := *order
	m.orders[order.PaymentID] = &stored
	m.numbers[order.OrderNumber] = true
	return adjustments, nil
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, r.ErrOrderNotFound
}

func (m *MockStore) ListOrdersByBuyerID(_ context.Context, buyerID string) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MockProvider records what was sent to the payment provider.
type MockProvider struct {
	m sync.Mutex

	ExistingByEmail map[string]string
	FindErr         error
	CreateCustErr   error
	SessionErr      error
	LineItemsErr    error
	SessionURL      string
	// FindGate, when set, holds FindCustomerByEmail until closed. FindEntered
	// is signalled once the call is waiting on it.
	FindGate    chan struct{}
	FindEntered chan struct{}
	// PaidItems is returned by ListPaidLineItems keyed by session id.
	PaidItems map[string][]domain.PaidLineItem

	FindCalls       int
	CreateCustCalls int
	SessionRequests []*domain.SessionRequest
	LineItemCalls   int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		ExistingByEmail: map[string]string{},
		PaidItems:       map[string][]domain.PaidLineItem{},
		SessionURL:      "https://pay.example.com/c/pay/cs_test",
	}
}

func (m *MockProvider) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	if m.FindGate != nil {
		if m.FindEntered != nil {
			m.FindEntered <- struct{}{}
		}
		<-m.FindGate
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.FindCalls++
	if m.FindErr != nil {
		return "", false, m.FindErr
	}
	id, ok := m.ExistingByEmail[email]
	return id, ok, nil
}

func (m *MockProvider) CreateCustomer(_ context.Context, buyer domain.Buyer) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.CreateCustCalls++
	if m.CreateCustErr != nil {
		return "", m.CreateCustErr
	}
	id := fmt.Sprintf("cus_%d", m.CreateCustCalls)
	m.ExistingByEmail[buyer.Email] = id
	return id, nil
}

func (m *MockProvider) CreateCheckoutSession(_ context.Context, req *domain.SessionRequest) (*domain.CheckoutSession, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.SessionRequests = append(m.SessionRequests, req)
	if m.SessionErr != nil {
		return nil, m.SessionErr
	}
	id := fmt.Sprintf("cs_test_%d", len(m.SessionRequests))
	return &domain.CheckoutSession{
		ID:         id,
		URL:        m.SessionURL,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
	}, nil
}

func (m *MockProvider) ListPaidLineItems(_ context.Context, sessionID string) ([]domain.PaidLineItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.LineItemCalls++
	if m.LineItemsErr != nil {
		return nil, m.LineItemsErr
	}
	return m.PaidItems[sessionID], nil
}

// MockVerifier accepts deliveries whose signature is "valid" and returns the
// event registered for the payload.
type MockVerifier struct {
	Events map[string]domain.PaymentEvent
}

func (m *MockVerifier) VerifyEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	if signature != "valid" {
		return nil, domain.ErrSignatureInvalid
	}
	event, ok := m.Events[string(payload)]
	if !ok {
		return nil, errors.New("payload was altered")
	}
	return event, nil
}

type MockLocker struct {
	m    sync.Mutex
	held map[string]bool
	Err  error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]bool{}}
}

func (m *MockLocker) Hold(key string) {
	m.m.Lock()
	defer m.m.Unlock()
	m.held[key] = true
}

func (m *MockLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	if m.held[key] {
		return nil, false, nil
	}
	m.held[key] = true
	return func() {
		m.m.Lock()
		defer m.m.Unlock()
		delete(m.held, key)
	}, true, nil
}

type MockJournal struct {
	m       sync.Mutex
	Records []*DeliveryRecord
	Err     error
}

func (m *MockJournal) Record(_ context.Context, rec *DeliveryRecord) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.Records = append(m.Records, rec)
	return m.Err
}

func (m *MockJournal) States() []State {
	m.m.Lock()
	defer m.m.Unlock()
	states := make([]State, len(m.Records))
	for i, rec := range m.Records {
		states[i] = rec.State
	}
	return states
}
