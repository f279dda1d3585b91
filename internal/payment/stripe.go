package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// MetaProductID is stamped on each line item's product data so paid line items
// can be matched back to catalog products.
const MetaProductID = "productId"

type Config struct {
	SecretKey string
	// APIURL overrides the provider endpoint, used against stripe-mock and in tests.
	APIURL         string
	BreakerTimeout time.Duration
}

// StripeClient talks to Stripe's customers and checkout sessions APIs.
type StripeClient struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[any]
}

func NewStripeClient(cfg Config) *StripeClient {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &StripeClient{
		api:     api,
		breaker: newBreaker("stripe", openFor),
	}
}

func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	type match struct {
		id    string
		found bool
	}
	m, err := execute(c.breaker, func() (match, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(1)
		params.Single = true

		iter := c.api.Customers.List(params)
		if iter.Next() {
			return match{id: iter.Customer().ID, found: true}, nil
		}
		return match{}, iter.Err()
	})
	if err != nil {
		return "", false, fmt.Errorf("list customers: %w", err)
	}
	return m.id, m.found, nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, buyer domain.Buyer) (string, error) {
	cust, err := execute(c.breaker, func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{
			Email: stripe.String(buyer.Email),
		}
		if buyer.Name != "" {
			params.Name = stripe.String(buyer.Name)
		}
		params.Context = ctx
		params.AddMetadata(domain.MetaBuyerID, buyer.ID)
		params.SetIdempotencyKey("customer-" + buyer.ID)
		return c.api.Customers.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return cust.ID, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req *domain.SessionRequest) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if len(req.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		}
	}
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:     stripe.String(item.Name),
					Metadata: map[string]string{MetaProductID: item.ProductID},
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := execute(c.breaker, func() (*stripe.CheckoutSession, error) {
		return c.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	out := &domain.CheckoutSession{
		ID:       session.ID,
		URL:      session.URL,
		Metadata: session.Metadata,
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	return out, nil
}

// ListPaidLineItems returns the line items Stripe recorded for a completed session.
func (c *StripeClient) ListPaidLineItems(ctx context.Context, sessionID string) ([]domain.PaidLineItem, error) {
	items, err := execute(c.breaker, func() ([]domain.PaidLineItem, error) {
		params := &stripe.CheckoutSessionListLineItemsParams{
			Session: stripe.String(sessionID),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(100)
		params.AddExpand("data.price.product")

		var out []domain.PaidLineItem
		iter := c.api.CheckoutSessions.ListLineItems(params)
		for iter.Next() {
			out = append(out, toPaidLineItem(iter.LineItem()))
		}
		return out, iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	return items, nil
}

// toPaidLineItem leaves ProductID empty when the product carries no catalog id;
// reconciliation then treats the session as not matching its metadata.
func toPaidLineItem(li *stripe.LineItem) domain.PaidLineItem {
	item := domain.PaidLineItem{
		Description: li.Description,
		Quantity:    int(li.Quantity),
		AmountTotal: li.AmountTotal,
	}
	if li.Price != nil {
		item.UnitAmount = li.Price.UnitAmount
		if li.Price.Product != nil {
			item.ProductID = li.Price.Product.Metadata[MetaProductID]
		}
	}
	if item.UnitAmount == 0 && item.Quantity > 0 {
		item.UnitAmount = item.AmountTotal / int64(item.Quantity)
	}
	return item
}
