package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/storefront/domain"
	"golang.org/x/sync/singleflight"
)

// CheckoutSettings are the redirect and pricing options for new sessions.
type CheckoutSettings struct {
	BaseURL          string
	Currency         string
	AllowedCountries []string
}

func (c CheckoutSettings) successURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/success?session_id={CHECKOUT_SESSION_ID}"
}

func (c CheckoutSettings) cancelURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/basket"
}

type CheckoutInitiator struct {
	validator       *CartValidator
	store           CustomerStore
	provider        PaymentProvider
	settings        CheckoutSettings
	storeTimeout    time.Duration
	providerTimeout time.Duration
	customers       singleflight.Group
	now             func() time.Time
}

func NewCheckoutInitiator(
	validator *CartValidator,
	store CustomerStore,
	provider PaymentProvider,
	settings CheckoutSettings,
	storeTimeout, providerTimeout time.Duration,
) *CheckoutInitiator {
	return &CheckoutInitiator{
		validator:       validator,
		store:           store,
		provider:        provider,
		settings:        settings,
		storeTimeout:    storeTimeout,
		providerTimeout: providerTimeout,
		now:             time.Now,
	}
}

// InitiateCheckout validates the cart and opens a provider checkout session.
// It never reads or writes stock beyond validation.
func (s *CheckoutInitiator) InitiateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutResponse, error) {
	if request.Buyer == nil || request.Buyer.ID == "" || request.Buyer.Email == "" {
		return nil, ErrUnauthenticated
	}

	lines, err := s.validator.Validate(ctx, request.Items)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) || errors.Is(err, ErrEmptyCart) {
			return nil, err
		}
		return nil, &CheckoutError{Message: "We could not check your basket right now, please try again", Err: err}
	}

	ctx, span := tracer.Start(ctx, "checkout.session")
	defer span.End()

	link, err := s.resolveCustomer(ctx, request.Buyer)
	if err != nil {
		return nil, &CheckoutError{Message: "We could not set up your payment account, please try again", Err: err}
	}

	sessionReq, err := s.buildSessionRequest(request.Buyer, link, lines)
	if err != nil {
		return nil, &CheckoutError{Message: "Your basket could not be prepared for payment", Err: err}
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	session, err := s.provider.CreateCheckoutSession(providerCtx, sessionReq)
	if err != nil {
		return nil, &CheckoutError{Message: "Payment is unavailable right now, please try again", Err: err}
	}
	if session.URL == "" {
		return nil, &CheckoutError{Message: "Payment is unavailable right now, please try again", Err: errors.New("provider returned a session without a redirect url")}
	}

	slog.InfoContext(ctx, "checkout session created",
		"session_id", session.ID,
		"buyer_id", request.Buyer.ID,
		"lines", len(lines))

	return &CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

func (s *CheckoutInitiator) buildSessionRequest(buyer *domain.Buyer, link *domain.CustomerLink, lines []domain.ValidatedLineItem) (*domain.SessionRequest, error) {
	items := make([]domain.SessionLineItem, len(lines))
	metaItems := make([]domain.MetadataItem, len(lines))
	for i, line := range lines {
		items[i] = domain.SessionLineItem{
			ProductID:  line.Product.ID,
			Name:       line.Product.Name,
			UnitAmount: line.UnitAmount(),
			Quantity:   line.Quantity,
		}
		metaItems[i] = domain.MetadataItem{ProductID: line.Product.ID, Quantity: line.Quantity}
	}

	metadata, err := domain.CheckoutMetadata{
		BuyerID:          buyer.ID,
		BuyerEmail:       buyer.Email,
		CustomerRecordID: link.ID,
		Items:            metaItems,
	}.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode session metadata: %w", err)
	}

	return &domain.SessionRequest{
		CustomerID:       link.ProviderCustomerID,
		Currency:         s.settings.Currency,
		LineItems:        items,
		Metadata:         metadata,
		SuccessURL:       s.settings.successURL(),
		CancelURL:        s.settings.cancelURL(),
		AllowedCountries: s.settings.AllowedCountries,
		IdempotencyKey:   s.idempotencyKey(metadata, items),
	}, nil
}

// idempotencyKey collapses repeated submissions of the same basket within the
// same minute onto one provider session.
func (s *CheckoutInitiator) idempotencyKey(metadata map[string]string, items []domain.SessionLineItem) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", metadata[domain.MetaBuyerID], metadata[domain.MetaProductIDs],
		metadata[domain.MetaQuantities], s.now().UTC().Truncate(time.Minute).Format(time.RFC3339))
	for _, item := range items {
		fmt.Fprintf(h, "%d,", item.UnitAmount)
	}
	return "checkout-" + hex.EncodeToString(h.Sum(nil))[:40]
}
