package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookVerifier authenticates Stripe webhook deliveries against the
// endpoint's signing secret.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

func (v *WebhookVerifier) VerifyEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no signing secret configured", domain.ErrSignatureInvalid)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	return decodeEvent(event)
}

// decodeEvent maps an authentic Stripe event onto the domain event union.
// Completed sessions become orders only once their payment has settled.
func decodeEvent(event stripe.Event) (domain.PaymentEvent, error) {
	kind := string(event.Type)
	if kind != domain.EventKindCheckoutCompleted && kind != domain.EventKindAsyncPaymentSucceeded {
		return &domain.IgnoredEvent{ID: event.ID, KindName: kind}, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", domain.ErrMalformedMetadata, event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: event %s: %v", domain.ErrMalformedMetadata, event.ID, err)
	}

	var paymentID string
	if session.PaymentIntent != nil {
		paymentID = session.PaymentIntent.ID
	}

	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
	case stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		// nothing was charged, so the session is the only payment reference
		if paymentID == "" {
			paymentID = session.ID
		}
	default:
		return &domain.PaymentPending{
			ID:            event.ID,
			KindName:      kind,
			SessionID:     session.ID,
			PaymentID:     paymentID,
			PaymentStatus: string(session.PaymentStatus),
		}, nil
	}

	completed := &domain.CheckoutCompleted{
		ID:          event.ID,
		KindName:    kind,
		SessionID:   session.ID,
		PaymentID:   paymentID,
		Metadata:    session.Metadata,
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
	}
	if d := session.CustomerDetails; d != nil {
		completed.Customer.Name = d.Name
		completed.Customer.Email = d.Email
		completed.Customer.Address = toAddress(d.Address)
	}
	if s := session.ShippingDetails; s != nil && s.Address != nil {
		completed.Customer.Address = toAddress(s.Address)
		if completed.Customer.Name == "" {
			completed.Customer.Name = s.Name
		}
	}
	return completed, nil
}

func toAddress(a *stripe.Address) *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
