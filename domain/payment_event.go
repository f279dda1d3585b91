package domain

import "errors"

var ErrSignatureInvalid = errors.New("payment event signature invalid")

const (
	EventKindCheckoutCompleted     = "checkout.session.completed"
	EventKindAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// PaymentEvent is a verified provider event. The concrete type is one of
// *CheckoutCompleted, *PaymentPending or *IgnoredEvent.
type PaymentEvent interface {
	EventID() string
	Kind() string
}

type CustomerDetails struct {
	Name    string
	Email   string
	Address *Address
}

// CheckoutCompleted is a checkout session whose payment has been received.
type CheckoutCompleted struct {
	ID          string
	KindName    string
	SessionID   string
	PaymentID   string
	Metadata    map[string]string
	AmountTotal int64
	Currency    string
	Customer    CustomerDetails
}

func (e *CheckoutCompleted) EventID() string { return e.ID }

func (e *CheckoutCompleted) Kind() string {
	if e.KindName == "" {
		return EventKindCheckoutCompleted
	}
	return e.KindName
}

// PaymentPending is a completed checkout whose payment has not settled, as with
// delayed payment methods. An async_payment_succeeded event follows if it does.
type PaymentPending struct {
	ID            string
	KindName      string
	SessionID     string
	PaymentID     string
	PaymentStatus string
}

func (e *PaymentPending) EventID() string { return e.ID }
func (e *PaymentPending) Kind() string    { return e.KindName }

// IgnoredEvent is any authentic event this service does not act on.
type IgnoredEvent struct {
	ID       string
	KindName string
}

func (e *IgnoredEvent) EventID() string { return e.ID }
func (e *IgnoredEvent) Kind() string    { return e.KindName }
