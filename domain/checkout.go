package domain

// Buyer is the authenticated identity forwarded by the auth provider.
type Buyer struct {
	ID    string
	Email string
	Name  string
}

// CustomerLink ties a buyer to their payment-provider customer record.
type CustomerLink struct {
	ID                 string
	BuyerID            string
	Email              string
	Name               string
	ProviderCustomerID string
}

type SessionLineItem struct {
	ProductID  string
	Name       string
	UnitAmount int64
	Quantity   int
}

// SessionRequest is everything the payment provider needs to open a checkout session.
type SessionRequest struct {
	CustomerID       string
	Currency         string
	LineItems        []SessionLineItem
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
	AllowedCountries []string
	IdempotencyKey   string
}

type CheckoutSession struct {
	ID         string
	URL        string
	CustomerID string
	Metadata   map[string]string
}

// PaidLineItem is the provider's record of a purchased line, in minor units.
type PaidLineItem struct {
	ProductID   string
	Description string
	Quantity    int
	UnitAmount  int64
	AmountTotal int64
}
