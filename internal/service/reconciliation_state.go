package service

import "github.com/fjod/storefront/domain"

// State is where a single webhook delivery ended up in reconciliation.
type State string

const (
	StateReceived      State = "received"
	StateVerified      State = "verified"
	StateRejected      State = "rejected"
	StateIgnored       State = "ignored"
	StateAwaitingPay   State = "awaiting-payment"
	StateDeduplicated  State = "deduplicated"
	StateDropped       State = "dropped"
	StateMaterialized  State = "materialized"
	StateStockAdjusted State = "stock-adjusted"
	StateFailed        State = "failed"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further work will happen for this delivery.
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateIgnored, StateAwaitingPay, StateDeduplicated, StateDropped, StateStockAdjusted, StateFailed:
		return true
	}
	return false
}

// Acknowledge reports whether the provider should consider the delivery handled.
// Only StateFailed asks for redelivery.
func (s State) Acknowledge() bool {
	return s.IsTerminal() && s != StateFailed
}

type ReconciliationResult struct {
	State       State
	EventID     string
	Kind        string
	PaymentID   string
	SessionID   string
	Order       *domain.Order
	Adjustments []domain.StockAdjustment
}
