package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// OrderLineItem captures what was bought and what was paid per unit, in minor units.
// PriceAtPurchase never changes after the order is created.
type OrderLineItem struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
}

// Subtotal is PriceAtPurchase multiplied by Quantity.
func (i OrderLineItem) Subtotal() int64 {
	return i.PriceAtPurchase * int64(i.Quantity)
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Order struct {
	ID               uuid.UUID
	OrderNumber      string
	BuyerID          string
	CustomerRecordID string
	Email            string
	CustomerName     string
	Items            []OrderLineItem
	Total            int64
	Currency         string
	Status           OrderStatus
	ShippingAddress  *Address
	PaymentID        string
	SessionID        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LineTotal sums the line subtotals. A materialized order always has Total == LineTotal().
func (o *Order) LineTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// StockAdjustment reports the stock left for one product after an order was applied.
type StockAdjustment struct {
	ProductID string
	Quantity  int
	Remaining int
	Missing   bool // product no longer exists in the catalog
}

// Oversold reports whether the decrement took stock below zero.
func (a StockAdjustment) Oversold() bool {
	return !a.Missing && a.Remaining < 0
}
