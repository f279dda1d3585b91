package domain

import "github.com/shopspring/decimal"

// ProductSnapshot is the authoritative catalog view of a product at read time.
type ProductSnapshot struct {
	ID             string
	Name           string
	UnitPrice      decimal.Decimal // major units, as stored in the content store
	AvailableStock int
}

// CartItem is what the client claims to be buying. Name and price are advisory.
type CartItem struct {
	ProductID        string          `json:"product_id"`
	ClaimedName      string          `json:"name"`
	ClaimedUnitPrice decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
}

// ValidatedLineItem pairs an authoritative snapshot with the requested quantity.
type ValidatedLineItem struct {
	Product  ProductSnapshot
	Quantity int
}

// UnitAmount returns the snapshot price in minor units.
func (l ValidatedLineItem) UnitAmount() int64 {
	return ToMinorUnits(l.Product.UnitPrice)
}
