package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(store *MockStore) *CartValidator {
	return NewCartValidator(store, time.Second)
}

func TestValidate_EmptyCart(t *testing.T) {
	store := NewMockStore()
	v := newValidator(store)

	_, err := v.Validate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, store.CatalogCalls)
}

func TestValidate_UsesCatalogPriceNotClaimedPrice(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 5)
	v := newValidator(store)

	lines, err := v.Validate(context.Background(), []domain.CartItem{
		{ProductID: "p1", ClaimedName: "Cheap Mug", ClaimedUnitPrice: decimal.RequireFromString("0.01"), Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Mug", lines[0].Product.Name)
	assert.Equal(t, int64(1250), lines[0].UnitAmount())
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestValidate_SingleBulkRead(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 5)
	store.AddProduct("p2", "Poster", "8.00", 5)
	store.AddProduct("p3", "Sticker", "1.00", 5)
	v := newValidator(store)

	_, err := v.Validate(context.Background(), []domain.CartItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p3", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.CatalogCalls)
}

func TestValidate_MergesDuplicateLines(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 3)
	v := newValidator(store)

	_, err := v.Validate(context.Background(), []domain.CartItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 2},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Problems, 1)
	assert.ErrorIs(t, validationErr.Problems[0].Err, ErrInsufficientStock)
	assert.Contains(t, validationErr.Problems[0].Message, "only 3 of Mug left")
}

func TestValidate_NegativeLineNotAbsorbedByDuplicate(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 3)
	v := newValidator(store)

	lines, err := v.Validate(context.Background(), []domain.CartItem{
		{ProductID: "p1", ClaimedName: "Mug", Quantity: 5},
		{ProductID: "p1", ClaimedName: "Mug", Quantity: -3},
	})
	assert.Nil(t, lines)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	// the valid line is still checked on its own quantity
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Mug: quantity must be at least 1")
	assert.Contains(t, err.Error(), "you requested 5")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 5)
	store.AddProduct("p2", "Poster", "8.00", 0)
	store.AddProduct("p3", "Sticker", "1.00", 1)
	v := newValidator(store)

	_, err := v.Validate(context.Background(), []domain.CartItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", ClaimedName: "Poster", Quantity: 1},
		{ProductID: "p3", Quantity: 4},
		{ProductID: "gone", ClaimedName: "Old Hat", Quantity: 1},
		{ProductID: "p1b", ClaimedName: "Bad", Quantity: 0},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Problems, 4)

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrProductUnavailable)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Contains(t, err.Error(), "Poster is out of stock")
	assert.Contains(t, err.Error(), "Old Hat is no longer available")
	assert.Contains(t, err.Error(), "only 1 of Sticker left in stock, you requested 4")
}

func TestValidate_StockExactlyEnough(t *testing.T) {
	store := NewMockStore()
	store.AddProduct("p1", "Mug", "12.50", 2)
	v := newValidator(store)

	lines, err := v.Validate(context.Background(), []domain.CartItem{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestValidate_CatalogError(t *testing.T) {
	store := NewMockStore()
	store.CatalogErr = errors.New("connection refused")
	v := newValidator(store)

	_, err := v.Validate(context.Background(), []domain.CartItem{{ProductID: "p1", Quantity: 1}})
	require.Error(t, err)

	var validationErr *ValidationError
	assert.False(t, errors.As(err, &validationErr))
	assert.ErrorIs(t, err, store.CatalogErr)
}
