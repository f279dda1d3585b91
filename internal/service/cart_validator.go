package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/domain"
)

type CartValidator struct {
	catalog CatalogReader
	timeout time.Duration
}

func NewCartValidator(catalog CatalogReader, timeout time.Duration) *CartValidator {
	return &CartValidator{
		catalog: catalog,
		timeout: timeout,
	}
}

// Validate checks every cart line against live catalog data and returns lines
// priced from the catalog. All problems are reported together in a *ValidationError.
func (v *CartValidator) Validate(ctx context.Context, items []domain.CartItem) ([]domain.ValidatedLineItem, error) {
	ctx, span := tracer.Start(ctx, "checkout.validate")
	defer span.End()

	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	// Quantities are checked per submitted line, before duplicates are summed.
	var problems []LineProblem
	valid := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			name := displayName(item)
			problems = append(problems, LineProblem{
				ProductID: item.ProductID,
				Name:      name,
				Err:       ErrInvalidQuantity,
				Message:   fmt.Sprintf("%s: quantity must be at least 1", name),
			})
			continue
		}
		valid = append(valid, item)
	}

	merged := mergeCartItems(valid)
	ids := make([]string, len(merged))
	for i, item := range merged {
		ids[i] = item.ProductID
	}

	catalogCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	snapshots, err := v.catalog.GetProductSnapshots(catalogCtx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	byID := make(map[string]domain.ProductSnapshot, len(snapshots))
	for _, s := range snapshots {
		byID[s.ID] = s
	}

	lines := make([]domain.ValidatedLineItem, 0, len(merged))
	for _, item := range merged {
		name := displayName(item)

		snapshot, ok := byID[item.ProductID]
		if !ok {
			problems = append(problems, LineProblem{
				ProductID: item.ProductID,
				Name:      name,
				Err:       ErrProductUnavailable,
				Message:   fmt.Sprintf("%s is no longer available", name),
			})
			continue
		}

		switch {
		case snapshot.AvailableStock <= 0:
			problems = append(problems, LineProblem{
				ProductID: item.ProductID,
				Name:      snapshot.Name,
				Err:       ErrOutOfStock,
				Message:   fmt.Sprintf("%s is out of stock", snapshot.Name),
			})
		case item.Quantity > snapshot.AvailableStock:
			problems = append(problems, LineProblem{
				ProductID: item.ProductID,
				Name:      snapshot.Name,
				Err:       ErrInsufficientStock,
				Message: fmt.Sprintf("only %d of %s left in stock, you requested %d",
					snapshot.AvailableStock, snapshot.Name, item.Quantity),
			})
		default:
			lines = append(lines, domain.ValidatedLineItem{
				Product:  snapshot,
				Quantity: item.Quantity,
			})
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return lines, nil
}

func displayName(item domain.CartItem) string {
	if item.ClaimedName != "" {
		return item.ClaimedName
	}
	return item.ProductID
}

// mergeCartItems folds repeated product ids into one line, keeping first-seen order.
func mergeCartItems(items []domain.CartItem) []domain.CartItem {
	index := make(map[string]int, len(items))
	merged := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
