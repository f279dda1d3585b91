package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/domain"
	"github.com/google/uuid"
)

func (r *Repository) FindCustomerByBuyerID(ctx context.Context, buyerID string) (*domain.CustomerLink, error) {
	query := `SELECT id, buyer_id, email, name, provider_customer_id
	          FROM customers WHERE buyer_id = $1`

	var link domain.CustomerLink
	err := r.db.QueryRowContext(ctx, query, buyerID).Scan(
		&link.ID,
		&link.BuyerID,
		&link.Email,
		&link.Name,
		&link.ProviderCustomerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query customer by buyer id: %w", err)
	}
	return &link, nil
}

// UpsertCustomer stores the link keyed by buyer id. The returned link carries
// the record id, which stays stable across updates.
func (r *Repository) UpsertCustomer(ctx context.Context, link *domain.CustomerLink) (*domain.CustomerLink, error) {
	query := `INSERT INTO customers (id, buyer_id, email, name, provider_customer_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          ON CONFLICT (buyer_id) DO UPDATE
	          SET email = EXCLUDED.email,
	              name = EXCLUDED.name,
	              provider_customer_id = EXCLUDED.provider_customer_id,
	              updated_at = NOW()
	          RETURNING id`

	id := link.ID
	if id == "" {
		id = uuid.New().String()
	}

	saved := *link
	err := r.db.QueryRowContext(ctx, query,
		id,
		link.BuyerID,
		link.Email,
		link.Name,
		link.ProviderCustomerID).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return &saved, nil
}
