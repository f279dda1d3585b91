package repository

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/domain"
	"github.com/lib/pq"
)

// GetProductSnapshots reads every requested product in one round trip.
// Unpublished and unknown ids are left out of the result.
func (r *Repository) GetProductSnapshots(ctx context.Context, productIDs []string) ([]domain.ProductSnapshot, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, price, stock
	          FROM products
	          WHERE id = ANY($1) AND published = TRUE`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("query product snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.ProductSnapshot, 0, len(productIDs))
	for rows.Next() {
		var p domain.ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.AvailableStock); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		snapshots = append(snapshots, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return snapshots, nil
}

// SaveProduct inserts or replaces a catalog entry.
func (r *Repository) SaveProduct(ctx context.Context, p domain.ProductSnapshot, published bool) error {
	query := `INSERT INTO products (id, name, price, stock, published, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          ON CONFLICT (id) DO UPDATE
	          SET name = EXCLUDED.name,
	              price = EXCLUDED.price,
	              stock = EXCLUDED.stock,
	              published = EXCLUDED.published,
	              updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.UnitPrice, p.AvailableStock, published); err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}
	return nil
}
