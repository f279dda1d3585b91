package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/storefront/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const EventTypeOrderPaid = "OrderPaid"

const orderColumns = `id, order_number, buyer_id, customer_record_id, email, customer_name, items,
	total, currency, status, shipping_address, payment_id, session_id, created_at, updated_at`

// OrderPaidEvent is the outbox payload written with every new order.
type OrderPaidEvent struct {
	OrderID     uuid.UUID              `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	BuyerID     string                 `json:"buyer_id"`
	Email       string                 `json:"email"`
	Items       []domain.OrderLineItem `json:"items"`
	Total       int64                  `json:"total"`
	Currency    string                 `json:"currency"`
	PaymentID   string                 `json:"payment_id"`
	PaidAt      time.Time              `json:"paid_at"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON []byte
	var addressJSON []byte
	if err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.BuyerID,
		&order.CustomerRecordID,
		&order.Email,
		&order.CustomerName,
		&itemsJSON,
		&order.Total,
		&order.Currency,
		&order.Status,
		&addressJSON,
		&order.PaymentID,
		&order.SessionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if len(addressJSON) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(addressJSON, &addr); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		order.ShippingAddress = &addr
	}
	return &order, nil
}

func (r *Repository) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by payment id: %w", err)
	}
	return order, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByBuyerID(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by buyer id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

// MaterializeOrder inserts the order, decrements stock for each product and
// writes an OrderPaid outbox event, all in one transaction. It returns
// ErrDuplicatePayment when an order for the payment already exists and
// ErrOrderNumberTaken when the order number collides.
//
// Decrements are applied in product id order and are not conditional on
// available stock: the payment has already been captured, so an oversold
// product is reported through the returned adjustments instead of failing.
func (r *Repository) MaterializeOrder(ctx context.Context, order *domain.Order) ([]domain.StockAdjustment, error) {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order items: %w", err)
	}

	var addressJSON sql.NullString
	if order.ShippingAddress != nil {
		raw, err := json.Marshal(order.ShippingAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal shipping address: %w", err)
		}
		addressJSON = sql.NullString{String: string(raw), Valid: true}
	}

	payload, err := json.Marshal(OrderPaidEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Email:       order.Email,
		Items:       order.Items,
		Total:       order.Total,
		Currency:    order.Currency,
		PaymentID:   order.PaymentID,
		PaidAt:      order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insertOrder := `INSERT INTO orders (id, order_number, buyer_id, customer_record_id, email, customer_name, items,
	                    total, currency, status, shipping_address, payment_id, session_id, created_at, updated_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	                ON CONFLICT (payment_id) DO NOTHING
	                RETURNING id`

	var insertedID uuid.UUID
	err = tx.QueryRowContext(ctx, insertOrder,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.CustomerRecordID,
		order.Email,
		order.CustomerName,
		itemsJSON,
		order.Total,
		order.Currency,
		order.Status,
		addressJSON,
		order.PaymentID,
		order.SessionID,
		order.CreatedAt,
		order.UpdatedAt).Scan(&insertedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicatePayment
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == orderNumberKey {
			return nil, ErrOrderNumberTaken
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	adjustments, err := decrementStock(ctx, tx, order.Items)
	if err != nil {
		return nil, err
	}

	insertEvent := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, insertEvent, order.ID.String(), EventTypeOrderPaid, payload); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return adjustments, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, items []domain.OrderLineItem) ([]domain.StockAdjustment, error) {
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	// fixed lock order across concurrent orders
	sort.Strings(ids)

	query := `UPDATE products SET stock = stock - $2, updated_at = NOW()
	          WHERE id = $1
	          RETURNING stock`

	adjustments := make([]domain.StockAdjustment, 0, len(ids))
	for _, id := range ids {
		adj := domain.StockAdjustment{ProductID: id, Quantity: quantities[id]}
		err := tx.QueryRowContext(ctx, query, id, adj.Quantity).Scan(&adj.Remaining)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			adj.Missing = true
		case err != nil:
			return nil, fmt.Errorf("decrement stock for %s: %w", id, err)
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, nil
}
