package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/pkg/database"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// OrderRepository is a PostgreSQL-backed order repository.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, product_id, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		order.ID, order.ProductID, order.Quantity, order.Status,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, product_id, quantity, status, created_at, updated_at
		FROM orders
		WHERE id = $1`

	var o domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// UpdateStatus sets the order's status if its current status is one of from.
// The guarded UPDATE makes the check-and-write a single atomic statement; a
// zero row count is disambiguated by re-reading the row.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string, from ...string) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`

	tag, err := r.pool.Exec(ctx, query, id, status, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := r.pool.QueryRow(ctx, "SELECT status FROM orders WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return fmt.Errorf("order %s is %s, not one of %v: %w", id, current, from, apperrors.ErrConflict)
	}
	return nil
}
