package repository

import (
	"context"

	"github.com/manojdandy/orders-inventory/internal/domain"
)

// ProductRepository defines the persistence interface for the product catalog.
type ProductRepository interface {
	// Create inserts a new product. A duplicate SKU fails with ErrConflict.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// Delete removes a product. Used to unwind a half-finished provisioning
	// when the stock record cannot be created.
	Delete(ctx context.Context, id string) error
}

// OrderRepository defines the persistence interface for orders.
type OrderRepository interface {
	// Create inserts a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// UpdateStatus sets the order's status, but only while its current
	// status is one of from. Losing that race fails with ErrConflict; a
	// missing order fails with ErrNotFound. The check and the write are a
	// single atomic step, so at most one concurrent caller wins a given
	// transition.
	UpdateStatus(ctx context.Context, id, status string, from ...string) error
}
