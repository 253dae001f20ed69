package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/manojdandy/orders-inventory/internal/domain"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// MemoryProductRepository is an in-process ProductRepository.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	bySKU    map[string]string
}

// NewMemoryProductRepository creates an empty in-memory product repository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[string]domain.Product),
		bySKU:    make(map[string]string),
	}
}

// Create inserts a new product, rejecting duplicate SKUs.
func (r *MemoryProductRepository) Create(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySKU[product.SKU]; ok {
		return fmt.Errorf("sku %s already exists: %w", product.SKU, apperrors.ErrConflict)
	}
	r.products[product.ID] = *product
	r.bySKU[product.SKU] = product.ID
	return nil
}

// GetByID retrieves a product by its identifier.
func (r *MemoryProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperrors.ErrNotFound)
	}
	return &p, nil
}

// Delete removes a product.
func (r *MemoryProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, apperrors.ErrNotFound)
	}
	delete(r.products, id)
	delete(r.bySKU, p.SKU)
	return nil
}

// MemoryOrderRepository is an in-process OrderRepository.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewMemoryOrderRepository creates an empty in-memory order repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]domain.Order)}
}

// Create inserts a new order.
func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", order.ID, apperrors.ErrConflict)
	}
	r.orders[order.ID] = *order
	return nil
}

// GetByID retrieves an order by its identifier.
func (r *MemoryOrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
	}
	return &o, nil
}

// UpdateStatus sets the order's status if its current status is one of from.
// The check and the write happen under the same write lock.
func (r *MemoryOrderRepository) UpdateStatus(_ context.Context, id, status string, from ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
	}
	if !slices.Contains(from, o.Status) {
		return fmt.Errorf("order %s is %s, not one of %v: %w", id, o.Status, from, apperrors.ErrConflict)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return nil
}
