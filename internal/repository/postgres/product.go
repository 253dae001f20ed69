package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/pkg/database"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// uniqueViolation is the SQLSTATE for a unique-constraint violation.
const uniqueViolation = "23505"

// ProductRepository is a PostgreSQL-backed product repository.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a new product, rejecting duplicate SKUs.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, sku, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		product.ID, product.SKU, product.Name, product.Price,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("sku %s already exists: %w", product.SKU, apperrors.ErrConflict)
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, sku, name, price, created_at, updated_at
		FROM products
		WHERE id = $1`

	var p domain.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
