package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/internal/ledger"
	"github.com/manojdandy/orders-inventory/internal/repository"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// ProductService provisions products and exposes the stock read models. It
// is the only writer of the catalog; stock quantities remain owned by the
// ledger.
type ProductService struct {
	products repository.ProductRepository
	ledger   ledger.Ledger
	logger   *slog.Logger
}

// NewProductService creates the product provisioning service.
func NewProductService(products repository.ProductRepository, l ledger.Ledger, logger *slog.Logger) *ProductService {
	return &ProductService{products: products, ledger: l, logger: logger}
}

// CreateProduct registers a product and provisions its stock ledger entry
// with the initial quantity.
func (s *ProductService) CreateProduct(ctx context.Context, sku, name string, price int64, stock int) (*domain.Product, error) {
	if stock < 0 {
		return nil, apperrors.Validation("stock", "stock must be non-negative")
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:        uuid.New().String(),
		SKU:       sku,
		Name:      name,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Validation("sku", fmt.Sprintf("sku %s already exists", sku))
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := s.ledger.Provision(ctx, product.ID, stock); err != nil {
		// Unwind the catalog entry so no product exists without a stock
		// record.
		if delErr := s.products.Delete(ctx, product.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to remove product after provisioning failure",
				slog.String("product_id", product.ID),
				slog.String("sku", sku),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("provision stock: %w", err)
	}

	s.logger.InfoContext(ctx, "product provisioned",
		slog.String("product_id", product.ID),
		slog.String("sku", sku),
		slog.Int("stock", stock),
	)
	return product, nil
}

// GetStock returns the product's catalog identity combined with its current
// ledger snapshot.
func (s *ProductService) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	snap, err := s.ledger.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}

	return &domain.StockLevel{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Quantity:  snap.Quantity,
		Version:   snap.Version,
	}, nil
}

// ListLowStock returns ledger snapshots at or below threshold.
func (s *ProductService) ListLowStock(ctx context.Context, threshold, limit, offset int) ([]ledger.Snapshot, int, error) {
	snapshots, total, err := s.ledger.ListLowStock(ctx, threshold, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	return snapshots, total, nil
}
