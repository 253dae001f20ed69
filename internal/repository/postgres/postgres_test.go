package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manojdandy/orders-inventory/internal/domain"
	"github.com/manojdandy/orders-inventory/pkg/database"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:        "prod-1",
		SKU:       "SKU-001",
		Name:      "Widget",
		Price:     1999,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:        "order-1",
		ProductID: "prod-1",
		Quantity:  3,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProductRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("INSERT INTO products").
		WithArgs(p.ID, p.SKU, p.Name, p.Price, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), &p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Create_DuplicateSKU(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("INSERT INTO products").
		WithArgs(p.ID, p.SKU, p.Name, p.Price, p.CreatedAt, p.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "products_sku_key"})

	err := repo.Create(context.Background(), &p)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "sku", "name", "price", "created_at", "updated_at"}).
			AddRow(p.ID, p.SKU, p.Name, p.Price, p.CreatedAt, p.UpdatedAt))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "prod-x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	o := sampleOrder()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.ProductID, o.Quantity, o.Status, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), &o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	o := sampleOrder()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.ProductID, o.Quantity, o.Status, o.CreatedAt, o.UpdatedAt).
		WillReturnError(errors.New("db write error"))

	err := repo.Create(context.Background(), &o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	o := sampleOrder()
	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "quantity", "status", "created_at", "updated_at"}).
			AddRow(o.ID, o.ProductID, o.Quantity, o.Status, o.CreatedAt, o.UpdatedAt))

	got, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", domain.OrderStatusPaid, []string{domain.OrderStatusPending}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "order-1",
		domain.OrderStatusPaid, domain.OrderStatusPending))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("UPDATE orders").
		WithArgs("order-x", domain.OrderStatusPaid, []string{domain.OrderStatusPending}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-x").
		WillReturnError(pgx.ErrNoRows)

	err := repo.UpdateStatus(context.Background(), "order-x",
		domain.OrderStatusPaid, domain.OrderStatusPending)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus_LostTransitionRace(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	// The guarded UPDATE matches no row because another caller already moved
	// the order to CANCELLED.
	mock.ExpectExec("UPDATE orders").
		WithArgs("order-1", domain.OrderStatusCancelled, []string{domain.OrderStatusPending, domain.OrderStatusPaid}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.OrderStatusCancelled))

	err := repo.UpdateStatus(context.Background(), "order-1",
		domain.OrderStatusCancelled, domain.OrderStatusPending, domain.OrderStatusPaid)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
