// Package postgres implements the stock ledger on a single stock_ledger row
// per product. The conditional decrement primitives map onto single-statement
// guarded UPDATEs, so the check-and-decrement is atomic at the database
// without any application-side locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/manojdandy/orders-inventory/internal/ledger"
	"github.com/manojdandy/orders-inventory/pkg/database"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires while
// waiting on a row lock.
const lockNotAvailable = "55P03"

// Ledger is the PostgreSQL-backed stock ledger.
type Ledger struct {
	pool database.DBTX
}

// NewLedger creates a PostgreSQL-backed stock ledger.
func NewLedger(pool database.DBTX) *Ledger {
	return &Ledger{pool: pool}
}

// Get returns the current snapshot for a product.
func (l *Ledger) Get(ctx context.Context, productID string) (ledger.Snapshot, error) {
	query := `
		SELECT product_id, quantity, version
		FROM stock_ledger
		WHERE product_id = $1`

	var s ledger.Snapshot
	err := l.pool.QueryRow(ctx, query, productID).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Snapshot{}, fmt.Errorf("product %s: %w", productID, apperrors.ErrNotFound)
		}
		return ledger.Snapshot{}, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

// TryReserve decrements quantity by qty in a single guarded UPDATE. The
// WHERE clause makes the check-and-decrement indivisible; when no row
// matches, a follow-up read distinguishes an unknown product from
// insufficient stock.
func (l *Ledger) TryReserve(ctx context.Context, productID string, qty int) (ledger.Snapshot, error) {
	query := `
		UPDATE stock_ledger
		SET quantity = quantity - $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $1 AND quantity >= $2
		RETURNING product_id, quantity, version`

	var s ledger.Snapshot
	err := l.pool.QueryRow(ctx, query, productID, qty).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("reserve stock: %w", err)
	}

	current, err := l.Get(ctx, productID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{}, apperrors.InsufficientStock(productID, current.Quantity, qty)
}

// TryReserveVersion decrements only when the stored version still equals
// expectedVersion (compare-and-swap on the version column).
func (l *Ledger) TryReserveVersion(ctx context.Context, productID string, qty int, expectedVersion int64) (ledger.Snapshot, error) {
	query := `
		UPDATE stock_ledger
		SET quantity = quantity - $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $1 AND version = $3 AND quantity >= $2
		RETURNING product_id, quantity, version`

	var s ledger.Snapshot
	err := l.pool.QueryRow(ctx, query, productID, qty, expectedVersion).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("reserve stock (versioned): %w", err)
	}

	current, err := l.Get(ctx, productID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if current.Version != expectedVersion {
		return ledger.Snapshot{}, fmt.Errorf("product %s version %d, expected %d: %w",
			productID, current.Version, expectedVersion, apperrors.ErrConflict)
	}
	return ledger.Snapshot{}, apperrors.InsufficientStock(productID, current.Quantity, qty)
}

// ReserveLocked locks the product row with SELECT ... FOR UPDATE, bounded by
// lock_timeout, then performs the check-and-decrement inside the same
// transaction. Lock-wait expiry surfaces as ErrConflict.
func (l *Ledger) ReserveLocked(ctx context.Context, productID string, qty int, lockWait time.Duration) (ledger.Snapshot, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// lock_timeout only accepts a literal, not a bind parameter.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockWait.Milliseconds())); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("set lock timeout: %w", err)
	}

	var quantity int
	var version int64
	err = tx.QueryRow(ctx,
		"SELECT quantity, version FROM stock_ledger WHERE product_id = $1 FOR UPDATE",
		productID,
	).Scan(&quantity, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Snapshot{}, fmt.Errorf("product %s: %w", productID, apperrors.ErrNotFound)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return ledger.Snapshot{}, fmt.Errorf("lock product %s: lock wait timeout after %s: %w",
				productID, lockWait, apperrors.ErrConflict)
		}
		return ledger.Snapshot{}, fmt.Errorf("lock stock row: %w", err)
	}

	if quantity < qty {
		return ledger.Snapshot{}, apperrors.InsufficientStock(productID, quantity, qty)
	}

	var s ledger.Snapshot
	err = tx.QueryRow(ctx, `
		UPDATE stock_ledger
		SET quantity = quantity - $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $1
		RETURNING product_id, quantity, version`,
		productID, qty,
	).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("reserve stock (locked): %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("commit transaction: %w", err)
	}
	return s, nil
}

// Release unconditionally increments quantity by qty.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) (ledger.Snapshot, error) {
	query := `
		UPDATE stock_ledger
		SET quantity = quantity + $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $1
		RETURNING product_id, quantity, version`

	var s ledger.Snapshot
	err := l.pool.QueryRow(ctx, query, productID, qty).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Snapshot{}, fmt.Errorf("product %s: %w", productID, apperrors.ErrNotFound)
		}
		return ledger.Snapshot{}, fmt.Errorf("release stock: %w", err)
	}
	return s, nil
}

// ApplyDelta adjusts quantity by delta, refusing a write that would take it
// negative.
func (l *Ledger) ApplyDelta(ctx context.Context, productID string, delta int) (ledger.Snapshot, error) {
	query := `
		UPDATE stock_ledger
		SET quantity = quantity + $2, version = version + 1, updated_at = NOW()
		WHERE product_id = $1 AND quantity + $2 >= 0
		RETURNING product_id, quantity, version`

	var s ledger.Snapshot
	err := l.pool.QueryRow(ctx, query, productID, delta).Scan(&s.ProductID, &s.Quantity, &s.Version)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("apply stock delta: %w", err)
	}

	current, err := l.Get(ctx, productID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{}, apperrors.InsufficientStock(productID, current.Quantity, -delta)
}

// Provision creates the stock record for a new product with version 1.
func (l *Ledger) Provision(ctx context.Context, productID string, qty int) error {
	query := `
		INSERT INTO stock_ledger (product_id, quantity, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (product_id) DO NOTHING`

	tag, err := l.pool.Exec(ctx, query, productID, qty)
	if err != nil {
		return fmt.Errorf("provision stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s already provisioned: %w", productID, apperrors.ErrConflict)
	}
	return nil
}

// ListLowStock returns snapshots with quantity at or below threshold, ordered
// by quantity ascending.
func (l *Ledger) ListLowStock(ctx context.Context, threshold, limit, offset int) ([]ledger.Snapshot, int, error) {
	var total int
	err := l.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM stock_ledger WHERE quantity <= $1", threshold,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count low stock: %w", err)
	}

	query := `
		SELECT product_id, quantity, version
		FROM stock_ledger
		WHERE quantity <= $1
		ORDER BY quantity ASC, product_id ASC
		LIMIT $2 OFFSET $3`

	rows, err := l.pool.Query(ctx, query, threshold, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	snapshots := make([]ledger.Snapshot, 0)
	for rows.Next() {
		var s ledger.Snapshot
		if err := rows.Scan(&s.ProductID, &s.Quantity, &s.Version); err != nil {
			return nil, 0, fmt.Errorf("scan low stock row: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate low stock rows: %w", err)
	}

	return snapshots, total, nil
}
