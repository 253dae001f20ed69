// Package ledger holds the authoritative per-product stock record: a
// quantity that can never go negative and a version that strictly increases
// on every successful mutation. All writes go through the conditional
// primitives below; no other component mutates stock directly.
package ledger

import (
	"context"
	"time"
)

// Snapshot is the observable state of one product's stock record.
type Snapshot struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Version   int64  `json:"version"`
}

// Ledger is the contract for all stock mutations. Every operation is atomic
// with respect to concurrent callers on the same product; operations on
// different products never serialize against each other.
//
// TryReserve, TryReserveVersion, and ReserveLocked are the three conditional
// decrement primitives the concurrency strategies build on. All of them fail
// with apperrors.ErrNotFound for an unknown product and
// apperrors.ErrInsufficientStock when quantity < qty, leaving the record
// untouched.
type Ledger interface {
	// Get returns the current snapshot without taking any lock.
	Get(ctx context.Context, productID string) (Snapshot, error)

	// TryReserve atomically checks quantity >= qty and decrements. The
	// check-and-decrement is indivisible; concurrent callers serialize
	// per product.
	TryReserve(ctx context.Context, productID string, qty int) (Snapshot, error)

	// TryReserveVersion decrements only if the stored version still equals
	// expectedVersion (compare-and-swap). Returns apperrors.ErrConflict on
	// version mismatch.
	TryReserveVersion(ctx context.Context, productID string, qty int, expectedVersion int64) (Snapshot, error)

	// ReserveLocked takes an exclusive per-product lock, waiting at most
	// lockWait for it, then performs the check-and-decrement while holding
	// the lock. Returns apperrors.ErrConflict when the lock cannot be
	// acquired within lockWait.
	ReserveLocked(ctx context.Context, productID string, qty int, lockWait time.Duration) (Snapshot, error)

	// Release unconditionally increments quantity by qty. It is the
	// compensating operation for a reservation and fails only for an
	// unknown product.
	Release(ctx context.Context, productID string, qty int) (Snapshot, error)

	// ApplyDelta adjusts quantity by delta (negative for reservations
	// reconciled from a cache). Fails with apperrors.ErrInsufficientStock
	// rather than letting quantity go negative.
	ApplyDelta(ctx context.Context, productID string, delta int) (Snapshot, error)

	// Provision creates the stock record for a new product with the given
	// initial quantity and version 1.
	Provision(ctx context.Context, productID string, qty int) error

	// ListLowStock returns snapshots with quantity at or below threshold,
	// ordered by quantity ascending, plus the total match count.
	ListLowStock(ctx context.Context, threshold, limit, offset int) ([]Snapshot, int, error)
}
