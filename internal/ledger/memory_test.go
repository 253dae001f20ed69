package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

func newProvisioned(t *testing.T, productID string, qty int) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	require.NoError(t, l.Provision(context.Background(), productID, qty))
	return l
}

func TestMemoryLedger_Provision(t *testing.T) {
	l := newProvisioned(t, "p1", 10)

	snap, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Quantity)
	assert.Equal(t, int64(1), snap.Version)

	err = l.Provision(context.Background(), "p1", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMemoryLedger_Get_NotFound(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemoryLedger_TryReserve(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	snap, err := l.TryReserve(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Quantity)
	assert.Equal(t, int64(2), snap.Version)
}

func TestMemoryLedger_TryReserve_Insufficient_LeavesStateUnchanged(t *testing.T) {
	l := newProvisioned(t, "p1", 2)

	before, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)

	_, err = l.TryReserve(context.Background(), "p1", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	after, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMemoryLedger_TryReserveVersion(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	snap, err := l.TryReserveVersion(context.Background(), "p1", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Quantity)
	assert.Equal(t, int64(2), snap.Version)

	// Stale version is rejected without touching the record.
	_, err = l.TryReserveVersion(context.Background(), "p1", 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	after, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, snap, after)
}

func TestMemoryLedger_ReserveLocked(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	snap, err := l.ReserveLocked(context.Background(), "p1", 2, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Quantity)
}

func TestMemoryLedger_ReserveLocked_Timeout(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	// Occupy the product lock so the caller has to wait.
	e := l.entries["p1"]
	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	start := time.Now()
	_, err := l.ReserveLocked(context.Background(), "p1", 1, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must be bounded")

	// The failed attempt must not have touched the record.
	snap, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Quantity)
	assert.Equal(t, int64(1), snap.Version)
}

func TestMemoryLedger_Release_RoundTrip(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	_, err := l.TryReserve(context.Background(), "p1", 4)
	require.NoError(t, err)

	snap, err := l.Release(context.Background(), "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Quantity)
	assert.Equal(t, int64(3), snap.Version)
}

func TestMemoryLedger_ApplyDelta(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	snap, err := l.ApplyDelta(context.Background(), "p1", -3)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Quantity)

	_, err = l.ApplyDelta(context.Background(), "p1", -3)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	snap, err = l.ApplyDelta(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Quantity)
}

// With stock 5 and 20 concurrent single-unit reservations, exactly 5 succeed
// and the rest fail with InsufficientStock; the final quantity is zero.
func TestMemoryLedger_TryReserve_NoOverselling(t *testing.T) {
	l := newProvisioned(t, "p1", 5)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.TryReserve(context.Background(), "p1", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, apperrors.ErrInsufficientStock)
			insufficient++
		}
	}

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, insufficient)

	snap, err := l.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Quantity)
}

func TestMemoryLedger_ListLowStock(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Provision(context.Background(), "a", 2))
	require.NoError(t, l.Provision(context.Background(), "b", 50))
	require.NoError(t, l.Provision(context.Background(), "c", 0))
	require.NoError(t, l.Provision(context.Background(), "d", 10))

	low, total, err := l.ListLowStock(context.Background(), 10, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, low, 3)
	assert.Equal(t, "c", low[0].ProductID)
	assert.Equal(t, "a", low[1].ProductID)
	assert.Equal(t, "d", low[2].ProductID)

	// Pagination window.
	page, total, err := l.ListLowStock(context.Background(), 10, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ProductID)
}
