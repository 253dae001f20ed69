package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// entry is one product's stock record. mu guards quantity and version; lock
// is a capacity-1 semaphore backing ReserveLocked's exclusive hold, acquired
// with a bounded wait so callers time out instead of blocking indefinitely.
type entry struct {
	mu       sync.Mutex
	lock     chan struct{}
	quantity int
	version  int64
}

// MemoryLedger is an in-process Ledger keyed by product ID. Entries are
// created by Provision and never deleted.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]*entry)}
}

func (l *MemoryLedger) get(productID string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[productID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, apperrors.ErrNotFound)
	}
	return e, nil
}

// Get returns the current snapshot without taking any lock.
func (l *MemoryLedger) Get(_ context.Context, productID string) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// TryReserve atomically checks and decrements quantity.
func (l *MemoryLedger) TryReserve(_ context.Context, productID string, qty int) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quantity < qty {
		return Snapshot{}, apperrors.InsufficientStock(productID, e.quantity, qty)
	}
	e.quantity -= qty
	e.version++
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// TryReserveVersion decrements only if the stored version still equals
// expectedVersion.
func (l *MemoryLedger) TryReserveVersion(_ context.Context, productID string, qty int, expectedVersion int64) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.version != expectedVersion {
		return Snapshot{}, fmt.Errorf("product %s version %d, expected %d: %w",
			productID, e.version, expectedVersion, apperrors.ErrConflict)
	}
	if e.quantity < qty {
		return Snapshot{}, apperrors.InsufficientStock(productID, e.quantity, qty)
	}
	e.quantity -= qty
	e.version++
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// ReserveLocked acquires the product's exclusive lock, waiting at most
// lockWait, then performs the check-and-decrement while holding it.
func (l *MemoryLedger) ReserveLocked(ctx context.Context, productID string, qty int, lockWait time.Duration) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	if err := acquire(ctx, e.lock, lockWait); err != nil {
		return Snapshot{}, fmt.Errorf("lock product %s: %w", productID, err)
	}
	defer func() { <-e.lock }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quantity < qty {
		return Snapshot{}, apperrors.InsufficientStock(productID, e.quantity, qty)
	}
	e.quantity -= qty
	e.version++
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// acquire takes the capacity-1 semaphore, failing with ErrConflict when it
// cannot be taken within lockWait, or with the context error on cancellation.
func acquire(ctx context.Context, lock chan struct{}, lockWait time.Duration) error {
	select {
	case lock <- struct{}{}:
		return nil
	default:
	}

	if lockWait <= 0 {
		return fmt.Errorf("lock wait timeout: %w", apperrors.ErrConflict)
	}

	timer := time.NewTimer(lockWait)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("lock wait timeout after %s: %w", lockWait, apperrors.ErrConflict)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unconditionally increments quantity by qty.
func (l *MemoryLedger) Release(_ context.Context, productID string, qty int) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.quantity += qty
	e.version++
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// ApplyDelta adjusts quantity by delta, refusing to go negative.
func (l *MemoryLedger) ApplyDelta(_ context.Context, productID string, delta int) (Snapshot, error) {
	e, err := l.get(productID)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quantity+delta < 0 {
		return Snapshot{}, apperrors.InsufficientStock(productID, e.quantity, -delta)
	}
	e.quantity += delta
	e.version++
	return Snapshot{ProductID: productID, Quantity: e.quantity, Version: e.version}, nil
}

// Provision creates the stock record for a new product.
func (l *MemoryLedger) Provision(_ context.Context, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[productID]; ok {
		return fmt.Errorf("product %s already provisioned: %w", productID, apperrors.ErrConflict)
	}
	l.entries[productID] = &entry{
		lock:     make(chan struct{}, 1),
		quantity: qty,
		version:  1,
	}
	return nil
}

// ListLowStock returns snapshots with quantity at or below threshold, ordered
// by quantity ascending.
func (l *MemoryLedger) ListLowStock(_ context.Context, threshold, limit, offset int) ([]Snapshot, int, error) {
	l.mu.RLock()
	low := make([]Snapshot, 0)
	for id, e := range l.entries {
		e.mu.Lock()
		if e.quantity <= threshold {
			low = append(low, Snapshot{ProductID: id, Quantity: e.quantity, Version: e.version})
		}
		e.mu.Unlock()
	}
	l.mu.RUnlock()

	sort.Slice(low, func(i, j int) bool {
		if low[i].Quantity != low[j].Quantity {
			return low[i].Quantity < low[j].Quantity
		}
		return low[i].ProductID < low[j].ProductID
	})

	total := len(low)
	if offset >= total {
		return []Snapshot{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return low[offset:end], total, nil
}
