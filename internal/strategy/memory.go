package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// MemoryLocker is an in-process Locker with TTL-bounded, fenced leases.
// Tokens come from a single monotonic counter, so a later acquisition always
// carries a higher token than any expired predecessor.
type MemoryLocker struct {
	mu        sync.Mutex
	nextToken int64
	held      map[string]memoryLease
}

type memoryLease struct {
	token     int64
	expiresAt time.Time
}

// NewMemoryLocker creates an in-memory fenced locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLease)}
}

// Acquire takes the product lease if it is free or expired. A live lease held
// elsewhere fails with a retryable conflict.
func (m *MemoryLocker) Acquire(_ context.Context, productID string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.held[productID]; ok && time.Now().Before(cur.expiresAt) {
		return Lease{}, fmt.Errorf("lease for product %s held: %w", productID, apperrors.ErrConflict)
	}

	m.nextToken++
	lease := memoryLease{token: m.nextToken, expiresAt: time.Now().Add(ttl)}
	m.held[productID] = lease
	return Lease{ProductID: productID, Token: lease.token}, nil
}

// Release frees the lease only when the caller still owns it; a stale token
// is a no-op so a late releaser cannot free a successor's lease.
func (m *MemoryLocker) Release(_ context.Context, lease Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.held[lease.ProductID]; ok && cur.token == lease.Token {
		delete(m.held, lease.ProductID)
	}
	return nil
}

// MemoryCounter is an in-process fenced Counter. Each product remembers the
// highest fencing token that mutated it and rejects anything lower.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

type counterEntry struct {
	value     int
	lastToken int64
}

// NewMemoryCounter creates an in-memory fenced counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*counterEntry)}
}

// Value returns the cached count for a product.
func (m *MemoryCounter) Value(_ context.Context, productID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[productID]
	if !ok {
		return 0, false, nil
	}
	return e.value, true, nil
}

// Ensure initializes the cached count if absent.
func (m *MemoryCounter) Ensure(_ context.Context, productID string, quantity int, token int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[productID]; !ok {
		m.entries[productID] = &counterEntry{value: quantity, lastToken: token}
	}
	return nil
}

func (m *MemoryCounter) fenced(productID string, token int64) (*counterEntry, error) {
	e, ok := m.entries[productID]
	if !ok {
		return nil, fmt.Errorf("counter for product %s not initialized: %w", productID, apperrors.ErrNotFound)
	}
	if token < e.lastToken {
		return nil, fmt.Errorf("stale fencing token %d (current %d) for product %s: %w",
			token, e.lastToken, productID, apperrors.ErrConflict)
	}
	e.lastToken = token
	return e, nil
}

// Decrement subtracts qty under the fencing token.
func (m *MemoryCounter) Decrement(_ context.Context, productID string, qty int, token int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.fenced(productID, token)
	if err != nil {
		return 0, err
	}
	if e.value < qty {
		return 0, apperrors.InsufficientStock(productID, e.value, qty)
	}
	e.value -= qty
	return e.value, nil
}

// Increment adds qty under the fencing token.
func (m *MemoryCounter) Increment(_ context.Context, productID string, qty int, token int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.fenced(productID, token)
	if err != nil {
		return 0, err
	}
	e.value += qty
	return e.value, nil
}

// MemoryJournal is an in-process FIFO delta journal.
type MemoryJournal struct {
	mu      sync.Mutex
	pending []Delta
}

// NewMemoryJournal creates an in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append adds a delta to the back of the journal.
func (m *MemoryJournal) Append(_ context.Context, d Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, d)
	return nil
}

// Drain removes and returns up to max pending deltas in FIFO order.
func (m *MemoryJournal) Drain(_ context.Context, max int) ([]Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pending)
	if max > 0 && n > max {
		n = max
	}
	out := make([]Delta, n)
	copy(out, m.pending[:n])
	m.pending = m.pending[n:]
	return out, nil
}

// Requeue puts a failed delta at the front so it is retried first.
func (m *MemoryJournal) Requeue(_ context.Context, d Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append([]Delta{d}, m.pending...)
	return nil
}

// Len reports the number of pending deltas.
func (m *MemoryJournal) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
