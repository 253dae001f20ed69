// Package strategy provides the interchangeable concurrency-control
// algorithms guarding stock reservations. Each strategy implements the same
// Reserver capability over the stock ledger; the active one is selected by
// configuration. Callers cannot distinguish strategies from the errors they
// return.
package strategy

import (
	"context"

	"github.com/manojdandy/orders-inventory/internal/ledger"
)

// Strategy names accepted by configuration.
const (
	NamePessimistic = "pessimistic"
	NameOptimistic  = "optimistic"
	NameDistributed = "distributed"
)

// ValidNames returns the accepted strategy names.
func ValidNames() []string {
	return []string{NamePessimistic, NameOptimistic, NameDistributed}
}

// IsValidName checks whether name is a known strategy.
func IsValidName(name string) bool {
	for _, n := range ValidNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Reserver is the capability every concurrency strategy provides. TryReserve
// performs a conditional check-and-decrement that never oversells; Release is
// the compensating increment. Both return the resulting ledger snapshot.
//
// Errors carry the stable classification from pkg/errors: ErrNotFound for an
// unknown product, ErrInsufficientStock when the quantity cannot be covered,
// and a terminal ConcurrentConflict once a strategy's internal retries are
// exhausted. Transient conflicts never escape a strategy.
type Reserver interface {
	Name() string
	TryReserve(ctx context.Context, productID string, qty int) (ledger.Snapshot, error)
	Release(ctx context.Context, productID string, qty int) (ledger.Snapshot, error)
}
