package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/manojdandy/orders-inventory/internal/ledger"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// Pessimistic serializes reservations by taking an exclusive per-product lock
// on the ledger row before the check-and-decrement. Callers block up to
// lockWait; past that the attempt fails with a terminal ConcurrentConflict
// instead of hanging.
type Pessimistic struct {
	ledger   ledger.Ledger
	lockWait time.Duration
	logger   *slog.Logger
}

// NewPessimistic creates the lock-based strategy.
func NewPessimistic(l ledger.Ledger, lockWait time.Duration, logger *slog.Logger) *Pessimistic {
	return &Pessimistic{ledger: l, lockWait: lockWait, logger: logger}
}

// Name returns the configuration name of this strategy.
func (p *Pessimistic) Name() string { return NamePessimistic }

// TryReserve acquires the product lock and decrements while holding it.
func (p *Pessimistic) TryReserve(ctx context.Context, productID string, qty int) (snap ledger.Snapshot, err error) {
	start := time.Now()
	defer func() { observe(NamePessimistic, start, err) }()

	snap, err = p.ledger.ReserveLocked(ctx, productID, qty, p.lockWait)
	if err != nil {
		// A lock-wait expiry is the only transient failure here; with no
		// internal retry loop it is terminal for this attempt.
		var appErr *apperrors.AppError
		if errors.Is(err, apperrors.ErrConflict) && !errors.As(err, &appErr) {
			p.logger.WarnContext(ctx, "lock wait timed out",
				slog.String("product_id", productID),
				slog.Duration("lock_wait", p.lockWait),
			)
			return ledger.Snapshot{}, apperrors.ConcurrentConflict(
				fmt.Sprintf("could not lock product %s within %s", productID, p.lockWait))
		}
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// Release returns qty to the ledger unconditionally.
func (p *Pessimistic) Release(ctx context.Context, productID string, qty int) (ledger.Snapshot, error) {
	return p.ledger.Release(ctx, productID, qty)
}
