package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/manojdandy/orders-inventory/internal/ledger"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
	"github.com/manojdandy/orders-inventory/pkg/retry"
)

// Optimistic reserves without locking: it reads (quantity, version), checks
// sufficiency, then applies the decrement only if the version is unchanged.
// Version mismatches are retried with jittered backoff up to the policy's
// attempt bound; the whole read-check-apply cycle re-runs each time so no
// stale state is reused. It never blocks.
type Optimistic struct {
	ledger ledger.Ledger
	policy retry.Policy
	logger *slog.Logger
}

// NewOptimistic creates the compare-and-swap strategy.
func NewOptimistic(l ledger.Ledger, policy retry.Policy, logger *slog.Logger) *Optimistic {
	return &Optimistic{ledger: l, policy: policy, logger: logger}
}

// Name returns the configuration name of this strategy.
func (o *Optimistic) Name() string { return NameOptimistic }

// TryReserve runs the read-check-CAS cycle under the retry policy.
func (o *Optimistic) TryReserve(ctx context.Context, productID string, qty int) (snap ledger.Snapshot, err error) {
	start := time.Now()
	defer func() { observe(NameOptimistic, start, err) }()

	attempt := 0
	err = o.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		current, err := o.ledger.Get(ctx, productID)
		if err != nil {
			return err
		}
		if current.Quantity < qty {
			return apperrors.InsufficientStock(productID, current.Quantity, qty)
		}

		snap, err = o.ledger.TryReserveVersion(ctx, productID, qty, current.Version)
		if err != nil {
			if apperrors.Retryable(err) {
				reservationConflictRetries.WithLabelValues(NameOptimistic).Inc()
				o.logger.DebugContext(ctx, "version conflict, retrying",
					slog.String("product_id", productID),
					slog.Int("attempt", attempt),
					slog.Int64("read_version", current.Version),
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// Release returns qty to the ledger unconditionally.
func (o *Optimistic) Release(ctx context.Context, productID string, qty int) (ledger.Snapshot, error) {
	return o.ledger.Release(ctx, productID, qty)
}
