package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/manojdandy/orders-inventory/internal/ledger"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
	"github.com/manojdandy/orders-inventory/pkg/retry"
)

// Lease is a fenced, time-bounded exclusive hold on a product. Token is
// monotonically increasing across acquisitions of the same product, so a
// writer whose lease expired can be recognized and rejected downstream.
type Lease struct {
	ProductID string
	Token     int64
}

// Locker hands out fenced leases. Acquire fails with a retryable ErrConflict
// while another holder's lease is live; it never blocks past ctx.
type Locker interface {
	Acquire(ctx context.Context, productID string, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, lease Lease) error
}

// Counter is the fast cached stock counter guarded by the lease's fencing
// token. Implementations must reject any mutation whose token is lower than
// the highest token they have seen for the product (stale writer), returning
// ErrConflict.
type Counter interface {
	// Value returns the cached count; ok is false when the product has not
	// been loaded into the cache yet.
	Value(ctx context.Context, productID string) (int, bool, error)
	// Ensure initializes the cached count if absent.
	Ensure(ctx context.Context, productID string, quantity int, token int64) error
	// Decrement subtracts qty if the cached count covers it, returning the
	// remaining count. Fails with ErrInsufficientStock otherwise.
	Decrement(ctx context.Context, productID string, qty int, token int64) (int, error)
	// Increment adds qty, returning the new count.
	Increment(ctx context.Context, productID string, qty int, token int64) (int, error)
}

// Delta is one pending mutation awaiting reconciliation into the durable
// ledger. Negative for reservations, positive for releases.
type Delta struct {
	ProductID string
	Delta     int
	Attempts  int
}

// Journal buffers deltas between the cached counter and the durable ledger.
// A delta stays in the journal until the reconciler applies it; failed
// applications are requeued, never dropped.
type Journal interface {
	Append(ctx context.Context, d Delta) error
	// Drain removes and returns up to max pending deltas.
	Drain(ctx context.Context, max int) ([]Delta, error)
	Requeue(ctx context.Context, d Delta) error
}

// Distributed reserves against a cached counter guarded by a fenced lease,
// journaling every accepted mutation for asynchronous reconciliation into the
// durable ledger. It trades a bounded reconciliation window for the highest
// throughput under extreme contention.
type Distributed struct {
	ledger   ledger.Ledger
	locker   Locker
	counter  Counter
	journal  Journal
	leaseTTL time.Duration
	policy   retry.Policy
	logger   *slog.Logger
}

// NewDistributed creates the lease-and-cache strategy.
func NewDistributed(l ledger.Ledger, locker Locker, counter Counter, journal Journal, leaseTTL time.Duration, policy retry.Policy, logger *slog.Logger) *Distributed {
	return &Distributed{
		ledger:   l,
		locker:   locker,
		counter:  counter,
		journal:  journal,
		leaseTTL: leaseTTL,
		policy:   policy,
		logger:   logger,
	}
}

// Name returns the configuration name of this strategy.
func (d *Distributed) Name() string { return NameDistributed }

// TryReserve acquires the product lease, decrements the cached counter under
// its fencing token, and journals the delta. Lease contention and stale
// tokens retry under the policy; insufficient stock is terminal.
func (d *Distributed) TryReserve(ctx context.Context, productID string, qty int) (snap ledger.Snapshot, err error) {
	start := time.Now()
	defer func() { observe(NameDistributed, start, err) }()

	err = d.policy.Do(ctx, func(ctx context.Context) error {
		lease, err := d.locker.Acquire(ctx, productID, d.leaseTTL)
		if err != nil {
			if apperrors.Retryable(err) {
				reservationConflictRetries.WithLabelValues(NameDistributed).Inc()
			}
			return err
		}
		defer func() {
			if relErr := d.locker.Release(ctx, lease); relErr != nil {
				d.logger.WarnContext(ctx, "lease release failed",
					slog.String("product_id", productID),
					slog.Int64("token", lease.Token),
					slog.String("error", relErr.Error()),
				)
			}
		}()

		if err := d.warmCache(ctx, productID, lease.Token); err != nil {
			return err
		}

		remaining, err := d.counter.Decrement(ctx, productID, qty, lease.Token)
		if err != nil {
			if apperrors.Retryable(err) {
				reservationConflictRetries.WithLabelValues(NameDistributed).Inc()
			}
			return err
		}

		if err := d.journal.Append(ctx, Delta{ProductID: productID, Delta: -qty}); err != nil {
			// Undo the cache decrement so the counter and journal stay consistent.
			if _, incErr := d.counter.Increment(ctx, productID, qty, lease.Token); incErr != nil {
				d.logger.ErrorContext(ctx, "failed to undo cache decrement after journal error",
					slog.String("product_id", productID),
					slog.Int("quantity", qty),
					slog.String("error", incErr.Error()),
				)
			}
			return err
		}

		// The durable version only advances at reconciliation; the snapshot
		// carries the fencing token instead.
		snap = ledger.Snapshot{ProductID: productID, Quantity: remaining, Version: lease.Token}
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// warmCache loads the cached counter from the durable ledger on first touch.
// An unknown product surfaces NotFound before any mutation happens.
func (d *Distributed) warmCache(ctx context.Context, productID string, token int64) error {
	if _, ok, err := d.counter.Value(ctx, productID); err != nil || ok {
		return err
	}
	durable, err := d.ledger.Get(ctx, productID)
	if err != nil {
		return err
	}
	return d.counter.Ensure(ctx, productID, durable.Quantity, token)
}

// Release increments the cached counter under a fresh lease and journals the
// compensating delta.
func (d *Distributed) Release(ctx context.Context, productID string, qty int) (snap ledger.Snapshot, err error) {
	err = d.policy.Do(ctx, func(ctx context.Context) error {
		lease, err := d.locker.Acquire(ctx, productID, d.leaseTTL)
		if err != nil {
			return err
		}
		defer func() { _ = d.locker.Release(ctx, lease) }()

		if err := d.warmCache(ctx, productID, lease.Token); err != nil {
			return err
		}

		value, err := d.counter.Increment(ctx, productID, qty, lease.Token)
		if err != nil {
			return err
		}

		if err := d.journal.Append(ctx, Delta{ProductID: productID, Delta: qty}); err != nil {
			if _, decErr := d.counter.Decrement(ctx, productID, qty, lease.Token); decErr != nil {
				d.logger.ErrorContext(ctx, "failed to undo cache increment after journal error",
					slog.String("product_id", productID),
					slog.String("error", decErr.Error()),
				)
			}
			return err
		}

		snap = ledger.Snapshot{ProductID: productID, Quantity: value, Version: lease.Token}
		return nil
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}
