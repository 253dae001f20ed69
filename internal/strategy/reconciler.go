package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/manojdandy/orders-inventory/internal/ledger"
)

// reconcileBatchSize bounds how many journal deltas one pass applies.
const reconcileBatchSize = 256

// DiscrepancyFunc is invoked when a journaled delta cannot be applied to the
// durable ledger. The delta has already been requeued; the callback only
// surfaces the discrepancy to the audit path.
type DiscrepancyFunc func(ctx context.Context, d Delta, err error)

// Reconciler periodically folds journaled cache deltas into the durable
// ledger, keeping the reconciliation window of the distributed strategy
// bounded. Failed deltas are requeued for the next pass and reported through
// the discrepancy callback, never dropped.
type Reconciler struct {
	ledger    ledger.Ledger
	journal   Journal
	interval  time.Duration
	onDiscrep DiscrepancyFunc
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. onDiscrepancy may be nil.
func NewReconciler(l ledger.Ledger, journal Journal, interval time.Duration, onDiscrepancy DiscrepancyFunc, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger:    l,
		journal:   journal,
		interval:  interval,
		onDiscrep: onDiscrepancy,
		logger:    logger,
	}
}

// Run reconciles on every tick until ctx is canceled, then performs one final
// flush so a clean shutdown leaves no journaled delta behind.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush drains and applies one batch of pending deltas. Deltas for the same
// product are coalesced into a single ledger write.
func (r *Reconciler) Flush(ctx context.Context) {
	deltas, err := r.journal.Drain(ctx, reconcileBatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "journal drain failed", slog.String("error", err.Error()))
		return
	}
	if len(deltas) == 0 {
		return
	}

	merged := make(map[string]int, len(deltas))
	attempts := make(map[string]int, len(deltas))
	for _, d := range deltas {
		merged[d.ProductID] += d.Delta
		if d.Attempts > attempts[d.ProductID] {
			attempts[d.ProductID] = d.Attempts
		}
	}

	for productID, delta := range merged {
		if delta == 0 {
			continue
		}
		snap, err := r.ledger.ApplyDelta(ctx, productID, delta)
		if err != nil {
			failed := Delta{ProductID: productID, Delta: delta, Attempts: attempts[productID] + 1}
			if reqErr := r.journal.Requeue(ctx, failed); reqErr != nil {
				r.logger.ErrorContext(ctx, "requeue of failed delta lost",
					slog.String("product_id", productID),
					slog.Int("delta", delta),
					slog.String("error", reqErr.Error()),
				)
			}
			r.logger.ErrorContext(ctx, "reconciliation delta failed",
				slog.String("product_id", productID),
				slog.Int("delta", delta),
				slog.Int("attempts", failed.Attempts),
				slog.String("error", err.Error()),
			)
			if r.onDiscrep != nil {
				r.onDiscrep(ctx, failed, err)
			}
			continue
		}
		r.logger.DebugContext(ctx, "delta reconciled",
			slog.String("product_id", productID),
			slog.Int("delta", delta),
			slog.Int("quantity", snap.Quantity),
			slog.Int64("version", snap.Version),
		)
	}
}
