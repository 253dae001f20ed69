package strategy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

var (
	// reservationAttempts counts reservation outcomes per strategy.
	reservationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservation_attempts_total",
			Help: "Total stock reservation attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// reservationDuration observes end-to-end reservation latency, including
	// any internal retries.
	reservationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_reservation_duration_seconds",
			Help:    "Duration of stock reservation attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// reservationConflictRetries counts transient conflicts absorbed inside a
	// strategy's retry loop.
	reservationConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservation_conflict_retries_total",
			Help: "Transient version/lock conflicts retried internally by strategy",
		},
		[]string{"strategy"},
	)
)

// observe records one finished reservation attempt.
func observe(strategy string, start time.Time, err error) {
	reservationDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	reservationAttempts.WithLabelValues(strategy, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
