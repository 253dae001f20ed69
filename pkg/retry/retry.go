package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

const jitterFraction = 0.25

// Policy is a bounded-attempt retry loop with randomized exponential backoff.
// It re-attempts only transient conflicts (apperrors.Retryable); every other
// error propagates immediately. Exhausting all attempts converts the last
// conflict into a terminal ConcurrentConflict.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the default reservation retry policy: 3 attempts with
// 20ms base delay capped at 250ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
	}
}

// Do runs op up to MaxAttempts times. Each attempt re-executes op from
// scratch, so op must re-read any state it depends on. Between attempts Do
// sleeps with jittered exponential backoff to desynchronize colliding
// callers, honoring ctx cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry canceled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.Retryable(err) {
			return err
		}
		lastErr = err
	}

	return apperrors.ConcurrentConflict(
		fmt.Sprintf("unable to complete operation after %d attempts due to concurrent modifications: %v", attempts, lastErr),
	)
}

// backoff returns the delay before retrying after the given 0-indexed attempt,
// doubling each time with ±25% jitter, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 20 * time.Millisecond
	}
	delay := base << uint(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(float64(delay) * jitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
	return delay + jitter
}
