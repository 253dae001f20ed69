// Package redis backs the distributed strategy's lease and cached counter
// with Redis. Lease tokens come from a single INCR counter, so every
// acquisition carries a strictly higher fencing token than any lease that
// came before it, across all processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manojdandy/orders-inventory/internal/strategy"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

const (
	leaseKeyPrefix = "stock:lease:"
	tokenCounter   = "stock:lease:token"
)

// releaseScript deletes the lease only when the stored token still belongs to
// the caller, so a late release cannot free a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

// Locker implements strategy.Locker on Redis using SET NX PX with a fencing
// token.
type Locker struct {
	client *redis.Client
}

// NewLocker creates a Redis-backed fenced locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the product lease for ttl. A lease already held by another
// caller fails with a retryable conflict.
func (l *Locker) Acquire(ctx context.Context, productID string, ttl time.Duration) (strategy.Lease, error) {
	token, err := l.client.Incr(ctx, tokenCounter).Result()
	if err != nil {
		return strategy.Lease{}, fmt.Errorf("next lease token: %w", err)
	}

	ok, err := l.client.SetNX(ctx, leaseKeyPrefix+productID, strconv.FormatInt(token, 10), ttl).Result()
	if err != nil {
		return strategy.Lease{}, fmt.Errorf("acquire lease for product %s: %w", productID, err)
	}
	if !ok {
		return strategy.Lease{}, fmt.Errorf("lease for product %s held: %w", productID, apperrors.ErrConflict)
	}
	return strategy.Lease{ProductID: productID, Token: token}, nil
}

// Release frees the lease if the caller still owns it; a stale token is a
// no-op.
func (l *Locker) Release(ctx context.Context, lease strategy.Lease) error {
	err := releaseScript.Run(ctx, l.client,
		[]string{leaseKeyPrefix + lease.ProductID},
		strconv.FormatInt(lease.Token, 10),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease for product %s: %w", lease.ProductID, err)
	}
	return nil
}
