package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

const (
	counterKeyPrefix = "stock:count:"
	fenceKeyPrefix   = "stock:fence:"
)

// Script result codes shared by the fenced mutation scripts.
const (
	resultStaleToken   = -2
	resultInsufficient = -1
)

// decrementScript applies a fenced check-and-decrement in one atomic step:
// reject a token lower than the last one seen, reject a decrement the cached
// count cannot cover, otherwise decrement and advance the fence.
var decrementScript = redis.NewScript(`
local fence = tonumber(redis.call('get', KEYS[2]) or '0')
local token = tonumber(ARGV[1])
if token < fence then
	return -2
end
local count = tonumber(redis.call('get', KEYS[1]) or '-1')
local qty = tonumber(ARGV[2])
if count < qty then
	return -1
end
redis.call('decrby', KEYS[1], qty)
redis.call('set', KEYS[2], token)
return count - qty
`)

// incrementScript is the fenced compensating increment.
var incrementScript = redis.NewScript(`
local fence = tonumber(redis.call('get', KEYS[2]) or '0')
local token = tonumber(ARGV[1])
if token < fence then
	return -2
end
redis.call('set', KEYS[2], token)
return redis.call('incrby', KEYS[1], tonumber(ARGV[2]))
`)

// Counter implements strategy.Counter on Redis with Lua-scripted fenced
// mutations.
type Counter struct {
	client *redis.Client
}

// NewCounter creates a Redis-backed fenced counter.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// Value returns the cached count for a product.
func (c *Counter) Value(ctx context.Context, productID string) (int, bool, error) {
	v, err := c.client.Get(ctx, counterKeyPrefix+productID).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get cached count for product %s: %w", productID, err)
	}
	return v, true, nil
}

// Ensure initializes the cached count if absent.
func (c *Counter) Ensure(ctx context.Context, productID string, quantity int, token int64) error {
	if err := c.client.SetNX(ctx, counterKeyPrefix+productID, quantity, 0).Err(); err != nil {
		return fmt.Errorf("init cached count for product %s: %w", productID, err)
	}
	return nil
}

// Decrement subtracts qty under the fencing token.
func (c *Counter) Decrement(ctx context.Context, productID string, qty int, token int64) (int, error) {
	res, err := decrementScript.Run(ctx, c.client,
		[]string{counterKeyPrefix + productID, fenceKeyPrefix + productID},
		token, qty,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("fenced decrement for product %s: %w", productID, err)
	}

	switch res {
	case resultStaleToken:
		return 0, fmt.Errorf("stale fencing token %d for product %s: %w", token, productID, apperrors.ErrConflict)
	case resultInsufficient:
		current, _, verr := c.Value(ctx, productID)
		if verr != nil {
			current = 0
		}
		return 0, apperrors.InsufficientStock(productID, current, qty)
	default:
		return res, nil
	}
}

// Increment adds qty under the fencing token.
func (c *Counter) Increment(ctx context.Context, productID string, qty int, token int64) (int, error) {
	res, err := incrementScript.Run(ctx, c.client,
		[]string{counterKeyPrefix + productID, fenceKeyPrefix + productID},
		token, qty,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("fenced increment for product %s: %w", productID, err)
	}
	if res == resultStaleToken {
		return 0, fmt.Errorf("stale fencing token %d for product %s: %w", token, productID, apperrors.ErrConflict)
	}
	return res, nil
}
