package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// OrderLockKey is the lock name serialising gateway work on one order.
func OrderLockKey(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

// DistributedLock is a single-owner Redis lock with a TTL.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Key returns the Redis key holding the lock.
func (l *DistributedLock) Key() string {
	return l.key
}

// Acquire attempts to acquire the lock
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.acquired = success
	return success, nil
}

// AcquireWithRetry polls for the lock until it is free or maxRetries is reached.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return fmt.Errorf("%w: %s", domainErrors.ErrLockAcquisitionFailed, l.key)
}

// Extend extends the lock TTL
func (l *DistributedLock) Extend(ctx context.Context, additionalTTL time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, additionalTTL.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	if val, ok := result.(int64); !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Release releases the lock if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	if val, ok := result.(int64); !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// IsAcquired returns whether the lock is acquired
func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}
