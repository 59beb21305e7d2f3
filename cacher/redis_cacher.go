package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes a lock key only if the caller still owns it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// redisCacher is a Redis-based implementation of the Cacher interface.
// Values are stored as JSON. A SetNX lock per key prevents cache stampede:
// on a miss the lock winner fetches and populates the key while other
// callers poll until the value appears.
type redisCacher[T any] struct {
	client  *redis.Client
	lockTTL time.Duration
}

// NewRedisCacher creates a new Redis-based cacher around the given client.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cacher := NewRedisCacher[records.Student](client)
func NewRedisCacher[T any](client *redis.Client) Cacher[T] {
	return &redisCacher[T]{
		client:  client,
		lockTTL: 30 * time.Second,
	}
}

// GetOrFetch retrieves a value from the cache, or fetches it using the
// provided function if it's not cached. On a miss it acquires a distributed
// lock with SetNX; the lock winner fetches, stores the JSON-encoded value
// and releases the lock, while losers wait for the key to be populated.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - key: The cache key to retrieve or set
//   - ttl: Time-to-live duration for the cached value
//   - fetchFn: Function to fetch the value if not in cache
//
// Returns:
//   - The cached or fetched value of type T
//   - An error if retrieval or fetching fails
func (c *redisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	val, err := c.get(ctx, key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return zero, err
	}

	lockKey := key + ":lock"
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	acquired, err := c.client.SetNX(ctx, lockKey, lockValue, c.lockTTL).Result()
	if err != nil {
		return zero, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return c.waitForCache(ctx, key, lockKey)
	}

	// Release with a background context so the lock does not outlive a
	// cancelled fetch.
	defer releaseLockScript.Run(context.Background(), c.client, []string{lockKey}, lockValue)

	result, err := fetchFn(ctx)
	if err != nil {
		return zero, fmt.Errorf("fetch function failed: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return zero, fmt.Errorf("failed to cache result: %w", err)
	}

	return result, nil
}

// get reads and decodes the value at key. Returns redis.Nil when the key is
// absent.
func (c *redisCacher[T]) get(ctx context.Context, key string) (T, error) {
	var zero T

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, err
		}
		return zero, fmt.Errorf("redis get error: %w", err)
	}

	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return result, nil
}

// waitForCache polls for the key after losing the lock race, backing off
// exponentially from 10ms up to 250ms. It gives up when the lock disappears
// without a value (the winner's fetch failed) or when the lock TTL elapses.
func (c *redisCacher[T]) waitForCache(ctx context.Context, key, lockKey string) (T, error) {
	var zero T

	backoff := 10 * time.Millisecond
	maxBackoff := 250 * time.Millisecond
	deadline := time.Now().Add(c.lockTTL)

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return zero, errors.New("timeout waiting for cache")
		}

		val, err := c.get(ctx, key)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			return zero, err
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return zero, fmt.Errorf("failed to check lock existence: %w", err)
		}
		if exists == 0 {
			// Lock released without a value; one last read covers the gap
			// between the winner's Set and its lock release.
			val, err := c.get(ctx, key)
			if err == nil {
				return val, nil
			}
			return zero, errors.New("fetch operation failed or cache not populated")
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Delete removes a key from the cache.
func (c *redisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Clear removes all items from the cache.
func (c *redisCacher[T]) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// ItemCount returns the number of items in the cache.
func (c *redisCacher[T]) ItemCount(ctx context.Context) (int, error) {
	count, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get cache size: %w", err)
	}
	return int(count), nil
}
