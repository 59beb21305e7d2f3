package cacher

import (
	"context"
	"time"
)

// FetchFunc loads a value from the backing source when a cache miss occurs.
// It receives a context for cancellation and timeout control, and returns the
// value of type T or an error if the load fails.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values in front of a slower backing source with automatic
// fetching on cache misses. Implementations must be safe for concurrent use
// and must collapse concurrent fetches for the same missing key into one.
type Cacher[T any] interface {
	// GetOrFetch retrieves a value from the cache, or fetches it using the
	// provided function if it's not cached. The fetched value is stored with
	// the specified TTL for future requests.
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
	GetOrFetch(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fetchFn FetchFunc[T],
	) (T, error)

	// Delete removes a key from the cache. Deleting a missing key is not an
	// error.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key to delete
	Delete(ctx context.Context, key string) error

	// Clear removes all items from the cache.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - An error if the operation fails
	Clear(ctx context.Context) error

	// ItemCount returns the number of items in the cache.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - The number of items in the cache
	//   - An error if the operation fails
	ItemCount(ctx context.Context) (int, error)
}
