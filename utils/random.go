// Package utils provides small shared helpers for random selection and
// random values drawn from ranges.
package utils

import (
	"math/rand"
	"time"
)

// GetRandomElement returns a randomly chosen element from the given slice.
// The slice must be non-empty; otherwise the function panics.
//
// Parameters:
//   - arr: The slice to pick from (must have at least one element)
//
// Returns:
//   - A random element of type T from the slice
func GetRandomElement[T any](arr []T) T {
	return arr[rand.Intn(len(arr))]
}

// RandomIntBetween returns a random integer in the inclusive range [min, max].
// If max is not greater than min, min is returned.
//
// Parameters:
//   - min: Lower bound (inclusive)
//   - max: Upper bound (inclusive)
//
// Returns:
//   - A random integer n with min <= n <= max
func RandomIntBetween(min, max int) int {
	if max <= min {
		return min
	}

	return min + rand.Intn(max-min+1)
}

// RandomFloatBetween returns a random float64 in the half-open range
// [min, max). If max is not greater than min, min is returned.
//
// Parameters:
//   - min: Lower bound (inclusive)
//   - max: Upper bound (exclusive)
//
// Returns:
//   - A random float64 f with min <= f < max
func RandomFloatBetween(min, max float64) float64 {
	if max <= min {
		return min
	}

	return min + rand.Float64()*(max-min)
}

// RandomDurationBetween returns a random duration in the inclusive range
// [min, max]. If max is not greater than min, min is returned.
//
// Parameters:
//   - min: Lower bound (inclusive)
//   - max: Upper bound (inclusive)
//
// Returns:
//   - A random duration d with min <= d <= max
func RandomDurationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// RandomSample returns n distinct elements chosen from the given slice, in
// random order. The input slice is not modified. If n exceeds the slice
// length, all elements are returned.
//
// Parameters:
//   - arr: The slice to sample from
//   - n: How many distinct elements to pick
//
// Returns:
//   - A new slice holding n randomly chosen distinct elements
func RandomSample[T any](arr []T, n int) []T {
	if n > len(arr) {
		n = len(arr)
	}
	if n <= 0 {
		return nil
	}

	picked := make([]T, len(arr))
	copy(picked, arr)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})

	return picked[:n]
}
