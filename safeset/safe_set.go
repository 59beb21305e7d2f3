// Package safeset provides a thread-safe set of comparable elements, used by
// the simulation to track which sequence numbers have been consumed.
package safeset

import "sync"

// SafeSet is a set of unique elements of comparable type T, safe for
// concurrent use by multiple goroutines.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates and returns a new empty SafeSet.
//
// Returns:
//   - A pointer to a new SafeSet[T]
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add inserts an element into the set. Adding an existing element is a no-op.
//
// Parameters:
//   - value: The element to add
func (s *SafeSet[T]) Add(value T) {
	s.Lock()
	defer s.Unlock()
	s.m[value] = struct{}{}
}

// Remove deletes an element from the set. Removing a missing element is a
// no-op.
//
// Parameters:
//   - value: The element to remove
func (s *SafeSet[T]) Remove(value T) {
	s.Lock()
	defer s.Unlock()
	delete(s.m, value)
}

// Contains reports whether the set holds the given element.
//
// Parameters:
//   - value: The element to look up
//
// Returns:
//   - true if the set contains value, false otherwise
func (s *SafeSet[T]) Contains(value T) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.m[value]
	return ok
}

// Size returns the number of elements in the set.
//
// Returns:
//   - The number of elements in the set
func (s *SafeSet[T]) Size() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}

// Values returns the elements of the set as a slice in unspecified order.
//
// Returns:
//   - A new slice holding every element currently in the set
func (s *SafeSet[T]) Values() []T {
	s.RLock()
	defer s.RUnlock()
	values := make([]T, 0, len(s.m))
	for v := range s.m {
		values = append(values, v)
	}

	return values
}

// Range calls f for each element in the set, stopping early if f returns
// false. The behavior is undefined if f modifies the set.
//
// Parameters:
//   - f: Function called for each element; return false to stop iteration
func (s *SafeSet[T]) Range(f func(value T) bool) {
	s.RLock()
	defer s.RUnlock()
	for v := range s.m {
		if !f(v) {
			break
		}
	}
}
