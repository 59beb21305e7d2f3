// Package idgenerator provides a concurrency-safe monotonic counter used for
// session ids, item sequence stamps, and producer payload numbering.
package idgenerator

import "sync/atomic"

// IdGenerator hands out monotonically increasing uint64 ids. Each call to Id
// returns the next value. The starting value is set at construction and the
// first Id() returns startValue+1.
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Id() returns
// startValue+1. The generator is safe for concurrent use.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next id by atomically incrementing the internal counter.
// It is safe for concurrent use by multiple goroutines.
//
// Returns:
//   - The next uint64 id
func (g *IdGenerator) Id() uint64 {
	return g.id.Add(1)
}

// Current returns the most recently issued id without advancing the counter.
// It reports the start value until the first Id() call.
//
// Returns:
//   - The last issued uint64 id
func (g *IdGenerator) Current() uint64 {
	return g.id.Load()
}
