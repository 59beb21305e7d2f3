// Package buffer implements the fixed-capacity FIFO buffer shared by all
// producer and consumer sessions. Operations never block: a full buffer
// rejects Put and an empty buffer rejects Get with a sentinel error, leaving
// retry policy entirely to the caller.
package buffer

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var (
	// ErrFull is returned by Put when the buffer already holds Cap items.
	ErrFull = errors.New("buffer is full")

	// ErrEmpty is returned by Get when the buffer holds no items.
	ErrEmpty = errors.New("buffer is empty")
)

// Item is a single buffered element. It is immutable once created: produced
// exactly once by one producer session and consumed at most once by one
// consumer session.
type Item struct {
	// Seq is the server-assigned sequence number, unique across all items
	// the server ever stamped.
	Seq uint64
	// ProducerID is the handshake id of the session that produced the item.
	ProducerID uint64
	// Payload is the opaque client-supplied content.
	Payload string
}

// Buffer is a bounded FIFO queue safe for concurrent use by any number of
// goroutines. All access is serialized by an internal mutex, so the order in
// which Put calls acquire the mutex is the order in which Get returns the
// items. The mutex is never held across anything but the queue operation
// itself; both Put and Get return immediately.
type Buffer struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
}

// New creates an empty Buffer with the given fixed capacity. The capacity
// cannot be changed afterwards. Panics if capacity is less than 1, since a
// zero-capacity buffer could never accept an item.
//
// Parameters:
//   - capacity: Maximum number of items the buffer may hold at once
//
// Returns:
//   - A pointer to a new empty Buffer
func New(capacity int) *Buffer {
	if capacity < 1 {
		panic("buffer: capacity must be at least 1")
	}

	return &Buffer{
		items:    queue.New(),
		capacity: capacity,
	}
}

// Put appends item at the tail of the buffer if there is room. A full buffer
// is an expected outcome under contention, not a fault: the buffer is left
// unchanged and ErrFull tells the caller to apply its own retry policy.
//
// Parameters:
//   - item: The item to append
//
// Returns:
//   - nil if the item was appended, ErrFull if the buffer was at capacity
func (b *Buffer) Put(item Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.items.Length() >= b.capacity {
		return ErrFull
	}

	b.items.Add(item)
	return nil
}

// Get removes and returns the item at the head of the buffer. An empty
// buffer is an expected outcome, not a fault: the buffer is left unchanged
// and ErrEmpty tells the caller to apply its own retry policy.
//
// Returns:
//   - The head item and nil, or a zero Item and ErrEmpty if the buffer was empty
func (b *Buffer) Get() (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.items.Length() == 0 {
		return Item{}, ErrEmpty
	}

	return b.items.Remove().(Item), nil
}

// Len returns the number of items currently buffered. The value is advisory:
// it may be stale by the time the caller acts on it, so callers must never
// use Len to decide whether a Put or Get will succeed.
//
// Returns:
//   - The current number of buffered items
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Length()
}

// Cap returns the fixed capacity the buffer was created with.
//
// Returns:
//   - The maximum number of items the buffer may hold
func (b *Buffer) Cap() int {
	return b.capacity
}
