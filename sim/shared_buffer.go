package sim

import (
	"sync"

	"github.com/ChrisGora/semaphore"
	"github.com/eapache/queue"
)

// SharedBuffer is the classic semaphore-guarded bounded buffer of sequence
// numbers used by the in-process simulation. Unlike the server's buffer,
// Insert and Remove block until they can proceed: spaceAvailable counts free
// slots, workAvailable counts filled ones, and a mutex guards the queue
// itself.
type SharedBuffer struct {
	mu    sync.Mutex
	items *queue.Queue
	size  int

	spaceAvailable semaphore.Semaphore
	workAvailable  semaphore.Semaphore
}

// NewSharedBuffer creates an empty SharedBuffer with the given fixed size.
// Panics if size is less than 1.
//
// Parameters:
//   - size: Maximum number of items the buffer may hold at once
//
// Returns:
//   - A pointer to a new empty SharedBuffer
func NewSharedBuffer(size int) *SharedBuffer {
	if size < 1 {
		panic("sim: shared buffer size must be at least 1")
	}

	return &SharedBuffer{
		items:          queue.New(),
		size:           size,
		spaceAvailable: semaphore.Init(size, size),
		workAvailable:  semaphore.Init(size, 0),
	}
}

// Insert appends n at the tail of the buffer, blocking until a slot is free.
//
// Parameters:
//   - n: The sequence number to append
func (b *SharedBuffer) Insert(n int) {
	b.spaceAvailable.Wait()

	b.mu.Lock()
	b.items.Add(n)
	b.mu.Unlock()

	b.workAvailable.Post()
}

// Remove takes the oldest sequence number from the buffer, blocking until an
// item is available.
//
// Returns:
//   - The oldest buffered sequence number
func (b *SharedBuffer) Remove() int {
	b.workAvailable.Wait()

	b.mu.Lock()
	n := b.items.Remove().(int)
	b.mu.Unlock()

	b.spaceAvailable.Post()
	return n
}

// Len returns the number of items currently buffered.
func (b *SharedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Length()
}

// Cap returns the fixed size the buffer was created with.
func (b *SharedBuffer) Cap() int {
	return b.size
}
