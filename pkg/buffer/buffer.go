package buffer

import (
	"context"
)

// Buffer is a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. When full, behaviour follows the overflow policy.
	Write(item T) error

	// WriteWithContext is Write that gives up when ctx ends. Only the Block
	// policy ever waits.
	WriteWithContext(ctx context.Context, item T) error

	// Read removes the oldest item. It returns false when the buffer is empty.
	Read() (T, bool)

	// ReadContext waits until an item is available, the buffer is closed, or ctx ends.
	ReadContext(ctx context.Context) (T, error)

	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot copies the current contents, oldest first, without removing them.
	Snapshot() []T

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items, reporting each to the drop callback.
	Clear()

	// Stats returns the buffer statistics.
	Stats() *Statistics

	// Close wakes every waiter. Writes after Close fail; reads drain what is left.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called with every item discarded by the overflow policy or Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Capacities below one are raised to one. An error is returned only when the
// requested metrics cannot be registered.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
