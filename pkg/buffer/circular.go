package buffer

import (
	"context"
	"sync"

	"github.com/pbosetti/mads-plugin/errors"
)

// circularBuffer is a thread-safe circular buffer with configurable overflow policies.
type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// Write adds an item to the buffer according to the overflow policy.
func (cb *circularBuffer[T]) Write(item T) error {
	return cb.WriteWithContext(context.Background(), item)
}

// WriteWithContext adds an item, waiting for space under the Block policy until ctx ends.
func (cb *circularBuffer[T]) WriteWithContext(ctx context.Context, item T) error {
	var dropped []T
	err := func() error {
		cb.mu.Lock()
		defer cb.mu.Unlock()

		if cb.closed {
			return errors.WrapInvalid(errors.ErrAlreadyClosed, "Buffer", "Write", "buffer closed")
		}

		if cb.size == cb.capacity {
			cb.stats.overflow()
			switch cb.opts.overflowPolicy {
			case DropNewest:
				cb.stats.drop()
				cb.metrics.recordDrop()
				dropped = append(dropped, item)
				return nil

			case Block:
				if err := cb.wait(ctx, cb.notFull, func() bool { return cb.size < cb.capacity }); err != nil {
					return err
				}
				if cb.closed {
					return errors.WrapInvalid(errors.ErrAlreadyClosed, "Buffer", "Write",
						"buffer closed during blocking wait")
				}

			default:
				dropped = append(dropped, cb.pop())
				cb.stats.drop()
				cb.metrics.recordDrop()
			}
		}

		cb.items[cb.head] = item
		cb.head = (cb.head + 1) % cb.capacity
		cb.size++

		cb.stats.write()
		cb.stats.updateSize(cb.size)
		cb.metrics.recordWrite(cb.size, cb.capacity)

		cb.notEmpty.Signal()
		return nil
	}()

	// callbacks run outside the lock so they may use the buffer
	if cb.opts.dropCallback != nil {
		for _, d := range dropped {
			cb.opts.dropCallback(d)
		}
	}
	return err
}

// pop removes the oldest item. Caller holds the lock and ensures size > 0.
func (cb *circularBuffer[T]) pop() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--
	return item
}

// wait blocks on cond until ready holds, the buffer closes, or ctx ends.
// Caller holds the lock.
func (cb *circularBuffer[T]) wait(ctx context.Context, cond *sync.Cond, ready func() bool) error {
	if ready() || cb.closed {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cond.Broadcast()
	})
	defer stop()

	for !ready() && !cb.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Wait()
	}
	return nil
}

// Read retrieves and removes one item from the buffer.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.readLocked(), true
}

func (cb *circularBuffer[T]) readLocked() T {
	item := cb.pop()
	cb.stats.read(1)
	cb.stats.updateSize(cb.size)
	cb.metrics.recordRead(1, cb.size, cb.capacity)
	cb.notFull.Signal()
	return item
}

// ReadContext waits for an item. It returns ErrNoData once the buffer is closed
// and drained, or the context error when ctx ends first.
func (cb *circularBuffer[T]) ReadContext(ctx context.Context) (T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if err := cb.wait(ctx, cb.notEmpty, func() bool { return cb.size > 0 }); err != nil {
		return zero, err
	}
	if cb.size == 0 {
		return zero, errors.Wrap(errors.ErrNoData, "Buffer", "ReadContext", "buffer closed")
	}
	return cb.readLocked(), nil
}

// ReadBatch retrieves and removes up to max items from the buffer.
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	n := min(max, cb.size)
	result := make([]T, n)
	for i := range result {
		result[i] = cb.pop()
	}

	cb.stats.read(n)
	cb.stats.updateSize(cb.size)
	cb.metrics.recordRead(n, cb.size, cb.capacity)
	cb.notFull.Broadcast()

	return result
}

// Peek retrieves one item without removing it from the buffer.
func (cb *circularBuffer[T]) Peek() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.items[cb.tail], true
}

// Snapshot copies the contents, oldest first.
func (cb *circularBuffer[T]) Snapshot() []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	out := make([]T, cb.size)
	for i := range out {
		out[i] = cb.items[(cb.tail+i)%cb.capacity]
	}
	return out
}

// Size returns the current number of items in the buffer.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

// IsFull returns true if the buffer is at maximum capacity.
func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == cb.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == 0
}

// Clear removes all items from the buffer.
func (cb *circularBuffer[T]) Clear() {
	cb.mu.Lock()
	dropped := make([]T, 0, cb.size)
	for cb.size > 0 {
		dropped = append(dropped, cb.pop())
	}
	cb.head, cb.tail = 0, 0
	cb.stats.updateSize(0)
	cb.metrics.updateSize(0, cb.capacity)
	cb.notFull.Broadcast()
	cb.mu.Unlock()

	if cb.opts.dropCallback != nil {
		for _, item := range dropped {
			cb.opts.dropCallback(item)
		}
	}
}

// Stats returns buffer statistics.
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close marks the buffer closed and wakes every waiter.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()
	return nil
}
