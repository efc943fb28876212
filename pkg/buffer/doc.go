// Package buffer provides thread-safe circular buffers with configurable overflow
// policies, always-on statistics and optional Prometheus metrics.
//
// Plugins use it in two shapes: as a sliding window (DropOldest, read with
// Snapshot) for aggregating filters, and as a hand-off queue between a network
// callback and GetOutput (ReadContext with the caller's context).
//
//	window, _ := buffer.NewCircularBuffer[float64](capacity)
//	_ = window.Write(sample)
//	values := window.Snapshot() // oldest first, nothing removed
//
//	queue, _ := buffer.NewCircularBuffer[*nats.Msg](256,
//		buffer.WithMetrics[*nats.Msg](registry, "nats_source"),
//	)
//	msg, err := queue.ReadContext(ctx)
//
// # Overflow Policies
//
//   - DropOldest: remove the oldest item to make room (default)
//   - DropNewest: discard the incoming item
//   - Block: wait for space; WriteWithContext bounds the wait
//
// Dropped items are reported to the WithDropCallback callback outside the lock.
//
// # Closing
//
// Close wakes every waiter. Writes after Close fail with ErrAlreadyClosed, while
// reads keep draining what is left and then report ErrNoData.
package buffer
