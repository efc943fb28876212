// Package retry provides exponential backoff retry logic for transient failures,
// built on github.com/cenkalti/backoff/v4.
//
// # Overview
//
// Do and DoWithResult retry an operation until it succeeds, the attempts run out or
// the context ends. Errors marked with NonRetryable, and errors classified as invalid
// or fatal by package errors, stop the loop at once.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (devices that need to settle)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// Config.NewBackOff returns an unbounded exponential backoff with the same delays,
// for loops that never give up on their own, such as the pipeline runner waiting on
// a source that keeps answering Retry.
//
// # Usage
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return backend.Write(ctx, name, data)
//	})
//
//	doc, err := retry.DoWithResult(ctx, retry.Quick(), func() ([]byte, error) {
//	    return backend.Read(ctx, name)
//	})
package retry
