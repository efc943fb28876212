// Package errors provides standardized error handling patterns for mads-plugin.
//
// # Overview
//
// The errors package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable) and Fatal (unrecoverable,
// stop using the instance).
//
// Go errors never cross the plugin contract. Plugins classify what went wrong with
// this package and hand the result to plugin.StatusOf, which folds the three classes
// onto the five-value status taxonomy:
//
//	nil                     -> Success
//	ErrNoData (any class)   -> Retry
//	ErrPartialData          -> Warning
//	Fatal                   -> Critical
//	anything else           -> Error
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
//   - Data availability: ErrNoData, ErrPartialData
//   - Lifecycle: ErrNotConfigured, ErrTerminated, ErrAlreadyClosed
//   - Discovery: ErrUnknownServer, ErrDuplicateDriver, ErrDriverNotFound,
//     ErrIncompatibleVersion, ErrTypeMismatch, ErrNoEntryPoint
//   - Connection: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout, ErrDeviceLost
//   - Data processing: ErrInvalidInput, ErrInvalidData, ErrDataCorrupted, ErrParsingFailed
//   - Storage: ErrStorageUnavailable, ErrKeyNotFound
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection, and the package
// re-exports Is, As, Join and New so callers need a single import:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified as
// Transient.
package errors
