// Package retry runs operations with exponential backoff, giving up early on errors
// that retrying cannot fix.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pbosetti/mads-plugin/errors"
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked non-retryable, or is classified as
// invalid or fatal.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	if stderrors.As(err, &nre) {
		return true
	}
	return errors.IsInvalid(err) || errors.IsFatal(err)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial" yaml:"initial"`
	MaxDelay     time.Duration `mapstructure:"max" yaml:"max"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
	AddJitter    bool          `mapstructure:"jitter" yaml:"jitter"`
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a config for fast retries, useful while a device settles
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Persistent returns a config for long-running retries on critical resources
func Persistent() Config {
	return Config{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate checks the configuration for impossible values
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative initial delay")
	}
	if c.MaxDelay < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative max delay")
	}
	if c.Multiplier < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "negative multiplier")
	}
	withDefaults := c.withDefaults()
	if withDefaults.MaxDelay < withDefaults.InitialDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Validate", "max delay below initial delay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// NewBackOff returns an unbounded exponential backoff following the config delays.
// Callers that loop forever (the pipeline runner) use it directly.
func (c Config) NewBackOff() *backoff.ExponentialBackOff {
	c = c.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.Multiplier
	b.MaxElapsedTime = 0
	if c.AddJitter {
		b.RandomizationFactor = 0.25
	} else {
		b.RandomizationFactor = 0
	}
	b.Reset()
	return b
}

// Do executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, the attempts run out, or ctx ends.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	attempts := 0
	stopped := false
	var lastErr error
	operation := func() error {
		if err := ctx.Err(); err != nil {
			stopped = true
			return backoff.Permanent(fmt.Errorf("retry cancelled before attempt %d: %w", attempts+1, err))
		}
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if IsNonRetryable(err) {
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(cfg.NewBackOff(), uint64(cfg.MaxAttempts-1)), ctx)

	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		return nil
	case stopped:
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempts+1, ctx.Err())
	default:
		return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
	}
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
