package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Option adjusts a single Do call.
type Option func(*options)

type options struct {
	retryIf func(error) bool
	onRetry func(attempt uint, err error)
}

// If retries only errors for which fn returns true; others are returned immediately.
func If(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// OnRetry is called before each retry with the zero-based attempt number.
func OnRetry(fn func(attempt uint, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do executes a function with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error, opts ...Option) error {
	o := options{
		retryIf: func(error) bool { return true },
		onRetry: func(uint, error) {},
	}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(o.retryIf),
		retry.OnRetry(o.onRetry),
	)
}

// DoWithResult executes a function with exponential backoff retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error), opts ...Option) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	}, opts...)
	return result, err
}
