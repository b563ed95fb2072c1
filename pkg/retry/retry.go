package retry

import (
	"context"
	"time"
)

// Option configures a retry loop.
type Option func(*config)

type config struct {
	maxAttempts int
	backoff     func(attempt int) time.Duration
	// retryIf decides whether an error is worth another attempt. It may return a
	// different backoff function for that error class (nil keeps the default).
	retryIf func(error) (bool, func(int) time.Duration)
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, err error, wait time.Duration)
}

func defaultConfig() *config {
	return &config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(100*time.Millisecond, 2*time.Second),
		retryIf:     func(error) (bool, func(int) time.Duration) { return true, nil },
		sleep:       sleepCtx,
	}
}

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the default wait between attempts.
func WithBackoff(backoff func(attempt int) time.Duration) Option {
	return func(c *config) {
		if backoff != nil {
			c.backoff = backoff
		}
	}
}

// WithRetryIf restricts retries to errors the classifier accepts.
// The classifier can return an alternative backoff for that error class.
func WithRetryIf(classify func(error) (bool, func(int) time.Duration)) Option {
	return func(c *config) {
		if classify != nil {
			c.retryIf = classify
		}
	}
}

// WithSleep replaces the sleep function. Tests use it to avoid real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithOnRetry registers a hook called before each wait.
func WithOnRetry(hook func(attempt int, err error, wait time.Duration)) Option {
	return func(c *config) {
		c.onRetry = hook
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out or
// ctx is done. It returns the number of attempts made and the last error.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) (int, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		retryable, backoff := cfg.retryIf(lastErr)
		if !retryable || attempt == cfg.maxAttempts {
			return attempt, lastErr
		}
		if backoff == nil {
			backoff = cfg.backoff
		}

		wait := backoff(attempt)
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, lastErr, wait)
		}
		if err := cfg.sleep(ctx, wait); err != nil {
			return attempt, lastErr
		}
	}
	return cfg.maxAttempts, lastErr
}

// ConstantBackoff returns a backoff function that always returns the same duration.
func ConstantBackoff(d time.Duration) func(int) time.Duration {
	return func(_ int) time.Duration {
		return d
	}
}

// ExponentialBackoff doubles the wait on every attempt, capped at max.
// backoff = initial * 2^(attempt-1)
func ExponentialBackoff(initial, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt <= 1 {
			return initial
		}
		if attempt > 32 {
			return max
		}
		d := initial * time.Duration(1<<(attempt-1))
		if max > 0 && (d > max || d <= 0) {
			return max
		}
		return d
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
