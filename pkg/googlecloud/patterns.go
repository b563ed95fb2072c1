package googlecloud

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/locvowork/task_reconciler/pkg/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common Datastore errors for easier handling in services.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidKey    = errors.New("invalid key")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// WrapDatastoreError converts Datastore-specific errors to package errors.
func WrapDatastoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return ErrNotFound
	}
	return err
}

// IsNotFoundError checks if an error is a not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, datastore.ErrNoSuchEntity)
}

// --- Retry Logic ---

// RetryConfig holds configuration for retry operations.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig returns sensible defaults for retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     2 * time.Second,
	}
}

// isTransient reports whether a Datastore error may go away on its own.
func isTransient(err error) bool {
	if errors.Is(err, datastore.ErrConcurrentTransaction) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return true
	}
	return false
}

// WithRetry executes fn with exponential backoff, retrying only transient
// Datastore errors.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, fn,
		retry.WithMaxAttempts(cfg.MaxAttempts),
		retry.WithBackoff(retry.ExponentialBackoff(cfg.InitialWait, cfg.MaxWait)),
		retry.WithRetryIf(func(err error) (bool, func(int) time.Duration) {
			return isTransient(err), nil
		}),
	)
	return err
}
