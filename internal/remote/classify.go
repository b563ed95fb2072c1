package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/locvowork/task_reconciler/internal/domain"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// Classify maps err onto the remote error taxonomy. It returns nil when the
// error does not belong to any class, including plain context cancellation.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		domain.ErrAuthExpired, domain.ErrQuotaExceeded, domain.ErrRemoteNotFound,
		domain.ErrValidation, domain.ErrTransientNetwork,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return domain.ErrTransientNetwork
		}
		return domain.ErrAuthExpired
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return domain.ErrTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrTransientNetwork
	}
	// Refresh failures with a non-JSON body arrive as plain strings.
	if strings.Contains(err.Error(), "invalid_grant") {
		return domain.ErrAuthExpired
	}
	return nil
}

func classifyStatus(apiErr *googleapi.Error) error {
	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return domain.ErrAuthExpired
	case apiErr.Code == http.StatusTooManyRequests:
		return domain.ErrQuotaExceeded
	case apiErr.Code == http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return domain.ErrQuotaExceeded
			}
		}
		return domain.ErrAuthExpired
	case apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone:
		return domain.ErrRemoteNotFound
	case apiErr.Code == http.StatusBadRequest:
		return domain.ErrValidation
	case apiErr.Code >= 500:
		return domain.ErrTransientNetwork
	}
	return nil
}

// Retryable reports whether another attempt could succeed.
func Retryable(kind error) bool {
	return kind == domain.ErrTransientNetwork || kind == domain.ErrQuotaExceeded
}

// CallError is returned by the Executor for every failed remote call.
// errors.Is works against both the taxonomy kind and the underlying error.
type CallError struct {
	Op       string
	Attempts int
	Kind     error
	Err      error
}

func (e *CallError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v: %v", e.Op, e.Attempts, e.Kind, e.Err)
}

func (e *CallError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}
