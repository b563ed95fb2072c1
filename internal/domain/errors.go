package domain

import "errors"

// Remote error taxonomy.
var (
	ErrTransientNetwork = errors.New("transient network error")
	ErrQuotaExceeded    = errors.New("remote quota exceeded")
	ErrAuthExpired      = errors.New("remote authorization expired")
	ErrRemoteNotFound   = errors.New("remote record not found")
	ErrValidation       = errors.New("validation error")
)

// Local errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrRunInProgress = errors.New("sync run already in progress for user")
	ErrSyncDisabled  = errors.New("sync disabled for user")
)

// ErrorKind names the taxonomy bucket of err, or "internal" when none applies.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrRemoteNotFound):
		return "remote_not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, ErrRunInProgress):
		return "run_in_progress"
	case errors.Is(err, ErrSyncDisabled):
		return "sync_disabled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
