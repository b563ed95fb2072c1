package serviceutils

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/locvowork/task_reconciler/internal/domain"
)

type GenericResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

func ResponseSuccess(c echo.Context, code int, msg string, data interface{}) error {
	return c.JSON(code, GenericResponse{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

func ResponseError(c echo.Context, code int, msg string, err error) error {
	return ResponseFailure(c, code, msg, err, nil)
}

// ResponseFailure is ResponseError with a payload, for failed runs that still report metrics.
func ResponseFailure(c echo.Context, code int, msg string, err error, data interface{}) error {
	resp := GenericResponse{
		Success: false,
		Message: msg,
		Data:    data,
	}
	if err != nil {
		resp.Error = err.Error()
		if kind := domain.ErrorKind(err); kind != "internal" {
			resp.ErrorKind = kind
		}
	}
	return c.JSON(code, resp)
}

// StatusFor maps an error from the sync layer to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrSyncDisabled):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransientNetwork), errors.Is(err, domain.ErrRemoteNotFound):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
