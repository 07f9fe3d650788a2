package httpapi

import (
	"errors"
	"net/http"

	"github.com/eventlyze/authflow"
)

// StatusFor maps an engine error to an HTTP status by error kind.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errMalformedBody), errors.Is(err, authflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, authflow.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, authflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, authflow.ErrUnauthorized),
		errors.Is(err, authflow.ErrTokenInvalid),
		errors.Is(err, authflow.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, authflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, authflow.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides server-side detail behind a generic message.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}
