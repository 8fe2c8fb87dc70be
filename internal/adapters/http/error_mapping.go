package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the body text for err. Server-side failures hide their
// cause unless detailed is set.
func errorMessage(err error, status int, detailed bool) string {
	if detailed || status < http.StatusInternalServerError {
		return err.Error()
	}
	switch status {
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case http.StatusBadGateway:
		return "upstream service error"
	default:
		return "internal server error"
	}
}

var errMissingIdentity = domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing X-User-ID header"))
