package client

import (
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/apperr"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// classify maps a transport or HTTP failure onto the apperr taxonomy
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return apperr.Wrap(apperr.Transient, op, "", err)
	}

	kind := apperr.Unknown
	switch code := httpErr.StatusCode; {
	case code >= 500:
		kind = apperr.Transient
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		kind = apperr.ClientInput
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		kind = apperr.Authorization
	case code == http.StatusNotFound:
		kind = apperr.NotFound
	case code == http.StatusConflict:
		kind = apperr.Conflict
	case code == http.StatusGone:
		kind = apperr.Expired
	case code == http.StatusTooManyRequests:
		kind = apperr.Throttled
	}
	return &apperr.Error{Kind: kind, Op: op, Message: httpErr.Message, Err: err}
}
