package llm

import (
	"errors"
	"fmt"
	"net"
)

// APIError is a provider response with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is a provider rate-limit rejection.
// Rate limits are the only failures worth waiting out mid-batch.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// IsTransient reports whether a retry may recover from err: rate limits,
// request timeouts, server-side errors, and network timeouts.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408, apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
