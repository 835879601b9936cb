package remote

import (
	"errors"
	"fmt"
	"net"
)

// APIError reports a non-success response from the GitLab API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab api: status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether an error is worth retrying: network
// failures, rate limiting, and server-side errors. Client errors (bad
// token, missing project) are not transient.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps transport-level failures (refused, reset, DNS).
	return errors.Is(err, errConnection)
}

// errConnection classifies wrapped connection failures.
var errConnection = errors.New("connection failure")
