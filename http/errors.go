package http

import (
	"fmt"
	"time"
)

// RateLimitError indicates the server throttled the request (429 or 503).
type RateLimitError struct {
	// StatusCode is the HTTP status code (429 or 503)
	StatusCode int
	// RetryAfter indicates how long to wait before retrying
	RetryAfter time.Duration
}

// Error returns a string representation of the rate limit error.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d): retry after %v", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// HTTPError indicates a non-2xx response that is not a throttling signal.
type HTTPError struct {
	// URL is the requested URL
	URL string
	// StatusCode is the HTTP status code
	StatusCode int
	// Body is the response body
	Body []byte
}

// Error returns a string representation of the HTTP error.
func (e *HTTPError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("http error: GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}
