package provider

import (
	"errors"
	"fmt"
)

// APIError is returned by providers when the upstream API answers with a
// non-success status. The status code drives retry classification.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the error is worth retrying: rate limits (429),
// Anthropic overloaded (529), and server errors (5xx). Everything else,
// including auth and bad-request failures, is permanent.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode == 529 || (e.StatusCode >= 500 && e.StatusCode <= 599)
}

// RetryableError reports whether err carries a retryable API status.
func RetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
