package httpclient

import (
	"fmt"
	"time"
)

// RetryableError reports a request that failed with a retryable status after
// the retry budget ran out. RetryAfter is the delay the next attempt would
// have used, so callers can schedule their own retry.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
