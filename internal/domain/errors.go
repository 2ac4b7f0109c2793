package domain

import (
	"context"
	"errors"
	"fmt"
)

// ExternalServiceError wraps a failed call to a collaborator: network error,
// timeout, non-2xx status or a body that is not JSON.
type ExternalServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Retryable reports whether the same request may be sent again. Client errors
// (4xx) are not retried.
func (e *ExternalServiceError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

func IsRetryable(err error) bool {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Retryable()
	}
	return false
}
