package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError wraps provider errors with status metadata.
type APIError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *APIError) Error() string {
	if e == nil {
		return "llm api error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s api error (status=%d)", e.Provider, e.Status)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary {
			return true
		}
		if apiErr.Status == 429 || (apiErr.Status >= 500 && apiErr.Status <= 599) {
			return true
		}
	}
	return false
}
