package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog operations
var (
	// ErrNetworkUnavailable indicates the device is offline and nothing usable is cached
	ErrNetworkUnavailable = errors.New("no network connection and no cached data")

	// ErrMalformedResponse indicates the API returned a body that does not match its envelope
	ErrMalformedResponse = errors.New("malformed api response")

	// ErrUsageLimitExceeded indicates the API key has run out of quota
	ErrUsageLimitExceeded = errors.New("usage limits are exceeded")

	// ErrStorageFull indicates the persistent store cannot accept more data
	ErrStorageFull = errors.New("storage is full")
)

// usageLimitMessage is the upstream error message that marks quota exhaustion.
const usageLimitMessage = "usage limits are exceeded"

// UpstreamError is a failed request on the online path: either a non-2xx
// response or a transport failure (StatusCode 0).
type UpstreamError struct {
	StatusCode         int
	Message            string
	UsageLimitExceeded bool
	Err                error
}

// NewUpstreamError classifies a non-2xx response.
func NewUpstreamError(status int, message string) *UpstreamError {
	return &UpstreamError{
		StatusCode:         status,
		Message:            message,
		UsageLimitExceeded: status == 500 && message == usageLimitMessage,
	}
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUsageLimitExceeded) match quota failures.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUsageLimitExceeded && e.UsageLimitExceeded
}

// MalformedError wraps ErrMalformedResponse with the offending resource.
func MalformedError(resource string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, resource)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, resource, cause)
}
