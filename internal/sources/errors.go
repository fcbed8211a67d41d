package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind categorizes an adapter failure. All kinds are non-fatal to the
// overall fan-out; a failing platform simply contributes zero mentions.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "timeout"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrUpstream        ErrorKind = "upstream_error"
	ErrInvalidResponse ErrorKind = "invalid_response"
)

// Error is a categorized adapter failure tied to one platform.
type Error struct {
	Platform string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a categorized adapter error.
func NewError(platform string, kind ErrorKind, err error) *Error {
	return &Error{Platform: platform, Kind: kind, Err: err}
}

// WrapTransport categorizes a transport-level error from an HTTP call.
// Deadline and cancellation errors map to Timeout, everything else to
// UpstreamError.
func WrapTransport(platform string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewError(platform, ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(platform, ErrTimeout, err)
	default:
		return NewError(platform, ErrUpstream, err)
	}
}

// FromStatus categorizes a non-200 HTTP status from an upstream API.
func FromStatus(platform string, status int, body string) *Error {
	kind := ErrUpstream
	if status == 429 {
		kind = ErrRateLimited
	}
	return NewError(platform, kind, fmt.Errorf("status %d: %s", status, body))
}
