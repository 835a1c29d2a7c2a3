package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies an inference failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindEndpoint    Kind = "endpoint"
)

// ErrCircuitOpen is wrapped by a KindUnavailable error while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Error is a typed inference failure.
type Error struct {
	Kind Kind
	// StatusCode is the HTTP status for KindEndpoint failures, if any.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an inference error, or "" if err is not one.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsRetryable reports whether a failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

func endpointError(status int, format string, args ...any) *Error {
	return &Error{Kind: KindEndpoint, StatusCode: status, Err: fmt.Errorf(format, args...)}
}

// classifyTransport maps an error from the HTTP round trip onto a typed
// failure. parent is the caller's context; a cancelled parent is returned
// untouched so callers can tell shutdown apart from a slow endpoint.
func classifyTransport(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return &Error{Kind: KindUnavailable, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindUnavailable, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Error{Kind: KindUnavailable, Err: err}
	}
	return &Error{Kind: KindEndpoint, Err: err}
}
