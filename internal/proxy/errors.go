package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for proxy operations.
var (
	// ErrInvalidTargetURL indicates that the upstream URL is invalid.
	ErrInvalidTargetURL = errors.New("invalid target URL")

	// ErrDuplicateRoute indicates that two routes share a name or prefix.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrUpstreamTimeout indicates that the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ProxyError represents a proxy-related error with details.
type ProxyError struct {
	Op     string // Operation that failed
	Route  string // Route name if applicable
	Target string // Target URL if applicable
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	switch {
	case e.Route != "" && e.Target != "":
		return fmt.Sprintf("proxy error [%s] route=%s target=%s: %v", e.Op, e.Route, e.Target, e.Cause)
	case e.Route != "":
		return fmt.Sprintf("proxy error [%s] route=%s: %v", e.Op, e.Route, e.Cause)
	default:
		return fmt.Sprintf("proxy error [%s]: %v", e.Op, e.Cause)
	}
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// NewInvalidTargetError creates an error for an invalid upstream URL.
func NewInvalidTargetError(route, target string, cause error) *ProxyError {
	return &ProxyError{
		Op:     "parse_target",
		Route:  route,
		Target: target,
		Cause:  fmt.Errorf("%w: %w", ErrInvalidTargetURL, cause),
	}
}

// classifyUpstreamError maps a round-trip error to a metric label and a
// sentinel.
func classifyUpstreamError(err error) (string, error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled", err
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", ErrUpstreamTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout", ErrUpstreamTimeout
	default:
		return "unavailable", ErrUpstreamUnavailable
	}
}
