package swapper

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized is matched by every *UnauthorizedError.
	ErrUnauthorized = errors.New("caller is not the administrator")
	// ErrInvalidRequest is returned for malformed inputs, such as a zero swap amount.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnconfigured is returned when a swap is attempted before a router is set.
	ErrUnconfigured = errors.New("router is not configured")
	// ErrSlippageExceeded is returned when the router cannot produce the requested minimum output.
	ErrSlippageExceeded = errors.New("slippage exceeded: output below minimum")
	// ErrUpstream is matched by every *UpstreamError.
	ErrUpstream = errors.New("router call failed")
	// ErrAlreadyInitialized is returned when Initialize runs on a proxy that already has an administrator.
	ErrAlreadyInitialized = errors.New("already initialized")
	// ErrNotSwapper is returned when the proxy does not run swapper logic.
	ErrNotSwapper = errors.New("proxy implementation is not swapper logic")
)

// UnauthorizedError reports an administrative call from an account other than the administrator.
type UnauthorizedError struct {
	Caller common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s is not the administrator", e.Caller.Hex())
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// UpstreamError reports a failure of the routing collaborator. It unwraps to the router's error.
type UpstreamError struct {
	Router common.Address
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("router %s: %v", e.Router.Hex(), e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// errorType maps an error to the label used by the errors_total metric.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnconfigured):
		return "unconfigured"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "other"
	}
}
