package router

import "errors"

var (
	// ErrExpired is returned when a swap executes after its deadline.
	ErrExpired = errors.New("router: expired")
	// ErrPairNotFound is returned when no native/token pair exists for the token.
	ErrPairNotFound = errors.New("router: pair not found")
	// ErrInsufficientOutputAmount is returned when the computed output is below the caller's minimum.
	ErrInsufficientOutputAmount = errors.New("router: insufficient output amount")
	// ErrInsufficientInputAmount is returned for a zero input or liquidity amount.
	ErrInsufficientInputAmount = errors.New("router: insufficient input amount")
	// ErrNotRouter is returned when the contract at an address is not a router.
	ErrNotRouter = errors.New("router: contract is not a router")
)
