package swapper

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SwapRequest is a caller's instruction to sell AmountIn of the native currency for Token.
// A nil MinTokensOut is treated as zero.
type SwapRequest struct {
	Caller       common.Address
	Token        common.Address
	MinTokensOut *uint256.Int
	AmountIn     *uint256.Int
}

// SwapResult is the outcome of a committed swap.
type SwapResult struct {
	SwapCompleted
	Caller      common.Address
	BlockNumber uint64
}

// State is the configuration state of a mediator.
type State int

const (
	Unconfigured State = iota
	Configured
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	default:
		return "unknown"
	}
}
