package swapper

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	SwapCompletedTopic = crypto.Keccak256Hash([]byte("SwapCompleted(uint256,address,uint256)"))
	RouterUpdatedTopic = crypto.Keccak256Hash([]byte("RouterUpdated(address,address)"))
)

// SwapCompleted is emitted by the mediator once per successful swap.
type SwapCompleted struct {
	AmountIn  *uint256.Int   `json:"amountIn"`
	Mediator  common.Address `json:"mediator"`
	AmountOut *uint256.Int   `json:"amountOut"`
}

func (SwapCompleted) Topic() common.Hash { return SwapCompletedTopic }

// RouterUpdated is emitted when the administrator replaces the router reference.
type RouterUpdated struct {
	Previous common.Address `json:"previous"`
	Current  common.Address `json:"current"`
}

func (RouterUpdated) Topic() common.Hash { return RouterUpdatedTopic }
