package router

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	PairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address)"))
	SwapTopic        = crypto.Keccak256Hash([]byte("Swap(address,address,uint256,uint256,address)"))
	SyncTopic        = crypto.Keccak256Hash([]byte("Sync(uint256,uint256)"))
)

// PairCreated is emitted by the router when liquidity is first added for a token.
type PairCreated struct {
	Token common.Address `json:"token"`
	Pair  common.Address `json:"pair"`
}

func (PairCreated) Topic() common.Hash { return PairCreatedTopic }

// Swap is emitted by a pair for every executed trade.
type Swap struct {
	Sender    common.Address `json:"sender"`
	Token     common.Address `json:"token"`
	AmountIn  *uint256.Int   `json:"amountIn"`
	AmountOut *uint256.Int   `json:"amountOut"`
	To        common.Address `json:"to"`
}

func (Swap) Topic() common.Hash { return SwapTopic }

// Sync is emitted by a pair whenever its reserves change.
type Sync struct {
	ReserveNative *uint256.Int `json:"reserveNative"`
	ReserveToken  *uint256.Int `json:"reserveToken"`
}

func (Sync) Topic() common.Hash { return SyncTopic }
