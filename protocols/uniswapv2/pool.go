package uniswapv2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool is a point-in-time view of a native/token constant-product pair.
// ReserveNative and ReserveToken are denominated in the smallest unit of each asset.
type Pool struct {
	Address       common.Address `json:"address"`
	Token         common.Address `json:"token"`
	ReserveNative *uint256.Int   `json:"reserveNative"`
	ReserveToken  *uint256.Int   `json:"reserveToken"`
	FeePpm        uint32         `json:"feePpm"` // i.e 3000 for 0.3%
}

// Copy returns a Pool that shares no reserve memory with p.
func (p Pool) Copy() Pool {
	out := p
	if p.ReserveNative != nil {
		out.ReserveNative = new(uint256.Int).Set(p.ReserveNative)
	}
	if p.ReserveToken != nil {
		out.ReserveToken = new(uint256.Int).Set(p.ReserveToken)
	}
	return out
}

// K returns the constant product of the pool's reserves. The second return value
// reports whether the product overflowed 256 bits.
func (p Pool) K() (*uint256.Int, bool) {
	if p.ReserveNative == nil || p.ReserveToken == nil {
		return new(uint256.Int), false
	}
	return new(uint256.Int).MulOverflow(p.ReserveNative, p.ReserveToken)
}
