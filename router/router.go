// Package router is a Uniswap-V2-style router over native/token pairs, hosted on the
// in-process chain. Pair reserves are the pair account's native and token balances, so
// every reserve update is journaled with the rest of the transaction.
package router

import (
	"fmt"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/protocols/uniswapv2"
	uniswapv2calc "github.com/defistate/defistate-swapper-go/protocols/uniswapv2/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// pairsSlot is the storage slot of the token => pair mapping.
var pairsSlot = common.Hash{}

// Router is the contract object registered at the router address.
type Router struct {
	address common.Address
	feePpm  uint32
}

// pair is the contract object registered at each pair address.
type pair struct {
	token  common.Address
	router common.Address
}

// Deploy creates a router owned by the transaction sender. feePpm is charged on every swap.
func Deploy(tx *chain.Tx, feePpm uint32) (common.Address, error) {
	if feePpm >= uniswapv2calc.FeePpmDivisor {
		return common.Address{}, uniswapv2calc.ErrInvalidFee
	}
	r := &Router{feePpm: feePpm}
	addr, err := tx.Deploy(tx.From(), r)
	if err != nil {
		return common.Address{}, err
	}
	r.address = addr
	return addr, nil
}

// At returns the router registered at addr.
func At(r chain.Reader, addr common.Address) (*Router, error) {
	c, ok := r.Contract(addr)
	if !ok {
		return nil, fmt.Errorf("router at %s: %w", addr.Hex(), chain.ErrContractNotFound)
	}
	router, ok := c.(*Router)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrNotRouter)
	}
	return router, nil
}

func (r *Router) Address() common.Address { return r.address }

func (r *Router) FeePpm() uint32 { return r.feePpm }

func mappingKey(token common.Address) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(token.Bytes(), 32), pairsSlot.Bytes())
}

// PairFor returns the pair address for token, if one exists.
func (r *Router) PairFor(reader chain.Reader, token common.Address) (common.Address, bool) {
	v := reader.GetState(r.address, mappingKey(token))
	if v == (common.Hash{}) {
		return common.Address{}, false
	}
	return common.BytesToAddress(v.Bytes()), true
}

func (r *Router) createPair(tx *chain.Tx, token common.Address) (common.Address, error) {
	addr, err := tx.Deploy(r.address, &pair{token: token, router: r.address})
	if err != nil {
		return common.Address{}, err
	}
	if err := tx.SetState(r.address, mappingKey(token), common.BytesToHash(addr.Bytes())); err != nil {
		return common.Address{}, err
	}
	tx.Emit(r.address, PairCreated{Token: token, Pair: addr})
	return addr, nil
}

// AddLiquidityNative deposits amountNative of the native currency and amountToken of token
// from provider into the pair, creating the pair on first use.
func (r *Router) AddLiquidityNative(tx *chain.Tx, provider, token common.Address, amountNative, amountToken *uint256.Int) error {
	if amountNative == nil || amountNative.IsZero() || amountToken == nil || amountToken.IsZero() {
		return ErrInsufficientInputAmount
	}
	pairAddr, ok := r.PairFor(tx, token)
	if !ok {
		var err error
		if pairAddr, err = r.createPair(tx, token); err != nil {
			return fmt.Errorf("create pair: %w", err)
		}
	}
	return tx.Call(provider, pairAddr, amountNative, func() error {
		if err := tx.TransferToken(token, provider, pairAddr, amountToken); err != nil {
			return err
		}
		r.sync(tx, pairAddr, token)
		return nil
	})
}

// SwapExactNativeForTokens sells amountIn of the router's native balance into the token's pair
// and sends the output to recipient. The caller is expected to have attached amountIn as
// value on the call into the router.
func (r *Router) SwapExactNativeForTokens(tx *chain.Tx, tokenOut common.Address, amountIn, amountOutMin *uint256.Int, recipient common.Address, deadline uint64) (*uint256.Int, error) {
	if deadline < tx.Time() {
		return nil, ErrExpired
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	pairAddr, ok := r.PairFor(tx, tokenOut)
	if !ok {
		return nil, fmt.Errorf("%s: %w", tokenOut.Hex(), ErrPairNotFound)
	}

	pool := r.poolAt(tx, pairAddr, tokenOut)
	amountOut, err := uniswapv2calc.ExpectedOutput(pool.ReserveNative, pool.ReserveToken, amountIn, r.feePpm)
	if err != nil {
		return nil, err
	}
	if amountOutMin != nil && amountOut.Lt(amountOutMin) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutputAmount, amountOut.Dec(), amountOutMin.Dec())
	}

	if err := tx.Transfer(r.address, pairAddr, amountIn); err != nil {
		return nil, err
	}
	if err := tx.TransferToken(tokenOut, pairAddr, recipient, amountOut); err != nil {
		return nil, err
	}
	tx.Emit(pairAddr, Swap{Sender: r.address, Token: tokenOut, AmountIn: new(uint256.Int).Set(amountIn), AmountOut: amountOut, To: recipient})
	r.sync(tx, pairAddr, tokenOut)
	return new(uint256.Int).Set(amountOut), nil
}

func (r *Router) sync(tx *chain.Tx, pairAddr, token common.Address) {
	tx.Emit(pairAddr, Sync{ReserveNative: tx.Balance(pairAddr), ReserveToken: tx.TokenBalance(token, pairAddr)})
}

func (r *Router) poolAt(reader chain.Reader, pairAddr, token common.Address) uniswapv2.Pool {
	return uniswapv2.Pool{
		Address:       pairAddr,
		Token:         token,
		ReserveNative: reader.Balance(pairAddr),
		ReserveToken:  reader.TokenBalance(token, pairAddr),
		FeePpm:        r.feePpm,
	}
}

// Pool returns a snapshot of the native/token pair for token.
func (r *Router) Pool(reader chain.Reader, token common.Address) (uniswapv2.Pool, error) {
	pairAddr, ok := r.PairFor(reader, token)
	if !ok {
		return uniswapv2.Pool{}, fmt.Errorf("%s: %w", token.Hex(), ErrPairNotFound)
	}
	return r.poolAt(reader, pairAddr, token), nil
}

// Quote returns the token amount a swap of amountIn would currently produce.
func (r *Router) Quote(reader chain.Reader, token common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	pool, err := r.Pool(reader, token)
	if err != nil {
		return nil, err
	}
	return uniswapv2calc.ExpectedOutput(pool.ReserveNative, pool.ReserveToken, amountIn, pool.FeePpm)
}
