package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the metadata of a fungible token. Balances live in the StateDB.
type Token struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// DeployToken registers a token deployed by the transaction sender and mints supply to it.
func DeployToken(tx *Tx, meta Token, supply *uint256.Int) (common.Address, error) {
	if meta.Symbol == "" {
		return common.Address{}, errors.New("token symbol is required")
	}
	token := meta
	addr, err := tx.Deploy(tx.From(), &token)
	if err != nil {
		return common.Address{}, err
	}
	if err := tx.Mint(addr, tx.From(), supply); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// TokenAt returns the token metadata registered at addr.
func TokenAt(r Reader, addr common.Address) (*Token, error) {
	c, ok := r.Contract(addr)
	if !ok {
		return nil, ErrContractNotFound
	}
	token, ok := c.(*Token)
	if !ok {
		return nil, errors.New("contract is not a token")
	}
	return token, nil
}
