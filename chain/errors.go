package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrContractNotFound is returned when no contract is registered at an address.
	ErrContractNotFound = errors.New("contract not found")
	// ErrReadOnly is returned when a state mutation is attempted inside View.
	ErrReadOnly = errors.New("state is read-only")
)

// BalanceError describes a failed debit. It unwraps to ErrInsufficientBalance.
type BalanceError struct {
	Asset     string // "native" or the token address
	Account   common.Address
	Available *uint256.Int
	Required  *uint256.Int
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s balance of %s is %s, need %s", e.Asset, e.Account.Hex(), e.Available.Dec(), e.Required.Dec())
}

func (e *BalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
