package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Reader is the read-only surface of the state shared by transactions and views.
type Reader interface {
	Balance(addr common.Address) *uint256.Int
	TokenBalance(token, holder common.Address) *uint256.Int
	GetState(addr common.Address, key common.Hash) common.Hash
	Contract(addr common.Address) (any, bool)
	BlockNumber() uint64
	Time() uint64
}

// Tx is the execution context handed to a transaction body.
type Tx struct {
	state    *MemoryState
	msg      Message
	number   uint64
	time     uint64
	logs     []Log
	writable bool
}

// From returns the account that sent the transaction.
func (tx *Tx) From() common.Address { return tx.msg.From }

// To returns the account the transaction was addressed to.
func (tx *Tx) To() common.Address { return tx.msg.To }

// Value returns a copy of the native currency attached to the transaction.
func (tx *Tx) Value() *uint256.Int {
	if tx.msg.Value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(tx.msg.Value)
}

// BlockNumber returns the number of the block the transaction executes in.
func (tx *Tx) BlockNumber() uint64 { return tx.number }

// Time returns the block timestamp in unix seconds.
func (tx *Tx) Time() uint64 { return tx.time }

func (tx *Tx) Balance(addr common.Address) *uint256.Int {
	return tx.state.GetBalance(addr)
}

func (tx *Tx) TokenBalance(token, holder common.Address) *uint256.Int {
	return tx.state.GetTokenBalance(token, holder)
}

func (tx *Tx) GetState(addr common.Address, key common.Hash) common.Hash {
	return tx.state.GetState(addr, key)
}

func (tx *Tx) Contract(addr common.Address) (any, bool) {
	return tx.state.GetContract(addr)
}

func (tx *Tx) SetState(addr common.Address, key common.Hash, value common.Hash) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.state.SetState(addr, key, value)
	return nil
}

// Transfer moves native currency between accounts.
func (tx *Tx) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.state.SubBalance(from, amount); err != nil {
		return err
	}
	tx.state.AddBalance(to, amount)
	return nil
}

// TransferToken moves token units between holders.
func (tx *Tx) TransferToken(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.state.SubTokenBalance(token, from, amount); err != nil {
		return err
	}
	tx.state.AddTokenBalance(token, to, amount)
	return nil
}

// Mint credits newly created token units to holder.
func (tx *Tx) Mint(token, holder common.Address, amount *uint256.Int) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.state.AddTokenBalance(token, holder, amount)
	return nil
}

// Deploy registers contract at the CREATE address derived from deployer and its nonce.
func (tx *Tx) Deploy(deployer common.Address, contract any) (common.Address, error) {
	if !tx.writable {
		return common.Address{}, ErrReadOnly
	}
	nonce := tx.state.GetNonce(deployer)
	addr := crypto.CreateAddress(deployer, nonce)
	tx.state.SetNonce(deployer, nonce+1)
	tx.state.SetContract(addr, contract)
	return addr, nil
}

// Emit records a log. It is published only if the transaction commits.
func (tx *Tx) Emit(addr common.Address, ev Event) {
	tx.logs = append(tx.logs, Log{Address: addr, Topic: ev.Topic(), Event: ev})
}

// Call runs fn as a nested call frame from one account to another, attaching value.
// If fn fails, state changes and logs made inside the frame are discarded and the
// error is returned to the caller, which may handle it or fail the transaction.
func (tx *Tx) Call(from, to common.Address, value *uint256.Int, fn func() error) error {
	if !tx.writable {
		return ErrReadOnly
	}
	snapshot := tx.state.Snapshot()
	logCount := len(tx.logs)

	err := tx.Transfer(from, to, value)
	if err == nil {
		err = fn()
	}
	if err != nil {
		tx.state.RevertToSnapshot(snapshot)
		tx.logs = tx.logs[:logCount]
		return err
	}
	return nil
}
