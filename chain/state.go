package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StateDB is the account state a transaction executes against: native balances,
// token balances, contract storage slots, deployed contracts and deployment nonces.
type StateDB interface {
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int) error

	GetTokenBalance(token, holder common.Address) *uint256.Int
	AddTokenBalance(token, holder common.Address, amount *uint256.Int)
	SubTokenBalance(token, holder common.Address, amount *uint256.Int) error

	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)

	GetContract(addr common.Address) (any, bool)
	SetContract(addr common.Address, contract any)
	GetNonce(addr common.Address) uint64
	SetNonce(addr common.Address, nonce uint64)
}

type tokenKey struct {
	token  common.Address
	holder common.Address
}

// MemoryState is an in-memory StateDB. Every mutation records an undo entry in a
// journal so that a transaction, or a call frame inside it, can be rolled back.
// MemoryState is not safe for concurrent use; Chain serializes access to it.
type MemoryState struct {
	balances  map[common.Address]*uint256.Int
	tokens    map[tokenKey]*uint256.Int
	storage   map[common.Address]map[common.Hash]common.Hash
	contracts map[common.Address]any
	nonces    map[common.Address]uint64
	journal   []func()
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		balances:  make(map[common.Address]*uint256.Int),
		tokens:    make(map[tokenKey]*uint256.Int),
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		contracts: make(map[common.Address]any),
		nonces:    make(map[common.Address]uint64),
	}
}

// Snapshot returns an identifier for the current journal position.
func (s *MemoryState) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot was taken.
func (s *MemoryState) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

// Finalise drops the journal, making all current state permanent.
func (s *MemoryState) Finalise() {
	s.journal = s.journal[:0]
}

func (s *MemoryState) GetBalance(addr common.Address) *uint256.Int {
	if b, ok := s.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (s *MemoryState) setBalance(addr common.Address, amount *uint256.Int) {
	prev, existed := s.balances[addr]
	s.journal = append(s.journal, func() {
		if existed {
			s.balances[addr] = prev
		} else {
			delete(s.balances, addr)
		}
	})
	s.balances[addr] = amount
}

func (s *MemoryState) AddBalance(addr common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	s.setBalance(addr, new(uint256.Int).Add(s.GetBalance(addr), amount))
}

func (s *MemoryState) SubBalance(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	current := s.GetBalance(addr)
	if current.Lt(amount) {
		return &BalanceError{Asset: "native", Account: addr, Available: current, Required: new(uint256.Int).Set(amount)}
	}
	s.setBalance(addr, current.Sub(current, amount))
	return nil
}

func (s *MemoryState) GetTokenBalance(token, holder common.Address) *uint256.Int {
	if b, ok := s.tokens[tokenKey{token, holder}]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (s *MemoryState) setTokenBalance(key tokenKey, amount *uint256.Int) {
	prev, existed := s.tokens[key]
	s.journal = append(s.journal, func() {
		if existed {
			s.tokens[key] = prev
		} else {
			delete(s.tokens, key)
		}
	})
	s.tokens[key] = amount
}

func (s *MemoryState) AddTokenBalance(token, holder common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	s.setTokenBalance(tokenKey{token, holder}, new(uint256.Int).Add(s.GetTokenBalance(token, holder), amount))
}

func (s *MemoryState) SubTokenBalance(token, holder common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	current := s.GetTokenBalance(token, holder)
	if current.Lt(amount) {
		return &BalanceError{Asset: token.Hex(), Account: holder, Available: current, Required: new(uint256.Int).Set(amount)}
	}
	s.setTokenBalance(tokenKey{token, holder}, current.Sub(current, amount))
	return nil
}

func (s *MemoryState) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.storage[addr][key]
}

func (s *MemoryState) SetState(addr common.Address, key common.Hash, value common.Hash) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	prev, existed := slots[key]
	s.journal = append(s.journal, func() {
		if existed {
			slots[key] = prev
		} else {
			delete(slots, key)
		}
	})
	slots[key] = value
}

func (s *MemoryState) GetContract(addr common.Address) (any, bool) {
	c, ok := s.contracts[addr]
	return c, ok
}

func (s *MemoryState) SetContract(addr common.Address, contract any) {
	prev, existed := s.contracts[addr]
	s.journal = append(s.journal, func() {
		if existed {
			s.contracts[addr] = prev
		} else {
			delete(s.contracts, addr)
		}
	})
	s.contracts[addr] = contract
}

func (s *MemoryState) GetNonce(addr common.Address) uint64 {
	return s.nonces[addr]
}

func (s *MemoryState) SetNonce(addr common.Address, nonce uint64) {
	prev, existed := s.nonces[addr]
	s.journal = append(s.journal, func() {
		if existed {
			s.nonces[addr] = prev
		} else {
			delete(s.nonces, addr)
		}
	})
	s.nonces[addr] = nonce
}
