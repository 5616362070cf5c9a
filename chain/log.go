package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Event is a typed log payload. Topic identifies the event signature.
type Event interface {
	Topic() common.Hash
}

// Log is an event emitted by a contract during a committed transaction.
type Log struct {
	Address     common.Address `json:"address"`
	Topic       common.Hash    `json:"topic"`
	Event       Event          `json:"event"`
	BlockNumber uint64         `json:"blockNumber"`
	Time        uint64         `json:"time"`
	// Index is the position of the log in the chain's log history.
	Index uint `json:"logIndex"`
}

// Receipt summarizes a committed transaction.
type Receipt struct {
	From        common.Address
	To          common.Address
	BlockNumber uint64
	Time        uint64
	Logs        []Log
}
