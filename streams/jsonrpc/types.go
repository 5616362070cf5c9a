// Package jsonrpc defines the wire format of the swap event stream served over
// go-ethereum JSON-RPC websocket subscriptions.
package jsonrpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                 = "swapper"
	SwapStreamSubscriptionMethod = "subscribeSwapStream"

	EventTypeSwap = "swap"
)

// SubscriptionEvent is the envelope of every notification.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// SentAt is the server send time in unix nanoseconds.
	SentAt int64 `json:"sentAt"`
}

// SwapNotification is the payload of a "swap" event: one committed SwapCompleted log.
type SwapNotification struct {
	BlockNumber uint64         `json:"blockNumber"`
	LogIndex    uint           `json:"logIndex"`
	Time        uint64         `json:"time"`
	Mediator    common.Address `json:"mediator"`
	AmountIn    *uint256.Int   `json:"amountIn"`
	AmountOut   *uint256.Int   `json:"amountOut"`
}
