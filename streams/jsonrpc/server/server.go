// Package server streams committed SwapCompleted logs to JSON-RPC websocket subscribers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/streams/jsonrpc"
	"github.com/defistate/defistate-swapper-go/swapper"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultLogBufferSize = 128
	feedBufferSize       = 16
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogSource is the chain the streamer follows.
type LogSource interface {
	SubscribeLogs(ch chan<- chain.Log) event.Subscription
}

type Config struct {
	Source LogSource
	// Mediator restricts the stream to one mediator. The zero address streams every mediator.
	Mediator common.Address
	Logger   Logger
	// LogBufferSize bounds the per-subscriber backlog of undelivered swaps. Swaps arriving
	// while the backlog is full are dropped for that subscriber.
	LogBufferSize int
}

func (c *Config) validate() error {
	if c.Source == nil {
		return errors.New("config: Source is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// SwapStreamer is the RPC service registered under the "swapper" namespace.
type SwapStreamer struct {
	source     LogSource
	mediator   common.Address
	logger     Logger
	bufferSize int
}

func NewSwapStreamer(cfg Config) (*SwapStreamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	size := cfg.LogBufferSize
	if size <= 0 {
		size = defaultLogBufferSize
	}
	return &SwapStreamer{
		source:     cfg.Source,
		mediator:   cfg.Mediator,
		logger:     cfg.Logger,
		bufferSize: size,
	}, nil
}

// NewServer returns an RPC server with the streamer registered.
// Serve it with (*rpc.Server).WebsocketHandler.
func NewServer(streamer *SwapStreamer) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(jsonrpc.RpcNamespace, streamer); err != nil {
		return nil, fmt.Errorf("failed to register swap streamer: %w", err)
	}
	return server, nil
}

// SubscribeSwapStream creates a subscription that receives every SwapCompleted log committed
// after the subscription is created.
func (s *SwapStreamer) SubscribeSwapStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	feed := make(chan chain.Log, feedBufferSize)
	backlog := make(chan chain.Log, s.bufferSize)
	logSub := s.source.SubscribeLogs(feed)
	quit := make(chan struct{})
	go s.relay(rpcSub.ID, feed, backlog, quit)

	go func() {
		defer close(quit)
		defer logSub.Unsubscribe()
		for {
			select {
			case l := <-backlog:
				event, ok, err := s.toEvent(l)
				if err != nil {
					s.logger.Error("Failed to encode swap", "block", l.BlockNumber, "error", err)
					continue
				}
				if !ok {
					continue
				}
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					s.logger.Warn("Failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case err := <-logSub.Err():
				if err != nil {
					s.logger.Error("Log subscription failed", "error", err)
				}
				return
			case <-rpcSub.Err():
				s.logger.Debug("Subscriber left", "subscription", rpcSub.ID)
				return
			}
		}
	}()

	s.logger.Info("Swap stream subscription created", "subscription", rpcSub.ID)
	return rpcSub, nil
}

// relay moves swap logs from the chain feed into a subscriber's backlog. It never blocks on
// the backlog: when it is full the log is dropped, so a stalled subscriber cannot hold up
// transaction commits. It returns the number of dropped logs once quit is closed.
func (s *SwapStreamer) relay(id rpc.ID, in <-chan chain.Log, backlog chan<- chain.Log, quit <-chan struct{}) int {
	var dropped int
	for {
		select {
		case l := <-in:
			if l.Topic != swapper.SwapCompletedTopic {
				continue
			}
			select {
			case backlog <- l:
			default:
				dropped++
				s.logger.Warn("Subscriber backlog full, dropping swap",
					"subscription", id, "block", l.BlockNumber, "log_index", l.Index, "dropped", dropped)
			}
		case <-quit:
			return dropped
		}
	}
}

func (s *SwapStreamer) toEvent(l chain.Log) (*jsonrpc.SubscriptionEvent, bool, error) {
	if l.Topic != swapper.SwapCompletedTopic {
		return nil, false, nil
	}
	if s.mediator != (common.Address{}) && l.Address != s.mediator {
		return nil, false, nil
	}
	swap, ok := l.Event.(swapper.SwapCompleted)
	if !ok {
		return nil, false, fmt.Errorf("unexpected event %T under SwapCompleted topic", l.Event)
	}

	payload, err := json.Marshal(jsonrpc.SwapNotification{
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
		Time:        l.Time,
		Mediator:    swap.Mediator,
		AmountIn:    swap.AmountIn,
		AmountOut:   swap.AmountOut,
	})
	if err != nil {
		return nil, false, err
	}
	return &jsonrpc.SubscriptionEvent{
		Type:    jsonrpc.EventTypeSwap,
		Payload: payload,
		SentAt:  time.Now().UnixNano(),
	}, true, nil
}
