package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-swapper-go/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses events and publishes swap notifications in log order.
// Notifications at or before the last published position are dropped, so replays
// after a reconnect are never delivered twice.
// It is decoupled from the networking layer.
type StreamProcessor struct {
	seen      bool
	lastBlock uint64
	lastIndex uint
	swapCh    chan jsonrpc.SwapNotification
	logger    Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint) *StreamProcessor {
	return &StreamProcessor{
		logger: logger,
		swapCh: make(chan jsonrpc.SwapNotification, bufferSize),
	}
}

// Swaps returns a read-only channel of swap notifications.
func (sp *StreamProcessor) Swaps() <-chan jsonrpc.SwapNotification {
	return sp.swapCh
}

// ProcessMessage accepts a raw JSON message, decodes it and publishes the swap it carries.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event jsonrpc.SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case jsonrpc.EventTypeSwap:
		return sp.handleSwap(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleSwap(event jsonrpc.SubscriptionEvent, start time.Time) error {
	var swap jsonrpc.SwapNotification
	if err := json.Unmarshal(event.Payload, &swap); err != nil {
		return fmt.Errorf("failed to unmarshal swap payload: %w", err)
	}
	if swap.AmountIn == nil || swap.AmountOut == nil {
		return errors.New("swap payload is missing amounts")
	}

	if sp.seen && !sp.after(swap) {
		sp.logger.Warn(
			"Received duplicate or out-of-order swap; discarding.",
			"last_block", sp.lastBlock,
			"last_log_index", sp.lastIndex,
			"block", swap.BlockNumber,
			"log_index", swap.LogIndex,
		)
		return nil // Non-fatal, just ignored
	}

	sp.seen, sp.lastBlock, sp.lastIndex = true, swap.BlockNumber, swap.LogIndex

	sp.logger.Debug("Swap Processed",
		"block", swap.BlockNumber,
		"mediator", swap.Mediator.Hex(),
		"amount_in", swap.AmountIn.Dec(),
		"amount_out", swap.AmountOut.Dec(),
		"latency_transport_ms", start.Sub(time.Unix(0, event.SentAt)).Milliseconds(),
		"latency_proc_ms", time.Since(start).Milliseconds(),
	)

	sp.swapCh <- swap
	return nil
}

func (sp *StreamProcessor) after(swap jsonrpc.SwapNotification) bool {
	if swap.BlockNumber != sp.lastBlock {
		return swap.BlockNumber > sp.lastBlock
	}
	return swap.LogIndex > sp.lastIndex
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client and starts connecting in the background.
// It reconnects with exponential back-off until ctx is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Swaps delegates to the processor's swap channel.
func (c *Client) Swaps() <-chan jsonrpc.SwapNotification {
	return c.processor.Swaps()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
// It is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, jsonrpc.RpcNamespace, rawCh, jsonrpc.SwapStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for swaps...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
