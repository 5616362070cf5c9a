package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Message is the envelope of a transaction: who sends it, to which account,
// and how much native currency is attached.
type Message struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
}

// Chain is an in-process execution host. Transactions run one at a time under a single
// lock; each one either commits every state change and log it produced, or none of them.
type Chain struct {
	mu      sync.Mutex
	chainID uint64
	state   *MemoryState
	number  uint64
	clock   func() time.Time
	logs    []Log
	feed    event.Feed
	logger  Logger
}

// Option configures the Chain.
type Option func(*Chain)

// WithClock overrides the source of block timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) {
		c.clock = clock
	}
}

// WithLogger sets the logger used for transaction tracing.
func WithLogger(logger Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// New creates an empty chain at block zero.
func New(chainID uint64, opts ...Option) *Chain {
	c := &Chain{
		chainID: chainID,
		state:   NewMemoryState(),
		clock:   time.Now,
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) ChainID() uint64 {
	return c.chainID
}

// BlockNumber returns the number of the last committed block.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.number
}

// Fund credits addr with native currency outside of any transaction, like a genesis allocation.
func (c *Chain) Fund(addr common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AddBalance(addr, amount)
	c.state.Finalise()
}

// Mint credits token units to holder outside of any transaction.
func (c *Chain) Mint(token, holder common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AddTokenBalance(token, holder, amount)
	c.state.Finalise()
}

// Transact executes fn as one atomic transaction. msg.Value is moved from msg.From to msg.To
// before fn runs. If the transfer or fn fails, every change made since the transaction began
// is rolled back and the error is returned unchanged.
func (c *Chain) Transact(ctx context.Context, msg Message, fn func(tx *Tx) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{
		state:    c.state,
		msg:      msg,
		number:   c.number + 1,
		time:     uint64(c.clock().Unix()),
		writable: true,
	}

	snapshot := c.state.Snapshot()
	if err := tx.execute(fn); err != nil {
		c.state.RevertToSnapshot(snapshot)
		c.logger.Debug("Transaction reverted", "from", msg.From.Hex(), "to", msg.To.Hex(), "error", err)
		return nil, err
	}
	c.state.Finalise()
	c.number = tx.number

	receipt := &Receipt{
		From:        msg.From,
		To:          msg.To,
		BlockNumber: tx.number,
		Time:        tx.time,
		Logs:        make([]Log, 0, len(tx.logs)),
	}
	for _, l := range tx.logs {
		l.BlockNumber = tx.number
		l.Time = tx.time
		l.Index = uint(len(c.logs))
		c.logs = append(c.logs, l)
		receipt.Logs = append(receipt.Logs, l)
	}

	// Delivered under the lock so subscribers observe logs in commit order.
	for _, l := range receipt.Logs {
		c.feed.Send(l)
	}

	c.logger.Debug("Transaction committed", "block", tx.number, "from", msg.From.Hex(), "to", msg.To.Hex(), "logs", len(receipt.Logs))
	return receipt, nil
}

// View runs fn against a consistent, read-only view of the latest committed state.
func (c *Chain) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx{
		state:  c.state,
		number: c.number,
		time:   uint64(c.clock().Unix()),
	}
	return fn(tx)
}

// SubscribeLogs delivers every committed log to ch. Delivery blocks the committing
// transaction until ch accepts, so subscribers must hand logs off without waiting on slow
// consumers.
func (c *Chain) SubscribeLogs(ch chan<- Log) event.Subscription {
	return c.feed.Subscribe(ch)
}

// FilterLogs returns the committed logs emitted by address with the given topic.
// A zero address or topic matches everything.
func (c *Chain) FilterLogs(address common.Address, topic common.Hash) []Log {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Log
	for _, l := range c.logs {
		if address != (common.Address{}) && l.Address != address {
			continue
		}
		if topic != (common.Hash{}) && l.Topic != topic {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (tx *Tx) execute(fn func(tx *Tx) error) error {
	if err := tx.Transfer(tx.msg.From, tx.msg.To, tx.msg.Value); err != nil {
		return fmt.Errorf("transfer value: %w", err)
	}
	return fn(tx)
}
