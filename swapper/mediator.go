// Package swapper implements the swap mediator: an upgradeable contract that accepts a
// native-currency payment, routes it through a configured router and forwards the
// purchased tokens to the caller.
package swapper

import (
	"context"
	"fmt"
	"time"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Mediator is a handle on a swapper deployed behind a proxy at a stable address.
// Every mutating call is one chain transaction, so it either fully succeeds or leaves
// no trace.
type Mediator struct {
	address common.Address
	chain   *chain.Chain
	logger  Logger
	metrics *Metrics
}

// Option configures a Mediator.
type Option func(*Mediator)

func WithLogger(logger Logger) Option {
	return func(m *Mediator) {
		m.logger = logger
	}
}

// WithRegisterer registers the mediator metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Mediator) {
		m.metrics = NewMetrics(reg)
	}
}

// WithMetrics shares an existing metrics set, for callers that build several handles.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Mediator) {
		m.metrics = metrics
	}
}

// New returns a handle on the mediator proxy at address.
func New(c *chain.Chain, address common.Address, opts ...Option) *Mediator {
	m := &Mediator{
		address: address,
		chain:   c,
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return m
}

// Address returns the stable proxy address of the mediator.
func (m *Mediator) Address() common.Address {
	return m.address
}

// SetRouter points the mediator at newRouter. Only the administrator may call it.
func (m *Mediator) SetRouter(ctx context.Context, caller, newRouter common.Address) error {
	var previous common.Address
	_, err := m.chain.Transact(ctx, chain.Message{From: caller, To: m.address}, func(tx *chain.Tx) error {
		l, err := logicAt(tx, m.address)
		if err != nil {
			return err
		}
		previous, err = l.SetRouter(tx, m.address, caller, newRouter)
		return err
	})
	if err != nil {
		m.metrics.ErrorsTotal.WithLabelValues(errorType(err)).Inc()
		m.logger.Warn("Router update rejected", "mediator", m.address.Hex(), "caller", caller.Hex(), "error", err)
		return err
	}

	m.metrics.RouterUpdates.Inc()
	m.logger.Info("Router updated", "mediator", m.address.Hex(), "previous", previous.Hex(), "current", newRouter.Hex())
	return nil
}

// SwapNativeForToken sells req.AmountIn of the caller's native currency for req.Token and
// delivers the output to the caller. The swap fails as a whole when the router cannot
// deliver at least req.MinTokensOut.
func (m *Mediator) SwapNativeForToken(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	start := time.Now()
	defer func() {
		m.metrics.SwapDuration.Observe(time.Since(start).Seconds())
	}()

	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return nil, m.swapFailed(req, fmt.Errorf("%w: amountIn must be positive", ErrInvalidRequest))
	}

	var ev *SwapCompleted
	receipt, err := m.chain.Transact(ctx, chain.Message{From: req.Caller, To: m.address, Value: req.AmountIn}, func(tx *chain.Tx) error {
		l, err := logicAt(tx, m.address)
		if err != nil {
			return err
		}
		ev, err = l.SwapNativeForToken(tx, m.address, req)
		return err
	})
	if err != nil {
		return nil, m.swapFailed(req, err)
	}

	m.metrics.SwapsTotal.WithLabelValues("success").Inc()
	m.logger.Debug("Swap completed",
		"mediator", m.address.Hex(),
		"caller", req.Caller.Hex(),
		"block", receipt.BlockNumber,
		"amountIn", ev.AmountIn.Dec(),
		"amountOut", ev.AmountOut.Dec(),
	)
	return &SwapResult{SwapCompleted: *ev, Caller: req.Caller, BlockNumber: receipt.BlockNumber}, nil
}

func (m *Mediator) swapFailed(req SwapRequest, err error) error {
	kind := errorType(err)
	m.metrics.SwapsTotal.WithLabelValues(kind).Inc()
	m.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	m.logger.Debug("Swap failed", "mediator", m.address.Hex(), "caller", req.Caller.Hex(), "error", err)
	return err
}

func (m *Mediator) view(ctx context.Context, fn func(r chain.Reader, l *Logic) error) error {
	return m.chain.View(ctx, func(r chain.Reader) error {
		l, err := logicAt(r, m.address)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}

// Router returns the current router reference. A zero address means unconfigured.
func (m *Mediator) Router(ctx context.Context) (common.Address, error) {
	var out common.Address
	err := m.view(ctx, func(r chain.Reader, l *Logic) error {
		out = l.Router(r, m.address)
		return nil
	})
	return out, err
}

// Admin returns the administrator recorded at initialization.
func (m *Mediator) Admin(ctx context.Context) (common.Address, error) {
	var out common.Address
	err := m.view(ctx, func(r chain.Reader, l *Logic) error {
		out = l.Admin(r, m.address)
		return nil
	})
	return out, err
}

// State reports whether a router has been configured.
func (m *Mediator) State(ctx context.Context) (State, error) {
	routerAddr, err := m.Router(ctx)
	if err != nil {
		return Unconfigured, err
	}
	if routerAddr == (common.Address{}) {
		return Unconfigured, nil
	}
	return Configured, nil
}

// Version returns the version of the logic currently behind the proxy.
func (m *Mediator) Version(ctx context.Context) (string, error) {
	var out string
	err := m.view(ctx, func(_ chain.Reader, l *Logic) error {
		out = l.Version()
		return nil
	})
	return out, err
}
