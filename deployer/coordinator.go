// Package deployer decides whether the swap mediator must be deployed for the first time or
// upgraded in place, and carries out that decision.
package deployer

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/deployments"
	"github.com/defistate/defistate-swapper-go/proxy"
	"github.com/defistate/defistate-swapper-go/swapper"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrAddressChanged is returned when an upgrade reports a proxy address other than the recorded one.
	ErrAddressChanged = errors.New("upgrade changed the proxy address")
	// ErrZeroDeployer is returned when the deployer is the zero address, which cannot hold the admin role.
	ErrZeroDeployer = errors.New("deployer address is zero")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ProxyManager deploys and upgrades proxies.
type ProxyManager interface {
	DeployNew(ctx context.Context, deployer common.Address, factory proxy.LogicFactory, initArgs ...any) (common.Address, error)
	Upgrade(ctx context.Context, caller, proxyAddr common.Address, factory proxy.LogicFactory) (common.Address, error)
}

// Environment names a deployment target. Ephemeral environments are reset before every
// run, so they always take the FirstDeploy path.
type Environment struct {
	Name      string
	Ephemeral bool
}

type Config struct {
	Chain    *chain.Chain
	Ledger   deployments.Ledger
	Proxies  ProxyManager
	Factory  proxy.LogicFactory // defaults to swapper.NewLogic
	Registry prometheus.Registerer
	Logger   Logger
	// MediatorOptions are applied to the handle returned in Result.
	MediatorOptions []swapper.Option
}

func (c *Config) validate() error {
	if c.Chain == nil {
		return errors.New("config: Chain cannot be nil")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Proxies == nil {
		return errors.New("config: Proxies cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Result describes a completed run.
type Result struct {
	RunID    string
	Decision Decision
	Address  common.Address
	Mediator *swapper.Mediator
}

// Coordinator runs the deploy-or-upgrade lifecycle. It assumes a single writer per environment.
type Coordinator struct {
	chain           *chain.Chain
	ledger          deployments.Ledger
	proxies         ProxyManager
	factory         proxy.LogicFactory
	metrics         *Metrics
	logger          Logger
	mediatorOptions []swapper.Option
}

func NewCoordinator(cfg *Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	factory := cfg.Factory
	if factory == nil {
		factory = swapper.NewLogic
	}
	return &Coordinator{
		chain:           cfg.Chain,
		ledger:          cfg.Ledger,
		proxies:         cfg.Proxies,
		factory:         factory,
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		mediatorOptions: cfg.MediatorOptions,
	}, nil
}

// DeployOrUpgrade upgrades the mediator recorded for env in place, or deploys a new one and
// records it. A run that fails leaves the ledger as it was, except that an ephemeral
// environment has already been cleared. Failures are not retried.
func (c *Coordinator) DeployOrUpgrade(ctx context.Context, env Environment, deployer common.Address) (*Result, error) {
	runID := uuid.NewString()

	if err := deployments.ValidateEnvironment(env.Name); err != nil {
		return nil, err
	}
	if deployer == (common.Address{}) {
		return nil, ErrZeroDeployer
	}

	if env.Ephemeral {
		if err := c.ledger.Clear(ctx, env.Name); err != nil {
			return nil, c.fail(runID, env, "clear", fmt.Errorf("clear ephemeral environment %s: %w", env.Name, err))
		}
		c.logger.Info("Cleared ephemeral deployment record", "run_id", runID, "environment", env.Name)
	}

	existing, recorded, err := c.ledger.Read(ctx, env.Name)
	if err != nil {
		return nil, c.fail(runID, env, "read", fmt.Errorf("read deployment record: %w", err))
	}
	decision := Decide(existing, recorded)
	c.logger.Info("Deployment decision", "run_id", runID, "environment", env.Name, "decision", decision.String())

	var addr common.Address
	switch decision.Path {
	case Upgrade:
		addr, err = c.proxies.Upgrade(ctx, deployer, decision.Existing, c.factory)
		if err != nil {
			return nil, c.fail(runID, env, "upgrade", fmt.Errorf("upgrade proxy %s: %w", decision.Existing.Hex(), err))
		}
		if addr != decision.Existing {
			return nil, c.fail(runID, env, "upgrade", fmt.Errorf("%w: recorded %s, got %s", ErrAddressChanged, decision.Existing.Hex(), addr.Hex()))
		}
	case FirstDeploy:
		addr, err = c.proxies.DeployNew(ctx, deployer, c.factory)
		if err != nil {
			return nil, c.fail(runID, env, "deploy", fmt.Errorf("deploy proxy: %w", err))
		}
		if err := c.ledger.Write(ctx, env.Name, addr); err != nil {
			return nil, c.fail(runID, env, "write", fmt.Errorf("record proxy %s: %w", addr.Hex(), err))
		}
	}

	c.metrics.DeploymentsTotal.WithLabelValues(env.Name, decision.Path.String()).Inc()
	c.logger.Info("Mediator ready", "run_id", runID, "environment", env.Name, "path", decision.Path.String(), "address", addr.Hex())

	return &Result{
		RunID:    runID,
		Decision: decision,
		Address:  addr,
		Mediator: swapper.New(c.chain, addr, c.mediatorOptions...),
	}, nil
}

func (c *Coordinator) fail(runID string, env Environment, stage string, err error) error {
	c.metrics.ErrorsTotal.WithLabelValues(env.Name, stage).Inc()
	c.logger.Error("Deploy-or-upgrade failed", "run_id", runID, "environment", env.Name, "stage", stage, "error", err)
	return err
}
