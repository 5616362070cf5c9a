// Package devnet provisions a local chain for development and tests: a test token, a
// router with one funded native/token pair, and pre-funded accounts.
package devnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-swapper-go/chain"
	uniswapv2calc "github.com/defistate/defistate-swapper-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-swapper-go/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ether is 10^18, the number of base units in one whole unit of an 18-decimal asset.
var Ether = uint256.NewInt(1_000_000_000_000_000_000)

// Units returns n whole units of an 18-decimal asset.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), Ether)
}

type TokenConfig struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   *uint256.Int
}

// LiquidityConfig is the initial reserve of the native/token pair.
type LiquidityConfig struct {
	Native *uint256.Int
	Token  *uint256.Int
}

type Account struct {
	Address common.Address
	Balance *uint256.Int
}

type Config struct {
	Deployer        common.Address
	DeployerBalance *uint256.Int
	FeePpm          uint32
	Token           TokenConfig
	Liquidity       LiquidityConfig
	Accounts        []Account
}

// DefaultConfig mirrors the usual local fixture: a 0.3% pool seeded with 35 native and
// 100 tokens.
func DefaultConfig(deployer common.Address) Config {
	return Config{
		Deployer:        deployer,
		DeployerBalance: Units(10_000),
		FeePpm:          3000,
		Token: TokenConfig{
			Name:     "Test Token",
			Symbol:   "TST",
			Decimals: 18,
			Supply:   Units(1_000_000),
		},
		Liquidity: LiquidityConfig{
			Native: Units(35),
			Token:  Units(100),
		},
	}
}

func (c *Config) validate() error {
	if c.Deployer == (common.Address{}) {
		return errors.New("devnet: deployer address is required")
	}
	if c.FeePpm >= uniswapv2calc.FeePpmDivisor {
		return fmt.Errorf("devnet: %w", uniswapv2calc.ErrInvalidFee)
	}
	if c.Token.Symbol == "" {
		return errors.New("devnet: token symbol is required")
	}
	if c.Token.Supply == nil || c.Liquidity.Native == nil || c.Liquidity.Token == nil {
		return errors.New("devnet: token supply and liquidity amounts are required")
	}
	if c.Liquidity.Native.IsZero() || c.Liquidity.Token.IsZero() {
		return errors.New("devnet: liquidity amounts must be positive")
	}
	if c.Liquidity.Token.Gt(c.Token.Supply) {
		return errors.New("devnet: token liquidity exceeds supply")
	}
	if c.DeployerBalance == nil || c.Liquidity.Native.Gt(c.DeployerBalance) {
		return errors.New("devnet: deployer balance does not cover native liquidity")
	}
	return nil
}

// Environment is what Setup provisioned.
type Environment struct {
	Deployer common.Address
	Router   common.Address
	Token    common.Address
	FeePpm   uint32
}

// Setup funds the configured accounts, deploys the token and router from the deployer and
// seeds the pair. Contract deployment is a single transaction.
func Setup(ctx context.Context, c *chain.Chain, cfg Config) (*Environment, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c.Fund(cfg.Deployer, cfg.DeployerBalance)
	for _, acc := range cfg.Accounts {
		c.Fund(acc.Address, acc.Balance)
	}

	env := &Environment{Deployer: cfg.Deployer, FeePpm: cfg.FeePpm}
	_, err := c.Transact(ctx, chain.Message{From: cfg.Deployer, To: cfg.Deployer}, func(tx *chain.Tx) error {
		var err error
		env.Token, err = chain.DeployToken(tx, chain.Token{
			Name:     cfg.Token.Name,
			Symbol:   cfg.Token.Symbol,
			Decimals: cfg.Token.Decimals,
		}, cfg.Token.Supply)
		if err != nil {
			return fmt.Errorf("deploy token: %w", err)
		}
		if env.Router, err = router.Deploy(tx, cfg.FeePpm); err != nil {
			return fmt.Errorf("deploy router: %w", err)
		}
		r, err := router.At(tx, env.Router)
		if err != nil {
			return err
		}
		if err := r.AddLiquidityNative(tx, cfg.Deployer, env.Token, cfg.Liquidity.Native, cfg.Liquidity.Token); err != nil {
			return fmt.Errorf("add liquidity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}
