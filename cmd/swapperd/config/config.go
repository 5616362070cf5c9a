package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/defistate/defistate-swapper-go/deployments"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// EphemeralEnvironment is the local development network; its deployment record is reset on every run.
const EphemeralEnvironment = "hardhat"

// Config captures runtime configuration for swapperd.
type Config struct {
	ChainID     uint64             `yaml:"chain_id"`
	Environment EnvironmentConfig  `yaml:"environment"`
	Deployer    Address            `yaml:"deployer"`
	Ledger      deployments.Config `yaml:"ledger"`
	Devnet      DevnetConfig       `yaml:"devnet"`
	Swaps       []SwapConfig       `yaml:"swaps"`
	Stream      ListenConfig       `yaml:"stream"`
	Metrics     ListenConfig       `yaml:"metrics"`
	Log         LogConfig          `yaml:"log"`
}

type EnvironmentConfig struct {
	Name string `yaml:"name"`
	// Ephemeral defaults to true for the hardhat environment.
	Ephemeral *bool `yaml:"ephemeral"`
}

// IsEphemeral reports whether the deployment record is cleared before each run.
func (e EnvironmentConfig) IsEphemeral() bool {
	if e.Ephemeral != nil {
		return *e.Ephemeral
	}
	return e.Name == EphemeralEnvironment
}

// DevnetConfig describes the local chain provisioned at startup.
type DevnetConfig struct {
	FeePpm          uint32          `yaml:"fee_ppm"`
	DeployerBalance Amount          `yaml:"deployer_balance"`
	Token           TokenConfig     `yaml:"token"`
	Liquidity       LiquidityConfig `yaml:"liquidity"`
	Accounts        []AccountConfig `yaml:"accounts"`
}

type TokenConfig struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Supply   Amount `yaml:"supply"`
}

type LiquidityConfig struct {
	Native Amount `yaml:"native"`
	Token  Amount `yaml:"token"`
}

type AccountConfig struct {
	Address Address `yaml:"address"`
	Balance Amount  `yaml:"balance"`
}

// SwapConfig is a swap executed once the mediator is ready.
type SwapConfig struct {
	Caller       Address `yaml:"caller"`
	AmountIn     Amount  `yaml:"amount_in"`
	MinTokensOut Amount  `yaml:"min_tokens_out"`
}

type ListenConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig selects the log level and, when File is set, a rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// SlogLevel returns the parsed log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}

// LoadConfig reads, defaults and validates the configuration at path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ChainID == 0 {
		c.ChainID = 31337
	}
	if c.Environment.Name == "" {
		c.Environment.Name = EphemeralEnvironment
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = deployments.BackendFile
		if c.Ledger.Path == "" {
			c.Ledger.Path = "deployments"
		}
	}
	if c.Devnet.FeePpm == 0 {
		c.Devnet.FeePpm = 3000
	}
	defaultAmount(&c.Devnet.DeployerBalance, "10000ether")
	if c.Devnet.Token.Name == "" {
		c.Devnet.Token.Name = "Test Token"
	}
	if c.Devnet.Token.Symbol == "" {
		c.Devnet.Token.Symbol = "TST"
	}
	if c.Devnet.Token.Decimals == 0 {
		c.Devnet.Token.Decimals = 18
	}
	defaultAmount(&c.Devnet.Token.Supply, "1000000ether")
	defaultAmount(&c.Devnet.Liquidity.Native, "35ether")
	defaultAmount(&c.Devnet.Liquidity.Token, "100ether")
	if c.Stream.Listen == "" {
		c.Stream.Listen = "127.0.0.1:8546"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
}

func defaultAmount(a *Amount, raw string) {
	if !a.IsZero() {
		return
	}
	v, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	a.Set(v)
}

// Validate checks that the configuration can be run.
func (c *Config) Validate() error {
	var errs []error
	if c.Deployer.Address == (common.Address{}) {
		errs = append(errs, errors.New("deployer address is required"))
	}
	if err := deployments.ValidateEnvironment(c.Environment.Name); err != nil {
		errs = append(errs, fmt.Errorf("environment: %w", err))
	}
	// The devnet chain lives only as long as the process, so a durable record of a
	// non-ephemeral environment would point at a proxy that no longer exists after a restart.
	if !c.Environment.IsEphemeral() && c.Ledger.Backend != deployments.BackendMemory {
		errs = append(errs, fmt.Errorf("environment %q: a non-ephemeral environment on the in-process devnet requires the %s ledger backend, got %q",
			c.Environment.Name, deployments.BackendMemory, c.Ledger.Backend))
	}
	if c.Devnet.FeePpm >= 1_000_000 {
		errs = append(errs, fmt.Errorf("devnet: fee_ppm must be below 1000000, got %d", c.Devnet.FeePpm))
	}
	for i, s := range c.Swaps {
		if s.Caller.Address == (common.Address{}) {
			errs = append(errs, fmt.Errorf("swaps[%d]: caller is required", i))
		}
		if s.AmountIn.IsZero() {
			errs = append(errs, fmt.Errorf("swaps[%d]: amount_in must be positive", i))
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Stream.Listen) == "" {
		errs = append(errs, errors.New("stream: listen address is required"))
	}
	return errors.Join(errs...)
}
