package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const etherDecimals = 18

// Amount is a token or native amount in base units. In YAML it is either a plain integer
// ("1000000") or a whole-unit value with an "ether" suffix ("35ether", "0.1ether").
type Amount struct {
	uint256.Int
}

// NewAmount returns an Amount of v base units.
func NewAmount(v *uint256.Int) Amount {
	var a Amount
	a.Set(v)
	return a
}

// UnmarshalYAML parses decimal base units or an "ether" suffixed value.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("amount must be a scalar")
	}
	parsed, err := ParseAmount(value.Value)
	if err != nil {
		return err
	}
	a.Set(parsed)
	return nil
}

// Uint256 returns a copy of the amount.
func (a *Amount) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&a.Int)
}

// ParseAmount parses "123" as base units and "1.5ether" as 1.5 * 10^18 base units.
func ParseAmount(raw string) (*uint256.Int, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "_", ""))
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	whole, ok := strings.CutSuffix(s, "ether")
	if !ok {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		return v, nil
	}

	whole = strings.TrimSpace(whole)
	intPart, fracPart, _ := strings.Cut(whole, ".")
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("parse amount %q: missing value", raw)
	}
	if len(fracPart) > etherDecimals {
		return nil, fmt.Errorf("parse amount %q: more than %d decimal places", raw, etherDecimals)
	}
	digits := intPart + fracPart + strings.Repeat("0", etherDecimals-len(fracPart))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: invalid number", raw)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("parse amount %q: exceeds 256 bits", raw)
	}
	return v, nil
}

// Address is a hex account address in YAML.
type Address struct {
	common.Address
}

func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("address must be a string")
	}
	raw := strings.TrimSpace(value.Value)
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("invalid address %q", raw)
	}
	a.Address = common.HexToAddress(raw)
	return nil
}
