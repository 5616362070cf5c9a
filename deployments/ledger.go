// Package deployments persists the proxy address of the swap mediator per deployment
// environment, so that later runs upgrade the existing proxy instead of deploying a new one.
package deployments

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidEnvironment is returned for empty or unsafe environment names.
	ErrInvalidEnvironment = errors.New("invalid environment name")
	// ErrInvalidAddress is returned when a zero address is written.
	ErrInvalidAddress = errors.New("invalid proxy address")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt deployment record")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown ledger backend")
)

// Record is the persisted form of a deployment, one per environment.
type Record struct {
	ProxyAddress string `json:"proxyAddress"`
}

// Ledger stores at most one proxy address per environment.
type Ledger interface {
	// Read returns the recorded proxy address. ok is false when nothing is recorded.
	Read(ctx context.Context, environment string) (addr common.Address, ok bool, err error)
	// Write records addr for environment, replacing any previous record.
	Write(ctx context.Context, environment string, addr common.Address) error
	// Clear removes the record for environment. Clearing a missing record is not an error.
	Clear(ctx context.Context, environment string) error
	Close() error
}

var environmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateEnvironment checks that name can be used as a ledger key and a directory name.
func ValidateEnvironment(name string) error {
	if !environmentPattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidEnvironment, name)
	}
	return nil
}

func validateWrite(environment string, addr common.Address) error {
	if err := ValidateEnvironment(environment); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return ErrInvalidAddress
	}
	return nil
}

// decode turns a stored address string into an address. An empty string means no record.
func decode(environment, stored string) (common.Address, bool, error) {
	if stored == "" {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(stored) {
		return common.Address{}, false, fmt.Errorf("%w: environment %s holds %q", ErrCorruptRecord, environment, stored)
	}
	return common.HexToAddress(stored), true, nil
}
