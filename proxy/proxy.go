// Package proxy manages upgradeable contracts on the in-process chain. A proxy keeps a
// stable address and its own storage; the logic it executes is looked up through the
// EIP-1967 implementation slot and can be replaced without moving the proxy.
package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ImplementationSlot is bytes32(uint256(keccak256("eip1967.proxy.implementation")) - 1).
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// AdminSlot is bytes32(uint256(keccak256("eip1967.proxy.admin")) - 1).
	AdminSlot = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")

	UpgradedTopic     = crypto.Keccak256Hash([]byte("Upgraded(address)"))
	AdminChangedTopic = crypto.Keccak256Hash([]byte("AdminChanged(address,address)"))
)

var (
	// ErrNotProxy is returned when no proxy is deployed at the given address.
	ErrNotProxy = errors.New("proxy: no proxy at address")
	// ErrNotProxyAdmin is returned when the caller does not administer the proxy.
	ErrNotProxyAdmin = errors.New("proxy: caller is not the proxy admin")
	// ErrNilFactory is returned when no logic factory is supplied.
	ErrNilFactory = errors.New("proxy: nil logic factory")
)

// Implementation is logic executed against a proxy's storage.
type Implementation interface {
	Version() string
}

// Initializer is implemented by logic that runs one-time setup through a freshly
// deployed proxy. caller is the account that deployed the proxy.
type Initializer interface {
	Initialize(tx *chain.Tx, proxy, caller common.Address, args ...any) error
}

// LogicFactory returns a new, unshared implementation instance.
type LogicFactory func() Implementation

// Proxy is the contract object registered at a proxy address.
type Proxy struct{}

// Upgraded is emitted by a proxy whenever its implementation changes.
type Upgraded struct {
	Implementation common.Address `json:"implementation"`
}

func (Upgraded) Topic() common.Hash { return UpgradedTopic }

// AdminChanged is emitted by a proxy whenever its admin changes.
type AdminChanged struct {
	Previous common.Address `json:"previousAdmin"`
	New      common.Address `json:"newAdmin"`
}

func (AdminChanged) Topic() common.Hash { return AdminChangedTopic }

func addressAt(r chain.Reader, addr common.Address, slot common.Hash) common.Address {
	return common.BytesToAddress(r.GetState(addr, slot).Bytes())
}

func isProxy(r chain.Reader, addr common.Address) bool {
	c, ok := r.Contract(addr)
	if !ok {
		return false
	}
	_, ok = c.(*Proxy)
	return ok
}

// Resolve returns the implementation currently behind the proxy at proxyAddr.
func Resolve(r chain.Reader, proxyAddr common.Address) (Implementation, error) {
	if !isProxy(r, proxyAddr) {
		return nil, fmt.Errorf("%w: %s", ErrNotProxy, proxyAddr.Hex())
	}
	implAddr := addressAt(r, proxyAddr, ImplementationSlot)
	c, ok := r.Contract(implAddr)
	if !ok {
		return nil, fmt.Errorf("implementation %s: %w", implAddr.Hex(), chain.ErrContractNotFound)
	}
	impl, ok := c.(Implementation)
	if !ok {
		return nil, fmt.Errorf("contract at %s is not an implementation", implAddr.Hex())
	}
	return impl, nil
}

// ImplementationAddress returns the address stored in the proxy's implementation slot.
func ImplementationAddress(r chain.Reader, proxyAddr common.Address) (common.Address, error) {
	if !isProxy(r, proxyAddr) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotProxy, proxyAddr.Hex())
	}
	return addressAt(r, proxyAddr, ImplementationSlot), nil
}

// Admin returns the address allowed to upgrade the proxy.
func Admin(r chain.Reader, proxyAddr common.Address) (common.Address, error) {
	if !isProxy(r, proxyAddr) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotProxy, proxyAddr.Hex())
	}
	return addressAt(r, proxyAddr, AdminSlot), nil
}

func setImplementation(tx *chain.Tx, proxyAddr common.Address, factory LogicFactory) (common.Address, Implementation, error) {
	impl := factory()
	if impl == nil {
		return common.Address{}, nil, ErrNilFactory
	}
	implAddr, err := tx.Deploy(tx.From(), impl)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy implementation: %w", err)
	}
	if err := tx.SetState(proxyAddr, ImplementationSlot, common.BytesToHash(implAddr.Bytes())); err != nil {
		return common.Address{}, nil, err
	}
	tx.Emit(proxyAddr, Upgraded{Implementation: implAddr})
	return implAddr, impl, nil
}

// Manager deploys and upgrades proxies on a chain.
type Manager struct {
	chain *chain.Chain
}

func NewManager(c *chain.Chain) *Manager {
	return &Manager{chain: c}
}

// DeployNew deploys a proxy and a fresh implementation behind it in a single transaction
// sent by deployer. The proxy takes the deployer's next CREATE address. The deployer becomes
// the proxy admin and, when the logic implements Initializer, Initialize runs through the
// proxy with initArgs.
func (m *Manager) DeployNew(ctx context.Context, deployer common.Address, factory LogicFactory, initArgs ...any) (common.Address, error) {
	if factory == nil {
		return common.Address{}, ErrNilFactory
	}
	var proxyAddr common.Address
	_, err := m.chain.Transact(ctx, chain.Message{From: deployer, To: deployer}, func(tx *chain.Tx) error {
		var err error
		if proxyAddr, err = tx.Deploy(deployer, &Proxy{}); err != nil {
			return fmt.Errorf("deploy proxy: %w", err)
		}
		_, impl, err := setImplementation(tx, proxyAddr, factory)
		if err != nil {
			return err
		}
		if err := tx.SetState(proxyAddr, AdminSlot, common.BytesToHash(deployer.Bytes())); err != nil {
			return err
		}
		tx.Emit(proxyAddr, AdminChanged{New: deployer})

		if init, ok := impl.(Initializer); ok {
			if err := init.Initialize(tx, proxyAddr, deployer, initArgs...); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}
	return proxyAddr, nil
}

// Upgrade points the proxy at proxyAddr to a freshly deployed implementation. Proxy storage
// is untouched and the returned address is always proxyAddr.
func (m *Manager) Upgrade(ctx context.Context, caller, proxyAddr common.Address, factory LogicFactory) (common.Address, error) {
	if factory == nil {
		return common.Address{}, ErrNilFactory
	}
	_, err := m.chain.Transact(ctx, chain.Message{From: caller, To: proxyAddr}, func(tx *chain.Tx) error {
		admin, err := Admin(tx, proxyAddr)
		if err != nil {
			return err
		}
		if admin != caller {
			return fmt.Errorf("%w: %s", ErrNotProxyAdmin, caller.Hex())
		}
		_, _, err = setImplementation(tx, proxyAddr, factory)
		return err
	})
	if err != nil {
		return common.Address{}, err
	}
	return proxyAddr, nil
}

// Implementation returns the logic currently behind the proxy at proxyAddr.
func (m *Manager) Implementation(ctx context.Context, proxyAddr common.Address) (Implementation, error) {
	var impl Implementation
	err := m.chain.View(ctx, func(r chain.Reader) error {
		var err error
		impl, err = Resolve(r, proxyAddr)
		return err
	})
	return impl, err
}
