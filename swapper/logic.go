package swapper

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/proxy"
	"github.com/defistate/defistate-swapper-go/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Storage slots of the mediator, namespaced so that they cannot collide with the proxy's own slots.
var (
	adminSlot  = crypto.Keccak256Hash([]byte("defistate.swapper.admin"))
	routerSlot = crypto.Keccak256Hash([]byte("defistate.swapper.router"))
)

const (
	LogicVersion   = "1.0.0"
	LogicVersionV2 = "2.0.0"
)

// Router is the routing collaborator. It must sell amountIn of the native currency value
// attached to the current call for tokenOut, deliver the output to recipient and fail when
// the output is below amountOutMin or the block time is past deadline.
type Router interface {
	SwapExactNativeForTokens(tx *chain.Tx, tokenOut common.Address, amountIn, amountOutMin *uint256.Int, recipient common.Address, deadline uint64) (*uint256.Int, error)
}

// Logic is the swapper implementation executed behind a proxy. It keeps no state of its
// own: the administrator and the router reference live in the proxy's storage, so they
// survive upgrades.
type Logic struct {
	version string
}

var (
	_ proxy.Implementation = (*Logic)(nil)
	_ proxy.Initializer    = (*Logic)(nil)
)

// NewLogic is the proxy.LogicFactory of the current swapper logic.
func NewLogic() proxy.Implementation {
	return &Logic{version: LogicVersion}
}

// NewLogicV2 is a storage-compatible successor of NewLogic, used to upgrade deployed mediators.
func NewLogicV2() proxy.Implementation {
	return &Logic{version: LogicVersionV2}
}

func (l *Logic) Version() string {
	return l.version
}

// Initialize records caller as the administrator of the mediator at self.
func (l *Logic) Initialize(tx *chain.Tx, self, caller common.Address, _ ...any) error {
	if admin := addressAt(tx, self, adminSlot); admin != (common.Address{}) {
		return ErrAlreadyInitialized
	}
	return tx.SetState(self, adminSlot, common.BytesToHash(caller.Bytes()))
}

// Admin returns the administrator of the mediator at self.
func (l *Logic) Admin(r chain.Reader, self common.Address) common.Address {
	return addressAt(r, self, adminSlot)
}

// Router returns the router reference of the mediator at self. A zero address means unconfigured.
func (l *Logic) Router(r chain.Reader, self common.Address) common.Address {
	return addressAt(r, self, routerSlot)
}

// SetRouter replaces the router reference. Only the administrator may call it.
func (l *Logic) SetRouter(tx *chain.Tx, self, caller, newRouter common.Address) (common.Address, error) {
	if caller != l.Admin(tx, self) {
		return common.Address{}, &UnauthorizedError{Caller: caller}
	}
	if newRouter == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero router address", ErrInvalidRequest)
	}
	previous := l.Router(tx, self)
	if err := tx.SetState(self, routerSlot, common.BytesToHash(newRouter.Bytes())); err != nil {
		return common.Address{}, err
	}
	tx.Emit(self, RouterUpdated{Previous: previous, Current: newRouter})
	return previous, nil
}

// SwapNativeForToken routes req.AmountIn, already paid to self by the transaction, through the
// configured router and forwards the entire output to req.Caller. The router is read once.
func (l *Logic) SwapNativeForToken(tx *chain.Tx, self common.Address, req SwapRequest) (*SwapCompleted, error) {
	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return nil, fmt.Errorf("%w: amountIn must be positive", ErrInvalidRequest)
	}
	routerAddr := l.Router(tx, self)
	if routerAddr == (common.Address{}) {
		return nil, ErrUnconfigured
	}
	contract, ok := tx.Contract(routerAddr)
	if !ok {
		return nil, &UpstreamError{Router: routerAddr, Err: chain.ErrContractNotFound}
	}
	r, ok := contract.(Router)
	if !ok {
		return nil, &UpstreamError{Router: routerAddr, Err: router.ErrNotRouter}
	}

	minOut := new(uint256.Int)
	if req.MinTokensOut != nil {
		minOut.Set(req.MinTokensOut)
	}

	var amountOut *uint256.Int
	err := tx.Call(self, routerAddr, req.AmountIn, func() error {
		var err error
		amountOut, err = r.SwapExactNativeForTokens(tx, req.Token, req.AmountIn, minOut, self, tx.Time())
		return err
	})
	if err != nil {
		if errors.Is(err, router.ErrInsufficientOutputAmount) {
			return nil, fmt.Errorf("%w: %w", ErrSlippageExceeded, err)
		}
		return nil, &UpstreamError{Router: routerAddr, Err: err}
	}

	if err := tx.TransferToken(req.Token, self, req.Caller, amountOut); err != nil {
		return nil, fmt.Errorf("forward tokens: %w", err)
	}

	ev := SwapCompleted{
		AmountIn:  new(uint256.Int).Set(req.AmountIn),
		Mediator:  self,
		AmountOut: amountOut,
	}
	tx.Emit(self, ev)
	return &ev, nil
}

func addressAt(r chain.Reader, addr common.Address, slot common.Hash) common.Address {
	return common.BytesToAddress(r.GetState(addr, slot).Bytes())
}

// logicAt resolves the swapper logic behind the proxy at addr.
func logicAt(r chain.Reader, addr common.Address) (*Logic, error) {
	impl, err := proxy.Resolve(r, addr)
	if err != nil {
		return nil, err
	}
	l, ok := impl.(*Logic)
	if !ok {
		return nil, fmt.Errorf("%w: %s runs %T", ErrNotSwapper, addr.Hex(), impl)
	}
	return l, nil
}
