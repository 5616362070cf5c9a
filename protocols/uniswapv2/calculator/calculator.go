package uniswapv2

import (
	"errors"
	"fmt"

	uniswapv2 "github.com/defistate/defistate-swapper-go/protocols/uniswapv2"
	"github.com/holiman/uint256"
)

// FeePpmDivisor represents 100% in parts-per-million. A fee of 3000 is 0.3%.
const FeePpmDivisor = 1_000_000

var (
	feeDivisor = uint256.NewInt(FeePpmDivisor)
	one        = uint256.NewInt(1)

	// ErrNilAmount is returned when a nil pointer is passed for an amount or reserve.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidAmount is returned when an input/output amount is zero.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidFee is returned when the fee is not below FeePpmDivisor.
	ErrInvalidFee = errors.New("fee must be below 1_000_000 ppm")
	// ErrInsufficientLiquidity is returned when a reserve is empty, or an amountOut is requested
	// that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrOverflow = errors.New("arithmetic overflow")
)

// Direction selects which side of a native/token pool is being sold.
type Direction uint8

const (
	NativeToToken Direction = iota
	TokenToNative
)

func (d Direction) String() string {
	switch d {
	case NativeToToken:
		return "native->token"
	case TokenToNative:
		return "token->native"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func validate(reserveIn, reserveOut, amount *uint256.Int, feePpm uint32) error {
	if reserveIn == nil || reserveOut == nil || amount == nil {
		return ErrNilAmount
	}
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if feePpm >= FeePpmDivisor {
		return fmt.Errorf("%w: got %d", ErrInvalidFee, feePpm)
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return fmt.Errorf("%w: reserveIn=%s reserveOut=%s", ErrInsufficientLiquidity, reserveIn.Dec(), reserveOut.Dec())
	}
	return nil
}

// ExpectedOutput returns the amount of the output asset a constant-product pool pays for amountIn,
// after the fee is removed from the input:
//
//	k                = reserveIn * reserveOut
//	amountInAfterFee = amountIn * (1_000_000 - feePpm) / 1_000_000
//	amountOut        = reserveOut - k / (reserveIn + amountInAfterFee)
//
// Every division truncates. The result is capped at reserveOut-1 so a pool can never be
// fully drained when k is smaller than the post-trade input reserve.
func ExpectedOutput(reserveIn, reserveOut, amountIn *uint256.Int, feePpm uint32) (*uint256.Int, error) {
	if err := validate(reserveIn, reserveOut, amountIn, feePpm); err != nil {
		return nil, err
	}

	var k, afterFee, denominator, quotient uint256.Int
	if _, overflow := k.MulOverflow(reserveIn, reserveOut); overflow {
		return nil, fmt.Errorf("%w: reserve product", ErrOverflow)
	}
	if _, overflow := afterFee.MulOverflow(amountIn, uint256.NewInt(uint64(FeePpmDivisor-feePpm))); overflow {
		return nil, fmt.Errorf("%w: amountIn fee multiplier", ErrOverflow)
	}
	afterFee.Div(&afterFee, feeDivisor)
	if _, overflow := denominator.AddOverflow(reserveIn, &afterFee); overflow {
		return nil, fmt.Errorf("%w: post-trade input reserve", ErrOverflow)
	}

	quotient.Div(&k, &denominator)
	if quotient.IsZero() {
		return new(uint256.Int).Sub(reserveOut, one), nil
	}
	return new(uint256.Int).Sub(reserveOut, &quotient), nil
}

// GetAmountOut is the router-style rearrangement of the same pricing rule:
//
//	amountOut = amountIn*(1e6-fee)*reserveOut / (reserveIn*1e6 + amountIn*(1e6-fee))
//
// It floors the output once and never floors the fee-adjusted input. When
// amountIn*(1e6-fee) is a multiple of 1e6 the two formulas agree to within one unit, with
// ExpectedOutput never the smaller. Otherwise ExpectedOutput drops the fractional input
// first and the gap is unbounded: for reserves (100, 1e18), amountIn 1 and fee 3000,
// ExpectedOutput is 0 while GetAmountOut is about 9.87e15.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feePpm uint32) (*uint256.Int, error) {
	if err := validate(reserveIn, reserveOut, amountIn, feePpm); err != nil {
		return nil, err
	}

	var withFee, numerator, denominator uint256.Int
	if _, overflow := withFee.MulOverflow(amountIn, uint256.NewInt(uint64(FeePpmDivisor-feePpm))); overflow {
		return nil, fmt.Errorf("%w: amountIn fee multiplier", ErrOverflow)
	}
	if _, overflow := numerator.MulOverflow(&withFee, reserveOut); overflow {
		return nil, fmt.Errorf("%w: numerator", ErrOverflow)
	}
	if _, overflow := denominator.MulOverflow(reserveIn, feeDivisor); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}
	if _, overflow := denominator.AddOverflow(&denominator, &withFee); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}

	return new(uint256.Int).Div(&numerator, &denominator), nil
}

// GetAmountIn calculates the input required to receive amountOut from the pool.
//
//	amountIn = reserveIn*amountOut*1e6 / ((reserveOut-amountOut)*(1e6-fee)) + 1
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feePpm uint32) (*uint256.Int, error) {
	if err := validate(reserveIn, reserveOut, amountOut, feePpm); err != nil {
		return nil, err
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.Dec(), reserveOut.Dec())
	}

	var numerator, denominator uint256.Int
	if _, overflow := numerator.MulOverflow(reserveIn, amountOut); overflow {
		return nil, fmt.Errorf("%w: numerator", ErrOverflow)
	}
	if _, overflow := numerator.MulOverflow(&numerator, feeDivisor); overflow {
		return nil, fmt.Errorf("%w: numerator", ErrOverflow)
	}
	denominator.Sub(reserveOut, amountOut)
	if _, overflow := denominator.MulOverflow(&denominator, uint256.NewInt(uint64(FeePpmDivisor-feePpm))); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}

	amountIn := new(uint256.Int).Div(&numerator, &denominator)
	return amountIn.Add(amountIn, one), nil
}

// GetReserves orders the pool reserves for a trade in the given direction.
func GetReserves(direction Direction, pool uniswapv2.Pool) (reserveIn, reserveOut *uint256.Int, err error) {
	switch direction {
	case NativeToToken:
		return pool.ReserveNative, pool.ReserveToken, nil
	case TokenToNative:
		return pool.ReserveToken, pool.ReserveNative, nil
	}
	return nil, nil, fmt.Errorf("pool %s: unknown direction %s", pool.Address.Hex(), direction)
}

// SimulateSwap prices amountIn against pool with ExpectedOutput and returns the pool as it
// would look after the trade. The input pool is never mutated.
func SimulateSwap(amountIn *uint256.Int, direction Direction, pool uniswapv2.Pool) (*uint256.Int, uniswapv2.Pool, error) {
	reserveIn, reserveOut, err := GetReserves(direction, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}
	amountOut, err := ExpectedOutput(reserveIn, reserveOut, amountIn, pool.FeePpm)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}

	newPoolState := pool.Copy()
	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, uniswapv2.Pool{}, fmt.Errorf("%w: post-trade input reserve", ErrOverflow)
	}
	newReserveOut := new(uint256.Int).Sub(reserveOut, amountOut)
	if direction == NativeToToken {
		newPoolState.ReserveNative, newPoolState.ReserveToken = newReserveIn, newReserveOut
	} else {
		newPoolState.ReserveToken, newPoolState.ReserveNative = newReserveIn, newReserveOut
	}

	return amountOut, newPoolState, nil
}
