package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Value uint64
}

var testTopic = crypto.Keccak256Hash([]byte("TestEvent(uint64)"))

func (testEvent) Topic() common.Hash { return testTopic }

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func TestTransact_CommitsValueAndLogs(t *testing.T) {
	c := New(1337, WithClock(fixedClock(1_700_000_000)))
	c.Fund(alice, uint256.NewInt(100))

	receipt, err := c.Transact(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(40)}, func(tx *Tx) error {
		assert.Equal(t, uint64(40), tx.Value().Uint64())
		tx.Emit(bob, testEvent{Value: 1})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), receipt.BlockNumber)
	assert.Equal(t, uint64(1_700_000_000), receipt.Time)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, testTopic, receipt.Logs[0].Topic)
	assert.Equal(t, uint64(1), c.BlockNumber())

	err = c.View(context.Background(), func(r Reader) error {
		assert.Equal(t, uint64(60), r.Balance(alice).Uint64())
		assert.Equal(t, uint64(40), r.Balance(bob).Uint64())
		return nil
	})
	require.NoError(t, err)
}

func TestTransact_RevertsEverythingOnError(t *testing.T) {
	c := New(1337)
	c.Fund(alice, uint256.NewInt(100))
	token := common.HexToAddress("0x1")
	c.Mint(token, alice, uint256.NewInt(10))

	boom := errors.New("boom")
	var deployed common.Address
	_, err := c.Transact(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(50)}, func(tx *Tx) error {
		require.NoError(t, tx.TransferToken(token, alice, bob, uint256.NewInt(10)))
		require.NoError(t, tx.SetState(bob, common.Hash{1}, common.Hash{2}))
		addr, err := tx.Deploy(alice, "contract")
		require.NoError(t, err)
		deployed = addr
		tx.Emit(bob, testEvent{})
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, uint64(0), c.BlockNumber())
	assert.Empty(t, c.FilterLogs(common.Address{}, common.Hash{}))
	err = c.View(context.Background(), func(r Reader) error {
		assert.Equal(t, uint64(100), r.Balance(alice).Uint64())
		assert.True(t, r.Balance(bob).IsZero())
		assert.Equal(t, uint64(10), r.TokenBalance(token, alice).Uint64())
		assert.Equal(t, common.Hash{}, r.GetState(bob, common.Hash{1}))
		_, ok := r.Contract(deployed)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	// The reverted deployment did not consume the nonce.
	_, err = c.Transact(context.Background(), Message{From: alice, To: alice}, func(tx *Tx) error {
		addr, err := tx.Deploy(alice, "contract")
		require.NoError(t, err)
		assert.Equal(t, deployed, addr)
		return nil
	})
	require.NoError(t, err)
}

func TestTransact_InsufficientValue(t *testing.T) {
	c := New(1337)
	c.Fund(alice, uint256.NewInt(5))

	called := false
	_, err := c.Transact(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(6)}, func(tx *Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, called)

	var balErr *BalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, alice, balErr.Account)
	assert.Equal(t, uint64(5), balErr.Available.Uint64())
}

func TestTransact_CancelledContext(t *testing.T) {
	c := New(1337)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Transact(ctx, Message{From: alice, To: bob}, func(tx *Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCall_RevertsFrameOnly(t *testing.T) {
	c := New(1337)
	c.Fund(alice, uint256.NewInt(100))
	frameErr := errors.New("frame failed")

	receipt, err := c.Transact(context.Background(), Message{From: alice, To: alice}, func(tx *Tx) error {
		tx.Emit(alice, testEvent{Value: 1})

		err := tx.Call(alice, bob, uint256.NewInt(30), func() error {
			tx.Emit(bob, testEvent{Value: 2})
			return frameErr
		})
		assert.ErrorIs(t, err, frameErr)
		assert.Equal(t, uint64(100), tx.Balance(alice).Uint64())

		return tx.Call(alice, bob, uint256.NewInt(20), func() error {
			tx.Emit(bob, testEvent{Value: 3})
			return nil
		})
	})
	require.NoError(t, err)

	require.Len(t, receipt.Logs, 2)
	assert.Equal(t, testEvent{Value: 1}, receipt.Logs[0].Event)
	assert.Equal(t, testEvent{Value: 3}, receipt.Logs[1].Event)
	assert.Equal(t, uint(1), receipt.Logs[1].Index)
}

func TestView_IsReadOnly(t *testing.T) {
	c := New(1337)
	err := c.View(context.Background(), func(r Reader) error {
		tx, ok := r.(*Tx)
		require.True(t, ok)
		return tx.SetState(alice, common.Hash{1}, common.Hash{1})
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestDeploy_UsesCreateAddress(t *testing.T) {
	c := New(1337)
	var addrs []common.Address
	_, err := c.Transact(context.Background(), Message{From: alice, To: alice}, func(tx *Tx) error {
		for i := 0; i < 2; i++ {
			addr, err := tx.Deploy(alice, i)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{crypto.CreateAddress(alice, 0), crypto.CreateAddress(alice, 1)}, addrs)
}

func TestSubscribeLogs(t *testing.T) {
	c := New(1337)
	ch := make(chan Log, 4)
	sub := c.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	for i := uint64(1); i <= 2; i++ {
		_, err := c.Transact(context.Background(), Message{From: alice, To: bob}, func(tx *Tx) error {
			tx.Emit(bob, testEvent{Value: i})
			return nil
		})
		require.NoError(t, err)
	}

	for i := uint64(1); i <= 2; i++ {
		select {
		case l := <-ch:
			assert.Equal(t, testEvent{Value: i}, l.Event)
			assert.Equal(t, i, l.BlockNumber)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for log")
		}
	}

	assert.Len(t, c.FilterLogs(bob, testTopic), 2)
	assert.Empty(t, c.FilterLogs(alice, testTopic))
}

func TestDeployToken(t *testing.T) {
	c := New(1337)
	var token common.Address
	_, err := c.Transact(context.Background(), Message{From: alice, To: alice}, func(tx *Tx) error {
		var err error
		token, err = DeployToken(tx, Token{Name: "Test Token", Symbol: "TT", Decimals: 18}, uint256.NewInt(1000))
		return err
	})
	require.NoError(t, err)

	err = c.View(context.Background(), func(r Reader) error {
		meta, err := TokenAt(r, token)
		require.NoError(t, err)
		assert.Equal(t, "TT", meta.Symbol)
		assert.Equal(t, uint64(1000), r.TokenBalance(token, alice).Uint64())

		_, err = TokenAt(r, bob)
		assert.ErrorIs(t, err, ErrContractNotFound)
		return nil
	})
	require.NoError(t, err)
}
