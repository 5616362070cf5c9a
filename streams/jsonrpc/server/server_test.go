package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/streams/jsonrpc"
	"github.com/defistate/defistate-swapper-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-swapper-go/swapper"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mediator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	sender   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emit(c *chain.Chain, addr common.Address, ev chain.Event) error {
	_, err := c.Transact(context.Background(), chain.Message{From: sender, To: addr}, func(tx *chain.Tx) error {
		tx.Emit(addr, ev)
		return nil
	})
	return err
}

func startServer(t *testing.T, c *chain.Chain, filter common.Address) string {
	t.Helper()
	streamer, err := NewSwapStreamer(Config{Source: c, Mediator: filter, Logger: testLogger()})
	require.NoError(t, err)
	rpcServer, err := NewServer(streamer)
	require.NoError(t, err)

	httpServer := httptest.NewServer(rpcServer.WebsocketHandler([]string{"*"}))
	t.Cleanup(func() {
		rpcServer.Stop()
		httpServer.Close()
	})
	return "ws://" + strings.TrimPrefix(httpServer.URL, "http://")
}

func TestSwapStream_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := chain.New(31337)
	url := startServer(t, c, mediator)

	cl, err := client.NewClient(ctx, client.Config{URL: url, Logger: testLogger(), BufferSize: 10})
	require.NoError(t, err)

	// The subscription only sees logs committed after it exists, so keep emitting
	// until the first notification arrives.
	first := swapper.SwapCompleted{AmountIn: uint256.NewInt(30), Mediator: mediator, AmountOut: uint256.NewInt(18)}
	var got jsonrpc.SwapNotification
	require.Eventually(t, func() bool {
		if err := emit(c, mediator, first); err != nil {
			return false
		}
		select {
		case got = <-cl.Swaps():
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, mediator, got.Mediator)
	assert.Equal(t, uint256.NewInt(30), got.AmountIn)
	assert.Equal(t, uint256.NewInt(18), got.AmountOut)

	// Drain notifications for any extra emissions made while connecting.
	drain := func() {
		for {
			select {
			case <-cl.Swaps():
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}
	drain()

	require.NoError(t, emit(c, other, swapper.SwapCompleted{AmountIn: uint256.NewInt(1), Mediator: other, AmountOut: uint256.NewInt(1)}))
	require.NoError(t, emit(c, mediator, swapper.RouterUpdated{Current: other}))
	require.NoError(t, emit(c, mediator, swapper.SwapCompleted{AmountIn: uint256.NewInt(5), Mediator: mediator, AmountOut: uint256.NewInt(3)}))

	select {
	case n := <-cl.Swaps():
		assert.Equal(t, uint256.NewInt(5), n.AmountIn)
		assert.Equal(t, c.BlockNumber(), n.BlockNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the second swap")
	}

	cancel()
	select {
	case _, ok := <-cl.Err():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestRelay_DropsSwapsInsteadOfBlockingCommits(t *testing.T) {
	c := chain.New(31337)
	streamer, err := NewSwapStreamer(Config{Source: c, Logger: testLogger(), LogBufferSize: 2})
	require.NoError(t, err)

	in := make(chan chain.Log, 1)
	backlog := make(chan chain.Log, 2)
	sub := c.SubscribeLogs(in)
	defer sub.Unsubscribe()

	quit := make(chan struct{})
	dropped := make(chan int, 1)
	go func() { dropped <- streamer.relay("stalled", in, backlog, quit) }()

	committed := make(chan error, 1)
	go func() {
		for i := range 5 {
			ev := swapper.SwapCompleted{AmountIn: uint256.NewInt(uint64(i + 1)), Mediator: mediator, AmountOut: uint256.NewInt(1)}
			if err := emit(c, mediator, ev); err != nil {
				committed <- err
				return
			}
		}
		committed <- nil
	}()

	select {
	case err := <-committed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("commits blocked behind a subscriber that never reads")
	}

	// The backlog keeps the oldest swaps in commit order.
	require.Len(t, backlog, 2)
	for want := uint64(1); want <= 2; want++ {
		l := <-backlog
		assert.Equal(t, want, l.Event.(swapper.SwapCompleted).AmountIn.Uint64())
	}

	close(quit)
	assert.GreaterOrEqual(t, <-dropped, 2)
}

func TestNewSwapStreamer_ValidatesConfig(t *testing.T) {
	_, err := NewSwapStreamer(Config{Logger: testLogger()})
	require.Error(t, err)
	_, err = NewSwapStreamer(Config{Source: chain.New(1)})
	require.Error(t, err)
}

func TestToEvent(t *testing.T) {
	s, err := NewSwapStreamer(Config{Source: chain.New(1), Mediator: mediator, Logger: testLogger()})
	require.NoError(t, err)

	swap := swapper.SwapCompleted{AmountIn: uint256.NewInt(2), Mediator: mediator, AmountOut: uint256.NewInt(1)}
	ev, ok, err := s.toEvent(chain.Log{Address: mediator, Topic: swap.Topic(), Event: swap, BlockNumber: 7, Index: 3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jsonrpc.EventTypeSwap, ev.Type)
	var n jsonrpc.SwapNotification
	require.NoError(t, json.Unmarshal(ev.Payload, &n))
	assert.Equal(t, jsonrpc.SwapNotification{
		BlockNumber: 7,
		LogIndex:    3,
		Mediator:    mediator,
		AmountIn:    uint256.NewInt(2),
		AmountOut:   uint256.NewInt(1),
	}, n)

	_, ok, err = s.toEvent(chain.Log{Address: other, Topic: swap.Topic(), Event: swap})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.toEvent(chain.Log{Address: mediator, Topic: swapper.RouterUpdatedTopic, Event: swapper.RouterUpdated{}})
	require.NoError(t, err)
	assert.False(t, ok)
}
