package deployer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/deployments"
	"github.com/defistate/defistate-swapper-go/proxy"
	"github.com/defistate/defistate-swapper-go/swapper"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deployerAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(t *testing.T, c *chain.Chain, ledger deployments.Ledger, proxies ProxyManager, factory proxy.LogicFactory) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(&Config{
		Chain:    c,
		Ledger:   ledger,
		Proxies:  proxies,
		Factory:  factory,
		Registry: prometheus.NewRegistry(),
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	return coord
}

func TestDecide(t *testing.T) {
	addr := common.HexToAddress("0x1234")

	tests := []struct {
		name     string
		existing common.Address
		recorded bool
		want     Decision
	}{
		{"no record deploys", common.Address{}, false, Decision{Path: FirstDeploy}},
		{"record upgrades", addr, true, Decision{Path: Upgrade, Existing: addr}},
		{"empty recorded address deploys", common.Address{}, true, Decision{Path: FirstDeploy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.existing, tt.recorded))
		})
	}
}

func TestDeployOrUpgrade_SecondRunUpgradesInPlace(t *testing.T) {
	ctx := context.Background()
	c := chain.New(31337)
	ledger := deployments.NewMemoryLedger()
	coord := newCoordinator(t, c, ledger, proxy.NewManager(c), swapper.NewLogic)
	env := Environment{Name: "sepolia"}

	first, err := coord.DeployOrUpgrade(ctx, env, deployerAddr)
	require.NoError(t, err)
	assert.Equal(t, FirstDeploy, first.Decision.Path)
	assert.NotEmpty(t, first.RunID)

	recorded, ok, err := ledger.Read(ctx, env.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Address, recorded)

	gotAdmin, err := first.Mediator.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, deployerAddr, gotAdmin)

	second, err := coord.DeployOrUpgrade(ctx, env, deployerAddr)
	require.NoError(t, err)
	assert.Equal(t, Decision{Path: Upgrade, Existing: first.Address}, second.Decision)
	assert.Equal(t, first.Address, second.Address)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Len(t, c.FilterLogs(first.Address, proxy.UpgradedTopic), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(coord.metrics.DeploymentsTotal.WithLabelValues("sepolia", "first_deploy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coord.metrics.DeploymentsTotal.WithLabelValues("sepolia", "upgrade")))
}

func TestDeployOrUpgrade_UpgradeKeepsRouter(t *testing.T) {
	ctx := context.Background()
	c := chain.New(31337)
	ledger := deployments.NewMemoryLedger()
	proxies := proxy.NewManager(c)
	router := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	first, err := newCoordinator(t, c, ledger, proxies, swapper.NewLogic).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
	require.NoError(t, err)
	require.NoError(t, first.Mediator.SetRouter(ctx, deployerAddr, router))

	second, err := newCoordinator(t, c, ledger, proxies, swapper.NewLogicV2).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
	require.NoError(t, err)

	version, err := second.Mediator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, swapper.LogicVersionV2, version)

	got, err := second.Mediator.Router(ctx)
	require.NoError(t, err)
	assert.Equal(t, router, got)
}

func TestDeployOrUpgrade_EphemeralEnvironmentRedeploys(t *testing.T) {
	ctx := context.Background()
	c := chain.New(31337)
	ledger := deployments.NewMemoryLedger()
	coord := newCoordinator(t, c, ledger, proxy.NewManager(c), nil)
	env := Environment{Name: "hardhat", Ephemeral: true}

	first, err := coord.DeployOrUpgrade(ctx, env, deployerAddr)
	require.NoError(t, err)
	second, err := coord.DeployOrUpgrade(ctx, env, deployerAddr)
	require.NoError(t, err)

	assert.Equal(t, FirstDeploy, second.Decision.Path)
	assert.NotEqual(t, first.Address, second.Address)

	recorded, ok, err := ledger.Read(ctx, env.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.Address, recorded)
}

// stubProxies is a ProxyManager returning fixed results.
type stubProxies struct {
	deployAddr  common.Address
	deployErr   error
	upgradeAddr common.Address
	upgradeErr  error
	deploys     int
	upgrades    int
}

func (s *stubProxies) DeployNew(context.Context, common.Address, proxy.LogicFactory, ...any) (common.Address, error) {
	s.deploys++
	return s.deployAddr, s.deployErr
}

func (s *stubProxies) Upgrade(context.Context, common.Address, common.Address, proxy.LogicFactory) (common.Address, error) {
	s.upgrades++
	return s.upgradeAddr, s.upgradeErr
}

// failingLedger wraps a ledger and fails the selected operations.
type failingLedger struct {
	deployments.Ledger
	readErr  error
	writeErr error
}

func (l *failingLedger) Read(ctx context.Context, env string) (common.Address, bool, error) {
	if l.readErr != nil {
		return common.Address{}, false, l.readErr
	}
	return l.Ledger.Read(ctx, env)
}

func (l *failingLedger) Write(ctx context.Context, env string, addr common.Address) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	return l.Ledger.Write(ctx, env, addr)
}

func TestDeployOrUpgrade_Failures(t *testing.T) {
	ctx := context.Background()
	recorded := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	boom := errors.New("boom")

	t.Run("upgrade that moves the proxy is rejected", func(t *testing.T) {
		ledger := deployments.NewMemoryLedger()
		require.NoError(t, ledger.Write(ctx, "sepolia", recorded))
		stub := &stubProxies{upgradeAddr: common.HexToAddress("0xbb")}

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
		require.ErrorIs(t, err, ErrAddressChanged)

		got, _, err := ledger.Read(ctx, "sepolia")
		require.NoError(t, err)
		assert.Equal(t, recorded, got)
	})

	t.Run("upgrade failure is propagated without deploying", func(t *testing.T) {
		ledger := deployments.NewMemoryLedger()
		require.NoError(t, ledger.Write(ctx, "sepolia", recorded))
		stub := &stubProxies{upgradeErr: proxy.ErrNotProxyAdmin}

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
		require.ErrorIs(t, err, proxy.ErrNotProxyAdmin)
		assert.Equal(t, 0, stub.deploys)
	})

	t.Run("deploy failure leaves the ledger empty", func(t *testing.T) {
		ledger := deployments.NewMemoryLedger()
		stub := &stubProxies{deployErr: boom}

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
		require.ErrorIs(t, err, boom)

		_, ok, err := ledger.Read(ctx, "sepolia")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ledger read failure stops the run", func(t *testing.T) {
		stub := &stubProxies{}
		ledger := &failingLedger{Ledger: deployments.NewMemoryLedger(), readErr: boom}

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, stub.deploys+stub.upgrades)
	})

	t.Run("ledger write failure is reported", func(t *testing.T) {
		stub := &stubProxies{deployAddr: common.HexToAddress("0xcc")}
		ledger := &failingLedger{Ledger: deployments.NewMemoryLedger(), writeErr: boom}

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "sepolia"}, deployerAddr)
		require.ErrorIs(t, err, boom)
	})

	t.Run("invalid environment name", func(t *testing.T) {
		stub := &stubProxies{}
		_, err := newCoordinator(t, chain.New(1), deployments.NewMemoryLedger(), stub, nil).DeployOrUpgrade(ctx, Environment{Name: "../prod"}, deployerAddr)
		require.ErrorIs(t, err, deployments.ErrInvalidEnvironment)
	})

	t.Run("zero deployer is rejected before touching the ledger", func(t *testing.T) {
		stub := &stubProxies{}
		ledger := deployments.NewMemoryLedger()
		require.NoError(t, ledger.Write(ctx, "hardhat", recorded))

		_, err := newCoordinator(t, chain.New(1), ledger, stub, nil).DeployOrUpgrade(ctx, Environment{Name: "hardhat", Ephemeral: true}, common.Address{})
		require.ErrorIs(t, err, ErrZeroDeployer)
		assert.Equal(t, 0, stub.deploys+stub.upgrades)

		got, ok, err := ledger.Read(ctx, "hardhat")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, recorded, got)
	})
}

func TestNewCoordinator_ValidatesConfig(t *testing.T) {
	_, err := NewCoordinator(&Config{Registry: prometheus.NewRegistry(), Logger: testLogger()})
	require.Error(t, err)
}
