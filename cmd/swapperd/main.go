package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-swapper-go/chain"
	"github.com/defistate/defistate-swapper-go/cmd/swapperd/config"
	"github.com/defistate/defistate-swapper-go/deployer"
	"github.com/defistate/defistate-swapper-go/deployments"
	"github.com/defistate/defistate-swapper-go/devnet"
	"github.com/defistate/defistate-swapper-go/proxy"
	"github.com/defistate/defistate-swapper-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-swapper-go/swapper"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// create the log handler
	rootLogger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	fail := func() {
		closeLog()
		os.Exit(1)
	}

	prometheusRegistry := prometheus.NewRegistry()
	prometheusRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := chain.New(cfg.ChainID, chain.WithLogger(rootLogger.With("component", "chain")))

	env, err := devnet.Setup(ctx, c, devnetConfig(cfg))
	if err != nil {
		rootLogger.Error("Failed to provision devnet", "error", err)
		fail()
	}
	rootLogger.Info("Devnet ready", "chain_id", cfg.ChainID, "router", env.Router.Hex(), "token", env.Token.Hex())

	ledger, err := deployments.Open(cfg.Ledger)
	if err != nil {
		rootLogger.Error("Failed to open deployment ledger", "backend", cfg.Ledger.Backend, "error", err)
		fail()
	}
	defer ledger.Close()

	swapperMetrics := swapper.NewMetrics(prometheusRegistry)
	coordinator, err := deployer.NewCoordinator(&deployer.Config{
		Chain:    c,
		Ledger:   ledger,
		Proxies:  proxy.NewManager(c),
		Factory:  swapper.NewLogic,
		Registry: prometheusRegistry,
		Logger:   rootLogger.With("component", "deployer"),
		MediatorOptions: []swapper.Option{
			swapper.WithMetrics(swapperMetrics),
			swapper.WithLogger(rootLogger.With("component", "swapper")),
		},
	})
	if err != nil {
		rootLogger.Error("Failed to initialize coordinator", "error", err)
		fail()
	}

	result, err := coordinator.DeployOrUpgrade(ctx, deployer.Environment{
		Name:      cfg.Environment.Name,
		Ephemeral: cfg.Environment.IsEphemeral(),
	}, cfg.Deployer.Address)
	if err != nil {
		rootLogger.Error("Deploy-or-upgrade failed", "environment", cfg.Environment.Name, "error", err)
		fail()
	}
	mediator := result.Mediator

	if err := configureRouter(ctx, mediator, cfg.Deployer.Address, env.Router); err != nil {
		rootLogger.Error("Failed to configure router", "error", err)
		fail()
	}

	streamer, err := server.NewSwapStreamer(server.Config{
		Source:   c,
		Mediator: mediator.Address(),
		Logger:   rootLogger.With("component", "swap-stream"),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize swap streamer", "error", err)
		fail()
	}
	rpcServer, err := server.NewServer(streamer)
	if err != nil {
		rootLogger.Error("Failed to initialize RPC server", "error", err)
		fail()
	}
	defer rpcServer.Stop()

	servers := []*http.Server{
		{Addr: cfg.Stream.Listen, Handler: rpcServer.WebsocketHandler([]string{"*"})},
	}
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(prometheusRegistry, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{Addr: cfg.Metrics.Listen, Handler: mux})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			rootLogger.Info("Listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	for i, s := range cfg.Swaps {
		res, err := mediator.SwapNativeForToken(ctx, swapper.SwapRequest{
			Caller:       s.Caller.Address,
			Token:        env.Token,
			MinTokensOut: s.MinTokensOut.Uint256(),
			AmountIn:     s.AmountIn.Uint256(),
		})
		if err != nil {
			rootLogger.Warn("Configured swap failed", "index", i, "caller", s.Caller.Hex(), "error", err)
			continue
		}
		rootLogger.Info("Configured swap completed", "index", i, "block", res.BlockNumber, "amount_in", res.AmountIn.Dec(), "amount_out", res.AmountOut.Dec())
	}

	rootLogger.Info("swapperd running",
		"environment", cfg.Environment.Name,
		"mediator", mediator.Address().Hex(),
		"path", result.Decision.Path.String(),
		"run_id", result.RunID,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		rootLogger.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	rootLogger.Info("swapperd stopped")
}

// configureRouter points a freshly deployed mediator at the devnet router. An upgraded
// mediator keeps its router.
func configureRouter(ctx context.Context, m *swapper.Mediator, admin, router common.Address) error {
	state, err := m.State(ctx)
	if err != nil {
		return err
	}
	if state == swapper.Configured {
		return nil
	}
	return m.SetRouter(ctx, admin, router)
}

func devnetConfig(cfg *config.Config) devnet.Config {
	out := devnet.Config{
		Deployer:        cfg.Deployer.Address,
		DeployerBalance: cfg.Devnet.DeployerBalance.Uint256(),
		FeePpm:          cfg.Devnet.FeePpm,
		Token: devnet.TokenConfig{
			Name:     cfg.Devnet.Token.Name,
			Symbol:   cfg.Devnet.Token.Symbol,
			Decimals: cfg.Devnet.Token.Decimals,
			Supply:   cfg.Devnet.Token.Supply.Uint256(),
		},
		Liquidity: devnet.LiquidityConfig{
			Native: cfg.Devnet.Liquidity.Native.Uint256(),
			Token:  cfg.Devnet.Liquidity.Token.Uint256(),
		},
	}
	for _, acc := range cfg.Devnet.Accounts {
		out.Accounts = append(out.Accounts, devnet.Account{Address: acc.Address.Address, Balance: acc.Balance.Uint256()})
	}
	return out
}

// newLogger builds the JSON root logger. With a log file configured, output goes to a
// rotating file instead of stdout.
func newLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	level, _ := cfg.SlogLevel()
	var (
		w       io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		w = rotator
		closeFn = func() { _ = rotator.Close() }
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closeFn
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
