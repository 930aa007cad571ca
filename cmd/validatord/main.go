// Command validatord runs a single A-DMFT kernel validator node: it
// loads operator configuration and genesis, opens the durable node
// store, bootstraps the execution machine, wires a CometBFT node over
// the kernel's ABCI adapter, and serves Prometheus metrics until
// signaled to stop.
//
// Grounded on pkg/consensus/bft_integration.go's NewUnifiedCometBFTEngine
// start sequence (config → node key/priv validator → node.NewNode →
// Start) and pkg/config.Load's environment-driven configuration idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	cmtcfg "github.com/cometbft/cometbft/config"

	"github.com/certen/kernel/internal/commitment/hashscheme"
	"github.com/certen/kernel/internal/config"
	"github.com/certen/kernel/internal/execution"
	"github.com/certen/kernel/internal/hostabci"
	"github.com/certen/kernel/internal/identity"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/metrics"
	"github.com/certen/kernel/internal/nodestore"
	"github.com/certen/kernel/internal/retention"
	"github.com/certen/kernel/internal/services"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/types"
)

func main() {
	genesisPath := flag.String("genesis", "", "path to a genesis YAML file (optional; defaults applied if absent)")
	flag.Parse()

	logger := kernlog.New("validatord")

	if err := run(*genesisPath, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(genesisPath string, logger kernlog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	var genesis *config.GenesisConfig
	if genesisPath != "" {
		genesis, err = config.LoadGenesis(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
	} else {
		genesis = config.DefaultGenesis()
	}

	govAccount, err := cfg.GovernanceAccount()
	if err != nil {
		return fmt.Errorf("decode governance account: %w", err)
	}

	store, err := nodestore.Open(cfg.DataDir, cfg.EpochSize)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	tree := statetree.New(hashscheme.New())

	handlers := services.Handlers(services.GovernanceParams{})
	registry := execution.NewRegistry(handlers...)

	identityHub := identity.NewService(identity.Config{
		ChainID:             cfg.ChainIDNumeric,
		AllowedTargetSuites: cfg.AllowedTargetSuites,
		AllowDowngrade:      cfg.AllowDowngrade,
		GracePeriodBlocks:   cfg.GracePeriodBlocks,
	})

	machine := execution.NewMachine(tree, registry, cfg.ChainID, govAccount, cfg.AcceptStagedDuringGrace, nil, identityHub, logger)

	metricsBundle := metrics.New()

	app := hostabci.New(machine, store, hostabci.WireCodec{}, hostabci.Config{
		GasTarget:     cfg.GasTarget,
		Policies:      genesisPolicies(genesis, services.DefaultPolicies()),
		DefaultTiming: cfg.BlockTiming(),
	}, metricsBundle, logger)

	cometCfg := cmtcfg.DefaultConfig()
	cometCfg.SetRoot(filepath.Join(cfg.DataDir, "cometbft"))
	cometCfg.P2P.ListenAddress = cfg.ListenAddress
	cometCfg.RPC.ListenAddress = cfg.RPCAddress
	cometCfg.Moniker = cfg.ChainID
	cometCfg.DBBackend = "goleveldb"

	engine, err := hostabci.NewEngine(cometCfg, app)
	if err != nil {
		return fmt.Errorf("construct cometbft engine: %w", err)
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start cometbft engine: %w", err)
	}

	gcCfg := retention.Config{KeepRecentHeights: cfg.KeepRecentHeights, MinFinalityDepth: cfg.MinFinalityDepth}
	gc := retention.NewGC(gcCfg, tree, store, retention.NewPinSet(), retention.NewProofCache(), heightSource{machine}, logger, 64, 256, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gc.Run(ctx, time.Duration(cfg.GCIntervalSecs)*time.Second)

	metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: metricsBundle.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	logger.Printf("validatord running: chain_id=%s data_dir=%s p2p=%s rpc=%s metrics=%s", cfg.ChainID, cfg.DataDir, cfg.ListenAddress, cfg.RPCAddress, cfg.MetricsAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Printf("shutdown signal received, stopping")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Printf("cometbft engine stop error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
	}

	return nil
}

// genesisPolicies merges any genesis-declared service policy
// overrides into the default policy map, so an operator can tighten a
// service's method permissions without recompiling.
func genesisPolicies(genesis *config.GenesisConfig, defaults map[string]execution.ServicePolicy) map[string]execution.ServicePolicy {
	if genesis == nil || len(genesis.ServicePolicies) == 0 {
		return defaults
	}
	out := make(map[string]execution.ServicePolicy, len(defaults))
	for id, policy := range defaults {
		out[id] = policy
	}
	for id, override := range genesis.ServicePolicies {
		methods := make(map[string]types.MethodPermission, len(override.Methods))
		for method, level := range override.Methods {
			methods[method] = parsePermission(level)
		}
		prefixes := make([][]byte, 0, len(override.AllowedSystemPrefixes))
		for _, p := range override.AllowedSystemPrefixes {
			prefixes = append(prefixes, []byte(p))
		}
		out[id] = execution.ServicePolicy{Methods: methods, AllowedSystemPrefixes: prefixes}
	}
	return out
}

func parsePermission(level string) types.MethodPermission {
	switch strings.ToLower(level) {
	case "governance":
		return types.PermissionGovernance
	case "internal":
		return types.PermissionInternal
	default:
		return types.PermissionUser
	}
}

// heightSource adapts the execution machine to retention.HeightSource.
type heightSource struct {
	machine *execution.Machine
}

func (h heightSource) CurrentHeight() uint64 { return h.machine.Status().Height }
