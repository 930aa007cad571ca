package hostabci

import (
	"context"
	"fmt"
	"os"

	cmtcfg "github.com/cometbft/cometbft/config"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"

	"github.com/certen/kernel/internal/kernerr"
)

// Engine wraps an in-process CometBFT node driving an Application.
// Grounded on pkg/consensus/bft_integration.go's NewRealCometBFTEngine:
// load the node's private validator and node key from their standard
// RootDir locations, then hand the application to node.NewNode via a
// local (in-process) client creator.
type Engine struct {
	cometCfg *cmtcfg.Config
	node     *node.Node
}

// NewEngine constructs a CometBFT node over app, configured by
// cometCfg. cometCfg.RootDir must already contain a node key,
// validator key, and genesis file (CometBFT's own `init` layout).
func NewEngine(cometCfg *cmtcfg.Config, app *Application) (*Engine, error) {
	if cometCfg == nil {
		return nil, kernerr.New(kernerr.KindInvalid, "cometbft config must not be nil")
	}

	pv := privval.LoadFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindFatal, "load node key", err)
	}

	dbProvider := cmtcfg.DefaultDBProvider
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger = logger.With("module", "cometbft")

	n, err := node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		node.DefaultGenesisDocProviderFunc(cometCfg),
		dbProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		logger,
	)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindFatal, "create cometbft node", err)
	}

	return &Engine{cometCfg: cometCfg, node: n}, nil
}

// Start launches the underlying CometBFT node's consensus reactor,
// p2p switch and RPC server.
func (e *Engine) Start() error {
	if err := e.node.Start(); err != nil {
		return fmt.Errorf("start cometbft node: %w", err)
	}
	return nil
}

// Stop gracefully shuts the node down.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.node.IsRunning() {
		return nil
	}
	return e.node.Stop()
}
