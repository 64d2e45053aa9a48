// Package node wires the base layer, the rollup and the delegation bridge
// into one service.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"go.uber.org/multierr"

	"github.com/rollkit/ephemeral-counter/address"
	"github.com/rollkit/ephemeral-counter/bridge/local"
	"github.com/rollkit/ephemeral-counter/config"
	"github.com/rollkit/ephemeral-counter/ledger"
	"github.com/rollkit/ephemeral-counter/processor"
	"github.com/rollkit/ephemeral-counter/runtime"
	"github.com/rollkit/ephemeral-counter/store"
	"github.com/rollkit/ephemeral-counter/types"
)

// ErrAirdropOnRollup is returned when lamports are requested on the rollup.
var ErrAirdropOnRollup = errors.New("airdrops are only available on the base layer")

// Node hosts the counter program on both layers.
type Node struct {
	service.BaseService

	conf    config.NodeConfig
	program types.Pubkey

	baseLedger   ledger.Ledger
	rollupLedger *ledger.DatastoreLedger

	Bridge    *local.Bridge
	Base      *runtime.Executor
	Rollup    *runtime.Executor
	Committer *local.Committer

	prometheusSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode opens the ledgers described by conf and wires the executors.
func NewNode(ctx context.Context, conf config.NodeConfig, logger log.Logger) (*Node, error) {
	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	program, err := conf.Program()
	if err != nil {
		return nil, err
	}

	baseLedger, rollupLedger, err := openLedgers(conf, logger)
	if err != nil {
		return nil, err
	}
	if baseLedger, err = withCache(baseLedger, conf); err != nil {
		return nil, multierr.Append(err, rollupLedger.Close())
	}

	procMetrics, bridgeMetrics := processor.NopMetrics(), local.NopMetrics()
	if conf.Instrumentation != nil && conf.Instrumentation.IsPrometheusEnabled() {
		procMetrics = processor.PrometheusMetrics(conf.Instrumentation.Namespace)
		bridgeMetrics = local.PrometheusMetrics(conf.Instrumentation.Namespace)
	}

	b := local.NewBridge(baseLedger, rollupLedger, rollupLedger.Datastore(), logger.With("module", "bridge"),
		local.WithMetrics(bridgeMetrics),
		local.WithCommitQueueSize(conf.CommitQueueSize),
	)
	proc := processor.NewProcessor(b, logger.With("module", "program"), processor.WithMetrics(procMetrics))

	base := runtime.NewExecutor(runtime.BaseLayer, baseLedger, runtime.Ed25519Verifier{}, logger.With("module", "base"))
	base.Register(program, proc)
	base.Register(types.DelegationProgramID, local.NewDelegationProgram(logger.With("module", "delegation")))

	rollup := runtime.NewExecutor(runtime.RollupLayer, rollupLedger, runtime.Ed25519Verifier{}, logger.With("module", "rollup"))
	rollup.Register(program, proc)

	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		conf:         conf,
		program:      program,
		baseLedger:   baseLedger,
		rollupLedger: rollupLedger,
		Bridge:       b,
		Base:         base,
		Rollup:       rollup,
		Committer:    local.NewCommitter(b, base, conf.CommitInterval, logger.With("module", "committer")),
		ctx:          ctx,
		cancel:       cancel,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

func openLedgers(conf config.NodeConfig, logger log.Logger) (ledger.Ledger, *ledger.DatastoreLedger, error) {
	if conf.InMemory {
		logger.Info("WARNING: working in in-memory mode")
		return ledger.NewKVLedger(store.NewInMemoryKVStore()), ledger.NewInMemoryDatastoreLedger(), nil
	}
	kv, err := store.NewKVStore(conf.DBBackend, conf.RootDir, conf.DBPath, "base")
	if err != nil {
		return nil, nil, fmt.Errorf("open base ledger: %w", err)
	}
	rollupPath := conf.RollupDBPath
	if !filepath.IsAbs(rollupPath) {
		rollupPath = filepath.Join(conf.RootDir, rollupPath)
	}
	rollup, err := ledger.NewBadgerDatastoreLedger(rollupPath)
	if err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("open rollup ledger: %w", err), kv.Close())
	}
	return ledger.NewKVLedger(kv), rollup, nil
}

// withCache puts an account cache in front of l when conf asks for one.
func withCache(l ledger.Ledger, conf config.NodeConfig) (ledger.Ledger, error) {
	if conf.AccountCacheSize == 0 {
		return l, nil
	}
	cached, err := ledger.NewCachedLedger(l, conf.AccountCacheSize)
	if err != nil {
		return nil, multierr.Append(err, l.Close())
	}
	return cached, nil
}

// OnStart is a part of Service interface.
func (n *Node) OnStart() error {
	if err := n.Bridge.Load(n.ctx); err != nil {
		return fmt.Errorf("error while loading commit queue: %w", err)
	}
	if pending := len(n.Bridge.Pending()); pending > 0 {
		n.Logger.Info("resuming pending commits", "count", pending)
	}
	if err := n.Committer.Start(); err != nil {
		return fmt.Errorf("error while starting committer: %w", err)
	}
	if n.conf.Instrumentation != nil && n.conf.Instrumentation.IsPrometheusEnabled() {
		n.prometheusSrv = n.startPrometheusServer()
	}
	n.Logger.Info("counter program hosted", "program", n.program)
	return nil
}

// OnStop is a part of Service interface.
func (n *Node) OnStop() {
	n.Logger.Info("halting node...")
	n.cancel()
	var err error
	if n.Committer.IsRunning() {
		err = n.Committer.Stop()
	}
	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, n.prometheusSrv.Shutdown(ctx))
	}
	err = multierr.Append(err, n.baseLedger.Close())
	err = multierr.Append(err, n.rollupLedger.Close())
	if err != nil {
		n.Logger.Error("errors while stopping node:", "errors", err)
	}
}

func (n *Node) startPrometheusServer() *http.Server {
	srv := &http.Server{
		Addr: n.conf.Instrumentation.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.conf.Instrumentation.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 2 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			n.Logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// Program returns the id the counter program is hosted under.
func (n *Node) Program() types.Pubkey {
	return n.program
}

func (n *Node) executor(layer runtime.Layer) (*runtime.Executor, error) {
	switch layer {
	case runtime.BaseLayer:
		return n.Base, nil
	case runtime.RollupLayer:
		return n.Rollup, nil
	default:
		return nil, fmt.Errorf("%w: %d", runtime.ErrUnknownLayer, layer)
	}
}

// SendTransaction executes tx on layer.
func (n *Node) SendTransaction(ctx context.Context, layer runtime.Layer, tx *types.Transaction) error {
	e, err := n.executor(layer)
	if err != nil {
		return err
	}
	return e.Execute(ctx, tx)
}

// GetAccount returns the account stored under key on layer.
func (n *Node) GetAccount(ctx context.Context, layer runtime.Layer, key types.Pubkey) (*types.Account, error) {
	e, err := n.executor(layer)
	if err != nil {
		return nil, err
	}
	return e.Ledger().Get(ctx, key)
}

// GetCounter returns the counter of owner on layer together with its account.
func (n *Node) GetCounter(ctx context.Context, layer runtime.Layer, owner types.Pubkey) (*types.Counter, *types.Account, error) {
	pda, _, err := address.CounterAddress(owner, n.program)
	if err != nil {
		return nil, nil, err
	}
	a, err := n.GetAccount(ctx, layer, pda)
	if err != nil {
		return nil, nil, err
	}
	c, err := types.ReadCounter(a)
	if err != nil {
		return nil, nil, err
	}
	return c, a, nil
}

// RequestAirdrop credits lamports to key on the base layer.
func (n *Node) RequestAirdrop(ctx context.Context, layer runtime.Layer, key types.Pubkey, lamports uint64) (*types.Account, error) {
	if layer != runtime.BaseLayer {
		return nil, ErrAirdropOnRollup
	}
	a, err := n.Base.Mint(ctx, key, lamports)
	if err != nil {
		return nil, err
	}
	n.Logger.Info("airdrop", "to", key, "lamports", lamports)
	return a, nil
}

// PendingCommits returns commits not yet written to the base layer.
func (n *Node) PendingCommits() []local.CommitJob {
	return n.Bridge.Pending()
}

// SubscribeCommits streams commits applied to the base layer.
func (n *Node) SubscribeCommits(buffer int) (<-chan local.CommitEvent, func()) {
	return n.Committer.Subscribe(buffer)
}
