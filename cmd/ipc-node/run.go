package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	abciserver "github.com/tendermint/tendermint/abci/server"

	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/abciapp"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/chainid"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/checkpoint"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/childclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/config"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ethapi"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/evmconv"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/finality"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/keystore"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/parentclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/relayer"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/rpcclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/topdown"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/txcache"
)

var runLog = ipclog.New("cmd/run")

func newRunCmd(configFile *string) *cobra.Command {
	var abciAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the subnet node: ABCI application and JSON-RPC facade",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), *configFile, abciAddr)
		},
	}
	cmd.Flags().StringVar(&abciAddr, "abci-addr", "tcp://127.0.0.1:26658", "listen address the BFT engine dials for the ABCI socket connection")
	return cmd
}

func runNode(ctx context.Context, configFile, abciAddr string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	child, err := ipctypes.ParseSubnetID(cfg.Subnet.ID)
	if err != nil {
		return fmt.Errorf("run: parsing subnet.id: %w", err)
	}
	parentID, _ := child.Parent()

	cid, err := chainid.FromName(cfg.Subnet.ID)
	if err != nil {
		return fmt.Errorf("run: deriving chain id: %w", err)
	}

	ks, err := keystore.New(cfg.Keystore.Dir)
	if err != nil {
		return fmt.Errorf("run: opening keystore: %w", err)
	}
	signer, err := defaultSigner(ks)
	if err != nil {
		return fmt.Errorf("run: loading validator key: %w", err)
	}

	parentRPC := rpcclient.New(cfg.Parent.URL, cfg.Parent.Timeout)
	childRPC := rpcclient.New(cfg.Child.URL, cfg.Child.Timeout)

	tally := finality.New(child.String(), 67, cfg.TopDown.PollingInterval*20)
	syncer := topdown.New(topdown.Config{
		ChainHeadDelay:        cfg.TopDown.ChainHeadDelay,
		PollingInterval:       cfg.TopDown.PollingInterval,
		ExponentialRetryLimit: cfg.TopDown.ExponentialRetryLimit,
		ExponentialBackOff:    cfg.TopDown.ExponentialBackOff,
		MaxProposalRange:      cfg.TopDown.MaxProposalRange,
		ProposalDelay:         cfg.TopDown.ProposalDelay,
		MaxReorgDepth:         cfg.Subnet.MaxReorgDepth,
	}, parentclient.TopDownAdapter{Client: parentRPC, Child: child}, tally, ipctypes.IPCParentFinality{})

	rel := relayer.New(relayer.Config{
		Parent:             parentID,
		Child:              child,
		Submitter:          keystoreAddress(signer),
		FinalizationBlocks: ipctypes.BlockHeight(cfg.Relayer.FinalizationBlocks),
		MaxParallelism:     cfg.Relayer.MaxParallelism,
		PollingInterval:    cfg.Relayer.PollingInterval,
	}, parentclient.RelayerAdapter{Client: parentRPC}, childclient.RelayerAdapter{Client: childRPC})

	broadcaster := checkpoint.New(checkpoint.Config{
		GasOverestimationRate: cfg.Checkpoint.GasOverestimationRate,
		MaxRetries:            cfg.Checkpoint.MaxRetries,
		RetryDelay:            cfg.Checkpoint.RetryDelay,
	}, unwiredGateway{}, signer, unwiredMempool{})

	app := abciapp.New(abciapp.Config{
		Executor:              unwiredExecutor{},
		Syncer:                syncer,
		Tally:                 tally,
		Broadcaster:           broadcaster,
		SnapshotDir:           cfg.Snapshot.Dir,
		VoteExtensionsEnabled: false, // §9 open question: default off until the BFT engine negotiates ABCI++
		RetainSnapshots:       cfg.Snapshot.RetainCount,
		RetainSnapshotMaxAge:  time.Duration(cfg.Snapshot.RetainMaxAgeHours) * time.Hour,
	})

	srv := abciserver.NewSocketServer(abciAddr, app)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("run: starting abci socket server: %w", err)
	}
	defer srv.Stop()
	runLog.Info("abci application listening", "addr", abciAddr)

	cache, err := txcache.NewCache(4096)
	if err != nil {
		return fmt.Errorf("run: building tx cache: %w", err)
	}
	buffer := txcache.NewBuffer(64)
	addrs, err := ethapi.NewAddressCache(4096)
	if err != nil {
		return fmt.Errorf("run: building address cache: %w", err)
	}
	api := ethapi.New(unwiredBackend{chainID: cid}, cache, buffer, addrs)
	facade := ethapi.NewServer(api, nil)

	readTimeout, writeTimeout, idleTimeout := ethapi.Timeouts()
	httpSrv := &http.Server{
		Addr:         cfg.EthAPI.ListenAddr,
		Handler:      facade.Handler(cfg.EthAPI.AllowedOrigins),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	listener, err := net.Listen("tcp", cfg.EthAPI.ListenAddr)
	if err != nil {
		return fmt.Errorf("run: binding ethapi listener: %w", err)
	}
	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			runLog.Error("ethapi server stopped", "err", err)
		}
	}()
	runLog.Info("ethapi facade listening", "addr", cfg.EthAPI.ListenAddr)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go syncer.Run(runCtx)
	go rel.Run(runCtx)

	<-runCtx.Done()
	runLog.Info("shutting down")
	_ = httpSrv.Close()
	return nil
}

func defaultSigner(ks *keystore.FileBackend) (*keystore.CheckpointSigner, error) {
	addr, err := ks.GetDefault()
	if err != nil {
		return nil, err
	}
	key, err := ks.Get(addr)
	if err != nil {
		return nil, err
	}
	return keystore.NewCheckpointSigner(key), nil
}

func keystoreAddress(s *keystore.CheckpointSigner) ipctypes.Address {
	return ipctypes.NewDelegatedAddress(ipctypes.EAMNamespace, s.PublicKey())
}

// unwiredGateway, unwiredMempool, unwiredExecutor, and unwiredBackend are
// the integration seams the specification leaves as external
// collaborators: the gateway contract, the BFT mempool, the FVM
// execution engine, and its query surface respectively. A concrete
// deployment supplies real implementations of these at node wiring time;
// until then every method reports that its counterpart isn't connected.
type unwiredGateway struct{}

func (unwiredGateway) IncompleteCheckpoints(ctx context.Context, validatorKey []byte) ([]ipctypes.BottomUpCheckpoint, error) {
	return nil, errNotWired("gateway contract client")
}

func (unwiredGateway) EstimateSignatureGas(ctx context.Context, c ipctypes.BottomUpCheckpoint) (uint64, error) {
	return 0, errNotWired("gateway contract client")
}

type unwiredMempool struct{}

func (unwiredMempool) BroadcastSync(ctx context.Context, c ipctypes.BottomUpCheckpoint, sig ipctypes.Signature, gasLimit uint64) error {
	return errNotWired("BFT mempool client")
}

type unwiredExecutor struct{}

func (unwiredExecutor) AppName() string                { return "ipc-subnet-node" }
func (unwiredExecutor) AppVersion() uint64              { return 1 }
func (unwiredExecutor) LastCommitted() (int64, []byte)  { return 0, nil }

func (unwiredExecutor) DeliverTx(ctx context.Context, tx []byte) (uint32, []byte, string) {
	return 1, nil, "execution engine not wired"
}

func (unwiredExecutor) BeginBlock(ctx context.Context, height int64, proposal topdown.Proposal) {}

func (unwiredExecutor) EndBlock(ctx context.Context, height int64) ([]ipctypes.ValidatorChange, *ipctypes.BottomUpCheckpoint) {
	return nil, nil
}

func (unwiredExecutor) Commit(ctx context.Context) ([]byte, int64, int64, bool) {
	return nil, 0, 0, false
}

type unwiredBackend struct{ chainID uint64 }

func (b unwiredBackend) ChainID() uint64 { return b.chainID }

func (unwiredBackend) LatestHeight(ctx context.Context) (uint64, error) {
	return 0, errNotWired("execution engine query surface")
}

func (unwiredBackend) GetTransactionReceipt(ctx context.Context, hash [32]byte) (ethapi.Receipt, bool, error) {
	return ethapi.Receipt{}, false, errNotWired("execution engine query surface")
}

func (unwiredBackend) GetTransactionByHash(ctx context.Context, hash [32]byte) (evmconv.EthTx1559, bool, error) {
	return evmconv.EthTx1559{}, false, errNotWired("execution engine query surface")
}

func (unwiredBackend) Call(ctx context.Context, args ethapi.CallArgs) ([]byte, error) {
	return nil, errNotWired("execution engine query surface")
}

func (unwiredBackend) EstimateGas(ctx context.Context, args ethapi.CallArgs) (uint64, error) {
	return 0, errNotWired("execution engine query surface")
}

func (unwiredBackend) SubmitTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	return [32]byte{}, errNotWired("execution engine query surface")
}

func errNotWired(what string) error {
	return fmt.Errorf("run: %s is not connected to this node instance", what)
}
