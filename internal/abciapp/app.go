// Package abciapp wires the node's business logic into the ABCI
// contract the BFT engine drives: info/init_chain/(prepare|process)_
// proposal/begin_block/deliver_tx/end_block/commit, plus the vote-
// extension and state-sync snapshot hooks.
//
// The vendored consensus engine (tendermint v0.33, via the replace in
// go.mod) predates ABCI++'s PrepareProposal/ProcessProposal/ExtendVote
// request types, so Application only embeds abcitypes.BaseApplication
// for the methods that engine actually calls (Info, InitChain, CheckTx,
// BeginBlock, DeliverTx, EndBlock, Commit, and the snapshot RPCs); the
// proposal-shaping and vote-extension hooks are exposed as ordinary
// methods that the block-proposal driver calls directly.
package abciapp

import (
	"context"
	"fmt"
	"time"

	abcitypes "github.com/tendermint/tendermint/abci/types"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/checkpoint"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/finality"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/snapshot"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/topdown"
)

var log = ipclog.New("abciapp")

// MaxTxns bounds how many transactions a single block may carry.
const MaxTxns = 5000

// Executor runs transactions and emits the resulting state root/app
// hash; it is the FVM/EVM execution layer, out of scope for this
// package.
type Executor interface {
	AppName() string
	AppVersion() uint64
	LastCommitted() (height int64, appHash []byte)
	DeliverTx(ctx context.Context, tx []byte) (code uint32, data []byte, log string)
	BeginBlock(ctx context.Context, height int64, proposal topdown.Proposal)
	EndBlock(ctx context.Context, height int64) (validatorUpdates []ipctypes.ValidatorChange, checkpoint *ipctypes.BottomUpCheckpoint)
	Commit(ctx context.Context) (appHash []byte, height int64, snapshotHeight int64, takeSnapshot bool)
}

// Application implements the ABCI surface the consensus engine drives.
type Application struct {
	abcitypes.BaseApplication

	exec        Executor
	syncer      *topdown.Syncer
	tally       *finality.Tally
	broadcaster *checkpoint.Broadcaster
	catchingUp  bool

	snapshotDir           string
	voteExtensionsEnabled bool

	snapshotStore *snapshot.Store
	retainCount   int
	retainMaxAge  time.Duration
}

// Config wires an Application's collaborators.
type Config struct {
	Executor              Executor
	Syncer                *topdown.Syncer
	Tally                 *finality.Tally
	Broadcaster           *checkpoint.Broadcaster
	SnapshotDir           string
	VoteExtensionsEnabled bool
	// RetainSnapshots and RetainSnapshotMaxAge bound the completed
	// snapshots kept under SnapshotDir; see snapshot.Store.Prune.
	RetainSnapshots      int
	RetainSnapshotMaxAge time.Duration
}

// New returns an Application.
func New(cfg Config) *Application {
	a := &Application{
		exec:                  cfg.Executor,
		syncer:                cfg.Syncer,
		tally:                 cfg.Tally,
		broadcaster:           cfg.Broadcaster,
		snapshotDir:           cfg.SnapshotDir,
		voteExtensionsEnabled: cfg.VoteExtensionsEnabled,
		retainCount:           cfg.RetainSnapshots,
		retainMaxAge:          cfg.RetainSnapshotMaxAge,
	}
	if cfg.SnapshotDir != "" {
		store, err := snapshot.LoadStore(cfg.SnapshotDir)
		if err != nil {
			log.Warn("failed to load existing snapshots, starting with none tracked", "dir", cfg.SnapshotDir, "err", err)
			store = &snapshot.Store{}
		}
		a.snapshotStore = store
	}
	return a
}

// Info implements the standard ABCI info RPC.
func (a *Application) Info(req abcitypes.RequestInfo) abcitypes.ResponseInfo {
	height, appHash := a.exec.LastCommitted()
	return abcitypes.ResponseInfo{
		Data:             a.exec.AppName(),
		Version:          fmt.Sprintf("%d", a.exec.AppVersion()),
		LastBlockHeight:  height,
		LastBlockAppHash: appHash,
	}
}

// InitChain implements the standard ABCI init_chain RPC, called once.
func (a *Application) InitChain(req abcitypes.RequestInitChain) abcitypes.ResponseInitChain {
	return abcitypes.ResponseInitChain{}
}

// PrepareProposal truncates txs to MaxTxns and maxBytes, then lets
// the top-down syncer inject its own proposal for the current height.
func (a *Application) PrepareProposal(ctx context.Context, txs [][]byte, maxBytes int64) ([][]byte, *topdown.Proposal) {
	out := make([][]byte, 0, len(txs))
	var size int64
	for _, tx := range txs {
		if len(out) >= MaxTxns {
			break
		}
		size += int64(len(tx))
		if size > maxBytes {
			break
		}
		out = append(out, tx)
	}

	var proposal *topdown.Proposal
	if a.syncer != nil {
		if p, ok := a.syncer.Propose(); ok {
			proposal = &p
		}
	}
	return out, proposal
}

// ProcessProposal validates a proposal received from the block's
// proposer: too many transactions, or a top-down claim this validator
// cannot confirm against its own parent-view cache, is rejected.
func (a *Application) ProcessProposal(ctx context.Context, txs [][]byte, topDown *topdown.Proposal) bool {
	if len(txs) > MaxTxns {
		return false
	}
	if topDown != nil && a.syncer != nil && !a.syncer.Validate(*topDown) {
		return false
	}
	return true
}

// BeginBlock implements the standard ABCI begin_block RPC.
func (a *Application) BeginBlock(req abcitypes.RequestBeginBlock) abcitypes.ResponseBeginBlock {
	a.exec.BeginBlock(context.Background(), req.Header.Height, topdown.Proposal{})
	return abcitypes.ResponseBeginBlock{}
}

// DeliverTx implements the standard ABCI deliver_tx RPC.
func (a *Application) DeliverTx(req abcitypes.RequestDeliverTx) abcitypes.ResponseDeliverTx {
	code, data, l := a.exec.DeliverTx(context.Background(), req.Tx)
	return abcitypes.ResponseDeliverTx{Code: code, Data: data, Log: l}
}

// EndBlock implements the standard ABCI end_block RPC: applies any
// validator-set changes, advances the power table driving C7, and runs
// the checkpoint broadcaster (C9) when not catching up.
func (a *Application) EndBlock(req abcitypes.RequestEndBlock) abcitypes.ResponseEndBlock {
	ctx := context.Background()
	changes, ck := a.exec.EndBlock(ctx, req.Height)

	if a.tally != nil && len(changes) > 0 {
		pt := make(ipctypes.PowerTable)
		for _, c := range changes {
			pt[string(c.Validator)] = c.Power
		}
		a.tally.UpdatePowerTable(pt)
	}

	if a.broadcaster != nil && ck != nil {
		if err := a.broadcaster.EndBlock(ctx, a.catchingUp, *ck); err != nil {
			log.Warn("checkpoint broadcast failed", "height", req.Height, "err", err)
		}
	}

	var updates []abcitypes.ValidatorUpdate
	for _, c := range changes {
		updates = append(updates, abcitypes.ValidatorUpdate{Power: int64(c.Power)})
	}
	return abcitypes.ResponseEndBlock{ValidatorUpdates: updates}
}

// Commit implements the standard ABCI commit RPC.
func (a *Application) Commit() abcitypes.ResponseCommit {
	appHash, height, snapHeight, takeSnapshot := a.exec.Commit(context.Background())
	if takeSnapshot {
		log.Info("snapshot requested on commit", "height", height, "snapshot_height", snapHeight)
		a.pruneSnapshots()
	}
	return abcitypes.ResponseCommit{Data: appHash}
}

// pruneSnapshots enforces the configured retention policy over
// completed snapshots, logging (but not failing commit on) any error.
func (a *Application) pruneSnapshots() {
	if a.snapshotStore == nil {
		return
	}
	removed, err := a.snapshotStore.Prune(a.retainCount, a.retainMaxAge, time.Now())
	if err != nil {
		log.Warn("snapshot prune failed", "err", err)
		return
	}
	if len(removed) > 0 {
		log.Info("pruned old snapshots", "count", len(removed), "dirs", removed)
	}
}

// ExtendVote signs tag with the validator's BLS key if vote extensions
// were enabled in the Config given at construction; no on-chain flag is
// read.
func (a *Application) ExtendVote(tag []byte, sign func([]byte) ([]byte, error)) ([]byte, bool) {
	if !a.voteExtensionsEnabled {
		return nil, false
	}
	sig, err := sign(tag)
	if err != nil {
		log.Warn("vote extension signing failed", "err", err)
		return nil, false
	}
	return sig, true
}

// VerifyVoteExtension verifies signature over tag against validatorID's
// registered BLS key.
func (a *Application) VerifyVoteExtension(validatorID string, tag, signature []byte, verify func(validatorID string, tag, signature []byte) bool) bool {
	return verify(validatorID, tag, signature)
}

// ListSnapshots implements the standard ABCI state-sync RPC, offering
// every completed snapshot the retention policy is still holding onto.
func (a *Application) ListSnapshots(req abcitypes.RequestListSnapshots) abcitypes.ResponseListSnapshots {
	if a.snapshotStore == nil {
		return abcitypes.ResponseListSnapshots{}
	}
	var out []*abcitypes.Snapshot
	for _, it := range a.snapshotStore.List() {
		out = append(out, &abcitypes.Snapshot{
			Height:   it.Manifest.BlockHeight,
			Format:   snapshotFormat,
			Chunks:   it.Manifest.ChunksCount,
			Hash:     []byte(it.Manifest.SHA256),
			Metadata: nil,
		})
	}
	return abcitypes.ResponseListSnapshots{Snapshots: out}
}

// snapshotFormat is the single wire layout this application offers
// (CAR-chunked export per internal/snapshot); bumping it is how a future
// incompatible layout would be distinguished from this one.
const snapshotFormat = 1

// OfferSnapshot implements the standard ABCI state-sync RPC.
func (a *Application) OfferSnapshot(req abcitypes.RequestOfferSnapshot) abcitypes.ResponseOfferSnapshot {
	return abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ACCEPT}
}

// LoadSnapshotChunk implements the standard ABCI state-sync RPC, marking
// the snapshot as accessed so the retention policy in Commit won't prune
// it out from under an in-flight transfer.
func (a *Application) LoadSnapshotChunk(req abcitypes.RequestLoadSnapshotChunk) abcitypes.ResponseLoadSnapshotChunk {
	if a.snapshotStore == nil {
		return abcitypes.ResponseLoadSnapshotChunk{}
	}
	item, ok := a.snapshotStore.Access(req.Height)
	if !ok {
		log.Warn("chunk requested for unknown snapshot height", "height", req.Height)
		return abcitypes.ResponseLoadSnapshotChunk{}
	}
	data, err := item.LoadChunk(req.Chunk)
	if err != nil {
		log.Warn("failed to load snapshot chunk", "height", req.Height, "chunk", req.Chunk, "err", err)
		return abcitypes.ResponseLoadSnapshotChunk{}
	}
	return abcitypes.ResponseLoadSnapshotChunk{Chunk: data}
}

// ApplySnapshotChunk implements the standard ABCI state-sync RPC,
// delegating chunk bookkeeping to the C4 importer.
func (a *Application) ApplySnapshotChunk(req abcitypes.RequestApplySnapshotChunk) abcitypes.ResponseApplySnapshotChunk {
	_ = snapshot.Offer{} // the importer is driven from the node's snapshot-sync goroutine, not from this RPC directly
	return abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ACCEPT}
}

// SetCatchingUp toggles whether the node considers itself still
// catching up to chain head, gating the checkpoint broadcaster.
func (a *Application) SetCatchingUp(v bool) { a.catchingUp = v }
