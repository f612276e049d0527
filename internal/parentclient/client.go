// Package parentclient defines the parent-chain RPC surface consumed by
// the top-down syncer (C6) and the bottom-up relayer (C8), and adapts it
// to the narrower interfaces those components expect.
package parentclient

import (
	"context"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/relayer"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/topdown"
)

// Client is the full parent-chain RPC surface named in spec §6.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	GenesisEpoch(ctx context.Context, child ipctypes.SubnetID) (uint64, error)
	// BlockHash returns (hash, null, err); null=true signals a "null
	// round" with no block at that height.
	BlockHash(ctx context.Context, height uint64) (ipctypes.BlockHash, bool, error)
	// TopDownMsgs returns messages sorted by nonce ascending, plus the
	// block hash observed at height (for reorg detection).
	TopDownMsgs(ctx context.Context, child ipctypes.SubnetID, height uint64) ([]ipctypes.TopDownMessage, ipctypes.BlockHash, error)
	// ValidatorChangeset returns changes sorted by configuration_number
	// ascending, plus the block hash observed at height.
	ValidatorChangeset(ctx context.Context, child ipctypes.SubnetID, height uint64) ([]ipctypes.ValidatorChange, ipctypes.BlockHash, error)
	LastBottomUpCheckpointHeight(ctx context.Context, child ipctypes.SubnetID) (uint64, error)
	SubmitCheckpoint(ctx context.Context, submitter ipctypes.Address, checkpoint ipctypes.BottomUpCheckpoint, signatures, signatories [][]byte) ([]byte, error)
}

// TopDownAdapter exposes Client through the narrower surface the
// top-down syncer depends on.
type TopDownAdapter struct {
	Client Client
	Child  ipctypes.SubnetID
}

func (a TopDownAdapter) ChainHead(ctx context.Context) (uint64, error) {
	return a.Client.ChainHead(ctx)
}

func (a TopDownAdapter) BlockHashAtHeight(ctx context.Context, height uint64) (ipctypes.BlockHash, bool, error) {
	return a.Client.BlockHash(ctx, height)
}

func (a TopDownAdapter) ValidatorChangesAt(ctx context.Context, height uint64) ([]ipctypes.ValidatorChange, error) {
	changes, _, err := a.Client.ValidatorChangeset(ctx, a.Child, height)
	return changes, err
}

func (a TopDownAdapter) TopDownMessagesAt(ctx context.Context, height uint64) ([]ipctypes.TopDownMessage, error) {
	msgs, _, err := a.Client.TopDownMsgs(ctx, a.Child, height)
	return msgs, err
}

var _ topdown.ParentClient = TopDownAdapter{}

// RelayerAdapter exposes Client through the narrower surface the
// bottom-up relayer depends on.
type RelayerAdapter struct {
	Client Client
}

func (a RelayerAdapter) LastCommittedCheckpointHeight(ctx context.Context, child ipctypes.SubnetID) (ipctypes.BlockHeight, error) {
	return a.Client.LastBottomUpCheckpointHeight(ctx, child)
}

func (a RelayerAdapter) SubmitCheckpoint(ctx context.Context, bundle ipctypes.BottomUpCheckpointBundle, submitter ipctypes.Address) error {
	_, err := a.Client.SubmitCheckpoint(ctx, submitter, bundle.Checkpoint, bundle.Signatures, bundle.Signatories)
	return err
}

var _ relayer.ParentGateway = RelayerAdapter{}
