// Package childclient defines the child-chain RPC surface consumed by
// the bottom-up relayer (C8).
package childclient

import (
	"context"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/relayer"
)

// Client is the child-chain RPC surface named in spec §6.
type Client interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
	CheckpointPeriod(ctx context.Context, child ipctypes.SubnetID) (uint64, error)
	QuorumReachedEvents(ctx context.Context, height uint64) ([]ipctypes.QuorumEvent, error)
	CheckpointBundleAt(ctx context.Context, height uint64) (ipctypes.BottomUpCheckpointBundle, bool, error)
}

// RelayerAdapter exposes Client through the narrower surface the
// bottom-up relayer depends on.
type RelayerAdapter struct {
	Client Client
}

func (a RelayerAdapter) CurrentHeight(ctx context.Context) (ipctypes.BlockHeight, error) {
	return a.Client.CurrentEpoch(ctx)
}

func (a RelayerAdapter) QuorumEventsInRange(ctx context.Context, from, to ipctypes.BlockHeight) ([]ipctypes.QuorumEvent, error) {
	var out []ipctypes.QuorumEvent
	for h := from; h <= to; h++ {
		events, err := a.Client.QuorumReachedEvents(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (a RelayerAdapter) CheckpointBundleAt(ctx context.Context, height ipctypes.BlockHeight) (ipctypes.BottomUpCheckpointBundle, error) {
	bundle, ok, err := a.Client.CheckpointBundleAt(ctx, height)
	if err != nil {
		return ipctypes.BottomUpCheckpointBundle{}, err
	}
	if !ok {
		return ipctypes.BottomUpCheckpointBundle{}, errNoBundle
	}
	return bundle, nil
}

var errNoBundle = &noBundleError{}

type noBundleError struct{}

func (*noBundleError) Error() string { return "childclient: no checkpoint bundle at requested height" }

var _ relayer.ChildGateway = RelayerAdapter{}
