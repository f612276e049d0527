// Package relayer implements C8, the bottom-up relayer: it watches the
// child subnet for quorum-reached checkpoint events and submits the
// corresponding bundles to the parent contract, bounding in-flight
// submissions with a FIFO semaphore.
package relayer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

var log = ipclog.New("relayer")

// ParentGateway is the parent-side collaborator.
type ParentGateway interface {
	LastCommittedCheckpointHeight(ctx context.Context, child ipctypes.SubnetID) (ipctypes.BlockHeight, error)
	SubmitCheckpoint(ctx context.Context, bundle ipctypes.BottomUpCheckpointBundle, submitter ipctypes.Address) error
}

// ChildGateway is the child-side collaborator.
type ChildGateway interface {
	CurrentHeight(ctx context.Context) (ipctypes.BlockHeight, error)
	QuorumEventsInRange(ctx context.Context, from, to ipctypes.BlockHeight) ([]ipctypes.QuorumEvent, error)
	CheckpointBundleAt(ctx context.Context, height ipctypes.BlockHeight) (ipctypes.BottomUpCheckpointBundle, error)
}

// Config tunes one relayer loop instance.
type Config struct {
	Parent             ipctypes.SubnetID
	Child              ipctypes.SubnetID
	Submitter          ipctypes.Address
	FinalizationBlocks ipctypes.BlockHeight
	MaxParallelism     int64
	PollingInterval    time.Duration
}

// Relayer drives one (parent, child, submitter) relaying loop.
type Relayer struct {
	cfg    Config
	parent ParentGateway
	child  ChildGateway
	sem    *semaphore.Weighted
}

// New returns a relayer for the given parent/child gateways.
func New(cfg Config, parent ParentGateway, child ChildGateway) *Relayer {
	return &Relayer{cfg: cfg, parent: parent, child: child, sem: semaphore.NewWeighted(cfg.MaxParallelism)}
}

// Run drives the relayer loop until ctx is cancelled.
func (r *Relayer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.tick(ctx); err != nil {
			log.Warn("relay round failed, retrying next iteration with a fresh view", "err", err)
		}
		select {
		case <-time.After(r.cfg.PollingInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relayer) tick(ctx context.Context) error {
	last, err := r.parent.LastCommittedCheckpointHeight(ctx, r.cfg.Child)
	if err != nil {
		return fmt.Errorf("relayer: query last committed height: %w", err)
	}

	head, err := r.child.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("relayer: query child height: %w", err)
	}
	finalized := ipctypes.BlockHeight(1)
	if head > r.cfg.FinalizationBlocks {
		finalized = head - r.cfg.FinalizationBlocks
	}
	if finalized <= last {
		return nil
	}

	events, err := r.child.QuorumEventsInRange(ctx, last+1, finalized)
	if err != nil {
		return fmt.Errorf("relayer: query quorum events: %w", err)
	}

	var bundles []ipctypes.BottomUpCheckpointBundle
	for _, ev := range events {
		if ev.Height <= last {
			continue
		}
		bundle, err := r.child.CheckpointBundleAt(ctx, ev.Height)
		if err != nil {
			return fmt.Errorf("relayer: fetch bundle at %d: %w", ev.Height, err)
		}
		bundles = append(bundles, bundle)
	}

	return r.submitAll(ctx, bundles)
}

func (r *Relayer) submitAll(ctx context.Context, bundles []ipctypes.BottomUpCheckpointBundle) error {
	errCh := make(chan error, len(bundles))

	for _, bundle := range bundles {
		bundle := bundle
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("relayer: acquire submission permit: %w", err)
		}
		go func() {
			defer r.sem.Release(1)
			errCh <- r.parent.SubmitCheckpoint(ctx, bundle, r.cfg.Submitter)
		}()
	}

	var firstErr error
	for range bundles {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
