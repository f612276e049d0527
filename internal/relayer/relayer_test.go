package relayer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

type fakeParentGateway struct {
	mu          sync.Mutex
	lastHeight  ipctypes.BlockHeight
	submitted   []ipctypes.BlockHeight
	failHeights map[ipctypes.BlockHeight]bool
}

func (f *fakeParentGateway) LastCommittedCheckpointHeight(ctx context.Context, child ipctypes.SubnetID) (ipctypes.BlockHeight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHeight, nil
}

func (f *fakeParentGateway) SubmitCheckpoint(ctx context.Context, bundle ipctypes.BottomUpCheckpointBundle, submitter ipctypes.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHeights[bundle.Checkpoint.BlockHeight] {
		return errors.New("submission rejected")
	}
	f.submitted = append(f.submitted, bundle.Checkpoint.BlockHeight)
	return nil
}

type fakeChildGateway struct {
	height ipctypes.BlockHeight
	events []ipctypes.QuorumEvent
}

func (f *fakeChildGateway) CurrentHeight(ctx context.Context) (ipctypes.BlockHeight, error) {
	return f.height, nil
}

func (f *fakeChildGateway) QuorumEventsInRange(ctx context.Context, from, to ipctypes.BlockHeight) ([]ipctypes.QuorumEvent, error) {
	var out []ipctypes.QuorumEvent
	for _, e := range f.events {
		if e.Height >= from && e.Height <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeChildGateway) CheckpointBundleAt(ctx context.Context, h ipctypes.BlockHeight) (ipctypes.BottomUpCheckpointBundle, error) {
	return ipctypes.BottomUpCheckpointBundle{Checkpoint: ipctypes.BottomUpCheckpoint{BlockHeight: h}}, nil
}

func TestTickSubmitsNewlyFinalizedCheckpoints(t *testing.T) {
	parent := &fakeParentGateway{lastHeight: 10, failHeights: map[ipctypes.BlockHeight]bool{}}
	child := &fakeChildGateway{
		height: 30,
		events: []ipctypes.QuorumEvent{{Height: 11}, {Height: 15}, {Height: 20}},
	}
	r := New(Config{FinalizationBlocks: 10, MaxParallelism: 4, PollingInterval: time.Millisecond}, parent, child)

	if err := r.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	if len(parent.submitted) != 3 {
		t.Fatalf("expected 3 submissions (heights 11,15,20 <= finalized 20), got %v", parent.submitted)
	}
}

func TestTickSleepsWhenNothingNewlyFinalized(t *testing.T) {
	parent := &fakeParentGateway{lastHeight: 25}
	child := &fakeChildGateway{height: 30, events: []ipctypes.QuorumEvent{{Height: 11}}}
	r := New(Config{FinalizationBlocks: 10, MaxParallelism: 4, PollingInterval: time.Millisecond}, parent, child)

	if err := r.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(parent.submitted) != 0 {
		t.Fatalf("expected no submissions when finalized <= last committed")
	}
}

func TestTickFailsRoundOnAnySubmissionError(t *testing.T) {
	parent := &fakeParentGateway{lastHeight: 10, failHeights: map[ipctypes.BlockHeight]bool{15: true}}
	child := &fakeChildGateway{height: 30, events: []ipctypes.QuorumEvent{{Height: 11}, {Height: 15}}}
	r := New(Config{FinalizationBlocks: 10, MaxParallelism: 4, PollingInterval: time.Millisecond}, parent, child)

	if err := r.tick(context.Background()); err == nil {
		t.Fatalf("expected the round to fail since one submission errored")
	}
}

func TestSemaphoreBoundsParallelism(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	parent := &fakeParentGateway{lastHeight: 0, failHeights: map[ipctypes.BlockHeight]bool{}}
	child := &fakeChildGateway{height: 100}
	for h := ipctypes.BlockHeight(1); h <= 20; h++ {
		child.events = append(child.events, ipctypes.QuorumEvent{Height: h})
	}
	r := New(Config{FinalizationBlocks: 0, MaxParallelism: 3, PollingInterval: time.Millisecond}, parent, child)

	// Wrap SubmitCheckpoint indirectly via a tracking parent gateway.
	tracking := &trackingGateway{fakeParentGateway: parent, mu: &mu, inFlight: &inFlight, maxInFlight: &maxInFlight}
	r.parent = tracking

	if err := r.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if maxInFlight > 3 {
		t.Fatalf("observed %d concurrent submissions, want <= 3 (max_parallelism)", maxInFlight)
	}
}

type trackingGateway struct {
	*fakeParentGateway
	mu          *sync.Mutex
	inFlight    *int
	maxInFlight *int
}

func (tg *trackingGateway) SubmitCheckpoint(ctx context.Context, bundle ipctypes.BottomUpCheckpointBundle, submitter ipctypes.Address) error {
	tg.mu.Lock()
	*tg.inFlight++
	if *tg.inFlight > *tg.maxInFlight {
		*tg.maxInFlight = *tg.inFlight
	}
	tg.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	tg.mu.Lock()
	*tg.inFlight--
	tg.mu.Unlock()
	return tg.fakeParentGateway.SubmitCheckpoint(ctx, bundle, submitter)
}
