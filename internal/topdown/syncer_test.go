package topdown

import (
	"context"
	"testing"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

type fakeParent struct {
	head   uint64
	hashes map[uint64]ipctypes.BlockHash
	nulls  map[uint64]bool
}

func (f *fakeParent) ChainHead(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeParent) BlockHashAtHeight(ctx context.Context, h uint64) (ipctypes.BlockHash, bool, error) {
	if f.nulls[h] {
		return nil, true, nil
	}
	return f.hashes[h], false, nil
}

func (f *fakeParent) ValidatorChangesAt(ctx context.Context, h uint64) ([]ipctypes.ValidatorChange, error) {
	return nil, nil
}

func (f *fakeParent) TopDownMessagesAt(ctx context.Context, h uint64) ([]ipctypes.TopDownMessage, error) {
	return nil, nil
}

type fakeTally struct {
	published []ipctypes.BlockHeight
}

func (f *fakeTally) Publish(h ipctypes.BlockHeight, hash ipctypes.BlockHash) {
	f.published = append(f.published, h)
}

func newHash(b byte) ipctypes.BlockHash { return ipctypes.BlockHash{b} }

func TestTickFetchesUpToLatestFinalizable(t *testing.T) {
	parent := &fakeParent{
		head:   10,
		hashes: map[uint64]ipctypes.BlockHash{1: newHash(1), 2: newHash(2), 3: newHash(3)},
		nulls:  map[uint64]bool{},
	}
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 7, PollingInterval: time.Millisecond, ExponentialRetryLimit: 2, ExponentialBackOff: time.Millisecond}
	s := New(cfg, parent, tally, ipctypes.IPCParentFinality{Height: 0})

	s.tick(context.Background())

	if len(tally.published) != 3 {
		t.Fatalf("expected heights 1..3 published, got %v", tally.published)
	}
	if _, ok := s.cache.Get(3); !ok {
		t.Fatalf("cache should contain height 3")
	}
}

func TestNullRoundRecordedAsTombstone(t *testing.T) {
	parent := &fakeParent{
		head:   5,
		hashes: map[uint64]ipctypes.BlockHash{1: newHash(1)},
		nulls:  map[uint64]bool{2: true},
	}
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 3, PollingInterval: time.Millisecond, ExponentialRetryLimit: 2, ExponentialBackOff: time.Millisecond}
	s := New(cfg, parent, tally, ipctypes.IPCParentFinality{Height: 0})

	s.tick(context.Background())

	tuple, ok := s.cache.Get(2)
	if !ok || !tuple.Null {
		t.Fatalf("height 2 should be a null tombstone, got %+v, %v", tuple, ok)
	}
	for _, h := range tally.published {
		if h == 2 {
			t.Fatalf("null round should not be published to the finality tally")
		}
	}
}

func TestCommitDropsBelowFinality(t *testing.T) {
	parent := &fakeParent{head: 10, hashes: map[uint64]ipctypes.BlockHash{1: newHash(1), 2: newHash(2), 3: newHash(3)}, nulls: map[uint64]bool{}}
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 7, PollingInterval: time.Millisecond, ExponentialRetryLimit: 2, ExponentialBackOff: time.Millisecond}
	s := New(cfg, parent, tally, ipctypes.IPCParentFinality{Height: 0})
	s.tick(context.Background())

	s.Commit(ipctypes.IPCParentFinality{Height: 2, BlockHash: newHash(2)})

	if _, ok := s.cache.Get(1); ok {
		t.Fatalf("height 1 should be dropped after commit to finality 2")
	}
	if _, ok := s.cache.Get(3); !ok {
		t.Fatalf("height 3 should survive commit to finality 2")
	}
}

func TestProposeAndValidate(t *testing.T) {
	parent := &fakeParent{head: 20, hashes: map[uint64]ipctypes.BlockHash{1: newHash(1), 2: newHash(2), 3: newHash(3)}, nulls: map[uint64]bool{}}
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 17, PollingInterval: time.Millisecond, ExponentialRetryLimit: 2, ExponentialBackOff: time.Millisecond, MaxProposalRange: 10, ProposalDelay: 0}
	s := New(cfg, parent, tally, ipctypes.IPCParentFinality{Height: 0})
	s.tick(context.Background())

	p, ok := s.Propose()
	if !ok || p.Height != 3 {
		t.Fatalf("expected proposal at height 3, got %+v, %v", p, ok)
	}
	if !s.Validate(p) {
		t.Fatalf("validator should accept its own syncer's proposal")
	}
	if s.Validate(Proposal{Height: 3, Hash: newHash(99)}) {
		t.Fatalf("validator should reject a mismatched hash")
	}
	if s.Validate(Proposal{Height: 0, Hash: newHash(1)}) {
		t.Fatalf("validator should reject a proposal at or below finality")
	}
}

func TestReorgWithinMaxDepthTruncatesAndResyncs(t *testing.T) {
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 7, PollingInterval: time.Millisecond, MaxReorgDepth: 5}
	s := New(cfg, &fakeParent{}, tally, ipctypes.IPCParentFinality{Height: 0})
	must(t, s.cache.Append(1, ipctypes.ParentViewTuple{BlockHash: newHash(1)}))
	must(t, s.cache.Append(2, ipctypes.ParentViewTuple{BlockHash: newHash(2)}))
	must(t, s.cache.Append(3, ipctypes.ParentViewTuple{BlockHash: newHash(3)}))

	// Parent reorgs from height 2 onward: 2 cached heights invalidated,
	// within MaxReorgDepth=5.
	halted := s.detectReorg(2, newHash(200), false)
	if !halted {
		t.Fatalf("detectReorg should report a reorg was detected")
	}
	if s.Halted() {
		t.Fatalf("a reorg within max_reorg_depth should not halt the syncer")
	}
	if _, ok := s.cache.Get(2); ok {
		t.Fatalf("height 2 and above should be truncated from the cache")
	}
	if _, ok := s.cache.Get(1); !ok {
		t.Fatalf("height 1, below the divergence, should survive truncation")
	}
}

func TestReorgBeyondMaxDepthHalts(t *testing.T) {
	tally := &fakeTally{}
	cfg := Config{ChainHeadDelay: 7, PollingInterval: time.Millisecond, MaxReorgDepth: 2}
	s := New(cfg, &fakeParent{}, tally, ipctypes.IPCParentFinality{Height: 0})
	must(t, s.cache.Append(1, ipctypes.ParentViewTuple{BlockHash: newHash(1)}))
	must(t, s.cache.Append(2, ipctypes.ParentViewTuple{BlockHash: newHash(2)}))
	must(t, s.cache.Append(3, ipctypes.ParentViewTuple{BlockHash: newHash(3)}))

	// Divergence at height 1 invalidates all 3 cached heights, which
	// exceeds MaxReorgDepth=2.
	s.detectReorg(1, newHash(100), false)

	if !s.Halted() {
		t.Fatalf("a reorg deeper than max_reorg_depth should halt the syncer")
	}
	if tuple, ok := s.cache.Get(3); !ok || string(tuple.BlockHash) != string(newHash(3)) {
		t.Fatalf("cache should be left untouched once halted, got %+v, %v", tuple, ok)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
