// Package topdown implements C6, the parent-view syncer: it pulls
// (block_hash, validator_changes, top_down_messages) tuples from the
// parent chain into the sequential cache (C1), detects and recovers from
// parent reorgs, and produces/validates the proposals the application
// embeds in each block.
package topdown

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/sequence"
)

var log = ipclog.New("topdown")

// ParentClient is the external read surface into the parent chain that
// the syncer depends on; spec §6 names this collaborator but leaves its
// transport unspecified.
type ParentClient interface {
	ChainHead(ctx context.Context) (height uint64, err error)
	// BlockHashAtHeight returns (hash, null, err); null=true means the
	// height was a legal "null round" with no tuple.
	BlockHashAtHeight(ctx context.Context, height uint64) (hash ipctypes.BlockHash, null bool, err error)
	ValidatorChangesAt(ctx context.Context, height uint64) ([]ipctypes.ValidatorChange, error)
	TopDownMessagesAt(ctx context.Context, height uint64) ([]ipctypes.TopDownMessage, error)
}

// FinalityTally is C7's ingestion surface, consumed read-only here.
type FinalityTally interface {
	Publish(height ipctypes.BlockHeight, hash ipctypes.BlockHash)
}

// Config tunes the syncer loop.
type Config struct {
	ChainHeadDelay        uint64
	PollingInterval       time.Duration
	ExponentialRetryLimit int
	ExponentialBackOff    time.Duration
	MaxProposalRange      uint64
	ProposalDelay         uint64
	// MaxReorgDepth bounds how many cached heights a single parent reorg
	// may invalidate. A divergence deeper than this halts top-down
	// processing entirely rather than silently truncating and
	// re-syncing, since a reorg this deep likely indicates either a
	// parent-chain problem or a configuration mismatch that an operator
	// needs to look at. Zero disables the check.
	MaxReorgDepth uint64
}

// Syncer drives the per-parent-height state machine of spec §4.6.
type Syncer struct {
	cfg    Config
	client ParentClient
	tally  FinalityTally
	cache  *sequence.Cache[ipctypes.ParentViewTuple]

	mu       sync.Mutex
	finality ipctypes.IPCParentFinality
	halted   bool
}

// New returns a syncer starting from the given last-committed finality.
func New(cfg Config, client ParentClient, tally FinalityTally, startFinality ipctypes.IPCParentFinality) *Syncer {
	return &Syncer{
		cfg:      cfg,
		client:   client,
		tally:    tally,
		cache:    sequence.NewSequential[ipctypes.ParentViewTuple](),
		finality: startFinality,
	}
}

// Finality returns the last-committed finality.
func (s *Syncer) Finality() ipctypes.IPCParentFinality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finality
}

// Halted reports whether the syncer has stopped top-down processing
// after a reorg deeper than MaxReorgDepth. Recovering requires restarting
// the node with operator intervention (e.g. a corrected parent endpoint
// or a raised MaxReorgDepth), not an automatic retry.
func (s *Syncer) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Run drives the syncer until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if s.Halted() {
			log.Error("top-down syncer halted: reorg exceeded max_reorg_depth, awaiting operator intervention")
			<-ctx.Done()
			return
		}
		s.tick(ctx)
	}
}

func (s *Syncer) tick(ctx context.Context) {
	head, err := s.client.ChainHead(ctx)
	if err != nil {
		log.Warn("chain head fetch failed", "err", err)
		sleep(ctx, s.cfg.PollingInterval)
		return
	}

	f := s.Finality()
	if head < s.cfg.ChainHeadDelay {
		sleep(ctx, s.cfg.PollingInterval)
		return
	}
	latest := head - s.cfg.ChainHeadDelay
	if latest <= f.Height {
		sleep(ctx, s.cfg.PollingInterval)
		return
	}

	for h := f.Height + 1; h <= latest; h++ {
		ok := s.fetchAndAppend(ctx, h)
		if !ok {
			return // dropped back to step 1 per spec §4.6.4
		}
	}
}

func (s *Syncer) fetchAndAppend(ctx context.Context, h ipctypes.BlockHeight) bool {
	var hash ipctypes.BlockHash
	var null bool
	var changes []ipctypes.ValidatorChange
	var msgs []ipctypes.TopDownMessage

	op := func() error {
		var err error
		hash, null, err = s.client.BlockHashAtHeight(ctx, h)
		if err != nil {
			return err
		}
		if null {
			return nil
		}
		changes, err = s.client.ValidatorChangesAt(ctx, h)
		if err != nil {
			return err
		}
		msgs, err = s.client.TopDownMessagesAt(ctx, h)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.ExponentialBackOff
	bo := backoff.WithMaxRetries(eb, uint64(s.cfg.ExponentialRetryLimit))

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.Warn("fetch exhausted retries, dropping back to polling", "height", h, "err", err)
		return false
	}

	if s.detectReorg(h, hash, null) {
		return false
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ConfigurationNumber < changes[j].ConfigurationNumber })
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Nonce < msgs[j].Nonce })

	tuple := ipctypes.ParentViewTuple{BlockHash: hash, Null: null, ValidatorChanges: changes, TopDownMessages: msgs}
	if err := s.cache.Append(h, tuple); err != nil {
		log.Error("out-of-order append to parent-view cache, this is a logic error", "height", h, "err", err)
		return false
	}
	if !null {
		s.tally.Publish(h, hash)
	}
	return true
}

// detectReorg checks whether a previously-cached tuple at h disagrees
// with the freshly-fetched hash. If so, and the reorg's depth (the
// number of already-cached heights at and above the divergence point) is
// within MaxReorgDepth, it truncates the cache above the divergence
// point and lets the syncer resync from there; beyond that depth it
// halts top-down processing instead per spec §9.
func (s *Syncer) detectReorg(h ipctypes.BlockHeight, hash ipctypes.BlockHash, null bool) bool {
	prev, ok := s.cache.Get(h)
	if !ok {
		return false
	}
	if prev.Null == null && string(prev.BlockHash) == string(hash) {
		return false
	}

	depth := uint64(1)
	if upper, hasUpper := s.cache.UpperBound(); hasUpper && upper >= h {
		depth = uint64(upper-h) + 1
	}
	if s.cfg.MaxReorgDepth > 0 && depth > s.cfg.MaxReorgDepth {
		log.Error("parent reorg exceeds max_reorg_depth, halting top-down processing",
			"height", h, "depth", depth, "max_reorg_depth", s.cfg.MaxReorgDepth)
		s.mu.Lock()
		s.halted = true
		s.mu.Unlock()
		return true
	}

	log.Warn("parent reorg detected, truncating cache", "height", h, "depth", depth)
	s.cache.RemoveKeyAbove(h - 1)
	return true
}

// Commit advances the committed finality to f, dropping cached entries
// below it.
func (s *Syncer) Commit(f ipctypes.IPCParentFinality) {
	s.mu.Lock()
	s.finality = f
	s.mu.Unlock()
	s.cache.RemoveKeyBelow(f.Height)
}

// Proposal is what the application embeds as its top-down claim for one
// block.
type Proposal struct {
	Height ipctypes.BlockHeight
	Hash   ipctypes.BlockHash
}

// Propose computes the highest admissible proposal height per spec §4.6.
func (s *Syncer) Propose() (Proposal, bool) {
	f := s.Finality()
	upper, hasUpper := s.cache.UpperBound()
	if !hasUpper {
		return Proposal{}, false
	}

	maxByRange := f.Height + s.cfg.MaxProposalRange
	for hp := min64(maxByRange, safeSub(upper, s.cfg.ProposalDelay)); hp > f.Height; hp-- {
		tuple, ok := s.cache.Get(hp)
		if !ok || tuple.Null {
			continue
		}
		return Proposal{Height: hp, Hash: tuple.BlockHash}, true
	}
	return Proposal{}, false
}

// Validate checks a proposal received from another validator.
func (s *Syncer) Validate(p Proposal) bool {
	f := s.Finality()
	if p.Height <= f.Height {
		return false
	}
	tuple, ok := s.cache.Get(p.Height)
	if !ok || tuple.Null {
		return false
	}
	return string(tuple.BlockHash) == string(p.Hash)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func safeSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
