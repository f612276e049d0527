package txcache

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipclog"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

var log = ipclog.New("txcache")

// Block is the minimal per-block information the subscriber needs: the
// set of (sender, nonce, hash) triples included.
type Block struct {
	Included []IncludedTx
}

// IncludedTx is one transaction observed in a committed block.
type IncludedTx struct {
	Sender string
	Nonce  uint64
	Hash   Hash
}

// Broadcaster submits a previously-buffered message back to the BFT
// mempool, best-effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, sender string, nonce uint64, msg ipctypes.SignedMessage) error
}

// Subscription yields committed blocks until it is closed or the
// underlying connection drops, in which case Next returns an error and
// the caller should sleep and resubscribe.
type Subscription interface {
	Next(ctx context.Context) (Block, error)
	Close()
}

// Subscriber drains Subscription. Resubscribe is called to obtain a new
// Subscription after one is lost.
type Subscriber struct {
	Cache        *Cache
	Buffer       *Buffer
	Broadcaster  Broadcaster
	Resubscribe  func(ctx context.Context) (Subscription, error)
	ResubscribeDelay time.Duration
}

// Run drives the chain-subscription loop until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		sub, err := s.Resubscribe(ctx)
		if err != nil {
			log.Warn("resubscribe failed, backing off", "err", err)
			if !sleepOrDone(ctx, s.ResubscribeDelay) {
				return
			}
			continue
		}
		s.drain(ctx, sub)
	}
}

func (s *Subscriber) drain(ctx context.Context, sub Subscription) {
	defer sub.Close()
	for {
		block, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("subscription lost, will resubscribe", "err", err)
			}
			return
		}
		s.applyBlock(ctx, block)
	}
}

func (s *Subscriber) applyBlock(ctx context.Context, block Block) {
	highestRemoved := make(map[string]uint64)
	seen := make(map[string]bool)

	for _, tx := range block.Included {
		s.Cache.Evict(tx.Hash)
		s.Buffer.Remove(tx.Sender, tx.Nonce)
		if !seen[tx.Sender] || tx.Nonce > highestRemoved[tx.Sender] {
			highestRemoved[tx.Sender] = tx.Nonce
			seen[tx.Sender] = true
		}
	}

	for sender, n := range highestRemoved {
		drained := s.Buffer.DrainFrom(sender, n+1)
		for i, msg := range drained {
			nonce := n + 1 + uint64(i)
			if err := s.Broadcaster.Broadcast(ctx, sender, nonce, msg); err != nil {
				log.Debug("rebroadcast failed, dropping (best-effort)", "sender", sender, "nonce", nonce, "err", err)
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

var seqRE = regexp.MustCompile(`expected sequence (\d+), got (\d+)`)

// ParseOutOfSequence parses a BFT rejection message of the form "expected
// sequence X, got Y" and, if Y is within maxNonceGap ahead of X, reports
// the transaction as admissible to the mempool buffer.
func ParseOutOfSequence(msg string, maxNonceGap uint64) (expected, got uint64, admissible bool, ok bool) {
	m := seqRE.FindStringSubmatch(msg)
	if m == nil {
		return 0, 0, false, false
	}
	expected, err1 := strconv.ParseUint(m[1], 10, 64)
	got, err2 := strconv.ParseUint(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false, false
	}
	admissible = got >= expected && got-expected <= maxNonceGap
	return expected, got, admissible, true
}

// errNotAdmissible is returned by callers that want a sentinel error for
// a submission outside the nonce-gap window.
var errNotAdmissible = fmt.Errorf("txcache: submission outside admissible nonce gap")

// ErrNotAdmissible is the error to surface to Ethereum-API clients when
// ParseOutOfSequence reports admissible=false.
func ErrNotAdmissible() error { return errNotAdmissible }
