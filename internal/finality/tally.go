// Package finality implements C7, the gossip-weighted finality vote
// tally: validators broadcast signed (height, block_hash) votes and the
// tally reports the highest height at which a weighted quorum of the
// current power table agrees.
package finality

import (
	"sort"
	"sync"
	"time"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// VoteDomainTag is the domain-separation tag signed over, matching the
// gossip wire format used by the provider/vote-record lineage.
const VoteDomainTag = "/ipc/vote-record"

// Vote is a signed gossip envelope.
type Vote struct {
	PublicKey string
	SubnetID  string
	Height    ipctypes.BlockHeight
	BlockHash ipctypes.BlockHash
	Timestamp time.Time
}

// MissingQuorum is emitted when no quorum has formed within the
// configured window.
type MissingQuorum struct {
	BlockHash ipctypes.BlockHash
}

type heightTally struct {
	weights     map[string]uint64 // raw block hash bytes as string -> summed weight
	hashByKey   map[string]ipctypes.BlockHash
	leadingHash string
	firstSeen   time.Time
	lastChanged time.Time
}

// Tally is the finality vote tally.
type Tally struct {
	mu              sync.Mutex
	subnetID        string
	majorityPercent uint64
	quorumWindow    time.Duration

	powerTable ipctypes.PowerTable
	byHeight   map[ipctypes.BlockHeight]*heightTally
	observedUpTo ipctypes.BlockHeight // own cache's highest known height

	quorumHeight ipctypes.BlockHeight
	quorumHash   ipctypes.BlockHash
	hasQuorum    bool
}

// New returns an empty tally for subnetID.
func New(subnetID string, majorityPercent uint64, quorumWindow time.Duration) *Tally {
	return &Tally{
		subnetID:        subnetID,
		majorityPercent: majorityPercent,
		quorumWindow:    quorumWindow,
		powerTable:      make(ipctypes.PowerTable),
		byHeight:        make(map[ipctypes.BlockHeight]*heightTally),
	}
}

// UpdatePowerTable replaces the power table, as of the latest committed
// block.
func (t *Tally) UpdatePowerTable(pt ipctypes.PowerTable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.powerTable = pt
}

// Publish records that the local node's own cache (C6) now has a tuple
// for height h, which bounds how far the tally is allowed to report
// quorum (it never votes ahead of its own observation).
func (t *Tally) Publish(h ipctypes.BlockHeight, hash ipctypes.BlockHash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h > t.observedUpTo {
		t.observedUpTo = h
	}
}

// AddVote ingests a gossip vote. Votes for a different subnet are
// discarded; votes from a key outside the power table are ignored and
// contribute no weight. Either case is reported by returning true.
func (t *Tally) AddVote(v Vote) (ignored bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.SubnetID != t.subnetID {
		return true
	}
	weight, known := t.powerTable[v.PublicKey]
	if !known {
		return true
	}

	ht, ok := t.byHeight[v.Height]
	if !ok {
		ht = &heightTally{
			weights:   make(map[string]uint64),
			hashByKey: make(map[string]ipctypes.BlockHash),
			firstSeen: v.Timestamp,
		}
		t.byHeight[v.Height] = ht
	}

	hashKey := string(v.BlockHash)
	if prevHash, voted := ht.hashByKey[v.PublicKey]; voted {
		if string(prevHash) == hashKey {
			return false
		}
		ht.weights[string(prevHash)] -= weight
	}
	ht.hashByKey[v.PublicKey] = v.BlockHash
	ht.weights[hashKey] += weight

	newLeading := argmaxHash(ht.weights)
	if newLeading != ht.leadingHash {
		ht.leadingHash = newLeading
		ht.lastChanged = v.Timestamp
	}

	t.recomputeQuorum()
	return false
}

func argmaxHash(weights map[string]uint64) string {
	var best string
	var bestWeight uint64
	first := true
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic tie-break on lexicographic hash order
	for _, k := range keys {
		w := weights[k]
		if first || w > bestWeight {
			best, bestWeight, first = k, w, false
		}
	}
	return best
}

// recomputeQuorum scans heights up to observedUpTo and records the
// highest one with a weighted quorum. Must be called with t.mu held.
func (t *Tally) recomputeQuorum() {
	total := t.powerTable.Total()
	if total == 0 {
		return
	}

	var best ipctypes.BlockHeight
	var bestHash ipctypes.BlockHash
	found := false

	for h, ht := range t.byHeight {
		if h > t.observedUpTo {
			continue
		}
		leadWeight := ht.weights[ht.leadingHash]
		if leadWeight*100 < total*t.majorityPercent {
			continue
		}
		if !found || h > best {
			best, bestHash, found = h, ipctypes.BlockHash(ht.leadingHash), true
		}
	}

	// Only ever raise quorumHeight. A validator switching its vote can
	// cause a previously-quorate height to drop out of the scan above
	// while a lower height independently reaches quorum; finality must
	// not un-finalize, so a lower "best" this round is simply ignored.
	if found && (best > t.quorumHeight || (!t.hasQuorum && t.quorumHeight == 0)) {
		t.quorumHeight, t.quorumHash, t.hasQuorum = best, bestHash, true
	}
}

// Quorum returns the highest height with a confirmed weighted quorum.
func (t *Tally) Quorum() (ipctypes.BlockHeight, ipctypes.BlockHash, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quorumHeight, t.quorumHash, t.hasQuorum
}

// CheckTimeouts scans heights whose leading hash has been unstable, or
// for which no quorum has formed, longer than the configured window, and
// returns a MissingQuorum event for each.
func (t *Tally) CheckTimeouts(now time.Time) []MissingQuorum {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []MissingQuorum
	for h, ht := range t.byHeight {
		if h <= t.quorumHeight {
			continue
		}
		if now.Sub(ht.firstSeen) < t.quorumWindow {
			continue
		}
		leadWeight := ht.weights[ht.leadingHash]
		total := t.powerTable.Total()
		if total > 0 && leadWeight*100 >= total*t.majorityPercent {
			continue
		}
		events = append(events, MissingQuorum{BlockHash: ipctypes.BlockHash(ht.leadingHash)})
	}
	return events
}

// Finalized discards all tally state with height <= h, e.g. once the
// application has committed finality up to h. A recorded quorum at or
// below h is dropped too, and no later quorum at or below h is reported.
func (t *Tally) Finalized(h ipctypes.BlockHeight) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for height := range t.byHeight {
		if height <= h {
			delete(t.byHeight, height)
		}
	}
	if t.quorumHeight <= h {
		t.quorumHeight, t.quorumHash, t.hasQuorum = h, nil, false
	}
}
