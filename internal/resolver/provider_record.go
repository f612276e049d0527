package resolver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

// ProviderRecordDomainTag is the domain-separation tag a peer signs over
// when announcing which subnets it can serve content for.
const ProviderRecordDomainTag = "/ipc/provider-record"

// ProviderRecord is a peer's signed snapshot of the subnets it is
// currently willing to serve resolve requests for. It is a snapshot, not
// a delta: a fresh record from the same peer replaces whatever the
// directory previously held for it.
type ProviderRecord struct {
	PeerID    string
	SubnetIDs []string
	Timestamp time.Time
}

var canonicalMode cbor.EncMode

func init() {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("resolver: building canonical cbor mode: %v", err))
	}
	canonicalMode = m
}

// EncodeProviderRecordEnvelope returns the domain-tagged canonical-CBOR
// payload a peer signs over for r: "/ipc/provider-record" || canonical-cbor(r).
func EncodeProviderRecordEnvelope(r ProviderRecord) ([]byte, error) {
	body, err := canonicalMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("resolver: encode provider record: %w", err)
	}
	return append([]byte(ProviderRecordDomainTag), body...), nil
}

// ProviderRecordDigest is the keccak256 of the provider record envelope:
// the value a peer signs and a verifier checks against the sender's
// registered public key, mirroring finality.VoteDigest for the vote-record
// lineage.
func ProviderRecordDigest(r ProviderRecord) ([32]byte, error) {
	payload, err := EncodeProviderRecordEnvelope(r)
	if err != nil {
		return [32]byte{}, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// ProviderDirectory tracks the most recent provider record gossiped by
// each peer and answers "who can serve subnet X" for the resolve pool's
// use_own_subnet fallback.
//
// Records older than maxAge are treated as if the peer dropped off and
// are ignored on read, matching the rationale for carrying a timestamp
// instead of a bare nonce: a peer that stops refreshing its record
// silently ages out.
type ProviderDirectory struct {
	mu      sync.RWMutex
	maxAge  time.Duration
	selfID  string
	records map[string]ProviderRecord // peer_id -> latest record
}

// NewProviderDirectory returns an empty directory. selfID is this node's
// own peer ID, used by Self to answer which subnets it locally provides.
// maxAge <= 0 disables expiry.
func NewProviderDirectory(selfID string, maxAge time.Duration) *ProviderDirectory {
	return &ProviderDirectory{
		selfID:  selfID,
		maxAge:  maxAge,
		records: make(map[string]ProviderRecord),
	}
}

// Ingest records r as the latest snapshot for its peer, provided its
// timestamp is later than that of the record this directory already
// holds for that peer; a record with an equal timestamp is rejected
// (out-of-order gossip delivery must not regress a peer's record).
// Signature verification is the gossip transport's responsibility, same
// as finality.Tally.AddVote; Ingest only orders and stores.
func (d *ProviderDirectory) Ingest(r ProviderRecord) (accepted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.records[r.PeerID]; ok && !r.Timestamp.After(existing.Timestamp) {
		return false
	}
	d.records[r.PeerID] = r
	return true
}

// ProvidersFor returns every live peer ID announcing support for
// subnetID, most-recently-published first.
func (d *ProviderDirectory) ProvidersFor(subnetID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var matches []providerCandidate
	for _, r := range d.records {
		if d.expired(r, now) {
			continue
		}
		for _, s := range r.SubnetIDs {
			if s == subnetID {
				matches = append(matches, providerCandidate{r.PeerID, r.Timestamp})
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ts.After(matches[j].ts) })
	out := make([]string, len(matches))
	for i, c := range matches {
		out[i] = c.peerID
	}
	return out
}

type providerCandidate struct {
	peerID string
	ts     time.Time
}

// Self returns the subnets this node's own most recent provider record
// announces, or nil if it has none (or it has expired).
func (d *ProviderDirectory) Self() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[d.selfID]
	if !ok || d.expired(r, time.Now()) {
		return nil
	}
	return append([]string(nil), r.SubnetIDs...)
}

func (d *ProviderDirectory) expired(r ProviderRecord, now time.Time) bool {
	return d.maxAge > 0 && now.Sub(r.Timestamp) > d.maxAge
}
