// Package txcache implements C5: an LRU cache of signed transactions
// keyed by their Ethereum hash, and a per-sender mempool buffer that
// lets the Ethereum-API facade accept a bounded amount of nonce-gapped
// submissions ahead of what the BFT mempool will currently admit.
package txcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// Hash is a 32-byte Ethereum transaction hash.
type Hash [32]byte

// Cache is the LRU tx-cache: hash -> signed message. Entries are evicted
// both by LRU pressure and explicitly, once the transaction is observed
// in a committed block.
type Cache struct {
	lru *lru.Cache
}

// NewCache returns a tx-cache bounded to size entries.
func NewCache(size int) (*Cache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Put records a signed message under its hash.
func (c *Cache) Put(h Hash, msg ipctypes.SignedMessage) {
	c.lru.Add(h, msg)
}

// Get retrieves a signed message by hash.
func (c *Cache) Get(h Hash) (ipctypes.SignedMessage, bool) {
	v, ok := c.lru.Get(h)
	if !ok {
		return ipctypes.SignedMessage{}, false
	}
	return v.(ipctypes.SignedMessage), true
}

// Evict removes h, e.g. because it was just observed in a committed
// block.
func (c *Cache) Evict(h Hash) {
	c.lru.Remove(h)
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

// senderBuffer is one sender's nonce -> message map.
type senderBuffer struct {
	byNonce map[uint64]ipctypes.SignedMessage
}

// Buffer is the mempool buffer: sender -> unsorted map of nonce -> message.
// The only invariant enforced here is "at most maxNonceGap+1 nonces per
// sender"; ordering for re-broadcast is computed on demand from the map
// keys, not maintained incrementally.
type Buffer struct {
	mu           sync.Mutex
	maxNonceGap  uint64
	bySender     map[string]*senderBuffer
}

// NewBuffer returns an empty mempool buffer.
func NewBuffer(maxNonceGap uint64) *Buffer {
	return &Buffer{maxNonceGap: maxNonceGap, bySender: make(map[string]*senderBuffer)}
}

// admissible reports whether nonce fits within maxNonceGap of the lowest
// nonce currently buffered for sender (or is the first entry).
func (sb *senderBuffer) admissible(nonce, maxNonceGap uint64) bool {
	if len(sb.byNonce) == 0 {
		return true
	}
	lo, hi := sb.bounds()
	lowest := lo
	if nonce < lowest {
		lowest = nonce
	}
	highest := hi
	if nonce > highest {
		highest = nonce
	}
	return highest-lowest <= maxNonceGap
}

func (sb *senderBuffer) bounds() (lo, hi uint64) {
	first := true
	for n := range sb.byNonce {
		if first {
			lo, hi = n, n
			first = false
			continue
		}
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return lo, hi
}

// Add stages msg at (sender, nonce), overwriting any existing entry for
// that nonce. Returns false if adding it would violate the nonce-gap
// invariant.
func (b *Buffer) Add(sender string, nonce uint64, msg ipctypes.SignedMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.bySender[sender]
	if !ok {
		sb = &senderBuffer{byNonce: make(map[uint64]ipctypes.SignedMessage)}
		b.bySender[sender] = sb
	}
	if _, exists := sb.byNonce[nonce]; !exists && !sb.admissible(nonce, b.maxNonceGap) {
		return false
	}
	sb.byNonce[nonce] = msg
	return true
}

// Remove drops (sender, nonce), e.g. because it was just included in a
// block.
func (b *Buffer) Remove(sender string, nonce uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.bySender[sender]
	if !ok {
		return
	}
	delete(sb.byNonce, nonce)
	if len(sb.byNonce) == 0 {
		delete(b.bySender, sender)
	}
}

// DrainFrom returns, in ascending nonce order, every consecutive buffered
// entry for sender starting at from (from, from+1, from+2, ...), removing
// them from the buffer as it goes. It stops at the first gap.
func (b *Buffer) DrainFrom(sender string, from uint64) []ipctypes.SignedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.bySender[sender]
	if !ok {
		return nil
	}

	var out []ipctypes.SignedMessage
	n := from
	for {
		msg, ok := sb.byNonce[n]
		if !ok {
			break
		}
		out = append(out, msg)
		delete(sb.byNonce, n)
		n++
	}
	if len(sb.byNonce) == 0 {
		delete(b.bySender, sender)
	}
	return out
}
