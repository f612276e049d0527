// Package sequence implements C1, the sequential key-cache: an
// append-only, contiguously-keyed cache used as the backbone of the
// parent-view cache (C6). Keys must be inserted as lower+i*increment for
// i = 0..n; anything else is rejected with a typed error so callers can
// tell which bound was violated.
package sequence

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// AppendError names which invariant an out-of-sequence append violated.
type AppendError int

const (
	_ AppendError = iota
	// AboveBound means the key skipped ahead of upper_bound+increment.
	AboveBound
	// AlreadyInserted means the key falls within the existing range but
	// was already (or never meant to be) present at that position.
	AlreadyInserted
	// BelowBound means the key is smaller than the current lower bound.
	BelowBound
)

func (e AppendError) Error() string {
	switch e {
	case AboveBound:
		return "sequence: key above upper_bound+increment"
	case AlreadyInserted:
		return "sequence: key already inserted"
	case BelowBound:
		return "sequence: key below lower_bound"
	default:
		return "sequence: unknown append error"
	}
}

// Cache is a contiguous integer-keyed, append-only cache backed by an
// ordered tree map and guarded by an internal RWMutex: reads
// (Get/ValuesFrom/ValuesWithin/bounds) may run alongside each other, but
// reads and Append wait for one another, and Appends are serialized.
// Keyed lookups and inserts are O(log n); ValuesFrom and ValuesWithin
// walk every cached entry, so they cost O(n) in the cache size rather
// than in the number of entries returned.
type Cache[V any] struct {
	mu        sync.RWMutex
	increment uint64
	tree      *treemap.Map // uint64 -> V
}

// New returns a cache with the given key increment.
func New[V any](increment uint64) *Cache[V] {
	if increment == 0 {
		increment = 1
	}
	return &Cache[V]{
		increment: increment,
		tree:      treemap.NewWith(utils.UInt64Comparator),
	}
}

// NewSequential returns a cache with increment 1.
func NewSequential[V any]() *Cache[V] { return New[V](1) }

// Increment returns the configured key increment.
func (c *Cache[V]) Increment() uint64 {
	return c.increment
}

// Size returns the number of entries.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Size()
}

// LowerBound returns the smallest key present, if any.
func (c *Cache[V]) LowerBound() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lowerBoundLocked()
}

func (c *Cache[V]) lowerBoundLocked() (uint64, bool) {
	k, _ := c.tree.Min()
	if k == nil {
		return 0, false
	}
	return k.(uint64), true
}

// UpperBound returns the largest key present, if any.
func (c *Cache[V]) UpperBound() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.upperBoundLocked()
}

func (c *Cache[V]) upperBoundLocked() (uint64, bool) {
	k, _ := c.tree.Max()
	if k == nil {
		return 0, false
	}
	return k.(uint64), true
}

// Get returns the value at key, if present.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, found := c.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Append inserts (key, val). The only legal key is upper_bound+increment
// (or any key at all, if the cache is currently empty).
func (c *Cache[V]) Append(key uint64, val V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	upper, hasUpper := c.upperBoundLocked()
	if !hasUpper {
		c.tree.Put(key, val)
		return nil
	}

	expected := upper + c.increment
	switch {
	case expected == key:
		c.tree.Put(key, val)
		return nil
	case expected < key:
		return AboveBound
	}

	lower, _ := c.lowerBoundLocked()
	if key < lower {
		return BelowBound
	}
	return AlreadyInserted
}



// ValuesFrom returns the values for keys >= start, in key order.
func (c *Cache[V]) ValuesFrom(start uint64) []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []V
	it := c.tree.Iterator()
	for it.Next() {
		k := it.Key().(uint64)
		if k >= start {
			out = append(out, it.Value().(V))
		}
	}
	return out
}

// ValuesWithin returns the values for keys in [start, end], in key order.
func (c *Cache[V]) ValuesWithin(start, end uint64) []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []V
	it := c.tree.Iterator()
	for it.Next() {
		k := it.Key().(uint64)
		if k >= start && k <= end {
			out = append(out, it.Value().(V))
		}
	}
	return out
}

// Values returns every value, in key order.
func (c *Cache[V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]V, 0, c.tree.Size())
	it := c.tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(V))
	}
	return out
}

// RemoveKeyBelow drops every entry with key < target (exclusive of target).
func (c *Cache[V]) RemoveKeyBelow(target uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		k, _ := c.tree.Min()
		if k == nil || k.(uint64) >= target {
			return
		}
		c.tree.Remove(k)
	}
}

// RemoveKeyAbove drops every entry with key > target (exclusive of target).
// Used by C6 to truncate the cache on parent-chain reorg.
func (c *Cache[V]) RemoveKeyAbove(target uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		k, _ := c.tree.Max()
		if k == nil || k.(uint64) <= target {
			return
		}
		c.tree.Remove(k)
	}
}
