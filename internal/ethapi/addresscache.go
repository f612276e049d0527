package ethapi

import (
	lru "github.com/hashicorp/golang-lru"
)

// AddressCache is an LRU Ethereum-address -> actor-ID lookup cache
// sitting in front of the facade, avoiding a repeated actor-state query
// for every call that resolves an address (§4.11, supplemented from the
// original's eth/api address cache).
type AddressCache struct {
	lru *lru.Cache
}

// NewAddressCache returns a cache bounded to size entries.
func NewAddressCache(size int) (*AddressCache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &AddressCache{lru: l}, nil
}

// Get returns the cached actor ID for addr, if present.
func (c *AddressCache) Get(addr [20]byte) (uint64, bool) {
	v, ok := c.lru.Get(addr)
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

// Put records addr's actor ID.
func (c *AddressCache) Put(addr [20]byte, actorID uint64) {
	c.lru.Add(addr, actorID)
}
