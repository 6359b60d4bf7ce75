package network

import "sync"

// Cache memoizes compiled networks by spec hash. Builds are idempotent for
// a given spec, so a hit can be returned without locking beyond the map
// read; invalidation happens implicitly when the spec (and so its hash)
// changes.
type Cache struct {
	mu sync.RWMutex
	m  map[string]*CompiledNetwork
}

// NewCache creates an empty build cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]*CompiledNetwork)}
}

// Get returns the cached network for a spec hash.
func (c *Cache) Get(hash string) (*CompiledNetwork, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	net, ok := c.m[hash]
	return net, ok
}

// Put stores a compiled network under its own hash.
func (c *Cache) Put(net *CompiledNetwork) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[net.Hash()] = net
}

// Len returns the number of cached networks.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
