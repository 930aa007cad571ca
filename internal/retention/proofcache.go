package retention

import "sync"

// ProofCache memoizes recently served inclusion proofs, keyed by
// whatever the caller chooses as an opaque key (typically a
// root||key pair). A GC pass clears it wholesale after every prune,
// since a pruned height can no longer back a previously cached proof.
type ProofCache struct {
	mu    sync.Mutex
	proof map[string][]byte
}

// NewProofCache returns an empty cache.
func NewProofCache() *ProofCache {
	return &ProofCache{proof: make(map[string][]byte)}
}

// Get returns the cached proof bytes for key, if present.
func (c *ProofCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.proof[key]
	return v, ok
}

// Put stores proof under key.
func (c *ProofCache) Put(key string, proof []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proof[key] = proof
}

// Clear drops every cached entry.
func (c *ProofCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proof = make(map[string][]byte)
}

// Len reports the number of cached entries.
func (c *ProofCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.proof)
}
