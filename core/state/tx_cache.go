package state

import "github.com/ethereum/go-ethereum/common"

// TransactionCache memoizes the storage root computed from an overlay so
// that repeated contextual calls during block construction do not recompute
// the pending trie transaction on every invocation. Entries are tied to the
// overlay's generation counter: any overlay mutation makes the cached root
// stale. The cache is call-sequence-scoped and, like the overlay it shadows,
// must not be shared across concurrent calls.
type TransactionCache struct {
	root       common.Hash
	generation uint64
	valid      bool
}

// NewTransactionCache returns an empty cache.
func NewTransactionCache() *TransactionCache {
	return &TransactionCache{}
}

// Lookup returns the cached root if it was stored for the same overlay
// generation.
func (c *TransactionCache) Lookup(generation uint64) (common.Hash, bool) {
	if !c.valid || c.generation != generation {
		return common.Hash{}, false
	}
	return c.root, true
}

// Store records the root computed for the given overlay generation.
func (c *TransactionCache) Store(generation uint64, root common.Hash) {
	c.root = root
	c.generation = generation
	c.valid = true
}

// Invalidate drops the cached root.
func (c *TransactionCache) Invalidate() {
	c.valid = false
}

// Root returns the currently cached root, if any. Callers that need
// staleness checking should use Lookup.
func (c *TransactionCache) Root() (common.Hash, bool) {
	return c.root, c.valid
}
