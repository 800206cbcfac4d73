// Package state provides the state views, pending-write overlay and merkle
// proof machinery consumed by the call executor. A StateView is an immutable
// snapshot of ledger state at one block; all mutation during a call happens
// in a call-scoped Overlay layered on top of it.
package state

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/kestrel-network/kestrel/core/types"
)

// StateView is a read-only snapshot of ledger key-value state at a given
// block. Implementations must be safe for concurrent reads so that a single
// snapshot can serve any number of simultaneous calls.
type StateView interface {
	// Get returns the value stored under key, or nil if absent.
	Get(key []byte) ([]byte, error)

	// ChildGet returns the value stored under key in the child storage
	// identified by prefix, or nil if absent.
	ChildGet(prefix, key []byte) ([]byte, error)

	// Root returns the state root the view was opened at.
	Root() common.Hash
}

// TrieBacked is implemented by state views whose key-value data is organized
// as a merkle trie. Only such views can produce execution proofs.
type TrieBacked interface {
	// TrieState exposes the view in its trie-backed form.
	TrieState() *TrieState
}

// Backend resolves block references to state snapshots. Implementations own
// the storage; the executor only borrows views for the duration of a call.
type Backend interface {
	// StateAt returns the state view at the referenced block.
	StateAt(ref types.BlockRef) (StateView, error)
}
